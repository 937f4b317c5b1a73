package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrUnauthorized signals a 401/403 from the platform; the caller runs the
// one-refresh-and-retry contract before giving up.
var ErrUnauthorized = errors.New("platform rejected the access token")

// PostContent is what gets published.
type PostContent struct {
	AuthorID   string // provider user id of the connection owner
	Text       string
	Visibility string
}

// PublishResult is the platform's acknowledgment.
type PublishResult struct {
	PlatformPostID string
	Visibility     string
}

// Publisher performs the platform API call that puts a post live.
type Publisher interface {
	Publish(ctx context.Context, accessToken string, content PostContent) (*PublishResult, error)
}

// LinkedInPublisher creates UGC posts through the LinkedIn REST API.
type LinkedInPublisher struct {
	baseURL    string
	httpClient *http.Client
}

func NewLinkedInPublisher(baseURL string) *LinkedInPublisher {
	return &LinkedInPublisher{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (p *LinkedInPublisher) Publish(ctx context.Context, accessToken string, content PostContent) (*PublishResult, error) {
	visibility := content.Visibility
	if visibility == "" {
		visibility = "PUBLIC"
	}

	payload := map[string]interface{}{
		"author":         "urn:li:person:" + content.AuthorID,
		"lifecycleState": "PUBLISHED",
		"specificContent": map[string]interface{}{
			"com.linkedin.ugc.ShareContent": map[string]interface{}{
				"shareCommentary":    map[string]string{"text": content.Text},
				"shareMediaCategory": "NONE",
			},
		},
		"visibility": map[string]string{
			"com.linkedin.ugc.MemberNetworkVisibility": visibility,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding share payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/ugcPosts", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building share request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("X-Restli-Protocol-Version", "2.0.0")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("posting share: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrUnauthorized
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("share endpoint returned status %d", resp.StatusCode)
	}

	var ack struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		return nil, fmt.Errorf("decoding share response: %w", err)
	}

	return &PublishResult{PlatformPostID: ack.ID, Visibility: visibility}, nil
}
