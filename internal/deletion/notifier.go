package deletion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// ComplianceNotifier informs an external platform that a user's data has
// been purged, satisfying its data-retention policy.
type ComplianceNotifier interface {
	NotifyDataDeleted(ctx context.Context, platformUserID string) error
}

// ZoomComplianceNotifier posts the data-deletion notice to Zoom's
// compliance endpoint using the app's client credentials.
type ZoomComplianceNotifier struct {
	endpoint     string
	clientID     string
	clientSecret string
	httpClient   *http.Client
}

func NewZoomComplianceNotifier(endpoint, clientID, clientSecret string) *ZoomComplianceNotifier {
	return &ZoomComplianceNotifier{
		endpoint:     endpoint,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   &http.Client{Timeout: 15 * time.Second},
	}
}

func (n *ZoomComplianceNotifier) NotifyDataDeleted(ctx context.Context, platformUserID string) error {
	body, err := json.Marshal(map[string]interface{}{
		"client_id":            n.clientID,
		"user_id":              platformUserID,
		"compliance_completed": true,
	})
	if err != nil {
		return fmt.Errorf("encoding compliance payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building compliance request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(n.clientID, n.clientSecret)

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("posting compliance notice: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("compliance endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
