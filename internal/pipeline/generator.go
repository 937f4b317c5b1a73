package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/recastlabs/recast/internal/database/models"
)

// HookIdea is one marketing angle proposed for a transcript.
type HookIdea struct {
	Text   string `json:"text"`
	Pillar string `json:"pillar"`
}

// GeneratedPost is the publishable draft produced for a hook.
type GeneratedPost struct {
	Content  string `json:"content"`
	ImageURL string `json:"image_url,omitempty"`
}

// Request carries everything the generation service needs: the transcript
// plus the company's brand configuration.
type Request struct {
	Topic      string            `json:"topic"`
	Transcript string            `json:"transcript"`
	Summary    string            `json:"summary,omitempty"`
	BrandVoice models.BrandVoice `json:"brand_voice"`
	Pillars    []string          `json:"pillars"`
	MaxHooks   int               `json:"max_hooks"`
}

// Generator is the AI content pipeline collaborator. Implementations must
// bound the number of hooks returned by Request.MaxHooks.
type Generator interface {
	GenerateHooks(ctx context.Context, req Request) ([]HookIdea, error)
	GeneratePost(ctx context.Context, hook HookIdea, req Request) (*GeneratedPost, error)
}

// HTTPGenerator talks to the generation service over HTTP.
type HTTPGenerator struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewHTTPGenerator(baseURL, apiKey string, timeout time.Duration) *HTTPGenerator {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &HTTPGenerator{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (g *HTTPGenerator) GenerateHooks(ctx context.Context, req Request) ([]HookIdea, error) {
	var resp struct {
		Hooks []HookIdea `json:"hooks"`
	}
	if err := g.post(ctx, "/v1/hooks", req, &resp); err != nil {
		return nil, err
	}
	if req.MaxHooks > 0 && len(resp.Hooks) > req.MaxHooks {
		resp.Hooks = resp.Hooks[:req.MaxHooks]
	}
	return resp.Hooks, nil
}

func (g *HTTPGenerator) GeneratePost(ctx context.Context, hook HookIdea, req Request) (*GeneratedPost, error) {
	payload := struct {
		Hook HookIdea `json:"hook"`
		Request
	}{Hook: hook, Request: req}

	var post GeneratedPost
	if err := g.post(ctx, "/v1/posts", payload, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

func (g *HTTPGenerator) post(ctx context.Context, path string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding pipeline payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building pipeline request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling pipeline: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("pipeline returned status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding pipeline response: %w", err)
	}
	return nil
}
