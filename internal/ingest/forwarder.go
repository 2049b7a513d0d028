package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/ignite/leadflow/internal/pkg/httpretry"
)

// Forwarder notifies the match function about newly imported leads.
type Forwarder interface {
	Forward(userID string, entity EntityType, leadIDs []string)
}

// MatchForwarder POSTs imported lead ids to the auto-match function. Calls run
// in the background; failures are logged and dropped.
type MatchForwarder struct {
	url     string
	token   string
	client  httpretry.HTTPDoer
	timeout time.Duration
}

// NewMatchForwarder creates a forwarder posting to url. A nil client gets a
// retrying default client.
func NewMatchForwarder(url, token string, client httpretry.HTTPDoer) *MatchForwarder {
	if client == nil {
		client = httpretry.NewRetryClient(nil, 3)
	}
	return &MatchForwarder{url: url, token: token, client: client, timeout: 30 * time.Second}
}

type matchRequest struct {
	UserID     string     `json:"user_id"`
	EntityType EntityType `json:"entity_type"`
	LeadIDs    []string   `json:"lead_ids"`
}

// Forward sends the ids without blocking the caller.
func (f *MatchForwarder) Forward(userID string, entity EntityType, leadIDs []string) {
	if f.url == "" || len(leadIDs) == 0 {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
		defer cancel()
		if err := f.send(ctx, matchRequest{UserID: userID, EntityType: entity, LeadIDs: leadIDs}); err != nil {
			log.Printf("[MatchForwarder] forward of %d leads failed: %v", len(leadIDs), err)
		}
	}()
}

func (f *MatchForwarder) send(ctx context.Context, body matchRequest) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if f.token != "" {
		req.Header.Set("Authorization", "Bearer "+f.token)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("match function returned %d", resp.StatusCode)
	}
	return nil
}
