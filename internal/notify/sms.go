package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/ignite/leadflow/internal/pkg/httpretry"
	"github.com/ignite/leadflow/internal/pkg/logger"
)

// SMSSender posts messages to an HTTP SMS gateway. The gateway accepts
// {"from","to","body"} and answers {"id"}.
type SMSSender struct {
	url    string
	token  string
	from   string
	client httpretry.HTTPDoer
}

// NewSMSSender creates a gateway sender. A nil client gets a retrying
// default client.
func NewSMSSender(url, token, from string, client httpretry.HTTPDoer) *SMSSender {
	if client == nil {
		client = httpretry.NewRetryClient(nil, 3)
	}
	return &SMSSender{url: url, token: token, from: from, client: client}
}

type smsRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
	Body string `json:"body"`
}

type smsResponse struct {
	ID    string `json:"id"`
	Error string `json:"error,omitempty"`
}

func (s *SMSSender) Send(ctx context.Context, msg Message) (string, error) {
	payload, err := json.Marshal(smsRequest{From: s.from, To: msg.To, Body: msg.Body})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("sms gateway: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var out smsResponse
	_ = json.Unmarshal(body, &out)
	if resp.StatusCode >= 300 {
		if out.Error != "" {
			return "", fmt.Errorf("sms gateway returned %d: %s", resp.StatusCode, out.Error)
		}
		return "", fmt.Errorf("sms gateway returned %d", resp.StatusCode)
	}
	logger.Info("sms sent", "phone", msg.To, "id", out.ID)
	return out.ID, nil
}
