package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/leadflow/internal/pkg/httpretry"
)

type fakeSES struct {
	in  *sesv2.SendEmailInput
	err error
}

func (f *fakeSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.in = in
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("ses-1")}, nil
}

func TestEmailSender(t *testing.T) {
	api := &fakeSES{}
	s := NewEmailSender(api, "alerts@leadflow.io")
	s.SetConfigurationSet("alerts")

	id, err := s.Send(context.Background(), Message{To: "owner@brokerage.com", Subject: "Hot lead", Body: "Ana replied", Tags: map[string]string{"lead_id": "l1"}})
	require.NoError(t, err)
	assert.Equal(t, "ses-1", id)
	assert.Equal(t, "alerts@leadflow.io", aws.ToString(api.in.FromEmailAddress))
	assert.Equal(t, []string{"owner@brokerage.com"}, api.in.Destination.ToAddresses)
	assert.Equal(t, "Ana replied", aws.ToString(api.in.Content.Simple.Body.Text.Data))
	assert.Equal(t, "alerts", aws.ToString(api.in.ConfigurationSetName))
	require.Len(t, api.in.EmailTags, 1)
	assert.Equal(t, "lead_id", aws.ToString(api.in.EmailTags[0].Name))

	api.err = errors.New("throttled")
	_, err = s.Send(context.Background(), Message{To: "x@y.z"})
	assert.ErrorContains(t, err, "throttled")
}

func TestSMSSender(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		var req smsRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "+15550000000", req.From)
		assert.Equal(t, "5550102000", req.To)
		json.NewEncoder(w).Encode(smsResponse{ID: "sms-9"})
	}))
	defer srv.Close()

	id, err := NewSMSSender(srv.URL, "tok", "+15550000000", srv.Client()).
		Send(context.Background(), Message{To: "5550102000", Body: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "sms-9", id)
}

func TestSMSSenderRetriesThenFails(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(smsResponse{Error: "down"})
	}))
	defer srv.Close()

	rc := httpretry.NewRetryClient(srv.Client(), 2)
	rc.SetBackoff(time.Millisecond, 5*time.Millisecond)
	_, err := NewSMSSender(srv.URL, "", "", rc).Send(context.Background(), Message{To: "1", Body: "x"})
	assert.ErrorContains(t, err, "503")
	assert.Equal(t, 3, calls)
}

type stubSender struct{ got []Message }

func (s *stubSender) Send(_ context.Context, m Message) (string, error) {
	s.got = append(s.got, m)
	return "ok", nil
}

func TestRouter(t *testing.T) {
	email := &stubSender{}
	r := NewRouter().Handle("email", email).Handle("sms", nil)

	_, err := r.Send(context.Background(), "", Message{To: "a@b.co"})
	require.NoError(t, err)
	assert.Len(t, email.got, 1)

	_, err = r.Send(context.Background(), "sms", Message{To: "1"})
	assert.ErrorIs(t, err, ErrUnknownChannel)

	_, err = r.Send(context.Background(), "email", Message{})
	assert.ErrorIs(t, err, ErrNoRecipient)
}
