// Package inbound consumes lead replies from an SQS queue fed by the SMS and
// email providers. Each reply is stored on the lead's conversation and then
// evaluated as a message_received event.
package inbound

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/ignite/leadflow/internal/automation"
	"github.com/ignite/leadflow/internal/domain"
)

// SQSAPI is the subset of the SQS client the consumer uses.
type SQSAPI interface {
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// Recorder stores a reply on the lead's conversation.
type Recorder interface {
	RecordInbound(ctx context.Context, leadID, body string, at time.Time) error
}

// EventHandler evaluates an event for one lead.
type EventHandler interface {
	HandleEvent(ctx context.Context, ev automation.Event) (*automation.Outcome, error)
}

// Reply is the queue message body.
type Reply struct {
	MessageID  string    `json:"message_id"`
	LeadID     string    `json:"lead_id"`
	Body       string    `json:"body"`
	Channel    string    `json:"channel,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

// Options tunes the receive loop.
type Options struct {
	WaitSeconds       int32
	MaxMessages       int32
	VisibilitySeconds int32
	ErrorBackoff      time.Duration
	// RecordedTTL and RecordedMax bound the memory of stored but unevaluated
	// replies. Entries for messages the queue moved to its dead-letter queue
	// expire after RecordedTTL.
	RecordedTTL time.Duration
	RecordedMax int
}

// Consumer long-polls the reply queue.
type Consumer struct {
	client   SQSAPI
	queueURL string
	recorder Recorder
	events   EventHandler
	opts     Options
	now      func() time.Time

	// Replies already stored but not yet evaluated. A redelivery skips the
	// second store.
	recorded *Seen

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewConsumer creates a consumer for queueURL.
func NewConsumer(client SQSAPI, queueURL string, recorder Recorder, events EventHandler, opts Options) *Consumer {
	if opts.WaitSeconds <= 0 {
		opts.WaitSeconds = 20
	}
	if opts.MaxMessages <= 0 || opts.MaxMessages > 10 {
		opts.MaxMessages = 10
	}
	if opts.ErrorBackoff <= 0 {
		opts.ErrorBackoff = 5 * time.Second
	}
	if opts.RecordedTTL <= 0 {
		opts.RecordedTTL = 24 * time.Hour
	}
	if opts.RecordedMax <= 0 {
		opts.RecordedMax = 10000
	}
	c := &Consumer{
		client:   client,
		queueURL: queueURL,
		recorder: recorder,
		events:   events,
		opts:     opts,
		now:      time.Now,
		done:     make(chan struct{}),
	}
	c.recorded = NewSeen(opts.RecordedTTL, opts.RecordedMax, func() time.Time { return c.now() })
	return c
}

// Start begins polling in the background.
func (c *Consumer) Start(ctx context.Context) {
	log.Printf("[InboundConsumer] started (queue=%s)", c.queueURL)
	c.wg.Add(1)
	go c.poll(ctx)
}

// Stop ends polling and waits for the in-flight batch.
func (c *Consumer) Stop() {
	c.stopOnce.Do(func() { close(c.done) })
	c.wg.Wait()
}

func (c *Consumer) poll(ctx context.Context) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		default:
		}

		if _, err := c.ProcessBatch(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("[InboundConsumer] receive error: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-c.done:
				return
			case <-time.After(c.opts.ErrorBackoff):
			}
		}
	}
}

// ProcessBatch receives one batch and handles each message. It returns the
// number of messages deleted from the queue.
func (c *Consumer) ProcessBatch(ctx context.Context) (int, error) {
	in := &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(c.queueURL),
		MaxNumberOfMessages: c.opts.MaxMessages,
		WaitTimeSeconds:     c.opts.WaitSeconds,
	}
	if c.opts.VisibilitySeconds > 0 {
		in.VisibilityTimeout = c.opts.VisibilitySeconds
	}
	out, err := c.client.ReceiveMessage(ctx, in)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, msg := range out.Messages {
		if !c.handle(ctx, aws.ToString(msg.MessageId), aws.ToString(msg.Body)) {
			continue
		}
		if _, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
			QueueUrl:      aws.String(c.queueURL),
			ReceiptHandle: msg.ReceiptHandle,
		}); err != nil {
			log.Printf("[InboundConsumer] delete %s: %v", aws.ToString(msg.MessageId), err)
			continue
		}
		deleted++
	}
	return deleted, nil
}

// handle reports whether the message is finished and can be deleted.
func (c *Consumer) handle(ctx context.Context, sqsID, body string) bool {
	var r Reply
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		log.Printf("[InboundConsumer] bad message %s: %v", sqsID, err)
		return true
	}
	if strings.TrimSpace(r.LeadID) == "" {
		log.Printf("[InboundConsumer] message %s has no lead_id", sqsID)
		return true
	}
	if r.MessageID == "" {
		r.MessageID = sqsID
	}
	if r.ReceivedAt.IsZero() {
		r.ReceivedAt = c.now()
	}

	if c.recorded.Add(r.MessageID) {
		if err := c.recorder.RecordInbound(ctx, r.LeadID, r.Body, r.ReceivedAt); err != nil {
			c.recorded.Forget(r.MessageID)
			if errors.Is(err, domain.ErrNotFound) {
				log.Printf("[InboundConsumer] no conversation for lead %s, dropping %s", r.LeadID, r.MessageID)
				return true
			}
			log.Printf("[InboundConsumer] record %s: %v", r.MessageID, err)
			return false
		}
	}

	ev := automation.Event{
		ID:         "inbound:" + r.MessageID,
		Kind:       automation.EventMessageReceived,
		LeadID:     r.LeadID,
		OccurredAt: r.ReceivedAt,
	}
	out, err := c.events.HandleEvent(ctx, ev)
	switch {
	case errors.Is(err, automation.ErrLeadBusy):
		log.Printf("[InboundConsumer] lead %s busy, leaving %s for redelivery", r.LeadID, r.MessageID)
		return false
	case errors.Is(err, domain.ErrNotFound):
		log.Printf("[InboundConsumer] lead %s not found, dropping %s", r.LeadID, r.MessageID)
	case err != nil:
		// Rules that already fired are skipped on redelivery by the
		// fired-once guard. The queue's redrive policy bounds retries.
		log.Printf("[InboundConsumer] evaluate %s: %v", r.MessageID, err)
		return false
	}
	c.recorded.Forget(r.MessageID)
	if out != nil {
		log.Printf("[InboundConsumer] lead %s reply %s: %d intents executed", r.LeadID, r.MessageID, len(out.Executed))
	}
	return true
}
