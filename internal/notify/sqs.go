package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/paasforest/proconnect-access/internal/events"
)

type sqsAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSForwarder publishes event envelopes to a queue for an external worker.
type SQSForwarder struct {
	client   sqsAPI
	queueURL string
}

func NewSQSForwarder(client *sqs.Client, queueURL string) *SQSForwarder {
	if client == nil {
		panic("notify: SQS client cannot be nil")
	}
	return newSQSForwarder(client, queueURL)
}

func newSQSForwarder(client sqsAPI, queueURL string) *SQSForwarder {
	if queueURL == "" {
		panic("notify: SQS queueURL cannot be empty")
	}
	return &SQSForwarder{client: client, queueURL: queueURL}
}

func (f *SQSForwarder) Handle(ctx context.Context, entry events.OutboxEntry) error {
	body, err := json.Marshal(entry.Envelope)
	if err != nil {
		return fmt.Errorf("notify: encode envelope: %w", err)
	}
	_, err = f.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(f.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"event_type": {DataType: aws.String("String"), StringValue: aws.String(entry.Type)},
			"aggregate":  {DataType: aws.String("String"), StringValue: aws.String(entry.Aggregate)},
		},
	})
	if err != nil {
		return fmt.Errorf("notify: failed to send SQS message: %w", err)
	}
	return nil
}

// DeliveryMarks remembers which sinks already accepted an outbox entry.
// events.ProcessedStore and events.MemoryProcessedStore implement it.
type DeliveryMarks interface {
	AlreadyProcessed(ctx context.Context, source, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, source, eventID string) (bool, error)
}

// Sink is a named delivery target.
type Sink struct {
	Name    string
	Handler events.DeliveryHandler
}

// Fanout delivers each entry to every sink and joins their errors. With
// marks set, a sink that already took an entry is skipped when the outbox
// retries it, so one failing sink does not resend through the others.
type Fanout struct {
	sinks []Sink
	marks DeliveryMarks
}

// NewFanout drops sinks without a handler. marks may be nil.
func NewFanout(marks DeliveryMarks, sinks ...Sink) *Fanout {
	f := &Fanout{marks: marks}
	for _, s := range sinks {
		if s.Handler != nil {
			f.sinks = append(f.sinks, s)
		}
	}
	return f
}

// Len reports how many sinks are attached.
func (f *Fanout) Len() int { return len(f.sinks) }

func (f *Fanout) Handle(ctx context.Context, entry events.OutboxEntry) error {
	eventID := entry.ID.String()
	var errs []error
	for _, s := range f.sinks {
		source := "notify:" + s.Name
		if f.marks != nil {
			done, err := f.marks.AlreadyProcessed(ctx, source, eventID)
			if err != nil {
				errs = append(errs, fmt.Errorf("notify: %s: %w", s.Name, err))
				continue
			}
			if done {
				continue
			}
		}
		if err := s.Handler.Handle(ctx, entry); err != nil {
			errs = append(errs, err)
			continue
		}
		if f.marks != nil {
			if _, err := f.marks.MarkProcessed(ctx, source, eventID); err != nil {
				errs = append(errs, fmt.Errorf("notify: %s: %w", s.Name, err))
			}
		}
	}
	return errors.Join(errs...)
}
