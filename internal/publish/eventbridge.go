package publish

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"

	"github.com/ignite/product-ingest/internal/pkg/ingesterr"
)

type eventBridgeAPI interface {
	PutEvents(ctx context.Context, in *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

// EventBridgeBus publishes entries with PutEvents.
type EventBridgeBus struct {
	client eventBridgeAPI
}

func NewEventBridgeBus(client eventBridgeAPI) *EventBridgeBus {
	return &EventBridgeBus{client: client}
}

func (b *EventBridgeBus) Publish(ctx context.Context, entries []Entry) (BusResult, error) {
	if len(entries) > MaxBatchEntries {
		return BusResult{}, ingesterr.NewConfigurationFailure(
			fmt.Sprintf("PutEvents accepts at most %d entries, got %d", MaxBatchEntries, len(entries)), "publish.batch_size", nil)
	}

	req := make([]types.PutEventsRequestEntry, 0, len(entries))
	for _, e := range entries {
		re := types.PutEventsRequestEntry{
			Source:       aws.String(e.Source),
			DetailType:   aws.String(e.DetailType),
			Detail:       aws.String(string(e.Detail)),
			EventBusName: aws.String(e.BusName),
		}
		if !e.Time.IsZero() {
			re.Time = aws.Time(e.Time)
		}
		req = append(req, re)
	}

	out, err := b.client.PutEvents(ctx, &eventbridge.PutEventsInput{Entries: req})
	if err != nil {
		return BusResult{}, ingesterr.NewServiceFailure("events", "PutEvents", err)
	}

	res := BusResult{FailedCount: int(out.FailedEntryCount)}
	// Result entries are positional with the request.
	for i, re := range out.Entries {
		if re.ErrorCode == nil || i >= len(entries) {
			continue
		}
		res.FailedEntries = append(res.FailedEntries, FailedEntry{
			EntryID:      entries[i].ID,
			ErrorCode:    aws.ToString(re.ErrorCode),
			ErrorMessage: aws.ToString(re.ErrorMessage),
		})
	}
	return res, nil
}
