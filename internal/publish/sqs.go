package publish

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/ignite/product-ingest/internal/pkg/ingesterr"
)

type sqsAPI interface {
	SendMessageBatch(ctx context.Context, in *sqs.SendMessageBatchInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageBatchOutput, error)
}

// SQSBus publishes entries to a queue with SendMessageBatch. Source and
// detail type travel as message attributes.
type SQSBus struct {
	client   sqsAPI
	queueURL string
}

func NewSQSBus(client sqsAPI, queueURL string) *SQSBus {
	return &SQSBus{client: client, queueURL: queueURL}
}

func (b *SQSBus) Publish(ctx context.Context, entries []Entry) (BusResult, error) {
	if len(entries) > MaxBatchEntries {
		return BusResult{}, ingesterr.NewConfigurationFailure(
			fmt.Sprintf("SendMessageBatch accepts at most %d entries, got %d", MaxBatchEntries, len(entries)), "publish.batch_size", nil)
	}
	if len(entries) == 0 {
		return BusResult{}, nil
	}

	req := make([]types.SendMessageBatchRequestEntry, 0, len(entries))
	for _, e := range entries {
		req = append(req, types.SendMessageBatchRequestEntry{
			Id:          aws.String(e.ID),
			MessageBody: aws.String(string(e.Detail)),
			MessageAttributes: map[string]types.MessageAttributeValue{
				"source":      {DataType: aws.String("String"), StringValue: aws.String(e.Source)},
				"detail-type": {DataType: aws.String("String"), StringValue: aws.String(e.DetailType)},
			},
		})
	}

	out, err := b.client.SendMessageBatch(ctx, &sqs.SendMessageBatchInput{
		QueueUrl: aws.String(b.queueURL),
		Entries:  req,
	})
	if err != nil {
		return BusResult{}, ingesterr.NewServiceFailure("sqs", "SendMessageBatch", err)
	}

	res := BusResult{FailedCount: len(out.Failed)}
	for _, f := range out.Failed {
		res.FailedEntries = append(res.FailedEntries, FailedEntry{
			EntryID:      aws.ToString(f.Id),
			ErrorCode:    aws.ToString(f.Code),
			ErrorMessage: aws.ToString(f.Message),
		})
	}
	return res, nil
}
