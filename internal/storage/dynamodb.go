package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

type dynamoAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// DynamoStore writes each run twice on a single-table layout:
//
//	PK=RUN#<batchId>      SK=RUN                      lookup by batch
//	PK=SOURCE#<locator>   SK=<startedAt>#<batchId>    history per source
//
// Both items carry the full record and a TTL attribute.
type DynamoStore struct {
	client    dynamoAPI
	tableName string
	ttl       time.Duration
}

func NewDynamoStore(client dynamoAPI, tableName string, ttl time.Duration) *DynamoStore {
	return &DynamoStore{client: client, tableName: tableName, ttl: ttl}
}

func runKey(batchID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: "RUN#" + batchID},
		"SK": &types.AttributeValueMemberS{Value: "RUN"},
	}
}

func (s *DynamoStore) item(rec RunRecord, pk, sk string) (map[string]types.AttributeValue, error) {
	av, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return nil, fmt.Errorf("marshaling run: %w", err)
	}
	av["PK"] = &types.AttributeValueMemberS{Value: pk}
	av["SK"] = &types.AttributeValueMemberS{Value: sk}
	if s.ttl > 0 {
		av["TTL"] = &types.AttributeValueMemberN{Value: fmt.Sprint(rec.StartedAt.Add(s.ttl).Unix())}
	}
	return av, nil
}

func (s *DynamoStore) SaveRun(ctx context.Context, rec RunRecord) error {
	keys := [][2]string{
		{"RUN#" + rec.BatchID, "RUN"},
		{"SOURCE#" + rec.Locator, rec.StartedAt.UTC().Format(time.RFC3339Nano) + "#" + rec.BatchID},
	}
	for _, k := range keys {
		av, err := s.item(rec, k[0], k[1])
		if err != nil {
			return err
		}
		_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName: aws.String(s.tableName),
			Item:      av,
		})
		if err != nil {
			return fmt.Errorf("putting run to DynamoDB: %w", err)
		}
	}
	return nil
}

func (s *DynamoStore) GetRun(ctx context.Context, batchID string) (*RunRecord, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key:       runKey(batchID),
	})
	if err != nil {
		return nil, fmt.Errorf("getting run from DynamoDB: %w", err)
	}
	if result.Item == nil {
		return nil, nil
	}

	var rec RunRecord
	if err := attributevalue.UnmarshalMap(result.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshaling run: %w", err)
	}
	return &rec, nil
}

// ListRuns needs a locator; the table has no cross-source index.
func (s *DynamoStore) ListRuns(ctx context.Context, locator string, limit int) ([]RunRecord, error) {
	if locator == "" {
		return nil, fmt.Errorf("listing runs from DynamoDB requires a locator")
	}
	in := &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: "SOURCE#" + locator},
		},
		ScanIndexForward: aws.Bool(false),
	}
	if limit > 0 {
		in.Limit = aws.Int32(int32(limit))
	}
	result, err := s.client.Query(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("querying runs from DynamoDB: %w", err)
	}

	runs := make([]RunRecord, 0, len(result.Items))
	for _, item := range result.Items {
		var rec RunRecord
		if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
			continue
		}
		runs = append(runs, rec)
	}
	return runs, nil
}
