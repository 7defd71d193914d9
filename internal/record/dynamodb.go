package record

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"linerelay/internal/domain"
)

// Attribute names of the DynamoDB item layout.
const (
	attrUserID      = "userId"
	attrTimestamp   = "timestamp"
	attrDisplayName = "display_name"
	attrMessageText = "message_text"
	attrImageURL    = "image_url"
	attrLabel       = "label"
	attrConfidence  = "confidence"
)

// DynamoAPI is the subset of the DynamoDB client the store needs.
type DynamoAPI interface {
	dynamodb.ScanAPIClient
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// DynamoStore implements domain.RecordStore on a DynamoDB table keyed by
// userId (hash) and timestamp (range).
type DynamoStore struct {
	client DynamoAPI
	table  string
	logger *slog.Logger
}

// NewDynamoStore creates a store for table. If endpoint is non-empty the
// client talks to it instead of the regional endpoint (DynamoDB Local).
func NewDynamoStore(cfg aws.Config, table, endpoint string, logger *slog.Logger) *DynamoStore {
	var opts []func(*dynamodb.Options)
	if endpoint != "" {
		opts = append(opts, func(o *dynamodb.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
	}
	return NewDynamoStoreWithClient(dynamodb.NewFromConfig(cfg, opts...), table, logger)
}

func NewDynamoStoreWithClient(client DynamoAPI, table string, logger *slog.Logger) *DynamoStore {
	return &DynamoStore{client: client, table: table, logger: logger}
}

type dynamoItem struct {
	UserID      string   `dynamodbav:"userId"`
	Timestamp   int64    `dynamodbav:"timestamp"`
	DisplayName string   `dynamodbav:"display_name"`
	MessageText *string  `dynamodbav:"message_text"`
	ImageURL    *string  `dynamodbav:"image_url"`
	Label       *string  `dynamodbav:"label"`
	Confidence  *float64 `dynamodbav:"confidence"`
}

func (s *DynamoStore) key(subjectID string, timestamp int64) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		attrUserID:    &types.AttributeValueMemberS{Value: subjectID},
		attrTimestamp: &types.AttributeValueMemberN{Value: strconv.FormatInt(timestamp, 10)},
	}
}

// Upsert SETs every mutable attribute. Absent values are written as NULL so a
// replayed key never keeps attributes from the previous write.
func (s *DynamoStore) Upsert(ctx context.Context, rec domain.EventRecord) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(s.table),
		Key:              s.key(rec.SubjectID, rec.Timestamp),
		UpdateExpression: aws.String("SET #dn = :dn, #mt = :mt, #iu = :iu, #lb = :lb, #cf = :cf"),
		ExpressionAttributeNames: map[string]string{
			"#dn": attrDisplayName,
			"#mt": attrMessageText,
			"#iu": attrImageURL,
			"#lb": attrLabel,
			"#cf": attrConfidence,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":dn": &types.AttributeValueMemberS{Value: rec.DisplayName},
			":mt": stringOrNull(rec.MessageText),
			":iu": stringOrNull(rec.ImageLocator),
			":lb": stringOrNull(rec.ClassificationLabel),
			":cf": numberOrNull(rec.ClassificationConfidence),
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		s.logger.Error("record upsert failed", "table", s.table, "subject", rec.SubjectID, "timestamp", rec.Timestamp, "err", err)
		return fmt.Errorf("dynamodb update item: %w", err)
	}
	s.logger.Debug("record upserted", "table", s.table, "subject", rec.SubjectID, "timestamp", rec.Timestamp)
	return nil
}

func (s *DynamoStore) Get(ctx context.Context, subjectID string, timestamp int64) (*domain.EventRecord, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            s.key(subjectID, timestamp),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("dynamodb get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	rec, err := decodeItem(out.Item)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *DynamoStore) Scan(ctx context.Context) ([]domain.EventRecord, error) {
	var recs []domain.EventRecord
	p := dynamodb.NewScanPaginator(s.client, &dynamodb.ScanInput{TableName: aws.String(s.table)})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("dynamodb scan: %w", err)
		}
		for _, item := range page.Items {
			rec, err := decodeItem(item)
			if err != nil {
				return nil, err
			}
			recs = append(recs, rec)
		}
	}
	return recs, nil
}

func (s *DynamoStore) Delete(ctx context.Context, subjectID string, timestamp int64) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.table),
		Key:       s.key(subjectID, timestamp),
	})
	if err != nil {
		return fmt.Errorf("dynamodb delete item: %w", err)
	}
	return nil
}

func (s *DynamoStore) Close() error { return nil }

func decodeItem(item map[string]types.AttributeValue) (domain.EventRecord, error) {
	var it dynamoItem
	if err := attributevalue.UnmarshalMap(item, &it); err != nil {
		return domain.EventRecord{}, fmt.Errorf("decode record item: %w", err)
	}
	return domain.EventRecord{
		SubjectID:                it.UserID,
		Timestamp:                it.Timestamp,
		DisplayName:              it.DisplayName,
		MessageText:              it.MessageText,
		ImageLocator:             it.ImageURL,
		ClassificationLabel:      it.Label,
		ClassificationConfidence: it.Confidence,
	}, nil
}

func stringOrNull(s *string) types.AttributeValue {
	if s == nil {
		return &types.AttributeValueMemberNULL{Value: true}
	}
	return &types.AttributeValueMemberS{Value: *s}
}

func numberOrNull(f *float64) types.AttributeValue {
	if f == nil {
		return &types.AttributeValueMemberNULL{Value: true}
	}
	return &types.AttributeValueMemberN{Value: strconv.FormatFloat(*f, 'f', -1, 64)}
}
