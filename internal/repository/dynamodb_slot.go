package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	pkPrefixSlot = "SLOT#"
	skState      = "STATE#"

	// DynamoDB caps an item at 400 KB including keys and attribute names.
	// The payload gets everything but a small allowance for those.
	maxPayloadBytes = 400*1024 - 1024
)

// ErrSlotTooLarge is returned by DynamoSlot.Put when the value cannot fit in one item.
var ErrSlotTooLarge = errors.New("repository: slot value exceeds DynamoDB item size limit")

// dynamodbAPI is the minimal DynamoDB interface required by DynamoSlot.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// DynamoSlot stores the slot value as a single item in a DynamoDB table.
type DynamoSlot struct {
	api       dynamodbAPI
	tableName string
	name      string
	now       func() time.Time
}

// NewDynamoSlot creates a slot named name in tableName.
func NewDynamoSlot(api dynamodbAPI, tableName, name string) (*DynamoSlot, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	if strings.TrimSpace(name) == "" {
		return nil, errors.New("repository: slot name must not be empty")
	}
	return &DynamoSlot{api: api, tableName: tableName, name: name, now: time.Now}, nil
}

// slotPK returns the DynamoDB partition key for a slot.
func slotPK(name string) string {
	return pkPrefixSlot + name
}

func (s *DynamoSlot) key() map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: slotPK(s.name)},
		"SK": &types.AttributeValueMemberS{Value: skState},
	}
}

// Get reads the slot payload with a strongly consistent read.
func (s *DynamoSlot) Get(ctx context.Context) ([]byte, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            s.key(),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("repository: Get slot %q: %w", s.name, err)
	}
	if out == nil || len(out.Item) == 0 {
		return nil, ErrSlotNotFound
	}
	payload, err := strAttr(out.Item, "payload")
	if err != nil {
		return nil, fmt.Errorf("repository: Get slot %q decode payload: %w", s.name, err)
	}
	return []byte(payload), nil
}

// Put overwrites the slot item. A single PutItem is atomic, so the previous
// value stays intact if the write fails.
func (s *DynamoSlot) Put(ctx context.Context, value []byte) error {
	if len(value) > maxPayloadBytes {
		return fmt.Errorf("repository: Put slot %q (%d bytes): %w", s.name, len(value), ErrSlotTooLarge)
	}
	item := s.key()
	item["payload"] = &types.AttributeValueMemberS{Value: string(value)}
	item["updatedAt"] = &types.AttributeValueMemberS{Value: s.now().UTC().Format(time.RFC3339)}

	_, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("repository: Put slot %q: %w", s.name, err)
	}
	return nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("repository: missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("repository: attribute %q is not a string", key)
	}
	return s.Value, nil
}
