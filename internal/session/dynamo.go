package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/leadrail/sitechat-platform/pkg/logging"
)

const defaultSessionTTL = 30 * 24 * time.Hour

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// DynamoStore persists session documents to DynamoDB. The table uses orgId as
// the partition key and sessionId as the sort key, with expiresAt as the TTL
// attribute so stale sessions age out without explicit deletes.
type DynamoStore struct {
	client    dynamoAPI
	tableName string
	ttl       time.Duration
	logger    *logging.Logger
}

var _ Store = (*DynamoStore)(nil)

// NewDynamoStore builds a store backed by the provided DynamoDB client.
// A non-positive ttl falls back to 30 days.
func NewDynamoStore(client dynamoAPI, tableName string, ttl time.Duration, logger *logging.Logger) *DynamoStore {
	if client == nil {
		panic("session: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("session: table name cannot be empty")
	}
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	if logger == nil {
		logger = logging.Default()
	}

	return &DynamoStore{
		client:    client,
		tableName: tableName,
		ttl:       ttl,
		logger:    logger.WithComponent("session_store"),
	}
}

// Get loads a session document.
func (s *DynamoStore) Get(ctx context.Context, orgID, sessionID string) (*Session, error) {
	if orgID == "" || sessionID == "" {
		return nil, errors.New("session: org id and session id required")
	}
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		ConsistentRead: aws.Bool(true),
		Key:            s.key(orgID, sessionID),
	})
	if err != nil {
		return nil, fmt.Errorf("session: failed to fetch document: %w", err)
	}
	if out.Item == nil {
		return nil, ErrNotFound
	}

	var doc Session
	if err := attributevalue.UnmarshalMap(out.Item, &doc); err != nil {
		return nil, fmt.Errorf("session: failed to decode document: %w", err)
	}
	return &doc, nil
}

// Create inserts a new document, refusing to overwrite an existing one.
func (s *DynamoStore) Create(ctx context.Context, doc *Session) error {
	if err := doc.Validate(); err != nil {
		return err
	}
	doc.Version = 1
	s.stamp(doc)

	item, err := attributevalue.MarshalMap(doc)
	if err != nil {
		return fmt.Errorf("session: failed to marshal document: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(sessionId)"),
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return ErrVersionConflict
		}
		return fmt.Errorf("session: failed to create document: %w", err)
	}
	return nil
}

// CompareAndSet writes the document only when the stored version matches.
func (s *DynamoStore) CompareAndSet(ctx context.Context, doc *Session, expectedVersion int64) error {
	if err := doc.Validate(); err != nil {
		return err
	}
	doc.Version = expectedVersion + 1
	s.stamp(doc)

	item, err := attributevalue.MarshalMap(doc)
	if err != nil {
		return fmt.Errorf("session: failed to marshal document: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_exists(sessionId) AND version = :expected"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":expected": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", expectedVersion)},
		},
	})
	if err != nil {
		// Restore the caller's view so a retry can reload cleanly.
		doc.Version = expectedVersion
		if isConditionalCheckFailed(err) {
			s.logger.Warn("session write lost race",
				"org_id", doc.OrgID,
				"session_id", doc.SessionID,
				"expected_version", expectedVersion,
			)
			return ErrVersionConflict
		}
		return fmt.Errorf("session: failed to update document: %w", err)
	}
	return nil
}

func (s *DynamoStore) key(orgID, sessionID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"orgId":     &types.AttributeValueMemberS{Value: orgID},
		"sessionId": &types.AttributeValueMemberS{Value: sessionID},
	}
}

func (s *DynamoStore) stamp(doc *Session) {
	now := time.Now().UTC()
	doc.LastUpdated = now
	doc.ExpiresAt = now.Add(s.ttl).Unix()
}

func isConditionalCheckFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}
