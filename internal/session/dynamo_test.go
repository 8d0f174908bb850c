package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/leadrail/sitechat-platform/pkg/logging"
)

type mockDynamo struct {
	putInputs []*dynamodb.PutItemInput
	putErr    error
	getOutput *dynamodb.GetItemOutput
	getErr    error
}

func (m *mockDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	m.putInputs = append(m.putInputs, in)
	if m.putErr != nil {
		return nil, m.putErr
	}
	return &dynamodb.PutItemOutput{}, nil
}

func (m *mockDynamo) GetItem(_ context.Context, _ *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	if m.getOutput != nil {
		return m.getOutput, nil
	}
	return &dynamodb.GetItemOutput{}, nil
}

func TestDynamoStore_CreateGuardsAgainstOverwrite(t *testing.T) {
	mock := &mockDynamo{}
	store := NewDynamoStore(mock, "chat_sessions", 0, logging.Default())

	doc := New("org-1", "sess-1", "https://example.com/pricing")
	if err := store.Create(context.Background(), doc); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if len(mock.putInputs) != 1 {
		t.Fatalf("expected 1 PutItem call, got %d", len(mock.putInputs))
	}
	put := mock.putInputs[0]
	if put.ConditionExpression == nil || *put.ConditionExpression != "attribute_not_exists(sessionId)" {
		t.Fatalf("expected create guard condition, got %v", put.ConditionExpression)
	}

	var stored Session
	if err := attributevalue.UnmarshalMap(put.Item, &stored); err != nil {
		t.Fatalf("failed to unmarshal stored doc: %v", err)
	}
	if stored.Version != 1 {
		t.Fatalf("expected version 1, got %d", stored.Version)
	}
	if stored.ExpiresAt <= time.Now().Unix() {
		t.Fatal("expected TTL in the future")
	}
	if stored.WorkflowStep != StepIdle {
		t.Fatalf("expected idle step, got %s", stored.WorkflowStep)
	}
}

func TestDynamoStore_CreateUsesConfiguredTTL(t *testing.T) {
	mock := &mockDynamo{}
	store := NewDynamoStore(mock, "chat_sessions", time.Hour, logging.Default())

	doc := New("org-1", "sess-1", "/")
	if err := store.Create(context.Background(), doc); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	var stored Session
	if err := attributevalue.UnmarshalMap(mock.putInputs[0].Item, &stored); err != nil {
		t.Fatalf("failed to unmarshal stored doc: %v", err)
	}
	want := time.Now().Add(time.Hour).Unix()
	if stored.ExpiresAt < want-5 || stored.ExpiresAt > want+5 {
		t.Fatalf("expected expiry about an hour out, got %d, want ~%d", stored.ExpiresAt, want)
	}
}

func TestDynamoStore_CompareAndSetUsesVersionGuard(t *testing.T) {
	mock := &mockDynamo{}
	store := NewDynamoStore(mock, "chat_sessions", 0, logging.Default())

	doc := New("org-1", "sess-1", "https://example.com/pricing")
	doc.WorkflowStep = StepLeadQuestion
	if err := store.CompareAndSet(context.Background(), doc, 3); err != nil {
		t.Fatalf("CompareAndSet returned error: %v", err)
	}

	put := mock.putInputs[0]
	if put.ConditionExpression == nil || *put.ConditionExpression != "attribute_exists(sessionId) AND version = :expected" {
		t.Fatalf("expected version guard condition, got %v", put.ConditionExpression)
	}
	expected, ok := put.ExpressionAttributeValues[":expected"].(*types.AttributeValueMemberN)
	if !ok || expected.Value != "3" {
		t.Fatalf("expected :expected=3, got %v", put.ExpressionAttributeValues[":expected"])
	}
	if doc.Version != 4 {
		t.Fatalf("expected version advanced to 4, got %d", doc.Version)
	}
}

func TestDynamoStore_CompareAndSetConflict(t *testing.T) {
	mock := &mockDynamo{putErr: &types.ConditionalCheckFailedException{}}
	store := NewDynamoStore(mock, "chat_sessions", 0, logging.Default())

	doc := New("org-1", "sess-1", "/")
	err := store.CompareAndSet(context.Background(), doc, 2)
	if !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
	if doc.Version != 2 {
		t.Fatalf("expected version restored to 2 after conflict, got %d", doc.Version)
	}
}

func TestDynamoStore_GetNotFound(t *testing.T) {
	store := NewDynamoStore(&mockDynamo{}, "chat_sessions", 0, logging.Default())

	_, err := store.Get(context.Background(), "org-1", "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDynamoStore_GetRoundTrip(t *testing.T) {
	doc := New("org-1", "sess-1", "https://example.com/pricing")
	doc.WorkflowStep = StepSalesQuestion
	doc.RecordAnswer("lead_question_1", "Team")
	doc.Version = 5

	item, err := attributevalue.MarshalMap(doc)
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}
	mock := &mockDynamo{getOutput: &dynamodb.GetItemOutput{Item: item}}
	store := NewDynamoStore(mock, "chat_sessions", 0, logging.Default())

	got, err := store.Get(context.Background(), "org-1", "sess-1")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got.WorkflowStep != StepSalesQuestion {
		t.Fatalf("expected sales_question, got %s", got.WorkflowStep)
	}
	if got.CollectedAnswers["lead_question_1"] != "Team" {
		t.Fatalf("expected collected answer preserved, got %v", got.CollectedAnswers)
	}
	if got.Version != 5 {
		t.Fatalf("expected version 5, got %d", got.Version)
	}
}
