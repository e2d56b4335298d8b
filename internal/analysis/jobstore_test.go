package analysis

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/casavoz/call-platform/pkg/logging"
)

type fakeDynamo struct {
	puts    []*dynamodb.PutItemInput
	updates []*dynamodb.UpdateItemInput
	item    map[string]types.AttributeValue
	err     error
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.puts = append(f.puts, in)
	return &dynamodb.PutItemOutput{}, f.err
}

func (f *fakeDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.updates = append(f.updates, in)
	if f.err != nil {
		return nil, f.err
	}
	return &dynamodb.UpdateItemOutput{}, nil
}

func (f *fakeDynamo) GetItem(_ context.Context, _ *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &dynamodb.GetItemOutput{Item: f.item}, nil
}

func TestJobStorePutPending(t *testing.T) {
	dyn := &fakeDynamo{}
	store := NewJobStore(dyn, "analysis_jobs", logging.Default())

	job := &JobRecord{JobID: "job-123", ConversationID: 7, CallSID: "CA123"}
	if err := store.PutPending(context.Background(), job); err != nil {
		t.Fatalf("PutPending: %v", err)
	}
	if len(dyn.puts) != 1 {
		t.Fatalf("PutItem calls = %d, want 1", len(dyn.puts))
	}

	var stored JobRecord
	if err := attributevalue.UnmarshalMap(dyn.puts[0].Item, &stored); err != nil {
		t.Fatalf("unmarshal stored job: %v", err)
	}
	if stored.Status != JobStatusPending {
		t.Errorf("status = %s, want pending", stored.Status)
	}
	if stored.ConversationID != 7 || stored.CallSID != "CA123" {
		t.Errorf("stored job = %#v", stored)
	}
	if stored.CreatedAt == "" || stored.UpdatedAt == "" {
		t.Error("timestamps not populated")
	}
	if stored.ExpiresAt <= time.Now().Unix() {
		t.Errorf("TTL %d not in the future", stored.ExpiresAt)
	}

	cond := dyn.puts[0].ConditionExpression
	if cond == nil || *cond != "attribute_not_exists(jobId)" {
		t.Errorf("condition expression = %v, want overwrite guard", cond)
	}
}

func TestJobStorePutPendingNilJob(t *testing.T) {
	store := NewJobStore(&fakeDynamo{}, "analysis_jobs", logging.Default())
	if err := store.PutPending(context.Background(), nil); err == nil {
		t.Fatal("PutPending(nil) should fail")
	}
}

func TestJobStoreMarkCompleted(t *testing.T) {
	dyn := &fakeDynamo{}
	store := NewJobStore(dyn, "analysis_jobs", logging.Default())

	if err := store.MarkCompleted(context.Background(), "job-123", GradeCaliente); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}
	if len(dyn.updates) != 1 {
		t.Fatalf("UpdateItem calls = %d, want 1", len(dyn.updates))
	}
	update := dyn.updates[0]

	// status and grade are DynamoDB reserved words and must be aliased.
	names := update.ExpressionAttributeNames
	if names["#status"] != "status" || names["#error"] != "errorMessage" {
		t.Errorf("attribute name aliases = %v", names)
	}

	values := update.ExpressionAttributeValues
	if got := values[":status"].(*types.AttributeValueMemberS).Value; got != string(JobStatusCompleted) {
		t.Errorf(":status = %s, want completed", got)
	}
	if got := values[":grade"].(*types.AttributeValueMemberS).Value; got != GradeCaliente {
		t.Errorf(":grade = %s, want caliente", got)
	}
}

func TestJobStoreMarkFailed(t *testing.T) {
	dyn := &fakeDynamo{}
	store := NewJobStore(dyn, "analysis_jobs", logging.Default())

	if err := store.MarkFailed(context.Background(), "job-123", "boom"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	values := dyn.updates[0].ExpressionAttributeValues
	if _, ok := values[":grade"].(*types.AttributeValueMemberNULL); !ok {
		t.Errorf(":grade = %T, want NULL", values[":grade"])
	}
	if got := values[":error"].(*types.AttributeValueMemberS).Value; got != "boom" {
		t.Errorf(":error = %q, want boom", got)
	}
}

func TestJobStoreMarkCompletedPropagatesError(t *testing.T) {
	store := NewJobStore(&fakeDynamo{err: errors.New("dynamo failed")}, "analysis_jobs", logging.Default())

	err := store.MarkCompleted(context.Background(), "job-1", GradeTibio)
	if err == nil || !strings.Contains(err.Error(), "dynamo failed") {
		t.Fatalf("err = %v, want dynamo failure", err)
	}
}

func TestJobStoreGetJob(t *testing.T) {
	dyn := &fakeDynamo{item: map[string]types.AttributeValue{
		"jobId":  &types.AttributeValueMemberS{Value: "job-42"},
		"status": &types.AttributeValueMemberS{Value: string(JobStatusPending)},
	}}
	store := NewJobStore(dyn, "analysis_jobs", logging.Default())

	job, err := store.GetJob(context.Background(), "job-42")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.JobID != "job-42" || job.Status != JobStatusPending {
		t.Fatalf("job = %#v", job)
	}
}

func TestJobStoreGetJobNotFound(t *testing.T) {
	store := NewJobStore(&fakeDynamo{}, "analysis_jobs", logging.Default())

	if _, err := store.GetJob(context.Background(), "job-42"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("err = %v, want ErrJobNotFound", err)
	}
}

func TestJobStoreGetJobEmptyID(t *testing.T) {
	store := NewJobStore(&fakeDynamo{}, "analysis_jobs", logging.Default())
	if _, err := store.GetJob(context.Background(), ""); err == nil {
		t.Fatal("empty jobID should fail")
	}
}
