package journey

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"gorm.io/datatypes"

	types "github.com/yungbote/journey-tutor-backend/internal/domain"
	"github.com/yungbote/journey-tutor-backend/internal/platform/logger"
)

const (
	promptLogPKPrefix = "ATTEMPT#"
	promptLogSKPrefix = "LOG#"
)

// dynamodbAPI is the subset of *dynamodb.Client the prompt log needs.
type dynamodbAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

type dynamoPromptLogRepo struct {
	api       dynamodbAPI
	tableName string
	ttl       time.Duration
	log       *logger.Logger
}

// NewDynamoPromptLogRepo stores one item per exchange, keyed by attempt and creation time.
// A zero ttl disables the ttl attribute.
func NewDynamoPromptLogRepo(api dynamodbAPI, tableName string, ttl time.Duration, baseLog *logger.Logger) (PromptLogRepo, error) {
	if api == nil {
		return nil, errors.New("prompt log: dynamodb api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("prompt log: table name must not be empty")
	}
	return &dynamoPromptLogRepo{
		api:       api,
		tableName: tableName,
		ttl:       ttl,
		log:       baseLog.With("repo", "DynamoPromptLogRepo"),
	}, nil
}

func (r *dynamoPromptLogRepo) Backend() string { return PromptLogBackendDynamoDB }

func (r *dynamoPromptLogRepo) Create(ctx context.Context, row *types.JourneyPromptLog) error {
	if row == nil {
		return nil
	}
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	_, err := r.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.tableName),
		Item:                r.promptLogItem(row),
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err != nil {
		return fmt.Errorf("prompt log: put item: %w", err)
	}
	return nil
}

func (r *dynamoPromptLogRepo) ListByAttempt(ctx context.Context, attemptID uuid.UUID) ([]*types.JourneyPromptLog, error) {
	if attemptID == uuid.Nil {
		return []*types.JourneyPromptLog{}, nil
	}
	out, err := r.api.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(r.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":pk":     &ddbtypes.AttributeValueMemberS{Value: promptLogPKPrefix + attemptID.String()},
			":prefix": &ddbtypes.AttributeValueMemberS{Value: promptLogSKPrefix},
		},
		ScanIndexForward: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("prompt log: query: %w", err)
	}
	results := make([]*types.JourneyPromptLog, 0, len(out.Items))
	for _, item := range out.Items {
		row, err := promptLogFromItem(item)
		if err != nil {
			return nil, fmt.Errorf("prompt log: decode item: %w", err)
		}
		results = append(results, row)
	}
	return results, nil
}

func (r *dynamoPromptLogRepo) promptLogItem(row *types.JourneyPromptLog) map[string]ddbtypes.AttributeValue {
	item := map[string]ddbtypes.AttributeValue{
		"PK":               &ddbtypes.AttributeValueMemberS{Value: promptLogPKPrefix + row.AttemptID.String()},
		"SK":               &ddbtypes.AttributeValueMemberS{Value: promptLogSKPrefix + row.CreatedAt.UTC().Format(time.RFC3339Nano) + "#" + row.ID.String()},
		"id":               &ddbtypes.AttributeValueMemberS{Value: row.ID.String()},
		"attemptId":        &ddbtypes.AttributeValueMemberS{Value: row.AttemptID.String()},
		"userId":           &ddbtypes.AttributeValueMemberS{Value: row.UserID.String()},
		"journeyId":        &ddbtypes.AttributeValueMemberS{Value: row.JourneyID.String()},
		"actionType":       &ddbtypes.AttributeValueMemberS{Value: row.ActionType},
		"prompt":           &ddbtypes.AttributeValueMemberS{Value: row.Prompt},
		"response":         &ddbtypes.AttributeValueMemberS{Value: row.Response},
		"model":            &ddbtypes.AttributeValueMemberS{Value: row.Model},
		"inputTokens":      numAttr(int64(row.InputTokens)),
		"outputTokens":     numAttr(int64(row.OutputTokens)),
		"totalTokens":      numAttr(int64(row.TotalTokens)),
		"processingTimeMs": numAttr(row.ProcessingTimeMs),
		"estimatedCostUsd": &ddbtypes.AttributeValueMemberN{Value: strconv.FormatFloat(row.EstimatedCostUSD, 'f', -1, 64)},
		"temperature":      &ddbtypes.AttributeValueMemberN{Value: strconv.FormatFloat(row.Temperature, 'f', -1, 64)},
		"fallback":         &ddbtypes.AttributeValueMemberBOOL{Value: row.Fallback},
		"createdAt":        &ddbtypes.AttributeValueMemberS{Value: row.CreatedAt.UTC().Format(time.RFC3339Nano)},
	}
	if row.StepID != nil {
		item["stepId"] = &ddbtypes.AttributeValueMemberS{Value: row.StepID.String()}
	}
	if row.StepResponseID != nil {
		item["stepResponseId"] = &ddbtypes.AttributeValueMemberS{Value: row.StepResponseID.String()}
	}
	if row.Error != "" {
		item["error"] = &ddbtypes.AttributeValueMemberS{Value: row.Error}
	}
	if len(row.Metadata) > 0 && json.Valid(row.Metadata) {
		item["metadata"] = &ddbtypes.AttributeValueMemberS{Value: string(row.Metadata)}
	}
	if r.ttl > 0 {
		item["ttl"] = numAttr(row.CreatedAt.Add(r.ttl).Unix())
	}
	return item
}

func promptLogFromItem(item map[string]ddbtypes.AttributeValue) (*types.JourneyPromptLog, error) {
	row := &types.JourneyPromptLog{}
	var err error
	if row.ID, err = uuidAttr(item, "id"); err != nil {
		return nil, err
	}
	if row.AttemptID, err = uuidAttr(item, "attemptId"); err != nil {
		return nil, err
	}
	row.UserID, _ = uuidAttr(item, "userId")
	row.JourneyID, _ = uuidAttr(item, "journeyId")
	if id, err := uuidAttr(item, "stepId"); err == nil {
		row.StepID = &id
	}
	if id, err := uuidAttr(item, "stepResponseId"); err == nil {
		row.StepResponseID = &id
	}
	row.ActionType, _ = strAttr(item, "actionType")
	row.Prompt, _ = strAttr(item, "prompt")
	row.Response, _ = strAttr(item, "response")
	row.Model, _ = strAttr(item, "model")
	row.Error, _ = strAttr(item, "error")
	in, _ := intAttr(item, "inputTokens")
	outTok, _ := intAttr(item, "outputTokens")
	total, _ := intAttr(item, "totalTokens")
	ms, _ := intAttr(item, "processingTimeMs")
	row.InputTokens, row.OutputTokens, row.TotalTokens, row.ProcessingTimeMs = int(in), int(outTok), int(total), ms
	row.Temperature, _ = floatAttr(item, "temperature")
	row.EstimatedCostUSD, _ = floatAttr(item, "estimatedCostUsd")
	if b, ok := item["fallback"].(*ddbtypes.AttributeValueMemberBOOL); ok {
		row.Fallback = b.Value
	}
	if meta, err := strAttr(item, "metadata"); err == nil {
		row.Metadata = datatypes.JSON(meta)
	}
	if created, err := strAttr(item, "createdAt"); err == nil {
		row.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	}
	return row, nil
}

func numAttr(n int64) *ddbtypes.AttributeValueMemberN {
	return &ddbtypes.AttributeValueMemberN{Value: strconv.FormatInt(n, 10)}
}

func strAttr(item map[string]ddbtypes.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("missing attribute %q", key)
	}
	s, ok := v.(*ddbtypes.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("attribute %q is not a string", key)
	}
	return s.Value, nil
}

func uuidAttr(item map[string]ddbtypes.AttributeValue, key string) (uuid.UUID, error) {
	s, err := strAttr(item, key)
	if err != nil {
		return uuid.Nil, err
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("attribute %q: %w", key, err)
	}
	return id, nil
}

func intAttr(item map[string]ddbtypes.AttributeValue, key string) (int64, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("missing attribute %q", key)
	}
	n, ok := v.(*ddbtypes.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("attribute %q is not a number", key)
	}
	return strconv.ParseInt(n.Value, 10, 64)
}

func floatAttr(item map[string]ddbtypes.AttributeValue, key string) (float64, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("missing attribute %q", key)
	}
	n, ok := v.(*ddbtypes.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("attribute %q is not a number", key)
	}
	return strconv.ParseFloat(n.Value, 64)
}
