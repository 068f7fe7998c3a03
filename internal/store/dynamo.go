package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog/log"
)

// DynamoDB key constants for the single-table design.
const (
	pkPrefix = "PROJECT#"
	skMeta   = "META"
	skImage  = "IMAGE#"
	skToken  = "TOKEN#"

	// maxBatchWrite is the DynamoDB BatchWriteItem limit per call.
	maxBatchWrite = 25

	// maxBatchRetries bounds resubmission of UnprocessedItems.
	maxBatchRetries = 5
)

// DynamoAPI is the subset of the DynamoDB client used by DynamoStore.
// *dynamodb.Client satisfies it.
type DynamoAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, opts ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	BatchWriteItem(ctx context.Context, in *dynamodb.BatchWriteItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// DynamoStore implements Store using AWS DynamoDB.
type DynamoStore struct {
	client    DynamoAPI
	tableName string
}

// Compile-time interface checks.
var (
	_ Store     = (*DynamoStore)(nil)
	_ DynamoAPI = (*dynamodb.Client)(nil)
)

// NewDynamoStore creates a DynamoStore for the given table.
// The client should be initialized from the shared AWS config.
func NewDynamoStore(client DynamoAPI, tableName string) *DynamoStore {
	return &DynamoStore{
		client:    client,
		tableName: tableName,
	}
}

// --- Internal helpers ---

// projectPK returns the partition key for a project.
func projectPK(projectID string) string {
	return pkPrefix + projectID
}

func itemKey(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}
}

// putItem marshals a domain object and writes it to DynamoDB with PK and SK.
// The domain object should use dynamodbav:"-" for fields derived from PK/SK.
func (s *DynamoStore) putItem(ctx context.Context, pk, sk string, data interface{}) error {
	item, err := attributevalue.MarshalMap(data)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	item["PK"] = &types.AttributeValueMemberS{Value: pk}
	item["SK"] = &types.AttributeValueMemberS{Value: sk}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.tableName,
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("PutItem PK=%s SK=%s: %w", pk, sk, err)
	}
	return nil
}

// getItem reads a single item from DynamoDB and unmarshals it into out.
// Returns false if the item does not exist (out is not modified).
func (s *DynamoStore) getItem(ctx context.Context, pk, sk string, out interface{}) (bool, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &s.tableName,
		Key:       itemKey(pk, sk),
	})
	if err != nil {
		return false, fmt.Errorf("GetItem PK=%s SK=%s: %w", pk, sk, err)
	}
	if result.Item == nil {
		return false, nil
	}
	if err := attributevalue.UnmarshalMap(result.Item, out); err != nil {
		return false, fmt.Errorf("unmarshal PK=%s SK=%s: %w", pk, sk, err)
	}
	return true, nil
}

// deleteItem removes a single item from DynamoDB by PK/SK.
func (s *DynamoStore) deleteItem(ctx context.Context, pk, sk string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: &s.tableName,
		Key:       itemKey(pk, sk),
	})
	if err != nil {
		return fmt.Errorf("DeleteItem PK=%s SK=%s: %w", pk, sk, err)
	}
	return nil
}

// updateExisting applies an update expression to an existing item.
// A missing item yields ErrNotFound instead of creating a partial record.
func (s *DynamoStore) updateExisting(ctx context.Context, pk, sk, expr string, names map[string]string, values map[string]types.AttributeValue) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 &s.tableName,
		Key:                       itemKey(pk, sk),
		UpdateExpression:          aws.String(expr),
		ConditionExpression:       aws.String("attribute_exists(PK)"),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return fmt.Errorf("UpdateItem PK=%s SK=%s: %w", pk, sk, ErrNotFound)
		}
		return fmt.Errorf("UpdateItem PK=%s SK=%s: %w", pk, sk, err)
	}
	return nil
}

// queryBySKPrefix queries all items for a project where SK begins with the given prefix.
// Returns raw DynamoDB items for flexible processing by the caller.
func (s *DynamoStore) queryBySKPrefix(ctx context.Context, projectID, skPrefix string) ([]map[string]types.AttributeValue, error) {
	pk := projectPK(projectID)

	input := &dynamodb.QueryInput{
		TableName:              &s.tableName,
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :skPrefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":       &types.AttributeValueMemberS{Value: pk},
			":skPrefix": &types.AttributeValueMemberS{Value: skPrefix},
		},
	}

	var allItems []map[string]types.AttributeValue

	// DynamoDB returns up to 1MB per Query call.
	for {
		result, err := s.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("Query PK=%s SK prefix=%s: %w", pk, skPrefix, err)
		}
		allItems = append(allItems, result.Items...)

		if result.LastEvaluatedKey == nil {
			break
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}

	return allItems, nil
}

// batchWrite submits write requests in chunks of maxBatchWrite and resubmits
// UnprocessedItems a bounded number of times.
func (s *DynamoStore) batchWrite(ctx context.Context, op string, requests []types.WriteRequest) error {
	for i := 0; i < len(requests); i += maxBatchWrite {
		end := i + maxBatchWrite
		if end > len(requests) {
			end = len(requests)
		}

		pending := map[string][]types.WriteRequest{s.tableName: requests[i:end]}
		for attempt := 0; len(pending[s.tableName]) > 0; attempt++ {
			if attempt == maxBatchRetries {
				return fmt.Errorf("BatchWriteItem %s: %d items unprocessed after %d attempts",
					op, len(pending[s.tableName]), attempt)
			}
			if attempt > 0 {
				log.Warn().
					Str("op", op).
					Int("unprocessed", len(pending[s.tableName])).
					Int("attempt", attempt).
					Msg("Retrying unprocessed batch items")
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(time.Duration(attempt*50) * time.Millisecond):
				}
			}

			out, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
				RequestItems: pending,
			})
			if err != nil {
				return fmt.Errorf("BatchWriteItem %s (%d items): %w", op, len(pending[s.tableName]), err)
			}
			pending = out.UnprocessedItems
			if pending == nil {
				break
			}
		}
	}
	return nil
}

// batchDeleteKeys deletes multiple items by their PK/SK keys.
func (s *DynamoStore) batchDeleteKeys(ctx context.Context, keys []map[string]types.AttributeValue) error {
	requests := make([]types.WriteRequest, 0, len(keys))
	for _, key := range keys {
		requests = append(requests, types.WriteRequest{
			DeleteRequest: &types.DeleteRequest{Key: key},
		})
	}
	return s.batchWrite(ctx, "delete", requests)
}

// skSuffix returns the part of an item's SK after prefix.
func skSuffix(item map[string]types.AttributeValue, prefix string) string {
	if sk, ok := item["SK"].(*types.AttributeValueMemberS); ok {
		return strings.TrimPrefix(sk.Value, prefix)
	}
	return ""
}

// --- Project operations ---

func (s *DynamoStore) PutProject(ctx context.Context, p *Project) error {
	if p.CreatedAt == 0 {
		p.CreatedAt = time.Now().UnixMilli()
	}
	if err := s.putItem(ctx, projectPK(p.ID), skMeta, p); err != nil {
		return fmt.Errorf("put project %s: %w", p.ID, err)
	}
	log.Debug().Str("projectId", p.ID).Msg("Project stored in DynamoDB")
	return nil
}

func (s *DynamoStore) GetProject(ctx context.Context, projectID string) (*Project, error) {
	var p Project
	found, err := s.getItem(ctx, projectPK(projectID), skMeta, &p)
	if err != nil {
		return nil, fmt.Errorf("get project %s: %w", projectID, err)
	}
	if !found {
		return nil, nil
	}
	p.ID = projectID
	return &p, nil
}

// ListProjects scans for META items. Project counts are small enough that a
// filtered Scan is acceptable; no secondary index is needed.
func (s *DynamoStore) ListProjects(ctx context.Context) ([]*Project, error) {
	input := &dynamodb.ScanInput{
		TableName:        &s.tableName,
		FilterExpression: aws.String("SK = :meta"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":meta": &types.AttributeValueMemberS{Value: skMeta},
		},
	}

	var projects []*Project
	for {
		result, err := s.client.Scan(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("list projects: Scan: %w", err)
		}
		for _, item := range result.Items {
			var p Project
			if err := attributevalue.UnmarshalMap(item, &p); err != nil {
				log.Warn().Err(err).Msg("Skipping malformed project item")
				continue
			}
			if pk, ok := item["PK"].(*types.AttributeValueMemberS); ok {
				p.ID = strings.TrimPrefix(pk.Value, pkPrefix)
			}
			projects = append(projects, &p)
		}
		if result.LastEvaluatedKey == nil {
			break
		}
		input.ExclusiveStartKey = result.LastEvaluatedKey
	}

	sortProjects(projects)
	return projects, nil
}

func (s *DynamoStore) DeleteProject(ctx context.Context, projectID string) error {
	if err := s.deleteItem(ctx, projectPK(projectID), skMeta); err != nil {
		return fmt.Errorf("delete project %s: %w", projectID, err)
	}
	log.Debug().Str("projectId", projectID).Msg("Project deleted from DynamoDB")
	return nil
}

// --- Image operations ---

func (s *DynamoStore) PutImage(ctx context.Context, rec *ImageRecord) error {
	if rec.ID == "" || rec.ProjectID == "" {
		return fmt.Errorf("put image: id and project id are required")
	}
	if rec.CreatedAt == 0 {
		rec.CreatedAt = time.Now().UnixMilli()
	}
	if err := s.putItem(ctx, projectPK(rec.ProjectID), skImage+rec.ID, rec); err != nil {
		return fmt.Errorf("put image %s: %w", rec.ID, err)
	}
	return nil
}

func (s *DynamoStore) GetImage(ctx context.Context, projectID, imageID string) (*ImageRecord, error) {
	var rec ImageRecord
	found, err := s.getItem(ctx, projectPK(projectID), skImage+imageID, &rec)
	if err != nil {
		return nil, fmt.Errorf("get image %s: %w", imageID, err)
	}
	if !found {
		return nil, nil
	}
	rec.ID = imageID
	rec.ProjectID = projectID
	return &rec, nil
}

func (s *DynamoStore) ListImages(ctx context.Context, projectID string) ([]*ImageRecord, error) {
	items, err := s.queryBySKPrefix(ctx, projectID, skImage)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}

	recs := make([]*ImageRecord, 0, len(items))
	for _, item := range items {
		var rec ImageRecord
		if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
			log.Warn().Err(err).Str("projectId", projectID).Msg("Skipping malformed image item")
			continue
		}
		rec.ID = skSuffix(item, skImage)
		rec.ProjectID = projectID
		recs = append(recs, &rec)
	}

	sortImages(recs)
	return recs, nil
}

func (s *DynamoStore) UpdateCaption(ctx context.Context, projectID, imageID, caption string) error {
	err := s.updateExisting(ctx, projectPK(projectID), skImage+imageID,
		"SET #c = :c",
		map[string]string{"#c": "caption"},
		map[string]types.AttributeValue{":c": &types.AttributeValueMemberS{Value: caption}},
	)
	if err != nil {
		return fmt.Errorf("update caption %s: %w", imageID, err)
	}
	return nil
}

func (s *DynamoStore) UpdateLocation(ctx context.Context, projectID, imageID, name, storageKey string) error {
	err := s.updateExisting(ctx, projectPK(projectID), skImage+imageID,
		"SET #n = :n, #k = :k",
		map[string]string{"#n": "originalName", "#k": "storageKey"},
		map[string]types.AttributeValue{
			":n": &types.AttributeValueMemberS{Value: name},
			":k": &types.AttributeValueMemberS{Value: storageKey},
		},
	)
	if err != nil {
		return fmt.Errorf("update location %s: %w", imageID, err)
	}
	return nil
}

func (s *DynamoStore) SetDigest(ctx context.Context, projectID, imageID, digest string) error {
	err := s.updateExisting(ctx, projectPK(projectID), skImage+imageID,
		"SET #d = :d",
		map[string]string{"#d": "contentDigest"},
		map[string]types.AttributeValue{":d": &types.AttributeValueMemberS{Value: digest}},
	)
	if err != nil {
		return fmt.Errorf("set digest %s: %w", imageID, err)
	}
	return nil
}

func (s *DynamoStore) DeleteImage(ctx context.Context, projectID, imageID string) error {
	if err := s.deleteItem(ctx, projectPK(projectID), skImage+imageID); err != nil {
		return fmt.Errorf("delete image %s: %w", imageID, err)
	}
	return nil
}

// --- Token operations ---

// tokenItem is the stored shape of a token. The value lives in the SK.
type tokenItem struct {
	CreatedAt int64 `dynamodbav:"createdAt"`
}

func (s *DynamoStore) PutTokens(ctx context.Context, projectID string, values []string) error {
	if len(values) == 0 {
		return nil
	}
	pk := projectPK(projectID)
	now := time.Now().UnixMilli()

	seen := make(map[string]bool, len(values))
	requests := make([]types.WriteRequest, 0, len(values))
	for _, v := range values {
		if seen[v] {
			continue // BatchWriteItem rejects duplicate keys in one call
		}
		seen[v] = true

		item, err := attributevalue.MarshalMap(tokenItem{CreatedAt: now})
		if err != nil {
			return fmt.Errorf("marshal token: %w", err)
		}
		item["PK"] = &types.AttributeValueMemberS{Value: pk}
		item["SK"] = &types.AttributeValueMemberS{Value: skToken + v}
		requests = append(requests, types.WriteRequest{
			PutRequest: &types.PutRequest{Item: item},
		})
	}

	if err := s.batchWrite(ctx, "put tokens", requests); err != nil {
		return fmt.Errorf("put tokens for %s: %w", projectID, err)
	}
	return nil
}

func (s *DynamoStore) ListTokens(ctx context.Context, projectID string) ([]string, error) {
	items, err := s.queryBySKPrefix(ctx, projectID, skToken)
	if err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if v := skSuffix(item, skToken); v != "" {
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *DynamoStore) DeleteToken(ctx context.Context, projectID, value string) error {
	if err := s.deleteItem(ctx, projectPK(projectID), skToken+value); err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	return nil
}

func (s *DynamoStore) DeleteTokens(ctx context.Context, projectID string) error {
	items, err := s.queryBySKPrefix(ctx, projectID, skToken)
	if err != nil {
		return fmt.Errorf("delete tokens: %w", err)
	}
	keys := make([]map[string]types.AttributeValue, 0, len(items))
	for _, item := range items {
		keys = append(keys, map[string]types.AttributeValue{"PK": item["PK"], "SK": item["SK"]})
	}
	if err := s.batchDeleteKeys(ctx, keys); err != nil {
		return fmt.Errorf("delete tokens for %s: %w", projectID, err)
	}
	log.Debug().Str("projectId", projectID).Int("count", len(keys)).Msg("Tokens deleted from DynamoDB")
	return nil
}
