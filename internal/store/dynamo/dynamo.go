// Package dynamo is the DynamoDB storage driver, for deployments where the
// Lambda has no durable local database. All items live in one table keyed by
// "pk": the token singleton, one item per file, a uniqueness marker per Drive
// ID, and an id counter.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/acme/dataroom/internal/model"
	"github.com/acme/dataroom/internal/store"
)

const (
	tokenKey    = "token"
	counterKey  = "counter"
	filePrefix  = "file#"
	drivePrefix = "drive#"
)

// API is the subset of *dynamodb.Client methods used by Store.
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// Store implements store.Store on DynamoDB.
type Store struct {
	client    API
	tableName string
}

var _ store.Store = (*Store)(nil)

// New creates a Store on the given table.
func New(client API, tableName string) *Store {
	return &Store{client: client, tableName: tableName}
}

// Close is a no-op; the SDK client has no teardown.
func (s *Store) Close() error { return nil }

func (s *Store) GetToken(ctx context.Context) (*model.OAuthToken, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key:       key(tokenKey),
	})
	if err != nil {
		return nil, fmt.Errorf("getting token item: %w", err)
	}
	if out.Item == nil {
		return nil, store.ErrNotFound
	}

	var tok model.OAuthToken
	if err := attributevalue.UnmarshalMap(out.Item, &tok); err != nil {
		return nil, fmt.Errorf("unmarshaling token: %w", err)
	}
	return &tok, nil
}

func (s *Store) SaveToken(ctx context.Context, token *model.OAuthToken) error {
	item, err := attributevalue.MarshalMap(token)
	if err != nil {
		return fmt.Errorf("marshaling token: %w", err)
	}
	item["pk"] = &types.AttributeValueMemberS{Value: tokenKey}

	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("saving token item: %w", err)
	}
	return nil
}

func (s *Store) DeleteToken(ctx context.Context) error {
	if _, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key:       key(tokenKey),
	}); err != nil {
		return fmt.Errorf("deleting token item: %w", err)
	}
	return nil
}

// Insert reserves the Drive ID with a conditional marker put, assigns the next
// ID from the counter item, then writes the file item. The conditional put is
// the uniqueness backstop for concurrent imports of the same file.
func (s *Store) Insert(ctx context.Context, file *model.ImportedFile) error {
	if file.CreatedAt.IsZero() {
		file.CreatedAt = time.Now().UTC()
	}

	marker := map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: drivePrefix + file.DriveID},
	}
	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                marker,
		ConditionExpression: aws.String("attribute_not_exists(pk)"),
	})
	if err != nil {
		var condFailed *types.ConditionalCheckFailedException
		if errors.As(err, &condFailed) {
			return store.ErrDuplicate
		}
		return fmt.Errorf("reserving drive id: %w", err)
	}

	id, err := s.nextID(ctx)
	if err != nil {
		return err
	}
	file.ID = id

	item, err := attributevalue.MarshalMap(file)
	if err != nil {
		return fmt.Errorf("marshaling file: %w", err)
	}
	item["pk"] = &types.AttributeValueMemberS{Value: filePrefix + strconv.FormatInt(id, 10)}

	if _, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	}); err != nil {
		return fmt.Errorf("saving file item: %w", err)
	}

	// Record the file id on the marker so GetByDriveID is a two-hop lookup.
	if _, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(s.tableName),
		Key:              key(drivePrefix + file.DriveID),
		UpdateExpression: aws.String("SET file_id = :id"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":id": &types.AttributeValueMemberN{Value: strconv.FormatInt(id, 10)},
		},
	}); err != nil {
		return fmt.Errorf("linking drive id marker: %w", err)
	}
	return nil
}

func (s *Store) List(ctx context.Context) ([]model.ImportedFile, error) {
	return s.scan(ctx, func(model.ImportedFile) bool { return true })
}

func (s *Store) Search(ctx context.Context, substring string) ([]model.ImportedFile, error) {
	needle := strings.ToLower(substring)
	return s.scan(ctx, func(f model.ImportedFile) bool {
		return strings.Contains(strings.ToLower(f.Name), needle)
	})
}

func (s *Store) Get(ctx context.Context, id int64) (*model.ImportedFile, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key:       key(filePrefix + strconv.FormatInt(id, 10)),
	})
	if err != nil {
		return nil, fmt.Errorf("getting file item: %w", err)
	}
	if out.Item == nil {
		return nil, store.ErrNotFound
	}

	var f model.ImportedFile
	if err := attributevalue.UnmarshalMap(out.Item, &f); err != nil {
		return nil, fmt.Errorf("unmarshaling file: %w", err)
	}
	return &f, nil
}

func (s *Store) GetByDriveID(ctx context.Context, driveID string) (*model.ImportedFile, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key:       key(drivePrefix + driveID),
	})
	if err != nil {
		return nil, fmt.Errorf("getting drive id marker: %w", err)
	}
	if out.Item == nil {
		return nil, store.ErrNotFound
	}

	var marker struct {
		FileID int64 `dynamodbav:"file_id"`
	}
	if err := attributevalue.UnmarshalMap(out.Item, &marker); err != nil {
		return nil, fmt.Errorf("unmarshaling marker: %w", err)
	}
	if marker.FileID == 0 {
		// Marker reserved but the file item never landed; treat as absent.
		return nil, store.ErrNotFound
	}
	return s.Get(ctx, marker.FileID)
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	f, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	if _, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key:       key(filePrefix + strconv.FormatInt(id, 10)),
	}); err != nil {
		return fmt.Errorf("deleting file item: %w", err)
	}

	// Free the Drive ID so the file can be re-imported.
	if _, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.tableName),
		Key:       key(drivePrefix + f.DriveID),
	}); err != nil {
		return fmt.Errorf("deleting drive id marker: %w", err)
	}
	return nil
}

// nextID atomically increments and returns the id counter.
func (s *Store) nextID(ctx context.Context) (int64, error) {
	out, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(s.tableName),
		Key:              key(counterKey),
		UpdateExpression: aws.String("ADD seq :one"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":one": &types.AttributeValueMemberN{Value: "1"},
		},
		ReturnValues: types.ReturnValueAllNew,
	})
	if err != nil {
		return 0, fmt.Errorf("incrementing id counter: %w", err)
	}

	var counter struct {
		Seq int64 `dynamodbav:"seq"`
	}
	if err := attributevalue.UnmarshalMap(out.Attributes, &counter); err != nil {
		return 0, fmt.Errorf("unmarshaling counter: %w", err)
	}
	return counter.Seq, nil
}

func (s *Store) scan(ctx context.Context, keep func(model.ImportedFile) bool) ([]model.ImportedFile, error) {
	files := []model.ImportedFile{}
	var startKey map[string]types.AttributeValue

	for {
		out, err := s.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:        aws.String(s.tableName),
			FilterExpression: aws.String("begins_with(pk, :prefix)"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":prefix": &types.AttributeValueMemberS{Value: filePrefix},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("scanning files: %w", err)
		}

		for _, item := range out.Items {
			var f model.ImportedFile
			if err := attributevalue.UnmarshalMap(item, &f); err != nil {
				return nil, fmt.Errorf("unmarshaling file: %w", err)
			}
			if keep(f) {
				files = append(files, f)
			}
		}

		if out.LastEvaluatedKey == nil {
			break
		}
		startKey = out.LastEvaluatedKey
	}

	sort.Slice(files, func(i, j int) bool {
		if !files[i].CreatedAt.Equal(files[j].CreatedAt) {
			return files[i].CreatedAt.After(files[j].CreatedAt)
		}
		return files[i].ID > files[j].ID
	})
	return files, nil
}

func key(pk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: pk},
	}
}
