package dynamo

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-passwordless/internal/domain"
)

// UserRepo provides typed DynamoDB operations for the users table.
type UserRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewUserRepo(client *dynamodb.Client, tableName string) *UserRepo {
	return &UserRepo{client: client, tableName: tableName}
}

func (r *UserRepo) Get(ctx context.Context, identifier string) (*domain.User, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            strKey(fieldIdentifier, identifier),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: get user: %v", domain.ErrStorage, err)
	}
	if out.Item == nil {
		return nil, fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	var u domain.User
	if err := attributevalue.UnmarshalMap(out.Item, &u); err != nil {
		return nil, fmt.Errorf("%w: unmarshal user: %v", domain.ErrStorage, err)
	}
	return &u, nil
}

func (r *UserRepo) Create(ctx context.Context, u *domain.User) error {
	item, err := attributevalue.MarshalMap(u)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(r.tableName),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_not_exists(#id)"),
		ExpressionAttributeNames: map[string]string{"#id": fieldIdentifier},
	})
	if err != nil {
		if isConditionFailed(err) {
			return fmt.Errorf("identifier taken: %w", domain.ErrConflict)
		}
		return fmt.Errorf("%w: put user: %v", domain.ErrStorage, err)
	}
	return nil
}

// MarkVerified clears is_new and stamps verified_at once. The old is_new value,
// returned by the same UpdateItem, tells the caller whether it was first.
func (r *UserRepo) MarkVerified(ctx context.Context, identifier string, at time.Time) (bool, error) {
	atAV, err := attributevalue.Marshal(at)
	if err != nil {
		return false, fmt.Errorf("marshal verified_at: %w", err)
	}
	out, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 strKey(fieldIdentifier, identifier),
		UpdateExpression:    aws.String("SET #new = :f, #va = if_not_exists(#va, :at)"),
		ConditionExpression: aws.String("attribute_exists(#id)"),
		ExpressionAttributeNames: map[string]string{
			"#id":  fieldIdentifier,
			"#new": fieldIsNew,
			"#va":  fieldVerifiedAt,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":f":  &types.AttributeValueMemberBOOL{Value: false},
			":at": atAV,
		},
		ReturnValues: types.ReturnValueUpdatedOld,
	})
	if err != nil {
		if isConditionFailed(err) {
			return false, fmt.Errorf("user not found: %w", domain.ErrNotFound)
		}
		return false, fmt.Errorf("%w: mark verified: %v", domain.ErrStorage, err)
	}
	old, ok := out.Attributes[fieldIsNew].(*types.AttributeValueMemberBOOL)
	return ok && old.Value, nil
}
