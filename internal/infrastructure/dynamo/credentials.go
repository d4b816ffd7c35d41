package dynamo

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-passwordless/internal/domain"
)

// ttlGrace keeps spent and expired rows around a little longer than their validity
// so late verifications still report "expired" or "used" rather than "invalid".
const ttlGrace = time.Hour

// credentialItem is the stored layout: timestamps are unix millis so that
// condition expressions can compare them numerically.
type credentialItem struct {
	UserID       string `dynamodbav:"user_id"`
	Kind         string `dynamodbav:"kind"`
	CredentialID string `dynamodbav:"credential_id"`
	SecretHash   string `dynamodbav:"secret_hash"`
	CreatedAt    int64  `dynamodbav:"created_at"`
	ExpiresAt    int64  `dynamodbav:"expires_at"`
	UsedAt       *int64 `dynamodbav:"used_at,omitempty"`
	TTL          int64  `dynamodbav:"ttl"`
}

func toItem(c *domain.Credential) credentialItem {
	it := credentialItem{
		UserID:       c.UserID,
		Kind:         string(c.Kind),
		CredentialID: c.CredentialID,
		SecretHash:   c.SecretHash,
		CreatedAt:    c.CreatedAt.UnixMilli(),
		ExpiresAt:    c.ExpiresAt.UnixMilli(),
		TTL:          c.ExpiresAt.Add(ttlGrace).Unix(),
	}
	if c.UsedAt != nil {
		ms := c.UsedAt.UnixMilli()
		it.UsedAt = &ms
	}
	return it
}

func (it credentialItem) toDomain() *domain.Credential {
	c := &domain.Credential{
		CredentialID: it.CredentialID,
		UserID:       it.UserID,
		Kind:         domain.CredentialKind(it.Kind),
		SecretHash:   it.SecretHash,
		CreatedAt:    time.UnixMilli(it.CreatedAt).UTC(),
		ExpiresAt:    time.UnixMilli(it.ExpiresAt).UTC(),
	}
	if it.UsedAt != nil {
		t := time.UnixMilli(*it.UsedAt).UTC()
		c.UsedAt = &t
	}
	return c
}

func millis(t time.Time) *types.AttributeValueMemberN {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(t.UnixMilli(), 10)}
}

// CredentialRepo stores one credential item per (user_id, kind).
type CredentialRepo struct {
	client    *dynamodb.Client
	tableName string
}

func NewCredentialRepo(client *dynamodb.Client, tableName string) *CredentialRepo {
	return &CredentialRepo{client: client, tableName: tableName}
}

// Rotate overwrites the slot with a single PutItem, which replaces any older credential atomically.
func (r *CredentialRepo) Rotate(ctx context.Context, c *domain.Credential) error {
	item, err := attributevalue.MarshalMap(toItem(c))
	if err != nil {
		return fmt.Errorf("marshal credential: %w", err)
	}
	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("%w: put credential: %v", domain.ErrStorage, err)
	}
	return nil
}

func (r *CredentialRepo) InvalidateAll(ctx context.Context, userID string, kind domain.CredentialKind) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.tableName),
		Key:       compositeKey(fieldUserID, userID, fieldKind, string(kind)),
	})
	if err != nil {
		return fmt.Errorf("%w: delete credential: %v", domain.ErrStorage, err)
	}
	return nil
}

func (r *CredentialRepo) FindByHash(ctx context.Context, userID string, kind domain.CredentialKind, secretHash string) (*domain.Credential, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.tableName),
		Key:            compositeKey(fieldUserID, userID, fieldKind, string(kind)),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: get credential: %v", domain.ErrStorage, err)
	}
	if out.Item == nil {
		return nil, fmt.Errorf("credential not found: %w", domain.ErrNotFound)
	}
	var it credentialItem
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return nil, fmt.Errorf("%w: unmarshal credential: %v", domain.ErrStorage, err)
	}
	if subtle.ConstantTimeCompare([]byte(it.SecretHash), []byte(secretHash)) != 1 {
		return nil, fmt.Errorf("credential not found: %w", domain.ErrNotFound)
	}
	return it.toDomain(), nil
}

func (r *CredentialRepo) FindActiveByHash(ctx context.Context, userID string, kind domain.CredentialKind, secretHash string, now time.Time) (*domain.Credential, error) {
	c, err := r.FindByHash(ctx, userID, kind, secretHash)
	if err != nil {
		return nil, err
	}
	if !c.Active(now) {
		return nil, fmt.Errorf("active credential not found: %w", domain.ErrNotFound)
	}
	return c, nil
}

// TryConsume stamps used_at under a condition on the same item, so of any number of
// concurrent callers exactly one sees the update succeed.
func (r *CredentialRepo) TryConsume(ctx context.Context, c *domain.Credential, now time.Time) (bool, error) {
	ue, err := buildUpdateExpr(map[string]interface{}{fieldUsedAt: now.UnixMilli()})
	if err != nil {
		return false, err
	}
	// buildUpdateExpr names the single field #f0.
	ue.Names["#cid"] = fieldCredentialID
	ue.Names["#exp"] = fieldExpiresAt
	ue.Values[":cid"] = &types.AttributeValueMemberS{Value: c.CredentialID}
	ue.Values[":now"] = millis(now)

	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       compositeKey(fieldUserID, c.UserID, fieldKind, string(c.Kind)),
		UpdateExpression:          aws.String(ue.Expr),
		ConditionExpression:       aws.String("#cid = :cid AND attribute_not_exists(#f0) AND #exp > :now"),
		ExpressionAttributeNames:  ue.Names,
		ExpressionAttributeValues: ue.Values,
	})
	if err != nil {
		if isConditionFailed(err) {
			return false, nil
		}
		return false, fmt.Errorf("%w: consume credential: %v", domain.ErrStorage, err)
	}
	return true, nil
}

// Revoke deletes the slot only while it still holds c, so a newer rotation survives.
func (r *CredentialRepo) Revoke(ctx context.Context, c *domain.Credential) error {
	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:                 aws.String(r.tableName),
		Key:                       compositeKey(fieldUserID, c.UserID, fieldKind, string(c.Kind)),
		ConditionExpression:       aws.String("#cid = :cid"),
		ExpressionAttributeNames:  map[string]string{"#cid": fieldCredentialID},
		ExpressionAttributeValues: map[string]types.AttributeValue{":cid": &types.AttributeValueMemberS{Value: c.CredentialID}},
	})
	if err != nil && !isConditionFailed(err) {
		return fmt.Errorf("%w: revoke credential: %v", domain.ErrStorage, err)
	}
	return nil
}

// PurgeExpired scans for expired items and deletes each one, re-checking expiry in the
// delete condition so that a slot rotated meanwhile is left alone.
func (r *CredentialRepo) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	names := map[string]string{"#exp": fieldExpiresAt}
	values := map[string]types.AttributeValue{":now": millis(now)}

	p := dynamodb.NewScanPaginator(r.client, &dynamodb.ScanInput{
		TableName:                 aws.String(r.tableName),
		FilterExpression:          aws.String("#exp < :now"),
		ProjectionExpression:      aws.String("#uid, #kind"),
		ExpressionAttributeNames:  map[string]string{"#exp": fieldExpiresAt, "#uid": fieldUserID, "#kind": fieldKind},
		ExpressionAttributeValues: values,
	})
	n := 0
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return n, fmt.Errorf("%w: scan credentials: %v", domain.ErrStorage, err)
		}
		for _, key := range page.Items {
			_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
				TableName:                 aws.String(r.tableName),
				Key:                       key,
				ConditionExpression:       aws.String("#exp < :now"),
				ExpressionAttributeNames:  names,
				ExpressionAttributeValues: values,
			})
			if err != nil {
				if isConditionFailed(err) {
					continue
				}
				return n, fmt.Errorf("%w: delete credential: %v", domain.ErrStorage, err)
			}
			n++
		}
	}
	return n, nil
}
