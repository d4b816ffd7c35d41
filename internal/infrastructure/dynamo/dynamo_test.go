package dynamo

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-passwordless/internal/config"
	"github.com/go-passwordless/internal/domain"
	"github.com/go-passwordless/internal/pkg/id"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openTestTables connects to TEST_DYNAMO_ENDPOINT (DynamoDB Local or LocalStack)
// and bootstraps a fresh set of tables for the test, or skips it.
func openTestTables(t *testing.T) (*dynamodb.Client, config.DynamoTables) {
	t.Helper()
	endpoint := os.Getenv("TEST_DYNAMO_ENDPOINT")
	if endpoint == "" {
		t.Skip("TEST_DYNAMO_ENDPOINT not set")
	}
	ctx := context.Background()
	client, err := NewClient(ctx, &config.Config{
		AWSRegion:      "us-east-1",
		AWSEndpointURL: endpoint,
		AWSAccessKeyID: "test",
		AWSSecretKey:   "test",
	})
	require.NoError(t, err)

	prefix := "t" + id.New()
	tables := config.DynamoTables{
		Users:       prefix + "-users",
		Credentials: prefix + "-credentials",
		Sessions:    prefix + "-sessions",
	}
	Bootstrap(ctx, client, tables)
	t.Cleanup(func() {
		for _, name := range []string{tables.Users, tables.Credentials, tables.Sessions} {
			_, _ = client.DeleteTable(context.Background(), &dynamodb.DeleteTableInput{TableName: aws.String(name)})
		}
	})
	return client, tables
}

func seedUser(t *testing.T, users *UserRepo) *domain.User {
	t.Helper()
	u := &domain.User{
		UserID:     id.New(),
		Identifier: fmt.Sprintf("ddb-%s@example.com", id.New()),
		Channel:    domain.ChannelEmail,
		IsNew:      true,
		CreatedAt:  time.Now().UTC(),
	}
	require.NoError(t, users.Create(context.Background(), u))
	return u
}

func newCred(userID, hash string, now time.Time, ttl time.Duration) *domain.Credential {
	return &domain.Credential{
		CredentialID: id.New(),
		UserID:       userID,
		Kind:         domain.KindMagicLink,
		SecretHash:   hash,
		CreatedAt:    now,
		ExpiresAt:    now.Add(ttl),
	}
}

func TestBootstrap_EnablesTTL(t *testing.T) {
	client, tables := openTestTables(t)
	ctx := context.Background()

	for _, name := range []string{tables.Credentials, tables.Sessions} {
		out, err := client.DescribeTimeToLive(ctx, &dynamodb.DescribeTimeToLiveInput{TableName: aws.String(name)})
		require.NoError(t, err)
		require.NotNil(t, out.TimeToLiveDescription)
		assert.Contains(t,
			[]types.TimeToLiveStatus{types.TimeToLiveStatusEnabled, types.TimeToLiveStatusEnabling},
			out.TimeToLiveDescription.TimeToLiveStatus, name)
		assert.Equal(t, fieldTTL, aws.ToString(out.TimeToLiveDescription.AttributeName))
	}

	// A second run over existing tables is harmless.
	Bootstrap(ctx, client, tables)
}

func TestUserRepo_MarkVerifiedFirstOnlyOnce(t *testing.T) {
	client, tables := openTestTables(t)
	users := NewUserRepo(client, tables.Users)
	ctx := context.Background()
	u := seedUser(t, users)

	err := users.Create(ctx, &domain.User{UserID: id.New(), Identifier: u.Identifier, Channel: domain.ChannelEmail})
	assert.ErrorIs(t, err, domain.ErrConflict)

	const n = 8
	var (
		wg     sync.WaitGroup
		firsts atomic.Int32
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			first, err := users.MarkVerified(ctx, u.Identifier, time.Now().UTC())
			assert.NoError(t, err)
			if first {
				firsts.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, firsts.Load())

	got, err := users.Get(ctx, u.Identifier)
	require.NoError(t, err)
	assert.False(t, got.IsNew)
	assert.NotNil(t, got.VerifiedAt)

	_, err = users.MarkVerified(ctx, "nobody@example.com", time.Now())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCredentialRepo_ConcurrentConsumeHasOneWinner(t *testing.T) {
	client, tables := openTestTables(t)
	creds := NewCredentialRepo(client, tables.Credentials)
	ctx := context.Background()
	now := time.Now().UTC()
	c := newCred(id.New(), "h-race", now, 15*time.Minute)
	require.NoError(t, creds.Rotate(ctx, c))

	const n = 16
	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			won, err := creds.TryConsume(ctx, c, time.Now().UTC())
			assert.NoError(t, err)
			if won {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, wins.Load())

	got, err := creds.FindByHash(ctx, c.UserID, c.Kind, "h-race")
	require.NoError(t, err)
	assert.NotNil(t, got.UsedAt)
	_, err = creds.FindActiveByHash(ctx, c.UserID, c.Kind, "h-race", time.Now().UTC())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCredentialRepo_ConsumeRejectsSupersededAndExpired(t *testing.T) {
	client, tables := openTestTables(t)
	creds := NewCredentialRepo(client, tables.Credentials)
	ctx := context.Background()
	now := time.Now().UTC()
	userID := id.New()

	old := newCred(userID, "h-old", now, 15*time.Minute)
	require.NoError(t, creds.Rotate(ctx, old))
	fresh := newCred(userID, "h-new", now, 15*time.Minute)
	require.NoError(t, creds.Rotate(ctx, fresh))

	won, err := creds.TryConsume(ctx, old, now)
	require.NoError(t, err)
	assert.False(t, won)

	won, err = creds.TryConsume(ctx, fresh, now.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, won)
}

func TestCredentialRepo_StaleRevokeKeepsNewerRotation(t *testing.T) {
	client, tables := openTestTables(t)
	creds := NewCredentialRepo(client, tables.Credentials)
	ctx := context.Background()
	now := time.Now().UTC()
	userID := id.New()

	stale := newCred(userID, "h-stale", now, 15*time.Minute)
	require.NoError(t, creds.Rotate(ctx, stale))
	newer := newCred(userID, "h-newer", now, 15*time.Minute)
	require.NoError(t, creds.Rotate(ctx, newer))

	require.NoError(t, creds.Revoke(ctx, stale))

	got, err := creds.FindActiveByHash(ctx, userID, domain.KindMagicLink, "h-newer", now)
	require.NoError(t, err)
	assert.Equal(t, newer.CredentialID, got.CredentialID)

	require.NoError(t, creds.Revoke(ctx, newer))
	_, err = creds.FindByHash(ctx, userID, domain.KindMagicLink, "h-newer")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCredentialRepo_PurgeExpired(t *testing.T) {
	client, tables := openTestTables(t)
	creds := NewCredentialRepo(client, tables.Credentials)
	ctx := context.Background()
	now := time.Now().UTC()

	expired := newCred(id.New(), "h-expired", now.Add(-time.Hour), 15*time.Minute)
	require.NoError(t, creds.Rotate(ctx, expired))
	live := newCred(id.New(), "h-live", now, 15*time.Minute)
	require.NoError(t, creds.Rotate(ctx, live))

	n, err := creds.PurgeExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = creds.FindByHash(ctx, expired.UserID, expired.Kind, "h-expired")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = creds.FindByHash(ctx, live.UserID, live.Kind, "h-live")
	assert.NoError(t, err)

	n, err = creds.PurgeExpired(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSessionRepo_PutGetDisable(t *testing.T) {
	client, tables := openTestTables(t)
	sessions := NewSessionRepo(client, tables.Sessions)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	s := &domain.Session{
		SessionID: id.New(),
		UserID:    id.New(),
		Enable:    true,
		Bearer:    "not-stored",
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}
	require.NoError(t, sessions.Put(ctx, s))

	got, err := sessions.Get(ctx, s.SessionID)
	require.NoError(t, err)
	assert.True(t, got.Active(now))
	assert.Equal(t, s.UserID, got.UserID)
	assert.True(t, s.ExpiresAt.Equal(got.ExpiresAt))
	assert.Empty(t, got.Bearer)
	assert.Nil(t, got.RevokedAt)

	require.NoError(t, sessions.Disable(ctx, s.SessionID, now))
	require.NoError(t, sessions.Disable(ctx, s.SessionID, now.Add(time.Minute)))
	got, err = sessions.Get(ctx, s.SessionID)
	require.NoError(t, err)
	assert.False(t, got.Active(now))
	require.NotNil(t, got.RevokedAt)
	assert.True(t, now.Equal(*got.RevokedAt))

	_, err = sessions.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, sessions.Disable(ctx, "missing", now), domain.ErrNotFound)
}
