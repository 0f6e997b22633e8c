package sqlite_test

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/sagarc03/sigil"
	"github.com/sagarc03/sigil/database/sqlite"
)

var testTables = sigil.Tables{Credentials: "sigil_credentials"}

// setupTestStore opens an in-memory database, migrates it, and returns a
// ready store. MaxOpenConns is pinned to one so every statement sees the
// same in-memory database.
func setupTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	ctx := context.Background()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err, "failed to open")
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, sqlite.Migrate(ctx, db, testTables), "failed to migrate")

	store, err := sqlite.NewStore(db, testTables)
	require.NoError(t, err, "failed to create store")

	return store
}

func seedKey(t *testing.T, store *sqlite.Store, record sigil.KeyRecord) sigil.KeyRecord {
	t.Helper()

	stored, err := store.CreateKey(context.Background(), record)
	require.NoError(t, err, "failed to seed key")
	return stored
}

func TestStoreResolve(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	seedKey(t, store, sigil.KeyRecord{
		AccessKeyID:     "AKIDRESOLVE",
		SecretAccessKey: "topsecret",
		SessionToken:    "tok",
		Principal:       "alice",
		Account:         "123456789012",
	})

	t.Run("known key", func(t *testing.T) {
		cred, principal, err := store.Resolve(ctx, "AKIDRESOLVE", sigil.SigningScope{})
		require.NoError(t, err)
		assert.Equal(t, "AKIDRESOLVE", cred.AccessKeyID)
		assert.Equal(t, "topsecret", cred.SecretAccessKey)
		assert.Equal(t, "tok", cred.SessionToken)
		assert.Equal(t, "alice", principal.ID())
		assert.Equal(t, "123456789012", principal.Account())
		assert.Equal(t, "123456789012", principal.Attribute("aws:PrincipalAccount"))
	})

	t.Run("arn principal gains arn attribute", func(t *testing.T) {
		seedKey(t, store, sigil.KeyRecord{
			AccessKeyID:     "AKIDARN",
			SecretAccessKey: "s",
			Principal:       "arn:aws:iam::555555555555:role/deploy",
		})

		_, principal, err := store.Resolve(ctx, "AKIDARN", sigil.SigningScope{})
		require.NoError(t, err)
		assert.Equal(t, "arn:aws:iam::555555555555:role/deploy", principal.Attribute("aws:PrincipalArn"))
	})

	t.Run("unknown key", func(t *testing.T) {
		_, _, err := store.Resolve(ctx, "AKIDNOSUCH", sigil.SigningScope{})
		assert.ErrorIs(t, err, sigil.ErrUnknownAccessKey)
	})

	t.Run("empty and oversized ids resolve as unknown", func(t *testing.T) {
		_, _, err := store.Resolve(ctx, "", sigil.SigningScope{})
		assert.ErrorIs(t, err, sigil.ErrUnknownAccessKey)

		_, _, err = store.Resolve(ctx, strings.Repeat("A", 129), sigil.SigningScope{})
		assert.ErrorIs(t, err, sigil.ErrUnknownAccessKey)
	})

	t.Run("deactivated key resolves as unknown", func(t *testing.T) {
		seedKey(t, store, sigil.KeyRecord{AccessKeyID: "AKIDGONE", SecretAccessKey: "s"})
		require.NoError(t, store.DeactivateKey(ctx, "AKIDGONE"))

		_, _, err := store.Resolve(ctx, "AKIDGONE", sigil.SigningScope{})
		assert.ErrorIs(t, err, sigil.ErrUnknownAccessKey)
	})
}

func TestStoreCreateKey(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	t.Run("fills in id and timestamps", func(t *testing.T) {
		stored := seedKey(t, store, sigil.KeyRecord{AccessKeyID: "AKIDNEW", SecretAccessKey: "secret"})

		assert.NotZero(t, stored.ID)
		assert.True(t, stored.Active)
		assert.False(t, stored.CreatedAt.IsZero())
		assert.Equal(t, stored.CreatedAt, stored.UpdatedAt)
	})

	t.Run("duplicate access key", func(t *testing.T) {
		seedKey(t, store, sigil.KeyRecord{AccessKeyID: "AKIDDUP", SecretAccessKey: "s1"})

		_, err := store.CreateKey(ctx, sigil.KeyRecord{AccessKeyID: "AKIDDUP", SecretAccessKey: "s2"})
		assert.ErrorIs(t, err, sigil.ErrKeyExists)
	})

	t.Run("principal defaults to access key", func(t *testing.T) {
		stored := seedKey(t, store, sigil.KeyRecord{AccessKeyID: "AKIDNOPRN", SecretAccessKey: "s"})
		assert.Equal(t, "AKIDNOPRN", stored.Principal)
	})
}

func TestStoreListKeys(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	first := seedKey(t, store, sigil.KeyRecord{AccessKeyID: "AKPROD1", SecretAccessKey: "s1"})
	second := seedKey(t, store, sigil.KeyRecord{AccessKeyID: "AKPROD2", SecretAccessKey: "s2"})
	seedKey(t, store, sigil.KeyRecord{AccessKeyID: "AKDEV1", SecretAccessKey: "s3"})

	t.Run("ordered by creation time", func(t *testing.T) {
		records, err := store.ListKeys(ctx, "AKPROD")
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, first.AccessKeyID, records[0].AccessKeyID)
		assert.Equal(t, second.AccessKeyID, records[1].AccessKeyID)
	})

	t.Run("round trips ids and timestamps", func(t *testing.T) {
		records, err := store.ListKeys(ctx, "AKPROD1")
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, first.ID, records[0].ID)
		assert.True(t, records[0].CreatedAt.Equal(first.CreatedAt))
	})

	t.Run("never returns secret material", func(t *testing.T) {
		records, err := store.ListKeys(ctx, "")
		require.NoError(t, err)
		require.Len(t, records, 3)
		for _, r := range records {
			assert.Empty(t, r.SecretAccessKey)
			assert.Empty(t, r.SessionToken)
		}
	})

	t.Run("LIKE metacharacters in prefix are literal", func(t *testing.T) {
		records, err := store.ListKeys(ctx, "_")
		require.NoError(t, err)
		assert.Empty(t, records)
	})
}

func TestStoreDeactivateKey(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t)

	seedKey(t, store, sigil.KeyRecord{AccessKeyID: "AKIDOFF", SecretAccessKey: "s"})

	require.NoError(t, store.DeactivateKey(ctx, "AKIDOFF"))

	records, err := store.ListKeys(ctx, "AKIDOFF")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.False(t, records[0].Active)

	assert.ErrorIs(t, store.DeactivateKey(ctx, "AKIDOFF"), sigil.ErrKeyNotFound)
	assert.ErrorIs(t, store.DeactivateKey(ctx, "AKIDNOSUCH"), sigil.ErrKeyNotFound)
}

func TestValidateSchema(t *testing.T) {
	ctx := context.Background()

	t.Run("passes after migration", func(t *testing.T) {
		db, err := sql.Open("sqlite", ":memory:")
		require.NoError(t, err)
		db.SetMaxOpenConns(1)
		t.Cleanup(func() { _ = db.Close() })

		require.NoError(t, sqlite.Migrate(ctx, db, testTables))
		assert.NoError(t, sqlite.ValidateSchema(ctx, db, testTables))
	})

	t.Run("fails before migration", func(t *testing.T) {
		db, err := sql.Open("sqlite", ":memory:")
		require.NoError(t, err)
		db.SetMaxOpenConns(1)
		t.Cleanup(func() { _ = db.Close() })

		err = sqlite.ValidateSchema(ctx, db, testTables)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "does not exist")
	})

	t.Run("reports missing columns", func(t *testing.T) {
		db, err := sql.Open("sqlite", ":memory:")
		require.NoError(t, err)
		db.SetMaxOpenConns(1)
		t.Cleanup(func() { _ = db.Close() })

		_, err = db.ExecContext(ctx, `CREATE TABLE sigil_credentials (id TEXT NOT NULL PRIMARY KEY)`)
		require.NoError(t, err)

		err = sqlite.ValidateSchema(ctx, db, testTables)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "missing columns")
	})
}

func TestMigrateDropRoundTrip(t *testing.T) {
	ctx := context.Background()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, sqlite.Migrate(ctx, db, testTables))
	require.NoError(t, sqlite.Migrate(ctx, db, testTables), "migrate should be idempotent")

	require.NoError(t, sqlite.DropTables(ctx, db, testTables))
	assert.Error(t, sqlite.ValidateSchema(ctx, db, testTables))

	require.NoError(t, sqlite.Migrate(ctx, db, testTables))
	assert.NoError(t, sqlite.ValidateSchema(ctx, db, testTables))
}
