package credstore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sagarc03/sigil"
	"github.com/sagarc03/sigil/credstore"
)

func TestStaticResolve(t *testing.T) {
	tests := []struct {
		name        string
		keys        []credstore.Key
		accessKeyID string
		wantSecret  string
		wantErr     error
	}{
		{
			name: "returns credential when access key exists",
			keys: []credstore.Key{
				{AccessKeyID: "access1", SecretKey: "secret1"},
				{AccessKeyID: "access2", SecretKey: "secret2"},
			},
			accessKeyID: "access1",
			wantSecret:  "secret1",
		},
		{
			name: "returns ErrUnknownAccessKey when access key does not exist",
			keys: []credstore.Key{
				{AccessKeyID: "access1", SecretKey: "secret1"},
			},
			accessKeyID: "nonexistent",
			wantErr:     sigil.ErrUnknownAccessKey,
		},
		{
			name:        "returns ErrUnknownAccessKey for empty store",
			keys:        []credstore.Key{},
			accessKeyID: "anykey",
			wantErr:     sigil.ErrUnknownAccessKey,
		},
		{
			name:        "returns ErrUnknownAccessKey for nil keys",
			keys:        nil,
			accessKeyID: "anykey",
			wantErr:     sigil.ErrUnknownAccessKey,
		},
		{
			name: "entries without secret are skipped",
			keys: []credstore.Key{
				{AccessKeyID: "access1"},
			},
			accessKeyID: "access1",
			wantErr:     sigil.ErrUnknownAccessKey,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := credstore.NewStatic(tt.keys)
			cred, _, err := store.Resolve(context.Background(), tt.accessKeyID, sigil.SigningScope{})

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.True(t, cred.IsZero())
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantSecret, cred.SecretAccessKey)
			}
		})
	}
}

func TestStaticPrincipal(t *testing.T) {
	store := credstore.NewStatic([]credstore.Key{
		{
			AccessKeyID: "AKIDEXAMPLE",
			SecretKey:   "secret",
			Principal:   "alice",
			Account:     "123456789012",
			Attributes:  map[string]string{"team": "платформа"},
		},
		{AccessKeyID: "AKIDANON", SecretKey: "secret2"},
	})

	_, principal, err := store.Resolve(context.Background(), "AKIDEXAMPLE", sigil.SigningScope{})
	require.NoError(t, err)
	assert.Equal(t, "alice", principal.ID())
	assert.Equal(t, "123456789012", principal.Account())
	assert.Equal(t, "платформа", principal.Attribute("team"))

	// A key without a principal falls back to its access key ID.
	_, principal, err = store.Resolve(context.Background(), "AKIDANON", sigil.SigningScope{})
	require.NoError(t, err)
	assert.Equal(t, "AKIDANON", principal.ID())
}

func TestStaticContextCanceled(t *testing.T) {
	store := credstore.NewStatic([]credstore.Key{{AccessKeyID: "a", SecretKey: "s"}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := store.Resolve(ctx, "a", sigil.SigningScope{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewStaticFromConfig(t *testing.T) {
	t.Run("inline keys only", func(t *testing.T) {
		store, err := credstore.NewStaticFromConfig(credstore.KeysConfig{
			Inline: []credstore.Key{
				{AccessKeyID: "KEY1", SecretKey: "secret1"},
				{AccessKeyID: "KEY2", SecretKey: "secret2"},
			},
		})
		require.NoError(t, err)

		cred, _, err := store.Resolve(context.Background(), "KEY1", sigil.SigningScope{})
		require.NoError(t, err)
		assert.Equal(t, "secret1", cred.SecretAccessKey)
	})

	t.Run("file keys override inline keys", func(t *testing.T) {
		path := writeKeysFile(t, "keys.json", `[{"access_key": "DUPLICATE_KEY", "secret_key": "file_wins"}]`)

		store, err := credstore.NewStaticFromConfig(credstore.KeysConfig{
			Inline: []credstore.Key{
				{AccessKeyID: "DUPLICATE_KEY", SecretKey: "inline_loses"},
			},
			File: path,
		})
		require.NoError(t, err)

		cred, _, err := store.Resolve(context.Background(), "DUPLICATE_KEY", sigil.SigningScope{})
		require.NoError(t, err)
		assert.Equal(t, "file_wins", cred.SecretAccessKey)
	})

	t.Run("file not found", func(t *testing.T) {
		_, err := credstore.NewStaticFromConfig(credstore.KeysConfig{File: "/nonexistent/path/keys.json"})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "read keys file")
	})

	t.Run("empty config", func(t *testing.T) {
		store, err := credstore.NewStaticFromConfig(credstore.KeysConfig{})
		require.NoError(t, err)

		_, _, err = store.Resolve(context.Background(), "ANY_KEY", sigil.SigningScope{})
		assert.ErrorIs(t, err, sigil.ErrUnknownAccessKey)
	})
}
