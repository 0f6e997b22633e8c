package credstore_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sagarc03/sigil/credstore"
)

func writeKeysFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadKeysFile(t *testing.T) {
	t.Run("valid JSON file", func(t *testing.T) {
		path := writeKeysFile(t, "keys.json", `[
			{"access_key": "KEY1", "secret_key": "secret1", "principal": "alice"},
			{"access_key": "KEY2", "secret_key": "secret2", "account": "123456789012"}
		]`)

		keys, err := credstore.LoadKeysFile(path)
		require.NoError(t, err)
		require.Len(t, keys, 2)
		assert.Equal(t, "KEY1", keys[0].AccessKeyID)
		assert.Equal(t, "alice", keys[0].Principal)
		assert.Equal(t, "123456789012", keys[1].Account)
	})

	t.Run("valid YAML file", func(t *testing.T) {
		path := writeKeysFile(t, "keys.yaml", `
- access_key: KEY1
  secret_key: secret1
  session_token: token1
- access_key: KEY2
  secret_key: secret2
  attributes:
    team: storage
`)

		keys, err := credstore.LoadKeysFile(path)
		require.NoError(t, err)
		require.Len(t, keys, 2)
		assert.Equal(t, "token1", keys[0].SessionToken)
		assert.Equal(t, "storage", keys[1].Attributes["team"])
	})

	t.Run("yml extension parses as YAML", func(t *testing.T) {
		path := writeKeysFile(t, "keys.yml", `
- access_key: KEY1
  secret_key: secret1
`)

		keys, err := credstore.LoadKeysFile(path)
		require.NoError(t, err)
		require.Len(t, keys, 1)
		assert.Equal(t, "KEY1", keys[0].AccessKeyID)
	})

	t.Run("file not found", func(t *testing.T) {
		_, err := credstore.LoadKeysFile("/nonexistent/keys.json")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "read keys file")
	})

	t.Run("invalid JSON", func(t *testing.T) {
		path := writeKeysFile(t, "keys.json", `{not valid json`)

		_, err := credstore.LoadKeysFile(path)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "parse keys file")
	})

	t.Run("invalid YAML", func(t *testing.T) {
		path := writeKeysFile(t, "keys.yaml", "\t- access_key: KEY1")

		_, err := credstore.LoadKeysFile(path)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "parse keys file")
	})
}
