package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/greynet/internal/store"
)

func TestGenerateCommandJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gen.db")
	buf := &bytes.Buffer{}
	cmd := NewGenerateCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--db", path, "--customers", "20", "--transactions", "200", "--locations", "8", "--seed", "7"})

	require.NoError(t, cmd.Execute())

	var resp struct {
		Status string         `json:"status"`
		Data   GenerateResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, int64(20), resp.Data.Customers)
	assert.Equal(t, int64(200), resp.Data.Transactions)
	assert.Equal(t, int64(2), resp.Data.Alerts)
	assert.Equal(t, uint64(7), resp.Data.Seed)

	st, err := store.Open(path)
	require.NoError(t, err)
	defer st.Close()
	hash, count, err := st.Fingerprint(context.Background())
	require.NoError(t, err)
	assert.Equal(t, resp.Data.DatasetHash, hash)
	assert.Equal(t, int64(222), count)
}

func TestGenerateCommandIsDeterministic(t *testing.T) {
	dir := t.TempDir()
	hashes := make([]string, 2)
	for i := range hashes {
		buf := &bytes.Buffer{}
		cmd := NewGenerateCommand(&RootOptions{Format: "json"})
		cmd.SetOut(buf)
		cmd.SetArgs([]string{"--db", filepath.Join(dir, "gen.db"), "--customers", "5", "--transactions", "40", "--locations", "4"})
		require.NoError(t, cmd.Execute())

		var resp struct {
			Data GenerateResult `json:"data"`
		}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
		hashes[i] = resp.Data.DatasetHash
	}
	assert.Equal(t, hashes[0], hashes[1], "regenerating into the same file replaces the dataset")
}

func TestGenerateCommandText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gen.db")
	buf := &bytes.Buffer{}
	cmd := NewGenerateCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--db", path, "--customers", "3", "--transactions", "10", "--locations", "1"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "Generated 3 customers, 10 transactions, 1 security alerts into "+path)
	assert.Contains(t, buf.String(), "Dataset hash: ")
}

func TestGenerateCommandInvalidConfig(t *testing.T) {
	buf := &bytes.Buffer{}
	cmd := NewGenerateCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--db", filepath.Join(t.TempDir(), "gen.db"), "--customers", "0"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeInvalidInput, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "customers must be at least 1")
}

func TestGenerateCommandRequiresDB(t *testing.T) {
	cmd := NewGenerateCommand(&RootOptions{Format: "text"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `required flag(s) "db" not set`)
}
