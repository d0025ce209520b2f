package cmd

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhcgn/mailrow/config"
	"github.com/dhcgn/mailrow/credential"
	"github.com/dhcgn/mailrow/model"
)

func TestConnectMbox(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.mbox")
	require.NoError(t, os.WriteFile(path, []byte("From a@b Mon Feb 19 08:00:00 2018\nSubject: x\n\nHi one\n"), 0o600))

	client, err := Connect(context.Background(), config.Config{MboxPath: path, StateDir: filepath.Join(dir, "state")}, nil)
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Select(context.Background(), "INBOX"))
	ids, err := client.SearchUnseen(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, ids)
}

func TestConnectMissingMbox(t *testing.T) {
	dir := t.TempDir()
	_, err := Connect(context.Background(), config.Config{MboxPath: filepath.Join(dir, "none.mbox"), StateDir: dir}, nil)
	assert.True(t, errors.Is(err, model.ErrConnection))
}

func TestLookupPassword(t *testing.T) {
	store := credential.NewStore(keyring.NewArrayKeyring(nil))

	_, err := lookupPassword(store, "imap.example.com", "ops")
	assert.True(t, errors.Is(err, model.ErrConnection))

	require.NoError(t, store.SetPassword("imap.example.com", "ops", "secret"))
	got, err := lookupPassword(store, "imap.example.com", "ops")
	require.NoError(t, err)
	assert.Equal(t, "secret", got)
}
