package imap

import (
	"context"
	"errors"
	"testing"

	imapv2 "github.com/emersion/go-imap/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhcgn/mailrow/model"
)

func TestParseUID(t *testing.T) {
	uid, err := parseUID("42")
	require.NoError(t, err)
	assert.Equal(t, imapv2.UID(42), uid)

	for _, id := range []string{"", "0", "abc", "-1", "4294967296"} {
		_, err := parseUID(id)
		assert.True(t, errors.Is(err, ErrInvalidID), "id %q", id)
	}
}

func TestDialValidatesOptions(t *testing.T) {
	_, err := Dial(context.Background(), Options{Port: 993}, nil)
	assert.True(t, errors.Is(err, model.ErrConnection))

	_, err = Dial(context.Background(), Options{Host: "imap.example.com"}, nil)
	assert.True(t, errors.Is(err, model.ErrConnection))
}

func TestDialUnreachable(t *testing.T) {
	_, err := Dial(context.Background(), Options{Host: "127.0.0.1", Port: 1, UseTLS: false}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrConnection))
}
