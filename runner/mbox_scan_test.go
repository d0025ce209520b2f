package runner

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhcgn/mailrow/extract"
	"github.com/dhcgn/mailrow/mbox"
	"github.com/dhcgn/mailrow/output"
	"github.com/dhcgn/mailrow/state"
)

const scanArchive = "From ops@example.com Mon Feb 19 08:00:00 2018\n" +
	"Subject: Arrival\n" +
	"\n" +
	"Hi Atlantica Star, Rotterdam\n" +
	"\n" +
	"From ops@example.com Mon Feb 19 09:00:00 2018\n" +
	"Subject: Newsletter\n" +
	"\n" +
	"Hello, nothing to extract here\n" +
	"\n" +
	"From ops@example.com Mon Feb 19 10:00:00 2018\n" +
	"Subject: Arrival\n" +
	"\n" +
	"Hi Grande Soleil, Antwerp\n"

func TestScanMboxTwiceWritesOnce(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "ops.mbox")
	require.NoError(t, os.WriteFile(archive, []byte(scanArchive), 0o600))

	fs := afero.NewMemMapFs()
	writer := output.NewWriter(fs, "out", "Arrivals")
	ext, err := extract.New("Hi", extract.DefaultMaxTokens)
	require.NoError(t, err)

	scan := func() {
		tracker, err := state.NewFileTracker(filepath.Join(dir, "state"))
		require.NoError(t, err)
		client, err := mbox.Open(mbox.Options{Path: archive}, tracker, nil)
		require.NoError(t, err)
		defer client.Close()

		r, err := New(Options{ShowMailboxes: true}, Deps{
			Client:    client,
			Extractor: ext,
			Writer:    writer,
			Now:       func() time.Time { return midMonth },
		})
		require.NoError(t, err)
		require.NoError(t, r.Start(context.Background()))
	}

	scan()
	scan()

	data, err := afero.ReadFile(fs, writer.FileName("Feb"))
	require.NoError(t, err)
	// Without normalization the trailing commas stay on the tokens.
	assert.Equal(t, "Atlantica, Star,, Rotterdam\nGrande, Soleil,, Antwerp\n", string(data))
}
