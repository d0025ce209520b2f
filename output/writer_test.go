package output

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhcgn/mailrow/model"
)

func TestMonthKey(t *testing.T) {
	assert.Equal(t, "Feb", MonthKey(time.Date(2018, time.February, 19, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "Dec", MonthKey(time.Date(2018, time.December, 31, 23, 59, 0, 0, time.UTC)))
}

func TestFileName(t *testing.T) {
	w := NewWriter(afero.NewMemMapFs(), "", "Your Filename")
	assert.Equal(t, "Your Filename Feb.csv", w.FileName("Feb"))

	w = NewWriter(afero.NewMemMapFs(), "out", "Report")
	assert.Equal(t, filepath.Join("out", "Report Mar.csv"), w.FileName("Mar"))
}

func TestAppendRowAppends(t *testing.T) {
	fs := afero.NewMemMapFs()
	w := NewWriter(fs, "out", "Report")

	require.NoError(t, w.AppendHeader([]string{"Col 1", "Col 2"}, "Feb"))
	require.NoError(t, w.AppendRow([]string{"Atlantica Star", "Rotterdam"}, "Feb"))
	require.NoError(t, w.AppendRow([]string{"Other", "Antwerp"}, "Feb"))
	require.NoError(t, w.AppendRow([]string{"Next", "Month"}, "Mar"))

	data, err := afero.ReadFile(fs, w.FileName("Feb"))
	require.NoError(t, err)
	assert.Equal(t, "Col 1, Col 2\nAtlantica Star, Rotterdam\nOther, Antwerp\n", string(data))

	data, err = afero.ReadFile(fs, w.FileName("Mar"))
	require.NoError(t, err)
	assert.Equal(t, "Next, Month\n", string(data))
}

func TestFormatSplitRoundTrip(t *testing.T) {
	tests := [][]string{
		{"a"},
		{"Atlantica Star", "Rotterdam", "19 Feb 2018"},
		{"", "x", ""},
	}
	for _, fields := range tests {
		assert.Equal(t, fields, Split(Format(fields)+"\n"))
	}
}

func TestSplitDoesNotRecoverEmbeddedDelimiter(t *testing.T) {
	fields := []string{"a, b", "c"}
	assert.NotEqual(t, fields, Split(Format(fields)))
}

func TestAppendRowReadOnlyFs(t *testing.T) {
	w := NewWriter(afero.NewReadOnlyFs(afero.NewMemMapFs()), "", "Report")
	err := w.AppendRow([]string{"x"}, "Feb")
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrIO))
}
