package normalize

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dhcgn/mailrow/model"
)

func defaults() Options {
	return Options{
		Markers:        DefaultMarkers,
		EscapeArtifact: DefaultEscapeArtifact,
		Separator:      DefaultSeparator,
	}
}

func TestNormalizeCleansTokens(t *testing.T) {
	n, err := New(defaults())
	require.NoError(t, err)

	got, err := n.Normalize([]string{"*Vessel*", "Star,", `Rot\r\nterdam`, "19,Feb,2018", ",,"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Vessel", "Star", "Rotterdam", "19", ""}, got)
}

func TestNormalizeTruncatesAtBoundary(t *testing.T) {
	opts := defaults()
	opts.Boundary = "Last element you want to keep"
	n, err := New(opts)
	require.NoError(t, err)

	tokens := []string{"Atlantica", "Star,", "Rotterdam,", "19,Feb,2018", "Last", "element", "you", "want", "to", "keep", "extra", "ignored", "text"}
	got, err := n.Normalize(tokens)
	require.NoError(t, err)
	assert.Equal(t, []string{"Atlantica", "Star", "Rotterdam", "19", "Last", "element", "you", "want", "to", "keep"}, got)
}

func TestNormalizeMissingBoundary(t *testing.T) {
	opts := defaults()
	opts.Boundary = "END"
	n, err := New(opts)
	require.NoError(t, err)

	_, err = n.Normalize([]string{"a", "b"})
	assert.True(t, errors.Is(err, model.ErrConfiguration))
}

func TestNormalizeMergesDate(t *testing.T) {
	opts := defaults()
	opts.Merges = []MergeRange{{Anchor: "Display", From: -3, To: 0}}
	n, err := New(opts)
	require.NoError(t, err)

	got, err := n.Normalize([]string{"Atlantica", "19", "Feb", "2018", "Display", "more"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Atlantica", "19 Feb 2018", "Display", "more"}, got)
}

func TestNormalizeMergesFromStart(t *testing.T) {
	opts := defaults()
	opts.Merges = []MergeRange{
		{Anchor: "Rotterdam", FromStart: true, To: 0},
		{Anchor: "Display", From: -3, To: 0},
	}
	n, err := New(opts)
	require.NoError(t, err)

	got, err := n.Normalize([]string{"Atlantica", "Star", "Rotterdam", "19", "Feb", "2018", "Display"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Atlantica Star", "Rotterdam", "19 Feb 2018", "Display"}, got)
}

func TestNormalizeMergeErrors(t *testing.T) {
	tests := []struct {
		name  string
		merge MergeRange
	}{
		{name: "anchor missing", merge: MergeRange{Anchor: "Nope", From: -1, To: 0}},
		{name: "range before start", merge: MergeRange{Anchor: "b", From: -5, To: 0}},
		{name: "range past end", merge: MergeRange{Anchor: "b", From: 0, To: 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := defaults()
			opts.Merges = []MergeRange{tt.merge}
			n, err := New(opts)
			require.NoError(t, err)

			_, err = n.Normalize([]string{"a", "b", "c"})
			assert.True(t, errors.Is(err, model.ErrConfiguration), "got %v", err)
		})
	}
}

func TestNormalizeIsDeterministicAndPure(t *testing.T) {
	opts := defaults()
	opts.Boundary = "keep"
	opts.Merges = []MergeRange{{Anchor: "keep", From: -2, To: 0}}
	n, err := New(opts)
	require.NoError(t, err)

	input := []string{"*x*", "19", "Feb", "keep", "tail"}
	snapshot := append([]string(nil), input...)

	first, err := n.Normalize(input)
	require.NoError(t, err)
	second, err := n.Normalize(input)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, snapshot, input)
	assert.Equal(t, []string{"x", "19 Feb", "keep"}, first)
}

func TestParseMergeRange(t *testing.T) {
	tests := []struct {
		spec    string
		want    MergeRange
		wantErr bool
	}{
		{spec: "Display:-3:0", want: MergeRange{Anchor: "Display", From: -3, To: 0}},
		{spec: "your chosen item:start:0", want: MergeRange{Anchor: "your chosen item", FromStart: true}},
		{spec: "Display:0:-3", wantErr: true},
		{spec: "Display:-3", wantErr: true},
		{spec: ":-3:0", wantErr: true},
		{spec: "Display:x:0", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			got, err := ParseMergeRange(tt.spec)
			if tt.wantErr {
				assert.True(t, errors.Is(err, model.ErrConfiguration))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.spec, got.String())
		})
	}
}
