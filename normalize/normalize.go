package normalize

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dhcgn/mailrow/model"
)

const (
	DefaultMarkers        = "*,"
	DefaultEscapeArtifact = `\r\n`
	DefaultSeparator      = ","
)

// Options configures the token cleanup applied after extraction.
type Options struct {
	// Markers are cut from both ends of every token.
	Markers string
	// EscapeArtifact is removed wherever it appears inside a token.
	EscapeArtifact string
	// Separator cuts every token at its first occurrence.
	Separator string
	// Boundary ends the useful data. Empty disables truncation.
	Boundary string
	// Merges are applied in order after truncation.
	Merges []MergeRange
}

// MergeRange joins the tokens in [idx+From, idx+To) into one, where idx is the
// position of Anchor at normalization time. FromStart replaces idx+From with 0.
type MergeRange struct {
	Anchor    string
	From      int
	To        int
	FromStart bool
}

func (m MergeRange) String() string {
	from := strconv.Itoa(m.From)
	if m.FromStart {
		from = "start"
	}
	return fmt.Sprintf("%s:%s:%d", m.Anchor, from, m.To)
}

// ParseMergeRange reads "anchor:from:to". from may be "start". The anchor may
// contain spaces but not colons.
func ParseMergeRange(spec string) (MergeRange, error) {
	parts := strings.Split(spec, ":")
	if len(parts) != 3 {
		return MergeRange{}, fmt.Errorf("merge range %q: want anchor:from:to: %w", spec, model.ErrConfiguration)
	}

	m := MergeRange{Anchor: strings.TrimSpace(parts[0])}
	if m.Anchor == "" {
		return MergeRange{}, fmt.Errorf("merge range %q: empty anchor: %w", spec, model.ErrConfiguration)
	}

	from := strings.TrimSpace(parts[1])
	if from == "start" {
		m.FromStart = true
	} else {
		n, err := strconv.Atoi(from)
		if err != nil {
			return MergeRange{}, fmt.Errorf("merge range %q: from: %v: %w", spec, err, model.ErrConfiguration)
		}
		m.From = n
	}

	to, err := strconv.Atoi(strings.TrimSpace(parts[2]))
	if err != nil {
		return MergeRange{}, fmt.Errorf("merge range %q: to: %v: %w", spec, err, model.ErrConfiguration)
	}
	m.To = to

	if !m.FromStart && m.From >= m.To {
		return MergeRange{}, fmt.Errorf("merge range %q: from must be below to: %w", spec, model.ErrConfiguration)
	}

	return m, nil
}

// Normalizer is safe for concurrent use; it holds no mutable state.
type Normalizer struct {
	opts     Options
	boundary []string
	anchors  [][]string
}

func New(opts Options) (*Normalizer, error) {
	n := &Normalizer{
		opts:     opts,
		boundary: strings.Fields(opts.Boundary),
		anchors:  make([][]string, len(opts.Merges)),
	}
	for i, m := range opts.Merges {
		words := strings.Fields(m.Anchor)
		if len(words) == 0 {
			return nil, fmt.Errorf("merge range %d: empty anchor: %w", i, model.ErrConfiguration)
		}
		n.anchors[i] = words
	}
	return n, nil
}

// Normalize returns a cleaned copy of tokens. It fails with
// model.ErrConfiguration when the boundary or a merge anchor is not present.
func (n *Normalizer) Normalize(tokens []string) ([]string, error) {
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		out = append(out, n.clean(tok))
	}

	if len(n.boundary) > 0 {
		idx := indexPhrase(out, n.boundary)
		if idx < 0 {
			return nil, fmt.Errorf("boundary %q not found: %w", n.opts.Boundary, model.ErrConfiguration)
		}
		out = out[:idx+len(n.boundary)]
	}

	for i, m := range n.opts.Merges {
		idx := indexPhrase(out, n.anchors[i])
		if idx < 0 {
			return nil, fmt.Errorf("merge anchor %q not found: %w", m.Anchor, model.ErrConfiguration)
		}

		start := idx + m.From
		if m.FromStart {
			start = 0
		}
		end := idx + m.To
		if start < 0 || end > len(out) || start >= end {
			return nil, fmt.Errorf("merge range %s resolves to [%d,%d) of %d tokens: %w", m, start, end, len(out), model.ErrConfiguration)
		}

		merged := strings.Join(out[start:end], " ")
		next := make([]string, 0, len(out)-(end-start)+1)
		next = append(next, out[:start]...)
		next = append(next, merged)
		next = append(next, out[end:]...)
		out = next
	}

	return out, nil
}

func (n *Normalizer) clean(tok string) string {
	if n.opts.Markers != "" {
		tok = strings.Trim(tok, n.opts.Markers)
	}
	if n.opts.EscapeArtifact != "" {
		tok = strings.ReplaceAll(tok, n.opts.EscapeArtifact, "")
	}
	if n.opts.Separator != "" {
		tok, _, _ = strings.Cut(tok, n.opts.Separator)
	}
	return tok
}

// indexPhrase returns the position of the first run of tokens equal to phrase.
func indexPhrase(tokens, phrase []string) int {
	for i := 0; i+len(phrase) <= len(tokens); i++ {
		match := true
		for j, word := range phrase {
			if tokens[i+j] != word {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
