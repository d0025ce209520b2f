package extract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dhcgn/mailrow/model"
)

const (
	// DefaultMaxTokens leaves room for long ship names and locations.
	DefaultMaxTokens = 90
	// maxRepeat is the RE2 limit for a counted repetition.
	maxRepeat = 1000
)

// Extractor finds an anchor keyword in a message body and returns the
// whitespace-separated tokens that follow it.
type Extractor struct {
	anchor    string
	maxTokens int
	re        *regexp.Regexp
}

// New compiles the extraction pattern for anchor, capturing at most maxTokens
// word groups after it.
func New(anchor string, maxTokens int) (*Extractor, error) {
	anchor = strings.TrimSpace(anchor)
	if anchor == "" {
		return nil, fmt.Errorf("anchor keyword is empty: %w", model.ErrConfiguration)
	}
	if maxTokens <= 0 || maxTokens > maxRepeat {
		return nil, fmt.Errorf("max tokens must be between 1 and %d, got %d: %w", maxRepeat, maxTokens, model.ErrConfiguration)
	}

	// The \W+ after the anchor also bounds it on the right.
	pattern := fmt.Sprintf(`%s\W+((?:\w+(?:\W+|\z)){0,%d})`, regexp.QuoteMeta(anchor), maxTokens)
	if isWordByte(anchor[0]) {
		pattern = `\b` + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", pattern, err)
	}

	return &Extractor{anchor: anchor, maxTokens: maxTokens, re: re}, nil
}

// Anchor returns the configured anchor keyword.
func (e *Extractor) Anchor() string {
	return e.anchor
}

// Extract returns the tokens after the anchor. ok is false when the body does
// not contain the anchor, which is a normal outcome for messages that do not
// follow the template.
func (e *Extractor) Extract(body string) (tokens []string, ok bool) {
	match := e.re.FindStringSubmatch(body)
	if match == nil {
		return nil, false
	}
	// A punctuation-only word inside a separator still splits off as a
	// field, so the cap applies to the fields as well.
	tokens = strings.Fields(match[1])
	if len(tokens) > e.maxTokens {
		tokens = tokens[:e.maxTokens]
	}
	return tokens, true
}

func isWordByte(b byte) bool {
	return b == '_' || ('0' <= b && b <= '9') || ('a' <= b && b <= 'z') || ('A' <= b && b <= 'Z')
}
