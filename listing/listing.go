package listing

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/dhcgn/mailrow/model"
)

var listPattern = regexp.MustCompile(`^\((?P<flags>.*?)\) "(?P<delimiter>.*)" (?P<name>.*)$`)

// Mailbox is one parsed LIST response line.
type Mailbox struct {
	Flags     string
	Delimiter string
	Name      string
}

// Parse splits a `(<flags>) "<delimiter>" <name>` line. A quoted name is unquoted.
func Parse(line string) (Mailbox, error) {
	line = strings.TrimRight(line, "\r\n")
	match := listPattern.FindStringSubmatch(line)
	if match == nil {
		return Mailbox{}, fmt.Errorf("listing line %q: %w", line, model.ErrParse)
	}
	return Mailbox{
		Flags:     match[1],
		Delimiter: match[2],
		Name:      strings.Trim(match[3], `"`),
	}, nil
}

// Format builds a listing line. Names are always quoted.
func Format(flags []string, delimiter, name string) string {
	return fmt.Sprintf(`(%s) "%s" "%s"`, strings.Join(flags, " "), delimiter, name)
}

// Names parses every line and returns the mailbox names in order. It stops at
// the first malformed line.
func Names(lines []string) ([]string, error) {
	names := make([]string, 0, len(lines))
	for _, line := range lines {
		mb, err := Parse(line)
		if err != nil {
			return names, err
		}
		names = append(names, mb.Name)
	}
	return names, nil
}
