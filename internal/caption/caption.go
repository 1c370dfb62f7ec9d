// Package caption produces display labels for enum values: an explicit
// caption from the enum metadata when one is declared, otherwise the value
// name spaced out into words.
package caption

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/roach88/calcx/internal/types"
)

// Lookup returns the declared display label of an enum value. ok is false
// when the value has no label. An error means the metadata itself could not
// be read.
type Lookup interface {
	Label(t *types.Type, value int64) (label string, ok bool, err error)
}

// LookupFunc adapts a function to Lookup.
type LookupFunc func(t *types.Type, value int64) (string, bool, error)

func (f LookupFunc) Label(t *types.Type, value int64) (string, bool, error) {
	return f(t, value)
}

// Metadata reads captions declared on the enum values themselves.
type Metadata struct{}

func (Metadata) Label(t *types.Type, value int64) (string, bool, error) {
	if !t.IsEnum() {
		return "", false, fmt.Errorf("caption: %s is not an enum type", t)
	}
	v, ok := t.ValueOf(value)
	if !ok {
		return "", false, fmt.Errorf("caption: cannot find value %d on type %s", value, t)
	}
	if v.Caption == "" {
		return "", false, nil
	}
	return v.Caption, true, nil
}

// CaptionOrName returns the declared label of the value, or its humanized
// name when none is declared.
func CaptionOrName(l Lookup, t *types.Type, value int64) (string, error) {
	label, ok, err := l.Label(t, value)
	if err != nil {
		return "", err
	}
	if ok {
		return label, nil
	}
	v, found := t.ValueOf(value)
	if !found {
		return "", fmt.Errorf("caption: cannot find value %d on type %s", value, t)
	}
	return Humanize(v.Name), nil
}

var spacing = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile(`_`), " - "},
	{regexp.MustCompile(`([A-Z]+s)([A-Z][a-z])`), "$1 $2"},
	{regexp.MustCompile(`([^ ^|])([A-Z][a-z])`), "$1 $2"},
	{regexp.MustCompile(`([a-z])([A-Z])`), "$1 $2"},
	{regexp.MustCompile(`([a-z])([0-9])`), "$1 $2"},
	{regexp.MustCompile(`([0-9])([a-z])`), "$1 $2"},
}

// Humanize spaces out an identifier: NotSpecified becomes "Not Specified",
// HTTPServer becomes "HTTP Server" and an underscore becomes " - ".
func Humanize(name string) string {
	for _, s := range spacing {
		name = s.re.ReplaceAllString(name, s.repl)
	}
	return strings.TrimSpace(name)
}
