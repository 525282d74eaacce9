package password

import (
	"fmt"
	"strings"
)

// Group labels a character class.
type Group string

// Supported character groups.
const (
	Upper   Group = "upper"
	Lower   Group = "lower"
	Digits  Group = "digits"
	Symbols Group = "symbols"
)

// DefaultGroups is every group, in declaration order.
var DefaultGroups = []Group{Upper, Lower, Digits, Symbols}

var charsets = map[Group]string{
	Upper:   "ABCDEFGHIJKLMNOPQRSTUVWXYZ",
	Lower:   "abcdefghijklmnopqrstuvwxyz",
	Digits:  "0123456789",
	Symbols: "!@#$%&*?-_+=[]{}ñ",
}

// Charset returns the characters of g.
func Charset(g Group) (string, bool) {
	cs, ok := charsets[g]
	return cs, ok
}

// ParseGroups splits a comma-separated list like "upper, digits" into
// lower-cased group labels. Unknown labels are kept; BuildCharset rejects them.
func ParseGroups(raw string) []Group {
	var groups []Group
	for _, part := range strings.Split(raw, ",") {
		if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
			groups = append(groups, Group(part))
		}
	}
	return groups
}

// charsetSet is the resolved alphabet of a request.
type charsetSet struct {
	// groups in first-seen order, without duplicates
	order  []Group
	byName map[Group][]rune
	all    []rune
}

// BuildCharset concatenates the charsets of groups, in order and without
// repeating a group, followed by extra.
func BuildCharset(groups []Group, extra string) ([]rune, error) {
	cs, err := buildCharset(groups, extra)
	if err != nil {
		return nil, err
	}
	return cs.all, nil
}

func buildCharset(groups []Group, extra string) (*charsetSet, error) {
	cs := &charsetSet{byName: make(map[Group][]rune)}
	for _, g := range groups {
		chars, ok := charsets[g]
		if !ok {
			return nil, invalid(fmt.Sprintf("unknown character group %q", g))
		}
		if _, seen := cs.byName[g]; seen {
			continue
		}
		cs.order = append(cs.order, g)
		cs.byName[g] = []rune(chars)
		cs.all = append(cs.all, cs.byName[g]...)
	}
	cs.all = append(cs.all, []rune(extra)...)

	if len(cs.all) == 0 {
		return nil, invalid("no characters available for the selected groups")
	}
	return cs, nil
}
