package udf

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultLabel names volumes created without a label.
const DefaultLabel = "UDFVOL"

// maxLabelChars is the capacity of the longest label field, the 128-byte
// logical volume identifier.
const maxLabelChars = 126

// NormalizeLabel strips accents from s, replaces remaining characters that
// are not printable ASCII with '_' and truncates the result.
func NormalizeLabel(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if out, _, err := transform.String(t, s); err == nil {
		s = out
	}
	s = strings.Map(func(r rune) rune {
		if r < 0x20 || r > 0x7e {
			return '_'
		}
		return r
	}, s)
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultLabel
	}
	if len(s) > maxLabelChars {
		s = s[:maxLabelChars]
	}
	return s
}
