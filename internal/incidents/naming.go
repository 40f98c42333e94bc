package incidents

import (
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const timestampLayout = "200601021504"

// NormalizeDescription turns free text into a channel-name fragment:
// accents removed, lowercased, whitespace runs become single dashes,
// everything outside [a-z0-9-] is dropped.
func NormalizeDescription(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if folded, _, err := transform.String(t, s); err == nil {
		s = folded
	}
	s = strings.ToLower(s)

	var b strings.Builder
	dash := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case r == '-' || unicode.IsSpace(r):
			if !dash && b.Len() > 0 {
				b.WriteByte('-')
				dash = true
			}
		}
	}

	return strings.TrimRight(b.String(), "-")
}

// IDPrefix returns the date-based prefix of an incident id created at t.
func IDPrefix(channelPrefix string, t time.Time) string {
	return channelPrefix + "-" + t.UTC().Format(timestampLayout) + "-"
}

// MaxDescriptionLength is how many normalized characters fit after the prefix.
func MaxDescriptionLength(channelPrefix string, channelNameLimit int) int {
	return channelNameLimit - len(channelPrefix) - len("-"+timestampLayout+"-")
}
