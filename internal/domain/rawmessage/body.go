package rawmessage

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var horizontalSpace = regexp.MustCompile(`[ \t]+`)

// NormalizeBody canonicalizes extracted body text before hashing: NFC,
// LF line endings, runs of spaces and tabs collapsed, outer space trimmed.
func NormalizeBody(text string) string {
	text = norm.NFC.String(text)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = horizontalSpace.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// HashBody returns the hex sha256 of an already normalized body.
func HashBody(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
