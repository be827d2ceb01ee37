package muadapter

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"sort"
	"strings"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// NormalizeText lowercases, collapses whitespace, and trims s — the same
// normalization the teacher applies before fingerprinting Slack message
// text, generalized here to every channel's command text.
func NormalizeText(s string) string {
	s = strings.ToLower(s)
	s = whitespaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Fingerprint computes the SHA-256 of normalized command text plus a
// deterministic rendering of metadata (spec §3: "fingerprint (SHA of
// normalized text+metadata)").
func Fingerprint(commandText string, metadata map[string]string) string {
	h := sha256.New()
	h.Write([]byte(NormalizeText(commandText)))

	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		h.Write([]byte{0})
		h.Write([]byte(k))
		h.Write([]byte{'='})
		h.Write([]byte(metadata[k]))
	}
	return hex.EncodeToString(h.Sum(nil))
}
