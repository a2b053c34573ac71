package findings

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// FingerprintLength is the number of hex characters kept from the SHA-256
// digest. Module-level per spec §4.2: keep consistent across the codebase
// to avoid fingerprint drift.
const FingerprintLength = 16

// MessageSnippetLength bounds the portion of the message folded into the
// fingerprint, after whitespace normalization.
const MessageSnippetLength = 200

// Fingerprint computes the deterministic fingerprint for a finding's
// identity fields: sha256("{tool}|{rule_id}|{path}|{start_line_or_0}|{normalized_message_snippet}"),
// truncated to FingerprintLength hex characters.
func Fingerprint(tool, ruleID, path string, startLine int, message string) string {
	snippet := normalizeMessageSnippet(message)
	input := strings.Join([]string{
		tool,
		ruleID,
		path,
		strconv.Itoa(startLine),
		snippet,
	}, "|")

	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])[:FingerprintLength]
}

// normalizeMessageSnippet collapses consecutive whitespace to a single
// space, trims leading/trailing whitespace, and truncates to
// MessageSnippetLength characters.
func normalizeMessageSnippet(message string) string {
	fields := strings.Fields(message)
	collapsed := strings.Join(fields, " ")
	if len(collapsed) > MessageSnippetLength {
		collapsed = collapsed[:MessageSnippetLength]
	}
	return collapsed
}

// normalizePath canonicalizes a file path for fingerprinting and clustering:
// forward slashes, no leading "./" or "/".
func normalizePath(path string) string {
	p := strings.ReplaceAll(path, "\\", "/")
	p = strings.TrimPrefix(p, "./")
	p = strings.TrimPrefix(p, "/")
	return p
}
