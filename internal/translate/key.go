// SPDX-License-Identifier: MIT

package translate

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	unorm "golang.org/x/text/unicode/norm"
)

// Key is the cache key for text: "src:tgt:" followed by the hex SHA-256 of
// the NFC form with surrounding space trimmed and inner runs collapsed. Case
// is kept, so "NEWS" and "News" are cached separately.
func Key(src, tgt, text string) string {
	norm := strings.Join(strings.Fields(unorm.NFC.String(text)), " ")
	sum := sha256.Sum256([]byte(norm))
	return src + ":" + tgt + ":" + hex.EncodeToString(sum[:])
}
