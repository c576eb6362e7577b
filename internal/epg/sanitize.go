// SPDX-License-Identifier: MIT

package epg

import (
	"bytes"
	"regexp"
	"unicode/utf8"
)

var (
	// entityRef matches the references a strict decoder with no custom
	// entities accepts: the five XML builtins and numeric references.
	entityRef = regexp.MustCompile(`^&(?:amp|lt|gt|quot|apos|#[0-9]+|#x[0-9a-fA-F]+);`)
	encDecl   = regexp.MustCompile(`^\s*<\?xml[^>]*encoding\s*=\s*["']([^"']+)["']`)
)

// Sanitize repairs the most common defects in upstream guides so a strict
// parser accepts them. Bare ampersands are escaped, C0 control characters
// other than tab, LF and CR are dropped, and invalid UTF-8 is replaced with
// U+FFFD when the document is (or defaults to) UTF-8. Ampersands inside CDATA
// sections, comments and processing instructions are legal and left alone.
func Sanitize(raw []byte) []byte {
	out := make([]byte, 0, len(raw)+len(raw)/64)
	var closer []byte
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if closer == nil && c == '<' {
			closer = sectionCloser(raw[i:])
		} else if closer != nil && c == closer[0] && bytes.HasPrefix(raw[i:], closer) {
			out = append(out, closer...)
			i += len(closer) - 1
			closer = nil
			continue
		}
		switch {
		case c < 0x20 && c != '\t' && c != '\n' && c != '\r':
			// dropped
		case c == '&' && closer == nil:
			if entityRef.Match(raw[i:min(len(raw), i+12)]) {
				out = append(out, c)
			} else {
				out = append(out, "&amp;"...)
			}
		default:
			out = append(out, c)
		}
	}
	if declaresUTF8(out) && !utf8.Valid(out) {
		out = bytes.ToValidUTF8(out, []byte("\uFFFD"))
	}
	return out
}

// sectionCloser returns the terminator of the markup section starting at b,
// or nil when b does not open a CDATA section, comment or processing
// instruction.
func sectionCloser(b []byte) []byte {
	switch {
	case bytes.HasPrefix(b, []byte("<![CDATA[")):
		return []byte("]]>")
	case bytes.HasPrefix(b, []byte("<!--")):
		return []byte("-->")
	case bytes.HasPrefix(b, []byte("<?")):
		return []byte("?>")
	}
	return nil
}

func declaresUTF8(doc []byte) bool {
	head := doc[:min(len(doc), 256)]
	m := encDecl.FindSubmatch(head)
	if m == nil {
		return true
	}
	enc := bytes.ToLower(m[1])
	return bytes.Equal(enc, []byte("utf-8")) || bytes.Equal(enc, []byte("utf8"))
}
