// SPDX-License-Identifier: MIT

package epg

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// RewriteFunc receives the element name (e.g. "title" or "desc"), its
// lang attribute and decoded text. It returns the replacement text and lang,
// and false to leave the element untouched.
type RewriteFunc func(elem, lang, text string) (string, string, bool)

// ProgrammeTextElements are the programme children RewriteText touches.
var ProgrammeTextElements = []string{"title", "sub-title", "desc"}

type textSpan struct {
	name      string
	attrs     []xml.Attr
	tagStart  int64
	tagEnd    int64
	endStart  int64
	selfClose bool
	text      strings.Builder
	plain     bool
}

// RewriteText rewrites the text of direct title, sub-title and desc children
// in a programme's inner XML. Everything outside a rewritten element is kept
// byte-for-byte. Elements with nested markup are left alone. The bool result
// reports whether anything changed; when false inner is returned as-is.
func RewriteText(inner string, fn RewriteFunc) (string, bool, error) {
	return RewriteElements(inner, ProgrammeTextElements, fn)
}

// RewriteElements is RewriteText for an arbitrary set of direct child names,
// e.g. "display-name" inside a channel.
func RewriteElements(inner string, names []string, fn RewriteFunc) (string, bool, error) {
	targets := make(map[string]bool, len(names))
	for _, n := range names {
		targets[n] = true
	}
	spans, err := scanTextSpans(inner, targets)
	if err != nil {
		return inner, false, err
	}

	var b strings.Builder
	var last int64
	changed := false
	for _, s := range spans {
		text := s.text.String()
		if strings.TrimSpace(text) == "" {
			continue
		}
		newText, newLang, ok := fn(s.name, attr(s.attrs, "lang"), text)
		if !ok {
			continue
		}
		changed = true
		b.WriteString(inner[last:s.tagStart])
		b.WriteString("<" + s.name)
		attrs := s.attrs
		if newLang != "" {
			attrs = setAttr(attrs, "lang", newLang)
		}
		for _, a := range attrs {
			b.WriteString(" " + attrName(a.Name, nil) + `="` + escapeAttr(a.Value) + `"`)
		}
		b.WriteString(">")
		b.WriteString(escapeText(newText))
		if s.selfClose {
			b.WriteString("</" + s.name + ">")
			last = s.tagEnd
		} else {
			last = s.endStart
		}
	}
	if !changed {
		return inner, false, nil
	}
	b.WriteString(inner[last:])
	return b.String(), true, nil
}

func scanTextSpans(inner string, targets map[string]bool) ([]*textSpan, error) {
	dec := xml.NewDecoder(strings.NewReader(inner))
	dec.Strict = true

	var (
		spans []*textSpan
		cur   *textSpan
		depth int
	)
	for {
		off := dec.InputOffset()
		tok, err := dec.RawToken()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("scan inner xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			switch {
			case depth == 1 && targets[t.Name.Local] && t.Name.Space == "":
				end := dec.InputOffset()
				cur = &textSpan{
					name:      t.Name.Local,
					attrs:     append([]xml.Attr(nil), t.Attr...),
					tagStart:  off,
					tagEnd:    end,
					selfClose: strings.HasSuffix(inner[off:end], "/>"),
					plain:     true,
				}
			case cur != nil:
				cur.plain = false
			}
		case xml.CharData:
			if cur != nil && depth == 1 {
				cur.text.Write(t)
			}
		case xml.Comment, xml.ProcInst:
			if cur != nil {
				cur.plain = false
			}
		case xml.EndElement:
			if depth == 1 && cur != nil {
				cur.endStart = off
				if cur.plain {
					spans = append(spans, cur)
				}
				cur = nil
			}
			depth--
		}
	}
	return spans, nil
}
