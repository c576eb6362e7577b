// SPDX-License-Identifier: MIT

package epg

import (
	"bufio"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"maps"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"

	lklog "github.com/anilwee/dialog/internal/log"
)

const xmlURL = "http://www.w3.org/XML/1998/namespace"

// Header is the declaration written before every document.
const Header = `<?xml version="1.0" encoding="UTF-8"?>` + "\n"

// Write emits tv as XMLTV. Elements keep their attributes and raw inner XML,
// so writing the result of decoding Write's output yields identical bytes.
func Write(w io.Writer, tv *TV) error {
	bw := bufio.NewWriter(w)
	prefixes := namespacePrefixes(tv.Attrs)

	_, _ = bw.WriteString(Header)
	writeStart(bw, "tv", tv.Attrs, prefixes)
	_, _ = bw.WriteString("\n")
	for _, c := range tv.Channels {
		_, _ = bw.WriteString("  ")
		writeElement(bw, "channel", c.Attrs, c.Inner, prefixes)
	}
	for _, p := range tv.Programmes {
		_, _ = bw.WriteString("  ")
		writeElement(bw, "programme", p.Attrs, p.Inner, prefixes)
	}
	_, _ = bw.WriteString("</tv>\n")
	return bw.Flush()
}

// WriteFile writes tv to path atomically and durably, creating the parent
// directory when needed.
func WriteFile(ctx context.Context, path string, tv *TV) error {
	return writeAtomic(ctx, path, func(w io.Writer) error { return Write(w, tv) })
}

func writeAtomic(ctx context.Context, path string, fn func(io.Writer) error) error {
	logger := lklog.FromContext(ctx)

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	pendingFile, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return fmt.Errorf("create pending file: %w", err)
	}
	defer func() {
		if err := pendingFile.Cleanup(); err != nil {
			logger.Debug().Err(err).Str(lklog.FieldPath, path).Msg("cleanup pending file")
		}
	}()

	if err := fn(pendingFile); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace %s: %w", path, err)
	}
	return nil
}

func writeElement(bw *bufio.Writer, name string, attrs []xml.Attr, inner string, prefixes map[string]string) {
	writeStart(bw, name, attrs, prefixes)
	_, _ = bw.WriteString(inner)
	_, _ = bw.WriteString("</" + name + ">\n")
}

func writeStart(bw *bufio.Writer, name string, attrs []xml.Attr, prefixes map[string]string) {
	prefixes = scopedPrefixes(prefixes, attrs)
	_, _ = bw.WriteString("<" + name)
	for _, a := range attrs {
		_, _ = bw.WriteString(" " + attrName(a.Name, prefixes) + `="`)
		_, _ = bw.WriteString(escapeAttr(a.Value))
		_ = bw.WriteByte('"')
	}
	_ = bw.WriteByte('>')
}

// namespacePrefixes maps namespace URLs declared on the root to their prefix.
func namespacePrefixes(attrs []xml.Attr) map[string]string {
	return scopedPrefixes(nil, attrs)
}

// scopedPrefixes adds the xmlns:* declarations in attrs to the parent scope.
// The parent map is returned as is when attrs declares nothing.
func scopedPrefixes(parent map[string]string, attrs []xml.Attr) map[string]string {
	out, cloned := parent, false
	for _, a := range attrs {
		if a.Name.Space != "xmlns" {
			continue
		}
		if !cloned {
			out, cloned = make(map[string]string, len(parent)+1), true
			maps.Copy(out, parent)
		}
		out[a.Value] = a.Name.Local
	}
	return out
}

// attrName restores the qualified name the decoder resolved into a namespace.
func attrName(n xml.Name, prefixes map[string]string) string {
	switch {
	case n.Space == "":
		return n.Local
	case n.Space == "xmlns":
		return "xmlns:" + n.Local
	case n.Space == xmlURL:
		return "xml:" + n.Local
	}
	if p, ok := prefixes[n.Space]; ok {
		return p + ":" + n.Local
	}
	// undeclared prefixes are left as-is by the decoder
	if !strings.ContainsAny(n.Space, ":/") {
		return n.Space + ":" + n.Local
	}
	return n.Local
}

var attrEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"\t", "&#x9;",
	"\n", "&#xA;",
	"\r", "&#xD;",
)

var textEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
)

func escapeAttr(s string) string { return attrEscaper.Replace(s) }

func escapeText(s string) string { return textEscaper.Replace(s) }
