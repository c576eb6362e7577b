// SPDX-License-Identifier: MIT

package epg

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/net/html/charset"
)

// DefaultMaxSize bounds how much (decompressed) XML a single decode reads.
const DefaultMaxSize int64 = 512 << 20

var (
	// ErrInputNotFound is returned when the source file does not exist.
	ErrInputNotFound = errors.New("epg: input not found")
	// ErrNotXMLTV is returned when the document root is not <tv>.
	ErrNotXMLTV = errors.New("epg: document is not XMLTV")
)

// ParseError carries the XML decoder diagnostic for a source document.
type ParseError struct {
	Source string
	Line   int
	Err    error
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("epg: parse %s (line %d): %v", e.Source, e.Line, e.Err)
	}
	return fmt.Sprintf("epg: parse %s: %v", e.Source, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// DecodeOptions controls how a document is read.
type DecodeOptions struct {
	// Lenient repairs bare ampersands, control characters and invalid UTF-8
	// before parsing.
	Lenient bool
	// MaxSize limits the decompressed document size; 0 means DefaultMaxSize.
	MaxSize int64
	// Source names the document in errors (path or URL).
	Source string
}

// ReadFile opens and decodes a plain or gzip-compressed XMLTV file.
func ReadFile(path string, opts DecodeOptions) (*TV, error) {
	path = filepath.Clean(path)
	if opts.Source == "" {
		opts.Source = path
	}
	// #nosec G304 -- input paths are provided by the operator
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrInputNotFound, path)
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	return Decode(f, opts)
}

// Decode reads an XMLTV document. Gzip input is detected by its magic bytes.
func Decode(r io.Reader, opts DecodeOptions) (*TV, error) {
	if opts.Source == "" {
		opts.Source = "input"
	}
	maxSize := opts.MaxSize
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}

	br := bufio.NewReader(r)
	src, err := maybeGunzip(br)
	if err != nil {
		return nil, &ParseError{Source: opts.Source, Err: err}
	}
	src = io.LimitReader(src, maxSize)

	if opts.Lenient {
		raw, err := io.ReadAll(src)
		if err != nil {
			return nil, &ParseError{Source: opts.Source, Err: err}
		}
		src = bytes.NewReader(Sanitize(raw))
	}

	var tv TV
	dec := xml.NewDecoder(src)
	dec.Strict = true
	// No entity expansion beyond the XML builtins.
	dec.Entity = make(map[string]string)
	dec.CharsetReader = charset.NewReaderLabel

	if err := dec.Decode(&tv); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &ParseError{Source: opts.Source, Err: io.ErrUnexpectedEOF}
		}
		pe := &ParseError{Source: opts.Source, Err: err}
		var syn *xml.SyntaxError
		if errors.As(err, &syn) {
			pe.Line = syn.Line
		}
		return nil, pe
	}
	if tv.XMLName.Local != "tv" {
		return nil, &ParseError{Source: opts.Source, Err: ErrNotXMLTV}
	}
	return &tv, nil
}

func maybeGunzip(br *bufio.Reader) (io.Reader, error) {
	magic, err := br.Peek(2)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if len(magic) == 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		return zr, nil
	}
	return br, nil
}
