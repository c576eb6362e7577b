// SPDX-License-Identifier: MIT

package epg

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Placeholders for missing programme fields.
const (
	UnknownTitle   = "Unknown Title"
	UnknownStart   = "Unknown Start"
	UnknownChannel = "Unknown Channel"
)

// Projection formats.
const (
	FormatTiled  = "tiled"
	FormatDialog = "dialog"
)

// ErrUnknownFormat is returned for an unsupported projection format.
var ErrUnknownFormat = errors.New("epg: unknown projection format")

// TiledEPG is the flat per-programme projection consumed by the dialog app.
type TiledEPG struct {
	XMLName xml.Name `xml:"TiledEPG"`
	Tiles   []Tile   `xml:"Tile"`
}

// Tile is one programme in the tiled projection.
type Tile struct {
	Channel     string `xml:"channel,attr"`
	Start       string `xml:"start,attr"`
	Stop        string `xml:"stop,attr,omitempty"`
	Title       string `xml:"Title"`
	Description string `xml:"Description,omitempty"`
}

// DialogEPG is the older element-only projection: <dialog><entry>...</entry></dialog>.
type DialogEPG struct {
	XMLName xml.Name      `xml:"dialog"`
	Entries []DialogEntry `xml:"entry"`
}

// DialogEntry is one programme in the dialog projection.
type DialogEntry struct {
	Title   string `xml:"title"`
	Start   string `xml:"start"`
	Channel string `xml:"channel"`
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// Tiled projects every programme of tv into a tile.
func Tiled(tv *TV) *TiledEPG {
	out := &TiledEPG{Tiles: make([]Tile, 0, len(tv.Programmes))}
	for _, p := range tv.Programmes {
		title := orDefault(p.Title(), UnknownTitle)
		out.Tiles = append(out.Tiles, Tile{
			Channel:     p.ChannelRef(),
			Start:       p.Start(),
			Stop:        p.Stop(),
			Title:       title,
			Description: p.Desc(),
		})
	}
	return out
}

// Dialog projects every programme of tv into a dialog entry, filling
// missing fields with the Unknown placeholders.
func Dialog(tv *TV) *DialogEPG {
	out := &DialogEPG{Entries: make([]DialogEntry, 0, len(tv.Programmes))}
	for _, p := range tv.Programmes {
		out.Entries = append(out.Entries, DialogEntry{
			Title:   orDefault(p.Title(), UnknownTitle),
			Start:   orDefault(p.Start(), UnknownStart),
			Channel: orDefault(p.ChannelRef(), UnknownChannel),
		})
	}
	return out
}

// Project builds the projection named by format ("" means tiled).
func Project(tv *TV, format string) (any, error) {
	switch strings.ToLower(format) {
	case FormatTiled, "":
		return Tiled(tv), nil
	case FormatDialog:
		return Dialog(tv), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// WriteTiled encodes t with an XML declaration.
func WriteTiled(w io.Writer, t *TiledEPG) error { return writeProjection(w, t) }

// WriteProjectionFile writes a value returned by Project to path atomically.
func WriteProjectionFile(ctx context.Context, path string, v any) error {
	return writeAtomic(ctx, path, func(w io.Writer) error { return writeProjection(w, v) })
}

func writeProjection(w io.Writer, v any) error {
	if _, err := io.WriteString(w, Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(v); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// WriteTiledFile writes t to path atomically.
func WriteTiledFile(ctx context.Context, path string, t *TiledEPG) error {
	return writeAtomic(ctx, path, func(w io.Writer) error { return WriteTiled(w, t) })
}
