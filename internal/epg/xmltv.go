// SPDX-License-Identifier: MIT

// Package epg reads, filters and writes XMLTV electronic program guides.
package epg

import (
	"encoding/xml"
	"regexp"
	"strings"

	unorm "golang.org/x/text/unicode/norm"
)

// TV is the XMLTV root. Attributes are kept in document order so that a
// filtered guide carries the same generator and namespace information.
type TV struct {
	XMLName    xml.Name    `xml:"tv"`
	Attrs      []xml.Attr  `xml:",any,attr"`
	Channels   []Channel   `xml:"channel"`
	Programmes []Programme `xml:"programme"`
}

// Text is a possibly language-tagged text node such as display-name or title.
type Text struct {
	Lang  string `xml:"lang,attr,omitempty"`
	Value string `xml:",chardata"`
}

// Channel is a <channel> element. Inner holds the raw child XML exactly as it
// appeared in the source; DisplayNames is parsed from it for matching.
type Channel struct {
	Attrs        []xml.Attr `xml:",any,attr"`
	DisplayNames []Text     `xml:"display-name"`
	Inner        string     `xml:",innerxml"`
}

// Programme is a <programme> element with the same raw/parsed split as Channel.
type Programme struct {
	Attrs     []xml.Attr `xml:",any,attr"`
	Titles    []Text     `xml:"title"`
	SubTitles []Text     `xml:"sub-title"`
	Descs     []Text     `xml:"desc"`
	Inner     string     `xml:",innerxml"`
}

// ID returns the channel identifier or "" if the attribute is missing.
func (c Channel) ID() string { return strings.TrimSpace(attr(c.Attrs, "id")) }

// Names returns the non-empty display names in document order.
func (c Channel) Names() []string {
	out := make([]string, 0, len(c.DisplayNames))
	for _, dn := range c.DisplayNames {
		if v := strings.TrimSpace(dn.Value); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// ChannelRef returns the channel attribute or "" if missing.
func (p Programme) ChannelRef() string { return strings.TrimSpace(attr(p.Attrs, "channel")) }

// Start returns the raw start attribute.
func (p Programme) Start() string { return attr(p.Attrs, "start") }

// Stop returns the raw stop attribute ("" when absent).
func (p Programme) Stop() string { return attr(p.Attrs, "stop") }

// Title returns the first title value, or "".
func (p Programme) Title() string {
	if len(p.Titles) == 0 {
		return ""
	}
	return p.Titles[0].Value
}

// Desc returns the first description value, or "".
func (p Programme) Desc() string {
	if len(p.Descs) == 0 {
		return ""
	}
	return p.Descs[0].Value
}

// SetInner replaces the raw child XML and re-parses the text fields from it.
func (p *Programme) SetInner(inner string) error {
	var parsed Programme
	if err := xml.Unmarshal([]byte("<programme>"+inner+"</programme>"), &parsed); err != nil {
		return err
	}
	p.Titles, p.SubTitles, p.Descs = parsed.Titles, parsed.SubTitles, parsed.Descs
	p.Inner = inner
	return nil
}

// SetInner replaces the raw child XML and re-parses the display names from it.
func (c *Channel) SetInner(inner string) error {
	var parsed Channel
	if err := xml.Unmarshal([]byte("<channel>"+inner+"</channel>"), &parsed); err != nil {
		return err
	}
	c.DisplayNames = parsed.DisplayNames
	c.Inner = inner
	return nil
}

// SetAttr sets or replaces an unqualified root attribute.
func (tv *TV) SetAttr(name, value string) {
	tv.Attrs = setAttr(tv.Attrs, name, value)
}

// Attr returns an unqualified root attribute.
func (tv *TV) Attr(name string) string { return attr(tv.Attrs, name) }

func attr(attrs []xml.Attr, name string) string {
	for _, a := range attrs {
		if a.Name.Space == "" && a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

func setAttr(attrs []xml.Attr, name, value string) []xml.Attr {
	for i, a := range attrs {
		if a.Name.Space == "" && a.Name.Local == name {
			attrs[i].Value = value
			return attrs
		}
	}
	return append(attrs, xml.Attr{Name: xml.Name{Local: name}, Value: value})
}

var (
	suffix = regexp.MustCompile(`\s+(hd|uhd|4k|sd)$`)
	space  = regexp.MustCompile(`\s+`)
)

// fold lowercases, NFC-normalizes and collapses whitespace.
func fold(s string) string {
	s = unorm.NFC.String(s)
	s = strings.ToLower(strings.TrimSpace(s))
	// lowercasing may produce new combining sequences
	s = unorm.NFC.String(s)
	return space.ReplaceAllString(s, " ")
}

// normalize is fold plus removal of quality suffixes ("Hiru TV HD" -> "hiru tv").
func normalize(s string) string {
	s = fold(s)
	for {
		before := s
		s = suffix.ReplaceAllString(s, "")
		if s == before {
			break
		}
	}
	return strings.TrimSpace(s)
}

// NameKey generates a normalized key from a channel name for matching.
func NameKey(s string) string { return normalize(s) }
