// SPDX-License-Identifier: MIT

package epg

import (
	"bytes"
	"context"
	"encoding/xml"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWritePreservesElements(t *testing.T) {
	tv := loadSample(t)
	out, _ := Filter(tv, NewIDMatcher([]string{"hiru.lk"}), FilterOptions{})

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, out))
	got := buf.String()

	assert.True(t, strings.HasPrefix(got, Header+`<tv generator-info-name="epg.pw" source-info-url="https://epg.pw">`))
	assert.Contains(t, got, `<channel id="hiru.lk">`+tv.Channels[0].Inner+"</channel>")
	assert.Contains(t, got, `<desc lang="en">Headlines &amp; weather</desc>`)
	assert.Contains(t, got, `<category lang="en">News</category>`)
	assert.Contains(t, got, `<programme start="20240101060000 +0530" stop="20240101070000 +0530" channel="hiru.lk">`)
	assert.NotContains(t, got, "bbc.uk")
	assert.True(t, strings.HasSuffix(got, "</tv>\n"))
}

func TestWriteNamespaces(t *testing.T) {
	in := `<tv xmlns="urn:oasis:names:tc:tv:electronic:programming-guide:1.0" xmlns:ext="urn:ext" ext:flag="1" xml:lang="en">` +
		`<channel id="a" ext:num="7"><display-name>Hiru TV</display-name></channel></tv>`
	tv, err := Decode(strings.NewReader(in), DecodeOptions{})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, tv))
	got := buf.String()

	assert.Contains(t, got, `<tv xmlns="urn:oasis:names:tc:tv:electronic:programming-guide:1.0" xmlns:ext="urn:ext" ext:flag="1" xml:lang="en">`)
	assert.Contains(t, got, `<channel id="a" ext:num="7">`)

	// output must stay well-formed
	var reparsed TV
	require.NoError(t, xml.Unmarshal(buf.Bytes(), &reparsed))
	assert.Len(t, reparsed.Channels, 1)
}

func TestWriteElementScopedNamespaces(t *testing.T) {
	in := `<tv><channel id="a" xmlns:foo="urn:foo" foo:num="7"><display-name>Hiru TV</display-name></channel>` +
		`<channel id="b" xmlns:bar="urn:bar" bar:num="8"><display-name>ITN</display-name></channel>` +
		`<programme channel="a" start="20240101060000 +0530" xmlns:foo="urn:foo" foo:rating="PG"><title>A</title></programme></tv>`
	tv, err := Decode(strings.NewReader(in), DecodeOptions{})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, tv))
	got := buf.String()

	assert.Contains(t, got, `<channel id="a" xmlns:foo="urn:foo" foo:num="7">`)
	assert.Contains(t, got, `<channel id="b" xmlns:bar="urn:bar" bar:num="8">`)
	assert.Contains(t, got, `<programme channel="a" start="20240101060000 +0530" xmlns:foo="urn:foo" foo:rating="PG">`)

	again, err := Decode(bytes.NewReader(buf.Bytes()), DecodeOptions{})
	require.NoError(t, err)
	var buf2 bytes.Buffer
	require.NoError(t, Write(&buf2, again))
	assert.Equal(t, got, buf2.String())
}

func TestWriteEscapesAttributes(t *testing.T) {
	tv := &TV{Channels: []Channel{{Attrs: []xml.Attr{{Name: xml.Name{Local: "id"}, Value: `a&"b"<c>`}}}}}
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, tv))
	assert.Contains(t, buf.String(), `<channel id="a&amp;&quot;b&quot;&lt;c&gt;"></channel>`)

	back, err := Decode(&buf, DecodeOptions{})
	require.NoError(t, err)
	assert.Equal(t, `a&"b"<c>`, back.Channels[0].ID())
}

func TestWriteFile(t *testing.T) {
	tv := loadSample(t)
	path := filepath.Join(t.TempDir(), "public", "lk.xml")

	require.NoError(t, WriteFile(context.Background(), path, tv))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.False(t, info.IsDir())

	back, err := ReadFile(path, DecodeOptions{})
	require.NoError(t, err)
	assert.Len(t, back.Channels, len(tv.Channels))
	assert.Len(t, back.Programmes, len(tv.Programmes))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no pending files left behind")
}
