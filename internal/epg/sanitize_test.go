// SPDX-License-Identifier: MIT

package epg

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare ampersand", "Tom & Jerry", "Tom &amp; Jerry"},
		{"known entities kept", "&amp;&lt;&gt;&quot;&apos;", "&amp;&lt;&gt;&quot;&apos;"},
		{"numeric kept", "&#38;&#x26;", "&#38;&#x26;"},
		{"html entity escaped", "a&nbsp;b", "a&amp;nbsp;b"},
		{"trailing ampersand", "R&", "R&amp;"},
		{"control chars", "a\x00b\x08c\x1fd", "abcd"},
		{"whitespace kept", "a\tb\nc\rd", "a\tb\nc\rd"},
		{"invalid utf8", "caf\xe9", "caf\uFFFD"},
		{"cdata untouched", "<desc><![CDATA[Tom & Jerry]]> & more</desc>", "<desc><![CDATA[Tom & Jerry]]> &amp; more</desc>"},
		{"comment untouched", "<!-- R&D -->&", "<!-- R&D -->&amp;"},
		{"pi untouched", "<?render a&b?><x>&</x>", "<?render a&b?><x>&amp;</x>"},
		{"unterminated cdata", "<![CDATA[a & b", "<![CDATA[a & b"},
		{"control char in cdata", "<![CDATA[a\x01b]]>", "<![CDATA[ab]]>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, string(Sanitize([]byte(tt.in))))
		})
	}
}

func TestSanitizeKeepsDeclaredEncoding(t *testing.T) {
	in := "<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?><tv>caf\xe9</tv>"
	assert.Equal(t, in, string(Sanitize([]byte(in))))
}
