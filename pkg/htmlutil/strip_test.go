package htmlutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripTags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "empty string",
			input:    "",
			expected: "",
		},
		{
			name:     "plain text no tags",
			input:    "Hello world",
			expected: "Hello world",
		},
		{
			name:     "multiple paragraphs",
			input:    "<p>First paragraph</p><p>Second paragraph</p>",
			expected: "First paragraph\nSecond paragraph",
		},
		{
			name:     "nested tags",
			input:    "<p><strong>Bold</strong> and <em>italic</em></p>",
			expected: "Bold and italic",
		},
		{
			name:     "br tags",
			input:    "Line one<br>Line two<br/>Line three<BR />Line four",
			expected: "Line one\nLine two\nLine three\nLine four",
		},
		{
			name:     "tags with attributes",
			input:    `<p style="font-weight: 600">Styled text</p>`,
			expected: "Styled text",
		},
		{
			name:     "html entities",
			input:    "Tom &amp; Jerry &mdash; the classic",
			expected: "Tom & Jerry — the classic",
		},
		{
			name:     "multiple spaces collapsed",
			input:    "Too    many \t spaces",
			expected: "Too many spaces",
		},
		{
			name:     "list items",
			input:    "<ul><li>Item one</li><li>Item two</li></ul>",
			expected: "Item one\nItem two",
		},
		{
			name:     "cdata body",
			input:    "<![CDATA[<p>Inside</p>]]>",
			expected: "Inside",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, StripTags(tt.input))
		})
	}
}

func TestPlainText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "paragraphs collapse to one line",
			input:    "<p>First.</p>\n\n<p>Second.</p>",
			expected: "First. Second.",
		},
		{
			name:     "escaped markup is decoded then stripped",
			input:    "&lt;p&gt;A &lt;i&gt;dark&lt;/i&gt; tale.&lt;/p&gt;",
			expected: "A dark tale.",
		},
		{
			name:     "double escaped ampersand survives as text",
			input:    "Fish &amp;amp; Chips",
			expected: "Fish &amp; Chips",
		},
		{
			name:     "whitespace only",
			input:    "  \n\t ",
			expected: "",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, PlainText(tt.input))
		})
	}
}

func TestDecodeEntities(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "café", DecodeEntities("caf&#233;"))
	assert.Equal(t, "café", DecodeEntities("caf&#xE9;"))
	assert.Equal(t, "&#0;", DecodeEntities("&#0;"))
	assert.Equal(t, "a < b & c", DecodeEntities("a &lt; b &amp; c"))
	assert.Equal(t, "no entities", DecodeEntities("no entities"))
}
