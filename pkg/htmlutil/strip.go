package htmlutil

import (
	"regexp"
	"strconv"
	"strings"
)

// tagPattern matches HTML tags including self-closing tags.
var tagPattern = regexp.MustCompile(`<[^>]*>`)

// cdataPattern matches a CDATA section and captures its body.
var cdataPattern = regexp.MustCompile(`(?s)<!\[CDATA\[(.*?)\]\]>`)

// numericEntityPattern matches decimal and hex character references.
var numericEntityPattern = regexp.MustCompile(`&#([0-9]{1,7}|[xX][0-9a-fA-F]{1,6});`)

var blockTagPattern = regexp.MustCompile(`(?i)</p\s*>|</div\s*>|<br\s*/?>|</li\s*>|</h[1-6]\s*>`)

var namedEntities = strings.NewReplacer(
	"&nbsp;", " ",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", "\"",
	"&#39;", "'",
	"&apos;", "'",
	"&mdash;", "—",
	"&ndash;", "–",
	"&hellip;", "…",
	"&rsquo;", "’",
	"&lsquo;", "‘",
	"&rdquo;", "”",
	"&ldquo;", "“",
	"&copy;", "©",
	"&reg;", "®",
	"&trade;", "™",
)

// StripTags removes all HTML tags from a string. Block-level closers become
// newlines so paragraphs survive; runs of spaces collapse within each line and
// empty lines are dropped.
func StripTags(html string) string {
	if html == "" {
		return ""
	}

	result := unwrapCDATA(html)
	result = blockTagPattern.ReplaceAllString(result, "\n")
	result = tagPattern.ReplaceAllString(result, "")
	result = DecodeEntities(result)

	lines := strings.Split(result, "\n")
	nonEmpty := lines[:0]
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			nonEmpty = append(nonEmpty, line)
		}
	}

	return strings.Join(nonEmpty, "\n")
}

// PlainText is StripTags followed by collapsing every whitespace run,
// newlines included, to a single space.
//
// OPF descriptions are frequently escaped markup (&lt;p&gt;...), so entities
// are decoded once up front to expose the tags before stripping.
func PlainText(s string) string {
	if s == "" {
		return ""
	}
	s = unwrapCDATA(s)
	if strings.Contains(s, "&lt;") {
		s = DecodeEntities(s)
	}
	return strings.Join(strings.Fields(StripTags(s)), " ")
}

// DecodeEntities decodes the common named entities plus numeric references.
// &amp; is decoded last so "&amp;lt;" yields the literal text "&lt;".
func DecodeEntities(s string) string {
	if !strings.Contains(s, "&") {
		return s
	}
	s = namedEntities.Replace(s)
	s = numericEntityPattern.ReplaceAllStringFunc(s, func(ref string) string {
		body := ref[2 : len(ref)-1]
		base := 10
		if body[0] == 'x' || body[0] == 'X' {
			body = body[1:]
			base = 16
		}
		n, err := strconv.ParseInt(body, base, 32)
		if err != nil || n <= 0 || n > 0x10FFFF {
			return ref
		}
		return string(rune(n))
	})
	return strings.ReplaceAll(s, "&amp;", "&")
}

func unwrapCDATA(s string) string {
	if !strings.Contains(s, "<![CDATA[") {
		return s
	}
	return cdataPattern.ReplaceAllString(s, "$1")
}
