package epub

import (
	"regexp"
	"strings"
	"sync"

	"github.com/shelvr/shelvr/pkg/htmlutil"
)

// The scanner below deliberately avoids encoding/xml. Real-world OPF files
// disagree on namespace prefixes, attribute order, and sometimes on being
// well-formed at all; matching tags by local name keeps all of them readable.

// element is one matched tag: its attributes and, for non-empty elements, the
// raw inner text.
type element struct {
	attrs map[string]string
	text  string
}

// attr returns the attribute value by name. Names are matched without case and
// without namespace prefix, so attr("role") finds opf:role too.
func (e element) attr(name string) string {
	return e.attrs[strings.ToLower(name)]
}

// textValue is the inner text with entities decoded and whitespace trimmed.
func (e element) textValue() string {
	return strings.TrimSpace(htmlutil.DecodeEntities(unwrapCDATA(e.text)))
}

var attrPattern = regexp.MustCompile(`([\w:.-]+)\s*=\s*(?:"([^"]*)"|'([^']*)')`)

var cdataPattern = regexp.MustCompile(`(?s)^\s*<!\[CDATA\[(.*?)\]\]>\s*$`)

type tagPatterns struct {
	open  *regexp.Regexp
	close *regexp.Regexp
}

var (
	patternsMu sync.Mutex
	patterns   = map[string]tagPatterns{}
)

// patternsFor builds (once) the open and close matchers for a local tag name.
// The open matcher captures the attribute run, including a trailing "/" for
// self-closing tags. The name must be followed by whitespace, "/" or ">" so
// "item" never matches "itemref".
func patternsFor(local string) tagPatterns {
	patternsMu.Lock()
	defer patternsMu.Unlock()

	if p, ok := patterns[local]; ok {
		return p
	}
	name := regexp.QuoteMeta(local)
	p := tagPatterns{
		open:  regexp.MustCompile(`(?i)<(?:[\w.-]+:)?` + name + `((?:\s[^>]*)?/?)>`),
		close: regexp.MustCompile(`(?i)</(?:[\w.-]+:)?` + name + `\s*>`),
	}
	patterns[local] = p
	return p
}

// findElements returns every element with the given local name, in document
// order. Unclosed non-empty elements are reported with empty text.
func findElements(doc, local string) []element {
	p := patternsFor(local)
	opens := p.open.FindAllStringSubmatchIndex(doc, -1)
	if len(opens) == 0 {
		return nil
	}

	elements := make([]element, 0, len(opens))
	for i, loc := range opens {
		rawAttrs := doc[loc[2]:loc[3]]
		el := element{attrs: parseAttrs(rawAttrs)}

		if !strings.HasSuffix(strings.TrimSpace(rawAttrs), "/") {
			// The body runs to the next closing tag, but never past the next
			// opening tag of the same name.
			bodyStart := loc[1]
			limit := len(doc)
			if i+1 < len(opens) {
				limit = opens[i+1][0]
			}
			if c := p.close.FindStringIndex(doc[bodyStart:limit]); c != nil {
				el.text = doc[bodyStart : bodyStart+c[0]]
			}
		}
		elements = append(elements, el)
	}
	return elements
}

// firstText returns the first non-empty text among elements named local.
func firstText(doc, local string) string {
	for _, el := range findElements(doc, local) {
		if v := el.textValue(); v != "" {
			return v
		}
	}
	return ""
}

// parseAttrs reads name="value" / name='value' pairs. Each attribute is stored
// under its lowercased full name and, when prefixed, under its local name too
// unless an unprefixed attribute already claimed it.
func parseAttrs(raw string) map[string]string {
	attrs := map[string]string{}
	for _, m := range attrPattern.FindAllStringSubmatch(raw, -1) {
		name := strings.ToLower(m[1])
		value := m[2]
		if value == "" {
			value = m[3]
		}
		value = htmlutil.DecodeEntities(value)

		if _, ok := attrs[name]; !ok {
			attrs[name] = value
		}
		if i := strings.LastIndexByte(name, ':'); i >= 0 {
			local := name[i+1:]
			if _, ok := attrs[local]; !ok {
				attrs[local] = value
			}
		}
	}
	return attrs
}

func unwrapCDATA(s string) string {
	if m := cdataPattern.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return s
}

// localName strips any namespace prefix: "calibre:series" -> "series".
func localName(name string) string {
	if i := strings.LastIndexByte(name, ':'); i >= 0 {
		return name[i+1:]
	}
	return name
}
