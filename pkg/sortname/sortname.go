// Package sortname builds library-style sort keys for titles and author
// names, so "The Hobbit" files under H and "Stephen King" under K.
package sortname

import (
	"strings"
)

var titleArticles = []string{"The", "A", "An"}

var honorifics = map[string]bool{
	"dr": true, "mr": true, "mrs": true, "ms": true, "prof": true,
	"rev": true, "fr": true, "sir": true, "dame": true, "lord": true, "lady": true,
}

var credentials = map[string]bool{
	"phd": true, "psyd": true, "md": true, "do": true, "dds": true, "jd": true,
	"edd": true, "lld": true, "mba": true, "ms": true, "ma": true, "ba": true,
	"bs": true, "rn": true, "esq": true,
}

var generations = map[string]bool{
	"jr": true, "sr": true, "junior": true, "senior": true,
	"i": true, "ii": true, "iii": true, "iv": true, "v": true,
}

// normalize lowercases word and drops dots and a trailing comma, so "Ph.D.,"
// and "PhD" compare equal.
func normalize(word string) string {
	word = strings.TrimSuffix(word, ",")
	return strings.ToLower(strings.ReplaceAll(word, ".", ""))
}

// ForTitle moves a leading article to the end: "The Hobbit" -> "Hobbit, The".
func ForTitle(title string) string {
	title = strings.TrimSpace(title)
	for _, article := range titleArticles {
		if len(title) <= len(article)+1 || !strings.EqualFold(title[:len(article)+1], article+" ") {
			continue
		}
		if rest := strings.TrimSpace(title[len(article)+1:]); rest != "" {
			return rest + ", " + title[:len(article)]
		}
	}
	return title
}

// ForPerson turns a display name into "Surname, Given": honorifics and
// credentials are dropped, generational suffixes are kept at the end.
func ForPerson(name string) string {
	parts := strings.Fields(name)
	if len(parts) < 2 {
		return strings.TrimSpace(name)
	}

	for len(parts) > 1 && honorifics[normalize(parts[0])] {
		parts = parts[1:]
	}

	var suffixes []string
	for len(parts) > 1 {
		last := normalize(parts[len(parts)-1])
		if generations[last] {
			suffixes = append([]string{strings.TrimSuffix(parts[len(parts)-1], ",")}, suffixes...)
		} else if !credentials[last] {
			break
		}
		parts = parts[:len(parts)-1]
	}

	// Strip trailing commas left behind by "King, Jr." style names.
	surname := strings.TrimSuffix(parts[len(parts)-1], ",")
	given := parts[:len(parts)-1]

	var b strings.Builder
	b.WriteString(surname)
	if len(given) > 0 {
		b.WriteString(", ")
		b.WriteString(strings.Join(given, " "))
	}
	for _, s := range suffixes {
		b.WriteString(", ")
		b.WriteString(s)
	}
	return b.String()
}
