// Package textutil holds the tokenization rules shared by query composition, ranking and dedup.
package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/net/html"
)

// Tokenize lower-cases s and splits it on anything that is not a letter or digit.
// Empty tokens are dropped.
func Tokenize(s string) []string {
	if s == "" {
		return nil
	}
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Words splits s on whitespace. A word is the unit of the context token budget.
func Words(s string) []string {
	return strings.Fields(s)
}

// CountWords returns len(Words(s)) without allocating the slice.
func CountWords(s string) int {
	n := 0
	inWord := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			inWord = false
			continue
		}
		if !inWord {
			n++
			inWord = true
		}
	}
	return n
}

// HasAlphanumeric reports whether s contains at least one letter or digit.
func HasAlphanumeric(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// skipElements are dropped entirely when flattening HTML.
var skipElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"head":     true,
}

// StripHTML reduces inline HTML to its text. Content without tags is returned unchanged,
// so plain Markdown keeps its line structure.
func StripHTML(content string) string {
	if !looksLikeHTML(content) {
		return content
	}

	doc, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return content
	}

	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skipElements[n.Data] {
			return
		}
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		if n.Type == html.ElementNode && blockElement(n.Data) {
			sb.WriteString("\n")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return strings.TrimSpace(sb.String())
}

func blockElement(tag string) bool {
	switch tag {
	case "p", "div", "br", "li", "tr", "h1", "h2", "h3", "h4", "h5", "h6", "pre", "blockquote":
		return true
	}
	return false
}

// looksLikeHTML is a cheap pre-check: a '<' directly followed by a letter, '/' or '!'.
func looksLikeHTML(s string) bool {
	for i := 0; i < len(s)-1; i++ {
		if s[i] != '<' {
			continue
		}
		c := s[i+1]
		if c == '/' || c == '!' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
			return true
		}
	}
	return false
}
