// Package util holds small text helpers shared by the message source, the
// extraction pipeline and the prompt builder.
package util

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var (
	horizontalSpace = regexp.MustCompile(`[ \t\f\v\p{Zs}]+`)
	blankLines      = regexp.MustCompile(`\n{3,}`)
)

// NormalizeText is the single sanitization step applied to inbound and
// recovered text. It decodes HTML entities, drops control characters,
// collapses whitespace runs, trims, and caps the result at maxRunes
// (maxRunes <= 0 means no cap).
func NormalizeText(s string, maxRunes int) string {
	return normalize(s, maxRunes, true)
}

// NormalizePlain is NormalizeText for text whose entities were already
// decoded, such as StripTags output. A literal "&amp;" survives.
func NormalizePlain(s string, maxRunes int) string {
	return normalize(s, maxRunes, false)
}

func normalize(s string, maxRunes int, unescape bool) string {
	if s == "" {
		return ""
	}
	if unescape {
		s = html.UnescapeString(s)
	}
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) || r == '\u200b' || r == '\ufeff' {
			return -1
		}
		return r
	}, s)

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(horizontalSpace.ReplaceAllString(line, " "))
	}
	s = blankLines.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	s = strings.TrimSpace(s)

	return Truncate(s, maxRunes)
}

// Truncate caps s at maxRunes runes without splitting a code point.
func Truncate(s string, maxRunes int) string {
	if maxRunes <= 0 || utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	n := 0
	for i := range s {
		if n == maxRunes {
			return strings.TrimSpace(s[:i])
		}
		n++
	}
	return s
}

// StripTags returns the text content of an HTML fragment. Script and style
// bodies are dropped and block-level elements become line breaks. Entities
// are decoded by the tokenizer.
func StripTags(s string) string {
	if !strings.ContainsAny(s, "<>") {
		return html.UnescapeString(s)
	}

	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(s))
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			// io.EOF or a malformed tail; either way keep what was read.
			return b.String()
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			if a == atom.Script || a == atom.Style {
				skip++
				continue
			}
			if isBreak(a) {
				b.WriteByte('\n')
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			a := atom.Lookup(name)
			if (a == atom.Script || a == atom.Style) && skip > 0 {
				skip--
				continue
			}
			if isBreak(a) {
				b.WriteByte('\n')
			}
		}
	}
}

func isBreak(a atom.Atom) bool {
	switch a {
	case atom.Br, atom.P, atom.Div, atom.Li, atom.Tr, atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6, atom.Table, atom.Ul, atom.Ol:
		return true
	}
	return false
}
