package renderer

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var blockElements = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Tr: true, atom.Table: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Li: true, atom.Ul: true, atom.Ol: true, atom.Hr: true, atom.Blockquote: true,
}

var skipElements = map[atom.Atom]bool{
	atom.Head: true, atom.Script: true, atom.Style: true, atom.Title: true,
}

// PlainText derives the text/plain part of an email from its HTML. Links are
// written as "text (href)".
func PlainText(document string) string {
	z := html.NewTokenizer(strings.NewReader(document))

	var b strings.Builder
	skip := 0
	var href string
	var linkText strings.Builder
	inLink := false

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			// io.EOF or a malformed document; either way keep what was read.
			return tidy(b.String())

		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			if skipElements[tok.DataAtom] && tt == html.StartTagToken {
				skip++
				continue
			}
			if blockElements[tok.DataAtom] {
				b.WriteString("\n")
			}
			if tok.DataAtom == atom.A && tt == html.StartTagToken {
				inLink = true
				href = attr(tok, "href")
				linkText.Reset()
			}

		case html.EndTagToken:
			tok := z.Token()
			if skipElements[tok.DataAtom] {
				if skip > 0 {
					skip--
				}
				continue
			}
			if tok.DataAtom == atom.A && inLink {
				inLink = false
				text := strings.TrimSpace(linkText.String())
				switch {
				case href == "" || strings.HasPrefix(href, "#"):
					b.WriteString(text)
				case text == "" || text == href:
					b.WriteString(href)
				default:
					b.WriteString(text + " (" + href + ")")
				}
			}
			if blockElements[tok.DataAtom] {
				b.WriteString("\n")
			}

		case html.TextToken:
			if skip > 0 {
				continue
			}
			text := collapse(string(z.Text()))
			if inLink {
				linkText.WriteString(text)
			} else {
				b.WriteString(text)
			}
		}
	}
}

// Title returns the document <title>, or "" when there is none.
func Title(document string) string {
	z := html.NewTokenizer(strings.NewReader(document))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return ""
		case html.StartTagToken:
			if z.Token().DataAtom == atom.Title {
				if z.Next() == html.TextToken {
					return strings.TrimSpace(string(z.Text()))
				}
				return ""
			}
		}
	}
}

func attr(tok html.Token, name string) string {
	for _, a := range tok.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func collapse(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		if s != "" {
			return " "
		}
		return ""
	}
	out := strings.Join(fields, " ")
	if isSpace(s[0]) {
		out = " " + out
	}
	if isSpace(s[len(s)-1]) {
		out += " "
	}
	return out
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\t' || c == '\r'
}

// tidy trims every line and collapses runs of blank lines to one.
func tidy(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	blank := true
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if !blank {
				out = append(out, "")
			}
			blank = true
			continue
		}
		out = append(out, line)
		blank = false
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
