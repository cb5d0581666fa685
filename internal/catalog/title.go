package catalog

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Title turns a template name such as "TextEmail.yml" or "order_shipped.yaml"
// into a display title ("Text Email", "Order Shipped").
func Title(name string) string {
	stem := Stem(name)

	var words []string
	var current []rune
	flush := func() {
		if len(current) > 0 {
			words = append(words, string(current))
			current = current[:0]
		}
	}

	runes := []rune(stem)
	for i, r := range runes {
		switch {
		case r == '_' || r == '-' || r == ' ' || r == '.':
			flush()
			continue
		case unicode.IsUpper(r) && i > 0 && (unicode.IsLower(runes[i-1]) ||
			(i+1 < len(runes) && unicode.IsLower(runes[i+1]) && unicode.IsUpper(runes[i-1]))):
			flush()
		}
		current = append(current, r)
	}
	flush()

	caser := cases.Title(language.English)
	for i, w := range words {
		// Keep acronyms such as "HTML" intact.
		if strings.ToUpper(w) != w {
			words[i] = caser.String(w)
		}
	}
	return strings.Join(words, " ")
}
