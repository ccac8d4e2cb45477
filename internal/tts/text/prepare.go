// Package text turns stored chapter content into narration-ready text.
package text

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/net/html"
	"golang.org/x/text/unicode/norm"
)

// MaxNarrationRunes is the longest text accepted by a single synthesis call.
const MaxNarrationRunes = 10000

const whitespaceRegexPattern = `[ \t\f\v\r]+`

// Punctuation and formatting constants.
const (
	emDash       = "—"
	enDash       = "–"
	figureDash   = "‒"
	ellipsis     = "..."
	ellipsisChar = "…"
)

// blockElements end a sentence-level unit when closed.
var blockElements = map[string]struct{}{
	"p": {}, "div": {}, "br": {}, "li": {}, "h1": {}, "h2": {}, "h3": {},
	"h4": {}, "h5": {}, "h6": {}, "blockquote": {}, "section": {}, "article": {},
	"tr": {}, "hr": {},
}

// skippedElements never contribute narration.
var skippedElements = map[string]struct{}{
	"script": {}, "style": {}, "head": {}, "title": {}, "noscript": {}, "template": {},
}

// Preparer normalizes chapter content for speech synthesis.
type Preparer struct {
	whitespacePattern    *regexp.Regexp
	blankLinePattern     *regexp.Regexp
	abbreviationReplacer *strings.Replacer
	punctuationReplacer  *strings.Replacer
}

// NewPreparer creates a Preparer with compiled patterns and replacers.
func NewPreparer() *Preparer {
	abbreviations := []string{
		"Mr. ", "Mister ",
		"Mrs. ", "Misses ",
		"Dr. ", "Doctor ",
		"St. ", "Saint ",
		"Prof. ", "Professor ",
		"Capt. ", "Captain ",
		"Sgt. ", "Sergeant ",
		"Lt. ", "Lieutenant ",
	}

	return &Preparer{
		whitespacePattern:    regexp.MustCompile(whitespaceRegexPattern),
		blankLinePattern:     regexp.MustCompile(`\n\s*\n+`),
		abbreviationReplacer: strings.NewReplacer(abbreviations...),
		punctuationReplacer: strings.NewReplacer(
			emDash, "-",
			enDash, "-",
			figureDash, "-",
			ellipsisChar, ellipsis,
			"“", `"`, "”", `"`,
			"‘", "'", "’", "'",
			"\u00a0", " ",
		),
	}
}

// Prepare strips markup from content and normalizes it for narration.
// Paragraph breaks are kept as single newlines.
func (p *Preparer) Prepare(content string) string {
	if strings.TrimSpace(content) == "" {
		return ""
	}

	plain := stripMarkup(content)
	plain = norm.NFC.String(plain)
	plain = p.punctuationReplacer.Replace(plain)
	plain = p.abbreviationReplacer.Replace(plain)

	lines := strings.Split(p.blankLinePattern.ReplaceAllString(plain, "\n"), "\n")
	kept := lines[:0]

	for _, line := range lines {
		line = strings.TrimSpace(p.whitespacePattern.ReplaceAllString(line, " "))
		if line != "" {
			kept = append(kept, line)
		}
	}

	return strings.Join(kept, "\n")
}

// Truncate shortens text to at most maxRunes, preferring to cut after the
// last sentence end, then the last space. The flag reports whether it cut.
func Truncate(text string, maxRunes int) (string, bool) {
	if utf8.RuneCountInString(text) <= maxRunes {
		return text, false
	}

	runes := []rune(text)[:maxRunes]

	for i := len(runes) - 1; i > maxRunes/2; i-- {
		switch runes[i] {
		case '.', '!', '?':
			return string(runes[:i+1]), true
		}
	}

	for i := len(runes) - 1; i > 0; i-- {
		if unicode.IsSpace(runes[i]) {
			return strings.TrimSpace(string(runes[:i])), true
		}
	}

	return string(runes), true
}

func stripMarkup(content string) string {
	if !strings.ContainsAny(content, "<&") {
		return content
	}

	var (
		out       strings.Builder
		skipDepth int
	)

	tokenizer := html.NewTokenizer(strings.NewReader(content))

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return out.String()
		case html.TextToken:
			if skipDepth == 0 {
				out.Write(tokenizer.Text())
			}
		case html.StartTagToken:
			name, _ := tokenizer.TagName()
			if _, ok := skippedElements[string(name)]; ok {
				skipDepth++
			}

			if string(name) == "br" {
				out.WriteString("\n")
			}
		case html.EndTagToken:
			name, _ := tokenizer.TagName()
			if _, ok := skippedElements[string(name)]; ok && skipDepth > 0 {
				skipDepth--
			}

			if _, ok := blockElements[string(name)]; ok {
				out.WriteString("\n\n")
			}
		case html.SelfClosingTagToken:
			name, _ := tokenizer.TagName()
			if _, ok := blockElements[string(name)]; ok {
				out.WriteString("\n")
			}
		case html.CommentToken, html.DoctypeToken:
		}
	}
}
