// Package preprocess normalises corpus files before chunking. Paragraph
// breaks are preserved because the chunkers split on them.
package preprocess

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
)

var (
	reSpaces   = regexp.MustCompile(`[ \t\p{Zs}]+`)
	reNewlines = regexp.MustCompile(`\n{3,}`)

	typography = strings.NewReplacer(
		"ﬁ", "fi", "ﬂ", "fl",
		"—", "-", "–", "-",
		"“", `"`, "”", `"`, "‘", "'", "’", "'",
		"•", "-",
	)

	// site chrome that sneaks into exported HTML pages
	boilerplate = []string{
		"cookie policy", "all rights reserved", "subscribe to our newsletter", "skip to content",
	}
)

// Page is an HTML file reduced to markdown-like text.
type Page struct {
	Title string
	Text  string
}

// Markdown cleans a markdown corpus file.
func Markdown(raw string) string {
	return Clean(raw)
}

// HTML parses an HTML corpus file. Headings, paragraphs, list items, code
// blocks and tables each become one paragraph; repeated paragraphs and
// boilerplate lines are dropped.
func HTML(raw string) (Page, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return Page{}, fmt.Errorf("parse html: %w", err)
	}

	var blocks []string
	doc.Find("h1,h2,h3,h4,p,li,pre,table").Each(func(_ int, s *goquery.Selection) {
		if block := renderBlock(s); block != "" {
			blocks = append(blocks, block)
		}
	})

	text := Clean(strings.Join(blocks, "\n\n"))
	text = DedupeParagraphs(dropBoilerplate(text))
	return Page{
		Title: strings.TrimSpace(doc.Find("title").First().Text()),
		Text:  text,
	}, nil
}

func renderBlock(s *goquery.Selection) string {
	name := goquery.NodeName(s)
	if name == "table" {
		return renderTable(s)
	}
	text := strings.TrimSpace(s.Text())
	if text == "" {
		return ""
	}
	switch name {
	case "h1":
		return "# " + text
	case "h2":
		return "## " + text
	case "h3", "h4":
		return "### " + text
	case "li":
		return "- " + text
	case "pre":
		return "```\n" + text + "\n```"
	default:
		return text
	}
}

func renderTable(table *goquery.Selection) string {
	var rows []string
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		cells := tr.Find("th,td").Map(func(_ int, cell *goquery.Selection) string {
			return strings.TrimSpace(cell.Text())
		})
		if len(cells) > 0 {
			rows = append(rows, "| "+strings.Join(cells, " | ")+" |")
		}
	})
	return strings.Join(rows, "\n")
}

// Clean turns tabs and stray carriage returns into spaces, drops other
// control characters, normalises typography and collapses runs of spaces and
// blank lines.
func Clean(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.Map(func(r rune) rune {
		switch {
		case r == '\n':
			return r
		case unicode.IsSpace(r):
			return ' '
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, text)
	text = typography.Replace(text)
	text = reSpaces.ReplaceAllString(text, " ")
	text = reNewlines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// DedupeParagraphs keeps the first occurrence of each paragraph.
func DedupeParagraphs(text string) string {
	seen := make(map[string]struct{})
	var out []string
	for _, p := range strings.Split(text, "\n\n") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return strings.Join(out, "\n\n")
}

func dropBoilerplate(text string) string {
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		lower := strings.ToLower(line)
		noise := false
		for _, marker := range boilerplate {
			if strings.Contains(lower, marker) {
				noise = true
				break
			}
		}
		if !noise {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}
