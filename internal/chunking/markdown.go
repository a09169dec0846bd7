// Package chunking splits course documents into retrieval-sized passages.
package chunking

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var headerRegex = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)

// Section is a heading and the text under it.
type Section struct {
	Title   string
	Level   int
	Content string
}

// Text returns the section as a passage, heading included.
func (s Section) Text() string {
	if s.Title == "" {
		return s.Content
	}
	return s.Title + "\n\n" + s.Content
}

// Split divides markdown into sections at headings. Text before the first
// heading becomes an untitled section; plain text yields a single section.
func Split(content string) []Section {
	var sections []Section
	var current *Section
	var lines []string

	flush := func() {
		if current == nil {
			return
		}
		current.Content = strings.TrimSpace(strings.Join(lines, "\n"))
		if current.Content != "" {
			sections = append(sections, *current)
		}
	}

	for _, line := range strings.Split(content, "\n") {
		if m := headerRegex.FindStringSubmatch(line); m != nil {
			flush()
			current = &Section{Title: strings.TrimSpace(m[2]), Level: len(m[1])}
			lines = lines[:0]
			continue
		}
		if current == nil {
			if strings.TrimSpace(line) == "" {
				continue
			}
			current = &Section{}
		}
		lines = append(lines, line)
	}
	flush()
	return sections
}

// Chunk splits content into sections no longer than maxRunes characters,
// breaking oversized sections at paragraphs and then at sentence ends.
// maxRunes <= 0 disables size splitting.
func Chunk(content string, maxRunes int) []Section {
	sections := Split(content)
	if maxRunes <= 0 {
		return sections
	}

	var out []Section
	for _, s := range sections {
		if utf8.RuneCountInString(s.Content) <= maxRunes {
			out = append(out, s)
			continue
		}
		for _, part := range pack(paragraphs(s.Content, maxRunes), maxRunes, "\n\n") {
			out = append(out, Section{Title: s.Title, Level: s.Level, Content: part})
		}
	}
	return out
}

// paragraphs returns the non-empty paragraphs of content, with any paragraph
// longer than maxRunes broken into sentence-packed pieces.
func paragraphs(content string, maxRunes int) []string {
	var out []string
	for _, p := range strings.Split(content, "\n\n") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if utf8.RuneCountInString(p) <= maxRunes {
			out = append(out, p)
			continue
		}
		out = append(out, pack(sentences(p, maxRunes), maxRunes, "")...)
	}
	return out
}

// pack greedily joins pieces with sep while staying within maxRunes.
func pack(pieces []string, maxRunes int, sep string) []string {
	var out []string
	var cur strings.Builder
	curLen := 0
	sepLen := utf8.RuneCountInString(sep)
	for _, p := range pieces {
		n := utf8.RuneCountInString(p)
		if curLen > 0 && curLen+sepLen+n > maxRunes {
			out = append(out, cur.String())
			cur.Reset()
			curLen = 0
		}
		if curLen > 0 {
			cur.WriteString(sep)
			curLen += sepLen
		}
		cur.WriteString(p)
		curLen += n
	}
	if curLen > 0 {
		out = append(out, cur.String())
	}
	return out
}

var sentenceEnds = map[rune]bool{'。': true, '！': true, '？': true, '；': true, '.': true, '!': true, '?': true, '\n': true}

// sentences splits text after sentence-ending punctuation; runs still longer
// than maxRunes are cut hard.
func sentences(text string, maxRunes int) []string {
	var out []string
	var cur []rune
	for _, r := range text {
		cur = append(cur, r)
		if sentenceEnds[r] || len(cur) >= maxRunes {
			if s := strings.TrimSpace(string(cur)); s != "" {
				out = append(out, s)
			}
			cur = cur[:0]
		}
	}
	if s := strings.TrimSpace(string(cur)); s != "" {
		out = append(out, s)
	}
	return out
}
