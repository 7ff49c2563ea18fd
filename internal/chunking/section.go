package chunking

import (
	"regexp"
	"strings"

	"github.com/cloo-solutions/vectorgate/internal/domain"
)

// sectionHeading matches markdown headings and the numbered/legal heading
// styles found in papers and legislation ("3.", "3.1", "Section 4",
// "Article 12", "§ 7").
var sectionHeading = regexp.MustCompile(`^(#{1,6}\s+.+|\d+(\.\d+)*\.?\s+\S.*|(Section|Article|§)\s+\d+.*)$`)

// sectionStrategy splits on section/heading boundaries, keeping one chunk
// per section where sections fit the window size. Oversized sections and
// fully unstructured text fall back to the default window behavior.
type sectionStrategy struct {
	fallback *windowStrategy
}

type section struct {
	heading string
	body    []string
}

func (s *sectionStrategy) Split(doc Document) ([]domain.Chunk, error) {
	sections := splitSections(doc.Text)
	if len(sections) == 0 {
		return s.fallback.Split(doc)
	}

	var chunks []domain.Chunk
	for _, sec := range sections {
		text := strings.TrimSpace(strings.Join(sec.body, "\n"))
		if text == "" {
			continue
		}

		var extra map[string]string
		if sec.heading != "" {
			extra = map[string]string{"heading": sec.heading}
		}

		if len([]rune(text)) <= s.fallback.size {
			chunks = append(chunks, domain.Chunk{
				Text:  text,
				Index: len(chunks),
				Size:  len([]rune(text)),
				Extra: extra,
			})
			continue
		}

		chunks = append(chunks, s.fallback.split(text, extra, len(chunks))...)
	}
	return chunks, nil
}

// splitSections groups lines under their nearest preceding heading. Returns
// nil when the text has no headings at all, signalling the window fallback.
func splitSections(text string) []section {
	lines := strings.Split(text, "\n")

	var sections []section
	current := section{}
	sawHeading := false

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed != "" && sectionHeading.MatchString(trimmed) {
			if len(current.body) > 0 {
				sections = append(sections, current)
			}
			heading := strings.TrimLeft(trimmed, "# ")
			current = section{heading: heading, body: []string{trimmed}}
			sawHeading = true
			continue
		}
		current.body = append(current.body, line)
	}
	if len(current.body) > 0 {
		sections = append(sections, current)
	}

	if !sawHeading {
		return nil
	}
	return sections
}
