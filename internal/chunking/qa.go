package chunking

import (
	"strings"

	"github.com/cloo-solutions/vectorgate/internal/domain"
)

var questionMarkers = []string{"Q:", "Question:"}

// qaStrategy splits text on detected question/answer boundary markers. Each
// question together with its answer becomes exactly one chunk. Text without
// any markers stays a single chunk.
type qaStrategy struct{}

func (s *qaStrategy) Split(doc Document) ([]domain.Chunk, error) {
	lines := strings.Split(doc.Text, "\n")

	var pairs []string
	var current []string

	flush := func() {
		pair := strings.TrimSpace(strings.Join(current, "\n"))
		if pair != "" {
			pairs = append(pairs, pair)
		}
		current = current[:0]
	}

	for _, line := range lines {
		if isQuestionLine(line) {
			flush()
		}
		current = append(current, line)
	}
	flush()

	if len(pairs) == 0 {
		clean := strings.TrimSpace(doc.Text)
		if clean == "" {
			return nil, nil
		}
		pairs = []string{clean}
	}

	chunks := make([]domain.Chunk, 0, len(pairs))
	for i, pair := range pairs {
		chunks = append(chunks, domain.Chunk{
			Text:  pair,
			Index: i,
			Size:  len([]rune(pair)),
		})
	}
	return chunks, nil
}

func isQuestionLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	for _, marker := range questionMarkers {
		if strings.HasPrefix(trimmed, marker) {
			return true
		}
	}
	return false
}
