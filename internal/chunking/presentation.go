package chunking

import (
	"strconv"
	"strings"

	"github.com/cloo-solutions/vectorgate/internal/domain"
)

// presentationStrategy treats each input unit (one slide) as exactly one
// chunk. A document without units becomes a single chunk.
type presentationStrategy struct{}

func (s *presentationStrategy) Split(doc Document) ([]domain.Chunk, error) {
	units := doc.Units
	if len(units) == 0 {
		units = []string{doc.Text}
	}

	chunks := make([]domain.Chunk, 0, len(units))
	for _, unit := range units {
		clean := strings.TrimSpace(unit)
		if clean == "" {
			continue
		}
		index := len(chunks)
		chunks = append(chunks, domain.Chunk{
			Text:  clean,
			Index: index,
			Size:  len([]rune(clean)),
			Extra: map[string]string{"slide_number": strconv.Itoa(index + 1)},
		})
	}
	return chunks, nil
}
