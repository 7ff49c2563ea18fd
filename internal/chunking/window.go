package chunking

import (
	"fmt"
	"strings"

	"github.com/cloo-solutions/vectorgate/internal/domain"
)

const (
	defaultChunkSize    = 1000
	defaultChunkOverlap = 200
)

// windowStrategy produces fixed-size rune windows with overlap. Each window
// advances by size-overlap, so consecutive chunks share their boundary text.
type windowStrategy struct {
	size    int
	overlap int
}

func newWindowStrategy(cfg Config) (*windowStrategy, error) {
	size := defaultChunkSize
	overlap := defaultChunkOverlap
	if v, ok := cfg["chunk_size"]; ok {
		size = v
	}
	if v, ok := cfg["chunk_overlap"]; ok {
		overlap = v
	}

	if size <= 0 {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeConfiguration,
			"chunk_size must be positive", domain.ErrInvalidChunkConfig)
	}
	if overlap < 0 || overlap >= size {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeConfiguration,
			fmt.Sprintf("chunk_overlap must be in [0, chunk_size): got %d for chunk_size %d", overlap, size),
			domain.ErrInvalidChunkConfig)
	}

	return &windowStrategy{size: size, overlap: overlap}, nil
}

func (s *windowStrategy) Split(doc Document) ([]domain.Chunk, error) {
	chunks := s.split(doc.Text, nil, 0)
	return chunks, nil
}

// split windows text into chunks starting at the given index, attaching
// extra metadata to every chunk. Shared with the section strategy's
// fallback path.
func (s *windowStrategy) split(text string, extra map[string]string, startIndex int) []domain.Chunk {
	clean := strings.TrimSpace(text)
	if clean == "" {
		return nil
	}

	runes := []rune(clean)
	step := s.size - s.overlap

	chunks := make([]domain.Chunk, 0, (len(runes)+step-1)/step)
	index := startIndex
	for start := 0; start < len(runes); start += step {
		end := start + s.size
		if end > len(runes) {
			end = len(runes)
		}

		chunks = append(chunks, domain.Chunk{
			Text:  string(runes[start:end]),
			Index: index,
			Size:  end - start,
			Extra: extra,
		})
		index++

		if end >= len(runes) {
			break
		}
	}

	return chunks
}
