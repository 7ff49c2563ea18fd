// Package chunking maps strategy identifiers to text-splitting algorithms
// used by the ingestion pipeline.
package chunking

import (
	"fmt"

	"github.com/cloo-solutions/vectorgate/internal/domain"
)

// Strategy identifiers accepted by Get.
const (
	StrategyDefault      = "default"
	StrategyQA           = "qa"
	StrategyPresentation = "presentation"
	StrategyPaper        = "paper"
	StrategyLegislation  = "legislation"
)

// Config carries strategy-specific integer settings from the ingestion
// request (chunk_size, chunk_overlap).
type Config map[string]int

// Document is one logical unit of parsed source content. Units are
// sub-divisions the parser already identified (pages, slides); when empty,
// Text is the only unit.
type Document struct {
	Text  string
	Units []string
}

// Strategy splits a document into chunks. Chunk indexes are 0-based and
// assigned at split time.
type Strategy interface {
	Split(doc Document) ([]domain.Chunk, error)
}

// Get resolves a strategy identifier and its config into a Strategy.
// Unknown identifiers fail with a configuration error.
func Get(strategyID string, cfg Config) (Strategy, error) {
	switch strategyID {
	case StrategyDefault, "":
		return newWindowStrategy(cfg)
	case StrategyQA:
		return &qaStrategy{}, nil
	case StrategyPresentation:
		return &presentationStrategy{}, nil
	case StrategyPaper, StrategyLegislation:
		window, err := newWindowStrategy(cfg)
		if err != nil {
			return nil, err
		}
		return &sectionStrategy{fallback: window}, nil
	default:
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeConfiguration,
			fmt.Sprintf("unknown chunking strategy %q", strategyID), domain.ErrUnknownStrategy)
	}
}
