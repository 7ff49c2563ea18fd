package domain

import "time"

// Metadata field names persisted with every vector record. These are the
// fields access filters are evaluated against; losing one at ingestion time
// silently breaks access control.
const (
	FieldSourceDocumentID = "source_document_id"
	FieldOwnerUserID      = "owner_user_id"
	FieldTeamID           = "team_id"
	FieldKnowledgeBaseID  = "knowledge_base_id"
	FieldChunkIndex       = "chunk_index"
)

// Chunk is a contiguous span of extracted document text produced by a
// chunking strategy. Immutable once created.
type Chunk struct {
	Text  string
	Index int
	Size  int
	// Extra carries strategy-specific metadata (heading, slide number, ...).
	// It never overwrites the required record fields.
	Extra map[string]string
}

// ChunkMetadata is the typed metadata record attached to every vector
// record. It must be sufficient to reconstruct an RBAC decision without a
// secondary lookup.
type ChunkMetadata struct {
	SourceDocumentID string            `json:"source_document_id"`
	OwnerUserID      string            `json:"owner_user_id"`
	TeamID           *string           `json:"team_id"`
	KnowledgeBaseID  *string           `json:"knowledge_base_id"`
	ChunkIndex       int               `json:"chunk_index"`
	Extra            map[string]string `json:"extra,omitempty"`
}

// Field returns the metadata value for the given field name. The second
// return is false when the field is absent (nil team/kb, unknown name).
// Filter evaluation treats absent fields as non-matching.
func (m ChunkMetadata) Field(name string) (string, bool) {
	switch name {
	case FieldSourceDocumentID:
		return m.SourceDocumentID, m.SourceDocumentID != ""
	case FieldOwnerUserID:
		return m.OwnerUserID, m.OwnerUserID != ""
	case FieldTeamID:
		if m.TeamID == nil {
			return "", false
		}
		return *m.TeamID, true
	case FieldKnowledgeBaseID:
		if m.KnowledgeBaseID == nil {
			return "", false
		}
		return *m.KnowledgeBaseID, true
	}
	if m.Extra != nil {
		v, ok := m.Extra[name]
		return v, ok
	}
	return "", false
}

// VectorRecord is the persisted unit in the vector store.
type VectorRecord struct {
	ID        string
	Embedding []float32
	Text      string
	Metadata  ChunkMetadata
	CreatedAt time.Time
}

// Candidate is a similarity-search hit: a record plus its score. Relative
// ordering of candidates from the base retriever is preserved through
// access filtering.
type Candidate struct {
	ID       string        `json:"id"`
	Text     string        `json:"text"`
	Score    float64       `json:"score"`
	Metadata ChunkMetadata `json:"metadata"`
}
