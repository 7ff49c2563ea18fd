package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cloo-solutions/vectorgate/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// VectorRecordRepository persists embedded chunks and runs similarity search
// over them.
type VectorRecordRepository struct {
	db dbtx
}

func NewVectorRecordRepository(pool *pgxpool.Pool) *VectorRecordRepository {
	return &VectorRecordRepository{db: pool}
}

func (r *VectorRecordRepository) InsertBatch(ctx context.Context, records []domain.VectorRecord) error {
	for _, rec := range records {
		createdAt := rec.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		extra, err := marshalExtra(rec.Metadata.Extra)
		if err != nil {
			return fmt.Errorf("marshal extra for record %s: %w", rec.ID, err)
		}
		_, err = r.db.Exec(ctx,
			`INSERT INTO vector_records
				(id, source_document_id, owner_user_id, team_id, knowledge_base_id, chunk_index, content, embedding, extra, created_at)
			 VALUES
				($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			rec.ID,
			rec.Metadata.SourceDocumentID,
			rec.Metadata.OwnerUserID,
			rec.Metadata.TeamID,
			rec.Metadata.KnowledgeBaseID,
			rec.Metadata.ChunkIndex,
			rec.Text,
			pgvector.NewVector(rec.Embedding),
			extra,
			createdAt,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *VectorRecordRepository) DeleteBySourceDocument(ctx context.Context, sourceDocumentID string) (int64, error) {
	cmdTag, err := r.db.Exec(ctx,
		`DELETE FROM vector_records WHERE source_document_id = $1`,
		sourceDocumentID,
	)
	if err != nil {
		return 0, err
	}
	return cmdTag.RowsAffected(), nil
}

func (r *VectorRecordRepository) DeleteByKnowledgeBase(ctx context.Context, kbID string) (int64, error) {
	cmdTag, err := r.db.Exec(ctx,
		`DELETE FROM vector_records WHERE knowledge_base_id = $1`,
		kbID,
	)
	if err != nil {
		return 0, err
	}
	return cmdTag.RowsAffected(), nil
}

// SearchByEmbedding returns the closest records by cosine distance, scored
// as 1/(1+distance) so higher means closer.
func (r *VectorRecordRepository) SearchByEmbedding(ctx context.Context, embedding []float32, limit int) ([]domain.Candidate, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.Query(ctx,
		`SELECT id, source_document_id, owner_user_id, team_id, knowledge_base_id, chunk_index, content, extra,
		        1.0 / (1.0 + (embedding <=> $1)) AS score
		 FROM vector_records
		 ORDER BY score DESC
		 LIMIT $2`,
		pgvector.NewVector(embedding), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.Candidate, 0, limit)
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

func scanCandidate(rows pgx.Rows) (domain.Candidate, error) {
	var c domain.Candidate
	var teamID, kbID pgtype.Text
	var extra []byte
	if err := rows.Scan(
		&c.ID,
		&c.Metadata.SourceDocumentID,
		&c.Metadata.OwnerUserID,
		&teamID,
		&kbID,
		&c.Metadata.ChunkIndex,
		&c.Text,
		&extra,
		&c.Score,
	); err != nil {
		return domain.Candidate{}, err
	}
	if teamID.Valid {
		c.Metadata.TeamID = &teamID.String
	}
	if kbID.Valid {
		c.Metadata.KnowledgeBaseID = &kbID.String
	}
	if len(extra) > 0 {
		if err := json.Unmarshal(extra, &c.Metadata.Extra); err != nil {
			return domain.Candidate{}, fmt.Errorf("unmarshal extra for record %s: %w", c.ID, err)
		}
	}
	return c, nil
}

func marshalExtra(extra map[string]string) ([]byte, error) {
	if len(extra) == 0 {
		return nil, nil
	}
	return json.Marshal(extra)
}
