package repository

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"github.com/cloo-solutions/vectorgate/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DocumentRepository tracks ingestion requests and their lifecycle. It also
// acts as the progress sink for the ingestion service.
type DocumentRepository struct {
	db dbtx
}

func NewDocumentRepository(pool *pgxpool.Pool) *DocumentRepository {
	return &DocumentRepository{db: pool}
}

// Upsert records an ingestion request. Re-submitting the same document ID
// resets it to pending so the worker picks it up again.
func (r *DocumentRepository) Upsert(ctx context.Context, doc *domain.Document) error {
	cfg, err := marshalStrategyConfig(doc.StrategyConfig)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx,
		`INSERT INTO documents
			(id, source_location, owner_user_id, team_id, knowledge_base_id, strategy, strategy_config,
			 embedding_model, status, percent, processed_chunks, total_chunks, error_message, retries, created_at, updated_at)
		 VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		 ON CONFLICT (id) DO UPDATE SET
			source_location = EXCLUDED.source_location,
			owner_user_id = EXCLUDED.owner_user_id,
			team_id = EXCLUDED.team_id,
			knowledge_base_id = EXCLUDED.knowledge_base_id,
			strategy = EXCLUDED.strategy,
			strategy_config = EXCLUDED.strategy_config,
			embedding_model = EXCLUDED.embedding_model,
			status = EXCLUDED.status,
			percent = 0,
			processed_chunks = 0,
			total_chunks = 0,
			error_message = NULL,
			retries = 0,
			updated_at = EXCLUDED.updated_at`,
		doc.ID,
		doc.SourceLocation,
		doc.OwnerUserID,
		doc.TeamID,
		doc.KnowledgeBaseID,
		doc.Strategy,
		cfg,
		doc.EmbeddingModel,
		doc.Status,
		doc.Percent,
		doc.ProcessedChunks,
		doc.TotalChunks,
		nullableString(doc.ErrorMessage),
		doc.Retries,
		doc.CreatedAt,
		doc.UpdatedAt,
	)
	return err
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.QueryRow(ctx,
		`SELECT id, source_location, owner_user_id, team_id, knowledge_base_id, strategy, strategy_config,
		        embedding_model, status, percent, processed_chunks, total_chunks, error_message, retries, created_at, updated_at
		 FROM documents WHERE id = $1`,
		id,
	)
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrDocumentNotFound
		}
		return nil, err
	}
	return doc, nil
}

// ClaimPending atomically moves up to limit pending documents to processing
// and returns them. Safe to call from multiple workers.
func (r *DocumentRepository) ClaimPending(ctx context.Context, limit int) ([]*domain.Document, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := r.db.Query(ctx,
		`WITH cte AS (
			 SELECT id
			 FROM documents
			 WHERE status = $1
			 ORDER BY created_at ASC
			 FOR UPDATE SKIP LOCKED
			 LIMIT $2
		 )
		 UPDATE documents
		 SET status = $3,
		     error_message = NULL,
		     updated_at = NOW()
		 FROM cte
		 WHERE documents.id = cte.id
		 RETURNING documents.id, documents.source_location, documents.owner_user_id, documents.team_id,
		           documents.knowledge_base_id, documents.strategy, documents.strategy_config, documents.embedding_model,
		           documents.status, documents.percent, documents.processed_chunks, documents.total_chunks,
		           documents.error_message, documents.retries, documents.created_at, documents.updated_at`,
		domain.DocumentStatusPending, limit, domain.DocumentStatusProcessing,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*domain.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (r *DocumentRepository) UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMsg string) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE documents SET status = $1, error_message = $2, updated_at = NOW() WHERE id = $3`,
		status, nullableString(errMsg), id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

func (r *DocumentRepository) IncrementRetries(ctx context.Context, id string) error {
	cmdTag, err := r.db.Exec(ctx,
		`UPDATE documents SET retries = retries + 1, updated_at = NOW() WHERE id = $1`,
		id,
	)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

// ReportProgress implements service.ProgressSink. Progress updates are best
// effort; a failed write is logged and dropped so ingestion keeps going.
func (r *DocumentRepository) ReportProgress(ctx context.Context, sourceDocumentID string, percent, processed, total int, errMsg string) {
	_, err := r.db.Exec(ctx,
		`UPDATE documents
		 SET percent = $1, processed_chunks = $2, total_chunks = $3, error_message = $4, updated_at = NOW()
		 WHERE id = $5`,
		percent, processed, total, nullableString(errMsg), sourceDocumentID,
	)
	if err != nil {
		log.Printf("document progress update failed for %s: %v", sourceDocumentID, err)
	}
}

func scanDocument(row pgx.Row) (*domain.Document, error) {
	var doc domain.Document
	var teamID, kbID, errMsg pgtype.Text
	var cfg []byte
	if err := row.Scan(
		&doc.ID,
		&doc.SourceLocation,
		&doc.OwnerUserID,
		&teamID,
		&kbID,
		&doc.Strategy,
		&cfg,
		&doc.EmbeddingModel,
		&doc.Status,
		&doc.Percent,
		&doc.ProcessedChunks,
		&doc.TotalChunks,
		&errMsg,
		&doc.Retries,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if teamID.Valid {
		doc.TeamID = &teamID.String
	}
	if kbID.Valid {
		doc.KnowledgeBaseID = &kbID.String
	}
	if errMsg.Valid {
		doc.ErrorMessage = errMsg.String
	}
	if len(cfg) > 0 {
		if err := json.Unmarshal(cfg, &doc.StrategyConfig); err != nil {
			return nil, err
		}
	}
	return &doc, nil
}

func marshalStrategyConfig(cfg map[string]int) ([]byte, error) {
	if len(cfg) == 0 {
		return nil, nil
	}
	return json.Marshal(cfg)
}
