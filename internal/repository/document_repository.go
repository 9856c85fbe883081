package repository

import (
	"context"

	"lumifax/internal/models"

	"github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type DocumentRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewDocumentRepository(db *pgxpool.Pool, logger *zap.Logger) *DocumentRepository {
	return &DocumentRepository{
		db:     db,
		logger: logger,
	}
}

func (r *DocumentRepository) Create(ctx context.Context, doc *models.Document) error {
	query := squirrel.Insert("documents").
		Columns("id", "session_id", "file_name", "model_id", "page_count", "fields", "upload_ms", "analysis_ms", "created_at").
		Values(doc.ID, doc.SessionID, doc.FileName, doc.ModelID, doc.PageCount, doc.Fields, doc.UploadMS, doc.AnalysisMS, doc.CreatedAt).
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return err
	}

	_, err = r.db.Exec(ctx, sql, args...)
	return err
}

func (r *DocumentRepository) ListBySessionID(ctx context.Context, sessionID string) ([]*models.Document, error) {
	query := squirrel.Select("id", "session_id", "file_name", "model_id", "page_count", "fields", "upload_ms", "analysis_ms", "created_at").
		From("documents").
		Where(squirrel.Eq{"session_id": sessionID}).
		OrderBy("created_at ASC").
		PlaceholderFormat(squirrel.Dollar)

	sql, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var documents []*models.Document
	for rows.Next() {
		var doc models.Document
		if err := rows.Scan(
			&doc.ID, &doc.SessionID, &doc.FileName, &doc.ModelID, &doc.PageCount, &doc.Fields, &doc.UploadMS, &doc.AnalysisMS, &doc.CreatedAt,
		); err != nil {
			return nil, err
		}
		documents = append(documents, &doc)
	}

	return documents, rows.Err()
}
