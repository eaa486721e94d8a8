package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/screenhire/screener/internal/domain"
)

// DocumentRepo persists extracted candidate documents.
type DocumentRepo struct{ Pool PgxPool }

// NewDocumentRepo constructs a DocumentRepo with the given pool.
func NewDocumentRepo(p PgxPool) *DocumentRepo { return &DocumentRepo{Pool: p} }

// Create stores a document and returns its id.
func (r *DocumentRepo) Create(ctx context.Context, d domain.Document) (string, error) {
	tracer := otel.Tracer("repo.documents")
	ctx, span := tracer.Start(ctx, "documents.Create")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.sql.table", "documents"),
	)
	q := `INSERT INTO documents (id, type, text, filename, mime, size, created_at) VALUES ($1,$2,$3,$4,$5,$6,$7)`
	_, err := r.Pool.Exec(ctx, q, d.ID, d.Type, d.Text, d.Filename, d.MIME, d.Size, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("op=document.create: %w", err)
	}
	return d.ID, nil
}

// Get loads a document by id.
func (r *DocumentRepo) Get(ctx context.Context, id string) (domain.Document, error) {
	tracer := otel.Tracer("repo.documents")
	ctx, span := tracer.Start(ctx, "documents.Get")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.sql.table", "documents"),
	)
	q := `SELECT id, type, text, filename, mime, size, created_at FROM documents WHERE id=$1`
	row := r.Pool.QueryRow(ctx, q, id)
	var d domain.Document
	if err := row.Scan(&d.ID, &d.Type, &d.Text, &d.Filename, &d.MIME, &d.Size, &d.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Document{}, fmt.Errorf("op=document.get: %w", domain.ErrNotFound)
		}
		return domain.Document{}, fmt.Errorf("op=document.get: %w", err)
	}
	return d, nil
}
