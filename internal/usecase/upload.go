// Package usecase contains the application services behind the HTTP
// handlers: document ingestion, job submission and result assembly.
package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/screenhire/screener/internal/domain"
)

// UploadedFile carries one multipart upload into the service layer.
type UploadedFile struct {
	Filename string
	MIME     string
	Data     []byte
}

// UploadService extracts text from uploaded documents and persists them.
type UploadService struct {
	Docs    domain.DocumentRepository
	Extract domain.Extractor
}

// NewUploadService constructs an UploadService.
func NewUploadService(docs domain.DocumentRepository, ex domain.Extractor) UploadService {
	return UploadService{Docs: docs, Extract: ex}
}

// Ingest extracts both documents and stores them, returning their ids.
// Extraction failures surface as domain.ErrExtraction.
func (s UploadService) Ingest(ctx context.Context, cv, project UploadedFile) (string, string, error) {
	cvID, err := s.ingestOne(ctx, domain.DocumentTypeCV, cv)
	if err != nil {
		return "", "", err
	}
	projectID, err := s.ingestOne(ctx, domain.DocumentTypeProject, project)
	if err != nil {
		return "", "", err
	}
	return cvID, projectID, nil
}

func (s UploadService) ingestOne(ctx context.Context, docType string, f UploadedFile) (string, error) {
	text, err := s.Extract.Extract(ctx, f.Filename, f.Data)
	if err != nil {
		return "", fmt.Errorf("op=upload.Ingest type=%s: %w", docType, err)
	}
	id, err := s.Docs.Create(ctx, domain.Document{
		ID:        ulid.Make().String(),
		Type:      docType,
		Text:      text,
		Filename:  f.Filename,
		MIME:      f.MIME,
		Size:      int64(len(f.Data)),
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("op=upload.Ingest type=%s: %w", docType, err)
	}
	return id, nil
}
