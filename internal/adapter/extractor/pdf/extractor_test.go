package pdf

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/screenhire/screener/internal/domain"
)

func TestExtractPlainText(t *testing.T) {
	e := New()
	got, err := e.Extract(context.Background(), "cv.txt", []byte("Jane Doe\n\nBackend engineer,  5 years Go.\n"))
	require.NoError(t, err)
	require.Equal(t, "Jane Doe\n\nBackend engineer, 5 years Go.", got)
}

func TestExtractEmptyPayload(t *testing.T) {
	e := New()
	_, err := e.Extract(context.Background(), "cv.pdf", nil)
	require.ErrorIs(t, err, domain.ErrExtraction)
}

func TestExtractGarbagePDF(t *testing.T) {
	e := New()
	_, err := e.Extract(context.Background(), "cv.pdf", []byte("%PDF-1.4 not really a pdf"))
	require.ErrorIs(t, err, domain.ErrExtraction)
}

func TestExtractUnsupportedType(t *testing.T) {
	e := New()
	// PNG magic bytes
	_, err := e.Extract(context.Background(), "cv.png", []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A})
	require.ErrorIs(t, err, domain.ErrExtraction)
}

func TestExtractCancelledContext(t *testing.T) {
	e := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.Extract(ctx, "cv.txt", []byte("hello"))
	require.True(t, errors.Is(err, context.Canceled))
}
