package storage

import (
	"context"
	"fmt"
	"io"
	"path"

	"github.com/google/uuid"
)

// FileStore keeps uploaded import files and rendered reports
type FileStore interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Save(ctx context.Context, key string, body io.Reader, contentType string) error
}

// UploadKey is where the uploaded file of a run is stored
func UploadKey(sellerID int64, importID uuid.UUID, ext string) string {
	return path.Join("imports", fmt.Sprintf("%d", sellerID), importID.String(), "upload"+ext)
}

// ReportKey is where the rendered report of a run is stored
func ReportKey(sellerID int64, importID uuid.UUID) string {
	return path.Join("imports", fmt.Sprintf("%d", sellerID), importID.String(), "report.xlsx")
}
