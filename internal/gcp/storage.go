package gcp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

// GetEnv is a helper to read an environment variable or return a default value.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// uploadChunkSize keeps resumable-upload flushes small so progress reports
// stay granular. Must be a multiple of 256 KiB.
const uploadChunkSize = 256 * 1024

// UploadObjectName returns the object path for a job's source PDF. The intake
// function derives the job ID back out of this path.
func UploadObjectName(jobID string) string {
	return fmt.Sprintf("pdf_uploads/%s.pdf", jobID)
}

// BlobUploader streams source PDFs into the upload bucket using the resumable
// upload protocol, reporting progress per flushed chunk.
type BlobUploader struct {
	client *storage.Client
	bucket string
}

// NewBlobUploader returns a BlobUploader writing into bucket.
func NewBlobUploader(client *storage.Client, bucket string) *BlobUploader {
	return &BlobUploader{client: client, bucket: bucket}
}

// Upload writes src to the job's object. The object is written only if it
// doesn't already exist; a precondition failure means the bytes are already
// there, which is not a failure for an idempotent submission.
func (u *BlobUploader) Upload(ctx context.Context, jobID string, src io.Reader, size int64, progress func(transferred, total int64)) error {
	object := u.client.Bucket(u.bucket).Object(UploadObjectName(jobID)).If(storage.Conditions{DoesNotExist: true})

	writer := object.NewWriter(ctx)
	writer.ContentType = "application/pdf"
	writer.ChunkSize = uploadChunkSize
	if progress != nil {
		writer.ProgressFunc = func(transferred int64) {
			progress(transferred, size)
		}
	}

	if _, err := io.Copy(writer, src); err != nil {
		_ = writer.Close()
		return fmt.Errorf("failed to stream upload for job %s: %w", jobID, err)
	}
	if err := writer.Close(); err != nil {
		if gerr, ok := err.(*googleapi.Error); ok && gerr.Code == 412 {
			slog.Warn("Upload object already exists, continuing.", "jobId", jobID)
			return nil
		}
		return fmt.Errorf("failed to finalize upload for job %s: %w", jobID, err)
	}
	return nil
}
