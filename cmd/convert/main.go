package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"

	"cloud.google.com/go/storage"

	"epubflow/internal/conversion"
	"epubflow/internal/gcp"
)

// convert submits a local PDF for conversion and follows the job until it
// reaches a terminal status, printing the download URL on success.
func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <file.pdf>\n", os.Args[0])
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1]); err != nil {
		slog.Error("Conversion did not complete", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, path string) error {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	bucket := gcp.GetEnv("UPLOAD_BUCKET", "")
	if projectID == "" || bucket == "" {
		return fmt.Errorf("PROJECT_ID and UPLOAD_BUCKET environment variables must be set")
	}
	collection := gcp.GetEnv("FIRESTORE_COLLECTION", "epub_conversions")

	firestoreClient, err := gcp.NewFirestoreClient(ctx, projectID)
	if err != nil {
		return err
	}
	defer firestoreClient.Close()

	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("failed to create Storage client: %w", err)
	}
	defer storageClient.Close()

	file, err := openFile(path)
	if err != nil {
		return err
	}
	defer file.close()

	updates := make(chan conversion.ViewState, 64)
	failures := make(chan error, 1)

	controller := conversion.NewController(
		gcp.NewJobStore(firestoreClient, collection),
		gcp.NewBlobUploader(storageClient, bucket),
	)
	controller.OnChange(func(v conversion.ViewState) { updates <- v })
	controller.OnFailure(func(err error) { failures <- err })

	jobID, err := controller.Submit(ctx, file.File)
	if err != nil {
		if errors.Is(err, conversion.ErrInvalidFileType) {
			return fmt.Errorf("%s is not a PDF file", path)
		}
		return err
	}
	slog.Info("Job submitted", "jobId", jobID, "file", file.Name)

	for {
		select {
		case v := <-updates:
			slog.Info("Progress", "phase", v.Phase, "progress", fmt.Sprintf("%.0f%%", v.Progress))
			switch v.Phase {
			case conversion.PhaseCompleted:
				if v.DownloadURL == "" {
					slog.Warn("Job completed but the download URL is not available yet", "jobId", jobID)
					return nil
				}
				fmt.Println(v.DownloadURL)
				return nil
			case conversion.PhaseIdle:
				// Failure path: the matching notice follows the idle view.
				return <-failures
			}
		case <-ctx.Done():
			controller.Reset()
			return ctx.Err()
		}
	}
}

type localFile struct {
	conversion.File
	f *os.File
}

func (l *localFile) close() { l.f.Close() }

// openFile opens path and sniffs its MIME type from the leading bytes, the
// same signal a browser file picker reports.
func openFile(path string) (*localFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	header := make([]byte, 512)
	n, err := io.ReadFull(f, header)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		f.Close()
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	return &localFile{
		File: conversion.File{
			Name:        info.Name(),
			ContentType: http.DetectContentType(header[:n]),
			Size:        info.Size(),
			Content:     io.MultiReader(bytes.NewReader(header[:n]), f),
		},
		f: f,
	}, nil
}
