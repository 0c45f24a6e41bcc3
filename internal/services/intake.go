package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"
	executions "cloud.google.com/go/workflows/executions/apiv1"
	"cloud.google.com/go/workflows/executions/apiv1/executionspb"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"epubflow/internal/gcp"
	"epubflow/internal/models"
)

// uploadPrefix is the bucket area watched for new source PDFs. Objects
// anywhere else are ignored.
const uploadPrefix = "pdf_uploads/"

// IntakeConfig holds configuration for the intake service.
type IntakeConfig struct {
	ProjectID        string
	CollectionName   string
	WorkflowID       string
	WorkflowLocation string
}

// IntakeFunction handles a finalized upload: it validates the PDF, moves the
// job record to processing, and hands the job off to the conversion workflow.
// The workflow (and the worker behind it) owns the job from there on.
type IntakeFunction struct {
	storageClient    *storage.Client
	firestoreClient  *firestore.Client
	executionsClient *executions.Client
	config           IntakeConfig
}

// GCSEvent is the payload of a GCS object-finalized event.
type GCSEvent struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}

// NewIntake creates a new IntakeFunction instance. Called by main.go.
func NewIntake(ctx context.Context) (*IntakeFunction, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}

	config := IntakeConfig{
		ProjectID:        projectID,
		CollectionName:   gcp.GetEnv("FIRESTORE_COLLECTION", "epub_conversions"),
		WorkflowLocation: gcp.GetEnv("WORKFLOW_LOCATION", "us-central1"),
		WorkflowID:       gcp.GetEnv("WORKFLOW_ID", "epub-conversion-pipeline"),
	}

	firestoreClient, err := gcp.NewFirestoreClient(ctx, config.ProjectID)
	if err != nil {
		return nil, err
	}
	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Storage client: %w", err)
	}
	executionsClient, err := executions.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Workflows Executions client: %w", err)
	}

	f := &IntakeFunction{
		firestoreClient:  firestoreClient,
		storageClient:    storageClient,
		executionsClient: executionsClient,
		config:           config,
	}
	slog.Info("Intake logic initialized.", "workflow", config.WorkflowID, "collection", config.CollectionName)
	return f, nil
}

// Process contains the core intake logic. It's called by the entry point in
// main.go for every finalized object in the bucket.
func (f *IntakeFunction) Process(ctx context.Context, e GCSEvent) error {
	jobID, ok := JobIDFromObject(e.Name)
	if !ok {
		slog.Info("Ignoring object outside the upload area.", "object", e.Name)
		return nil
	}
	logCtx := slog.With("jobId", jobID, "object", e.Name)
	logCtx.Info("Starting intake for uploaded PDF.")

	jobRef := f.firestoreClient.Collection(f.config.CollectionName).Doc(jobID)

	tempDir, err := os.MkdirTemp("", "epub-intake-*")
	if err != nil {
		return fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	sourcePdfPath := filepath.Join(tempDir, "source.pdf")
	if err := f.streamGCSObject(ctx, e.Bucket, e.Name, sourcePdfPath); err != nil {
		return f.failJob(ctx, jobRef, "failed to fetch uploaded PDF", err)
	}

	pageCount, err := validatePDF(sourcePdfPath)
	if err != nil {
		return f.failJob(ctx, jobRef, "uploaded file is not a usable PDF", err)
	}
	logCtx.Info("PDF validated.", "pageCount", pageCount)

	// Set with merge: the record normally exists (created by the submitting
	// client), but an object dropped straight into the bucket still gets a
	// tracked job.
	if _, err := jobRef.Set(ctx, map[string]interface{}{
		"status":    models.StatusProcessing,
		"progress":  5,
		"pageCount": pageCount,
	}, firestore.MergeAll); err != nil {
		return f.failJob(ctx, jobRef, "failed to update status to processing", err)
	}

	if err := f.triggerWorkflow(ctx, jobRef, models.WorkflowArgument{
		JobID:     jobID,
		Bucket:    e.Bucket,
		Object:    e.Name,
		PageCount: pageCount,
	}); err != nil {
		return err
	}

	logCtx.Info("Hand-off to conversion workflow complete.")
	return nil
}

// JobIDFromObject extracts the job ID from an upload object path, reporting
// whether the object belongs to the upload area at all.
func JobIDFromObject(name string) (string, bool) {
	if !strings.HasPrefix(name, uploadPrefix) || !strings.HasSuffix(name, ".pdf") {
		return "", false
	}
	stem := strings.TrimSuffix(strings.TrimPrefix(name, uploadPrefix), ".pdf")
	if stem == "" || strings.Contains(stem, "/") {
		return "", false
	}
	return stem, true
}

func (f *IntakeFunction) triggerWorkflow(ctx context.Context, jobRef *firestore.DocumentRef, arg models.WorkflowArgument) error {
	payloadBytes, err := json.Marshal(arg)
	if err != nil {
		return f.failJob(ctx, jobRef, "failed to marshal workflow argument", err)
	}
	req := &executionspb.CreateExecutionRequest{
		Parent: fmt.Sprintf("projects/%s/locations/%s/workflows/%s", f.config.ProjectID, f.config.WorkflowLocation, f.config.WorkflowID),
		Execution: &executionspb.Execution{
			Argument: string(payloadBytes),
		},
	}
	if _, err := f.executionsClient.CreateExecution(ctx, req); err != nil {
		return f.failJob(ctx, jobRef, "failed to trigger workflow execution", err)
	}
	return nil
}

// failJob marks the job record as failed so subscribed clients see the
// terminal error status, then returns the wrapped error to fail the
// invocation.
func (f *IntakeFunction) failJob(ctx context.Context, jobRef *firestore.DocumentRef, message string, originalErr error) error {
	fullError := fmt.Sprintf("%s: %v", message, originalErr)
	slog.Error("Intake failed for job.", "jobId", jobRef.ID, "error", fullError)
	if _, err := jobRef.Set(ctx, map[string]interface{}{
		"status": models.StatusError,
		"error":  fullError,
	}, firestore.MergeAll); err != nil {
		slog.Error("CRITICAL: Failed to update job status to error.", "jobId", jobRef.ID, "error", err)
	}
	return fmt.Errorf("%s", fullError)
}

func (f *IntakeFunction) streamGCSObject(ctx context.Context, bucket, object, destPath string) error {
	gcsReader, err := f.storageClient.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return fmt.Errorf("failed to get GCS object reader for gs://%s/%s: %w", bucket, object, err)
	}
	defer gcsReader.Close()
	localFile, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create temp file at %s: %w", destPath, err)
	}
	defer localFile.Close()
	if _, err := io.Copy(localFile, gcsReader); err != nil {
		return fmt.Errorf("failed to copy GCS object to local file: %w", err)
	}
	return nil
}

// validatePDF checks the uploaded file is a readable PDF and returns its page
// count. Relaxed validation mirrors what the conversion worker tolerates.
func validatePDF(path string) (int, error) {
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	if err := api.ValidateFile(path, cfg); err != nil {
		return 0, fmt.Errorf("PDF validation failed: %w", err)
	}
	pageCount, err := api.PageCountFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to get page count: %w", err)
	}
	return pageCount, nil
}
