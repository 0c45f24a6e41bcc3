package gcp

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"

	"epubflow/internal/conversion"
	"epubflow/internal/models"
)

// NewFirestoreClient creates and returns a new Firestore client for the given
// project ID. It centralizes client creation for all services.
func NewFirestoreClient(ctx context.Context, projectID string) (*firestore.Client, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID must be provided to create a firestore client")
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	return client, nil
}

// JobStore persists conversion-job records in a Firestore collection and
// serves real-time watches over them. After creation a record is written only
// by the intake function and the conversion worker; clients observe it
// through WatchJob.
type JobStore struct {
	client     *firestore.Client
	collection string
}

// NewJobStore returns a JobStore over the given collection.
func NewJobStore(client *firestore.Client, collection string) *JobStore {
	return &JobStore{client: client, collection: collection}
}

// CreateJob writes the initial job record. The document ID is the job ID, so
// creation fails rather than silently overwriting an existing job.
func (s *JobStore) CreateJob(ctx context.Context, jobID string, job models.ConversionJob) error {
	if _, err := s.client.Collection(s.collection).Doc(jobID).Create(ctx, job); err != nil {
		return fmt.Errorf("failed to create job document %s: %w", jobID, err)
	}
	return nil
}

// WatchJob opens a snapshot listener on the job's record. The returned
// watcher yields a ConversionJob per document change until ctx is canceled or
// Stop is called.
func (s *JobStore) WatchJob(ctx context.Context, jobID string) (conversion.JobWatcher, error) {
	snapshots := s.client.Collection(s.collection).Doc(jobID).Snapshots(ctx)
	return &jobWatcher{ctx: ctx, snapshots: snapshots}, nil
}

type jobWatcher struct {
	ctx       context.Context
	snapshots *firestore.DocumentSnapshotIterator
}

func (w *jobWatcher) Next() (models.ConversionJob, error) {
	for {
		snap, err := w.snapshots.Next()
		if err != nil {
			if w.ctx.Err() != nil {
				return models.ConversionJob{}, context.Canceled
			}
			return models.ConversionJob{}, fmt.Errorf("job snapshot stream: %w", err)
		}
		if !snap.Exists() {
			// The record has not been written yet (or was deleted); keep
			// listening for the next snapshot.
			continue
		}
		var job models.ConversionJob
		if err := snap.DataTo(&job); err != nil {
			return models.ConversionJob{}, fmt.Errorf("failed to decode job document: %w", err)
		}
		return job, nil
	}
}

func (w *jobWatcher) Stop() {
	w.snapshots.Stop()
}
