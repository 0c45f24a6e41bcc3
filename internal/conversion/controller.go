package conversion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"epubflow/internal/models"
)

// PDFContentType is the only MIME type Submit accepts.
const PDFContentType = "application/pdf"

var (
	// ErrInvalidFileType is returned by Submit for non-PDF files. The view
	// state is left untouched.
	ErrInvalidFileType = errors.New("only PDF files can be converted")
	// ErrUploadFailed is surfaced when the blob upload fails. The job is
	// abandoned but the controller returns to idle, ready for a retry.
	ErrUploadFailed = errors.New("upload failed")
	// ErrConversionFailed is surfaced when the job record reports a terminal
	// error status.
	ErrConversionFailed = errors.New("conversion failed")
)

// File is one selected file to convert.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Content     io.Reader
}

// JobWatcher yields successive states of one job record. Next blocks until
// the record changes or the watch context ends.
type JobWatcher interface {
	Next() (models.ConversionJob, error)
	Stop()
}

// JobStore is the document store holding job-status records.
type JobStore interface {
	CreateJob(ctx context.Context, jobID string, job models.ConversionJob) error
	WatchJob(ctx context.Context, jobID string) (JobWatcher, error)
}

// BlobUploader transfers a file's bytes to blob storage, keyed by job ID,
// reporting progress as bytes move.
type BlobUploader interface {
	Upload(ctx context.Context, jobID string, src io.Reader, size int64, progress func(transferred, total int64)) error
}

// Controller drives one file-conversion job from selection through
// completion. It merges two independent asynchronous event streams, upload
// progress and job-status notifications, into a single ViewState.
//
// The job-status stream is authoritative: once a status beyond pending has
// been observed, upload-progress events no longer touch the view. Every
// callback checks the current job epoch before applying effects, so
// notifications from a superseded or reset job are discarded.
type Controller struct {
	store    JobStore
	uploader BlobUploader

	onChange  func(ViewState)
	onFailure func(error)

	mu     sync.Mutex
	view   ViewState
	epoch  uint64
	cancel context.CancelFunc
}

// NewController returns a Controller in the idle state.
func NewController(store JobStore, uploader BlobUploader) *Controller {
	return &Controller{
		store:    store,
		uploader: uploader,
		view:     ViewState{Phase: PhaseIdle},
	}
}

// OnChange registers fn to receive a copy of the view state after every
// mutation. Register before the first Submit; fn must not call back into the
// controller synchronously.
func (c *Controller) OnChange(fn func(ViewState)) { c.onChange = fn }

// OnFailure registers fn to receive user-visible failures (ErrUploadFailed,
// ErrConversionFailed). Submit's own validation errors are returned directly.
func (c *Controller) OnFailure(fn func(error)) { c.onFailure = fn }

// View returns a copy of the current view state.
func (c *Controller) View() ViewState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view
}

// Submit starts a conversion job for file: it creates the job record, opens
// the status subscription, begins the upload, and returns the job ID without
// waiting for any of the transfers. A Submit while a previous job is still in
// flight supersedes it and releases its subscription.
//
// Canceling ctx abandons the job and releases the subscription.
func (c *Controller) Submit(ctx context.Context, file File) (string, error) {
	if file.ContentType != PDFContentType {
		return "", fmt.Errorf("%w: got %q", ErrInvalidFileType, file.ContentType)
	}

	// Terminate any prior subscription before restarting: the controller
	// subscribes to exactly one job at a time.
	c.mu.Lock()
	c.releaseLocked()
	c.epoch++
	epoch := c.epoch
	c.mu.Unlock()

	jobID := uuid.NewString()
	job := models.ConversionJob{
		Status:    models.StatusPending,
		Progress:  0,
		FileName:  file.Name,
		CreatedAt: time.Now(),
	}
	if err := c.store.CreateJob(ctx, jobID, job); err != nil {
		return "", fmt.Errorf("failed to create job record: %w", err)
	}

	// The subscription opens before the first byte moves so that no status
	// transition can be missed, even if the worker outruns the upload.
	jobCtx, cancelJob := context.WithCancel(ctx)
	watcher, err := c.store.WatchJob(jobCtx, jobID)
	if err != nil {
		cancelJob()
		return "", fmt.Errorf("failed to subscribe to job %s: %w", jobID, err)
	}

	c.mu.Lock()
	if epoch != c.epoch {
		// A concurrent Submit or Reset superseded this job before it got
		// going; abandon it.
		c.mu.Unlock()
		cancelJob()
		return "", context.Canceled
	}
	c.cancel = cancelJob
	c.view = ViewState{Phase: PhaseUploading, SelectedFileName: file.Name}
	view := c.view
	c.mu.Unlock()
	c.emitChange(view)

	g, gctx := errgroup.WithContext(jobCtx)
	g.Go(func() error {
		return c.watchJob(epoch, watcher)
	})
	g.Go(func() error {
		return c.uploadFile(gctx, epoch, jobID, file)
	})
	go func() {
		if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("Conversion job ended abnormally", "jobId", jobID, "error", err)
		}
	}()

	return jobID, nil
}

// Reset releases any active subscription and restores the default idle view.
// Notifications still in flight from the released job are discarded by the
// epoch check.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.releaseLocked()
	c.epoch++
	c.view = ViewState{Phase: PhaseIdle}
	view := c.view
	c.mu.Unlock()
	c.emitChange(view)
}

// watchJob drains status notifications until a terminal status is applied or
// the subscription is released.
func (c *Controller) watchJob(epoch uint64, w JobWatcher) error {
	defer w.Stop()
	for {
		job, err := w.Next()
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("job watch ended: %w", err)
		}
		if c.applyJobUpdate(epoch, job) {
			return nil
		}
	}
}

// applyJobUpdate folds one job-status notification into the view. It reports
// whether the notification was terminal for this job (including the case
// where the job has already been superseded).
func (c *Controller) applyJobUpdate(epoch uint64, job models.ConversionJob) bool {
	var failure error

	c.mu.Lock()
	if epoch != c.epoch {
		c.mu.Unlock()
		return true
	}
	switch job.Status {
	case models.StatusProcessing:
		c.view.Phase = PhaseProcessing
		c.view.Progress = float64(job.Progress)
	case models.StatusCompleted:
		c.view.Phase = PhaseCompleted
		c.view.Progress = 100
		c.view.DownloadURL = job.DownloadURL
		c.releaseLocked()
	case models.StatusError:
		if job.ErrorDetails != "" {
			failure = fmt.Errorf("%w: %s", ErrConversionFailed, job.ErrorDetails)
		} else {
			failure = ErrConversionFailed
		}
		c.view = ViewState{Phase: PhaseIdle}
		c.releaseLocked()
	default:
		// pending and unknown statuses carry no transition.
		c.mu.Unlock()
		return false
	}
	view := c.view
	c.mu.Unlock()

	c.emitChange(view)
	if failure != nil {
		c.emitFailure(failure)
	}
	return models.Terminal(job.Status)
}

// uploadFile runs the blob upload and folds its progress into the view.
func (c *Controller) uploadFile(ctx context.Context, epoch uint64, jobID string, file File) error {
	err := c.uploader.Upload(ctx, jobID, file.Content, file.Size, func(transferred, total int64) {
		c.applyUploadProgress(epoch, transferred, total)
	})
	if err != nil {
		if ctx.Err() != nil {
			// Released or superseded mid-transfer; nothing to report.
			return nil
		}
		c.applyUploadError(epoch)
		return fmt.Errorf("upload for job %s: %w", jobID, err)
	}
	c.applyUploadProgress(epoch, file.Size, file.Size)
	return nil
}

// applyUploadProgress maps upload progress onto the first half of the
// progress range. It only applies while the view is still in the uploading
// phase: once the job-status stream has moved the phase forward, upload
// events must not drag it back.
func (c *Controller) applyUploadProgress(epoch uint64, transferred, total int64) {
	c.mu.Lock()
	if epoch != c.epoch || c.view.Phase != PhaseUploading || total <= 0 {
		c.mu.Unlock()
		return
	}
	if transferred < total {
		c.view.Progress = float64(transferred) / float64(total) * 50
	} else {
		// Local transfer done; the remote worker owns the second half from
		// here. Pin to the midpoint until its first report arrives.
		c.view.Phase = PhaseProcessing
		c.view.Progress = 50
	}
	view := c.view
	c.mu.Unlock()
	c.emitChange(view)
}

// applyUploadError abandons the current job after a transport failure and
// returns the controller to idle so the user can retry.
func (c *Controller) applyUploadError(epoch uint64) {
	c.mu.Lock()
	if epoch != c.epoch || c.view.Phase == PhaseCompleted {
		c.mu.Unlock()
		return
	}
	c.view = ViewState{Phase: PhaseIdle}
	c.releaseLocked()
	view := c.view
	c.mu.Unlock()

	c.emitChange(view)
	c.emitFailure(ErrUploadFailed)
}

// releaseLocked cancels the active job context, which stops the watcher and
// any in-flight upload. Callers must hold c.mu.
func (c *Controller) releaseLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

func (c *Controller) emitChange(view ViewState) {
	if c.onChange != nil {
		c.onChange(view)
	}
}

func (c *Controller) emitFailure(err error) {
	if c.onFailure != nil {
		c.onFailure(err)
	}
}
