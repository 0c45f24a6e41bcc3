package conversion

// Phase is the controller's locally-owned view of where a job stands,
// derived from the upload stream and the job-status stream.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseUploading  Phase = "uploading"
	PhaseProcessing Phase = "processing"
	PhaseCompleted  Phase = "completed"
)

// ViewState drives presentation of the conversion flow. It is owned and
// mutated exclusively by the Controller; callers receive copies.
//
// Progress runs 0-100. While uploading it is bytesTransferred/totalBytes
// mapped onto the first half of the range; once the job record reports a
// status beyond pending, the server-reported progress takes over.
type ViewState struct {
	Phase            Phase
	Progress         float64
	SelectedFileName string
	DownloadURL      string
}
