package models

import "time"

// Job status values as written to the job record. The conversion worker owns
// every transition after creation; clients only ever create a job as pending.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusError      = "error"
)

// ConversionJob is the Firestore record tracking one PDF-to-EPUB conversion.
// The record is created by the submitting client and written by the intake
// function and the conversion worker from then on.
type ConversionJob struct {
	Status       string    `firestore:"status"`
	Progress     int       `firestore:"progress"`
	FileName     string    `firestore:"fileName,omitempty"`
	CreatedAt    time.Time `firestore:"createdAt,omitempty"`
	DownloadURL  string    `firestore:"downloadUrl,omitempty"`
	ErrorDetails string    `firestore:"error,omitempty"`
	PageCount    int       `firestore:"pageCount,omitempty"`

	QualityReport *QualityReport `firestore:"qualityReport,omitempty"`
}

// QualityReport is the worker's closed-loop validation summary, attached to
// the job record on completion.
type QualityReport struct {
	WordRatio   float64 `firestore:"wordRatio"`
	SourceWords int     `firestore:"sourceWords"`
	EpubWords   int     `firestore:"epubWords"`
	Chapters    int     `firestore:"chapters"`
	Images      int     `firestore:"images"`
	Passed      bool    `firestore:"passed"`
}

// Terminal reports whether no further status changes are expected for a job
// in the given status.
func Terminal(status string) bool {
	return status == StatusCompleted || status == StatusError
}
