package services

import (
	"testing"

	"epubflow/internal/gcp"
)

func TestJobIDFromObject(t *testing.T) {
	tests := []struct {
		name   string
		object string
		want   string
		ok     bool
	}{
		{name: "upload object", object: "pdf_uploads/8f14e45f.pdf", want: "8f14e45f", ok: true},
		{name: "uuid job id", object: "pdf_uploads/7b1c3e0a-9d2f-4c4e-8a64-0f3b6f1c2d9e.pdf", want: "7b1c3e0a-9d2f-4c4e-8a64-0f3b6f1c2d9e", ok: true},
		{name: "outside upload area", object: "epub_conversions/8f14e45f.epub", ok: false},
		{name: "wrong extension", object: "pdf_uploads/8f14e45f.txt", ok: false},
		{name: "nested path", object: "pdf_uploads/deep/8f14e45f.pdf", ok: false},
		{name: "empty stem", object: "pdf_uploads/.pdf", ok: false},
		{name: "prefix without slash", object: "pdf_uploadsx/8f14e45f.pdf", ok: false},
		{name: "bare prefix", object: "pdf_uploads/", ok: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := JobIDFromObject(tc.object)
			if ok != tc.ok {
				t.Fatalf("JobIDFromObject(%q) ok = %v, want %v", tc.object, ok, tc.ok)
			}
			if got != tc.want {
				t.Fatalf("JobIDFromObject(%q) = %q, want %q", tc.object, got, tc.want)
			}
		})
	}
}

func TestUploadObjectRoundTrip(t *testing.T) {
	const jobID = "7b1c3e0a-9d2f-4c4e-8a64-0f3b6f1c2d9e"

	object := gcp.UploadObjectName(jobID)
	got, ok := JobIDFromObject(object)
	if !ok {
		t.Fatalf("JobIDFromObject(%q) rejected the uploader's own object name", object)
	}
	if got != jobID {
		t.Fatalf("JobIDFromObject(%q) = %q, want %q", object, got, jobID)
	}
}
