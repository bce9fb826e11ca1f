package photo

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrUnsupportedExtension = errors.New("only .jpg, .jpeg, .png and .gif photos are allowed")
	ErrMissingFile          = errors.New("photo file is required")
	ErrUploadNotFound       = errors.New("upload not found")
)

// AllowedExtensions are the accepted upload file extensions, lower case.
var AllowedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
}

// Upload modes, matching photoproc.Mode names.
const (
	ModeTimestamp = "timestamp"
	ModeSignature = "signature"
)

// UploadRequest is the metadata sent with a photo.
type UploadRequest struct {
	OriginalName    string
	IsSignature     bool
	MedicalRecordNo string
	ProjectName     string
	// TreatmentTime is captioned on signatures. Nil means now.
	TreatmentTime *time.Time
	// Timestamp overrides the capture time burned into ordinary photos.
	Timestamp  *time.Time
	UploadedBy string
}

// Mode returns the pipeline mode the request selects.
func (r UploadRequest) Mode() string {
	if r.IsSignature {
		return ModeSignature
	}
	return ModeTimestamp
}

// UploadResult is returned to the client after an upload.
type UploadResult struct {
	ID           *uuid.UUID `json:"id,omitempty"`
	Filename     string     `json:"filename"`
	OriginalName string     `json:"originalname"`
	Size         int64      `json:"size"`
	URL          string     `json:"url"`
	Processed    bool       `json:"processed"`
	Warning      string     `json:"warning,omitempty"`
}

// PhotoUpload maps to the photo_uploads table.
type PhotoUpload struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	Filename        string     `db:"filename" json:"filename"`
	OriginalName    string     `db:"original_name" json:"original_name"`
	Mode            string     `db:"mode" json:"mode"`
	MedicalRecordNo *string    `db:"medical_record_no" json:"medical_record_no,omitempty"`
	ProjectName     *string    `db:"project_name" json:"project_name,omitempty"`
	TreatmentTime   *time.Time `db:"treatment_time" json:"treatment_time,omitempty"`
	Caption         *string    `db:"caption" json:"caption,omitempty"`
	Processed       bool       `db:"processed" json:"processed"`
	Warning         *string    `db:"warning" json:"warning,omitempty"`
	ContentType     string     `db:"content_type" json:"content_type"`
	Size            int64      `db:"size" json:"size"`
	Width           *int       `db:"width" json:"width,omitempty"`
	Height          *int       `db:"height" json:"height,omitempty"`
	Quality         *int       `db:"quality" json:"quality,omitempty"`
	UploadedBy      *string    `db:"uploaded_by" json:"uploaded_by,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
}

// ListFilter narrows an upload log listing. Empty fields match everything.
type ListFilter struct {
	MedicalRecordNo string
	Mode            string
	Processed       *bool
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func intPtr(n int) *int {
	if n == 0 {
		return nil
	}
	return &n
}
