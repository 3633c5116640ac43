package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	// PrmFile form field for audio file
	PrmFile = "file"
	// PrmLanguage ISO language code or "auto"
	PrmLanguage = "language"
	// PrmSummaryMode summary style
	PrmSummaryMode = "summary_mode"
	// PrmDiarization "true"/"false"
	PrmDiarization = "enable_diarization"
	// PrmNumSpeakers optional expected speaker count
	PrmNumSpeakers = "num_speakers"
)

// LanguageAuto asks the server to detect the language
const LanguageAuto = "auto"

// SummaryMode is the summary style requested from the server
type SummaryMode string

const (
	SummaryBullet      SummaryMode = "bullet"
	SummaryMinutes     SummaryMode = "minutes"
	SummaryActionItems SummaryMode = "action_items"
	SummaryStudyNotes  SummaryMode = "study_notes"
	SummaryBlog        SummaryMode = "blog"
)

var summaryModes = map[SummaryMode]bool{SummaryBullet: true, SummaryMinutes: true,
	SummaryActionItems: true, SummaryStudyNotes: true, SummaryBlog: true}

// ParseSummaryMode validates summary mode, empty value means bullet
func ParseSummaryMode(s string) (SummaryMode, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return SummaryBullet, nil
	}
	res := SummaryMode(s)
	if !summaryModes[res] {
		return "", fmt.Errorf("unknown summary mode '%s'", s)
	}
	return res, nil
}

// UploadRequest is one file submission.
// It must not be changed after it is passed to a task.
type UploadRequest struct {
	Path        string
	DisplayName string
	SizeBytes   int64
	MIMEHint    string
	Language    string
	Diarization bool
	// Speakers is the expected speaker count, 0 lets the server detect it
	Speakers    int
	SummaryMode SummaryMode
}

// ErrNoFile request has no file
var ErrNoFile = errors.New("no file")

// Validate checks the request can be submitted
func (r *UploadRequest) Validate() error {
	if r == nil || r.Path == "" {
		return ErrNoFile
	}
	return nil
}

// Name returns the name shown to the user
func (r *UploadRequest) Name() string {
	if r.DisplayName != "" {
		return r.DisplayName
	}
	return r.Path
}

// Params returns form values except the file
func (r *UploadRequest) Params() map[string]string {
	res := map[string]string{}
	res[PrmLanguage] = r.Language
	if res[PrmLanguage] == "" {
		res[PrmLanguage] = LanguageAuto
	}
	res[PrmSummaryMode] = string(r.SummaryMode)
	if res[PrmSummaryMode] == "" {
		res[PrmSummaryMode] = string(SummaryBullet)
	}
	res[PrmDiarization] = "false"
	if r.Diarization {
		res[PrmDiarization] = "true"
		if r.Speakers > 0 {
			res[PrmNumSpeakers] = fmt.Sprintf("%d", r.Speakers)
		}
	}
	return res
}

// ProcessingResult is the server response of a finished job
type ProcessingResult struct {
	ID         json.RawMessage `json:"id,omitempty"`
	Filename   string          `json:"filename,omitempty"`
	FileSize   int64           `json:"file_size,omitempty"`
	Size       int64           `json:"size,omitempty"`
	FileSizeMB float64         `json:"file_size_mb,omitempty"`
	AudioURL   string          `json:"audio_url,omitempty"`
	Transcript string          `json:"transcript"`
	Summary    string          `json:"summary"`
	Language   string          `json:"language,omitempty"`
	CreatedAt  string          `json:"created_at,omitempty"`
	Status     string          `json:"status,omitempty"`

	// Raw keeps the whole document as returned by the server
	Raw json.RawMessage `json:"-"`
}

// IDString returns the server identifier as text, the server may send a number or a string
func (r *ProcessingResult) IDString() string {
	if len(r.ID) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(r.ID, &s); err == nil {
		return s
	}
	return string(r.ID)
}
