package capsule

import (
	"io"
	"strings"
	"time"

	"github.com/MrSnakeDoc/timecapsule/internal/domain"
)

// Upload is one media file selected for a new capsule.
type Upload struct {
	FileName    string
	ContentType string
	Size        int64
	Open        func() (io.ReadCloser, error)
}

// CreateInput carries the raw fields of the creation form.
type CreateInput struct {
	Title        string
	Description  string
	Notes        string
	Tags         []string
	UnlockDate   string // YYYY-MM-DD
	UnlockTime   string // HH:MM, optional
	Timezone     string // IANA name, optional
	IsShared     bool
	SharedEmails []string
	Media        []Upload
}

// SkippedUpload reports a selected file that did not end up attached.
type SkippedUpload struct {
	FileName string `json:"file_name"`
	Reason   string `json:"reason"`
}

const (
	reasonTooMany     = "too many files"
	reasonTooLarge    = "file too large"
	reasonUpload      = "upload failed"
	reasonRecordError = "metadata not saved"
)

// CreateResult is the outcome of a successful creation. Skipped lists the
// files that were dropped; the capsule itself was created either way.
type CreateResult struct {
	Capsule domain.Capsule  `json:"capsule"`
	Skipped []SkippedUpload `json:"skipped,omitempty"`
}

// SplitList splits a comma-separated form value, trimming every entry and
// dropping empty ones. Duplicates are kept.
func SplitList(raw string) []string {
	return CleanList(strings.Split(raw, ","))
}

// CleanList trims entries and drops empty ones, keeping order and duplicates.
func CleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// ParseUnlockAt combines a calendar date, an optional wall clock time and
// an optional zone into an instant. Missing time means midnight; missing
// zone means defaultZone. Past instants are accepted.
func ParseUnlockAt(date, clock, zone, defaultZone string) (time.Time, error) {
	date = strings.TrimSpace(date)
	if date == "" {
		return time.Time{}, domain.NewValidationError("unlock_date", "is required")
	}

	clock = strings.TrimSpace(clock)
	if clock == "" {
		clock = "00:00"
	}

	zone = strings.TrimSpace(zone)
	if zone == "" {
		zone = defaultZone
	}
	if zone == "" {
		zone = "UTC"
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return time.Time{}, domain.NewValidationError("timezone", "unknown time zone "+zone)
	}

	layout := "2006-01-02 15:04"
	if strings.Count(clock, ":") == 2 {
		layout = "2006-01-02 15:04:05"
	}
	t, err := time.ParseInLocation(layout, date+" "+clock, loc)
	if err != nil {
		return time.Time{}, domain.NewValidationError("unlock_date", "must be YYYY-MM-DD with an optional HH:MM time")
	}
	return t, nil
}
