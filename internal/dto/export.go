package dto

import "time"

// ExportLinkResult is a signed, time-limited download link for an
// archived timetable export.
type ExportLinkResult struct {
	URL       string    `json:"url"`
	Filename  string    `json:"filename"`
	ExpiresAt time.Time `json:"expires_at"`
}
