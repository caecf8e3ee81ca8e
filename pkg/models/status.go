package models

// TrackStatus represents the state of a tracked input URL in the database
type TrackStatus string

const (
	TrackStatusUnset    TrackStatus = ""          // Zero value = unset/unknown
	TrackStatusTracked  TrackStatus = "tracked"   // Input URL processed at least once
	TrackStatusNotFound TrackStatus = "not_found" // URL not in database
	TrackStatusDBError  TrackStatus = "db_error"  // Database error occurred
)

// String implements fmt.Stringer for logging
func (s TrackStatus) String() string {
	if s == "" {
		return "unset"
	}
	return string(s)
}

// DownloadStatus represents the state of a media download in the database
type DownloadStatus string

const (
	DownloadStatusUnset    DownloadStatus = ""          // Zero value = unset/unknown
	DownloadStatusSuccess  DownloadStatus = "success"   // File written
	DownloadStatusSkipped  DownloadStatus = "skipped"   // File already present
	DownloadStatusFailure  DownloadStatus = "failure"   // Fetch or write failed
	DownloadStatusNotFound DownloadStatus = "not_found" // Media URL not in database
	DownloadStatusDBError  DownloadStatus = "db_error"  // Database error occurred
)

// String implements fmt.Stringer for logging
func (s DownloadStatus) String() string {
	if s == "" {
		return "unset"
	}
	return string(s)
}

// IsValid returns true if the status is a known operational value
func (s DownloadStatus) IsValid() bool {
	switch s {
	case DownloadStatusSuccess, DownloadStatusSkipped, DownloadStatusFailure:
		return true
	}
	return false
}

// IsComplete reports whether a previous attempt left a file on disk
func (s DownloadStatus) IsComplete() bool {
	return s == DownloadStatusSuccess || s == DownloadStatusSkipped
}
