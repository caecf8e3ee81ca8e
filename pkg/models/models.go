package models

import "time"

// MediaKind is the type of file a MediaLink points at
type MediaKind string

const (
	KindImage MediaKind = "image"
	KindVideo MediaKind = "video"
	KindFile  MediaKind = "file"
)

// ThumbnailRole tags a link as one half of a thumbnail candidate pair
type ThumbnailRole string

const (
	RoleNone              ThumbnailRole = ""
	RoleThumbnailPrimary  ThumbnailRole = "thumbnail_primary"  // Max-resolution candidate
	RoleThumbnailFallback ThumbnailRole = "thumbnail_fallback" // High-quality fallback candidate
)

// MediaLink is a single resolved, directly downloadable URL
// Created by an extractor and consumed once by the downloader
type MediaLink struct {
	URL         string
	Kind        MediaKind
	SourceURL   string // Original input URL that produced this link
	SourceIndex int    // Zero-based position within a multi-item post
	SourceCount int    // Total items in that post (0 = singular)
	GroupID     string // Shared by links that describe the same source item (e.g. a YouTube video ID)
	Role        ThumbnailRole
}

// IsMultiItem reports whether the link came from an album/slideshow
func (m MediaLink) IsMultiItem() bool {
	return m.SourceCount > 0
}

// DownloadOutcome is the per-link result of a download run
type DownloadOutcome struct {
	Link      MediaLink
	FileName  string // Resolved file name (no directory)
	Path      string // Full destination path
	Written   bool   // A new file was created
	Skipped   bool   // Destination already existed, nothing fetched
	Err       error  // Fetch/write failure for this item only
	BytesRead int64
}

// AcceptStatus is the outcome of submitting a raw URL
type AcceptStatus string

const (
	AcceptAccepted      AcceptStatus = "accepted"
	AcceptAlreadyAdded  AcceptStatus = "already_added"
	AcceptNotRecognized AcceptStatus = "not_recognized"
)

// AcceptResult describes what happened to a submitted URL
type AcceptResult struct {
	Status    AcceptStatus
	URL       string // Normalized URL that was classified (may differ from input for Reddit)
	Extractor string // Extractor name when accepted
	Links     []MediaLink
}

// TrackedDBEntry stores a processed input URL in the history database
type TrackedDBEntry struct {
	Status    TrackStatus `json:"status"`
	Extractor string      `json:"extractor,omitempty"`
	BatchID   string      `json:"batch_id,omitempty"`
	LinkCount int         `json:"link_count"`
	TrackedAt time.Time   `json:"tracked_at"`
}

// DownloadDBEntry stores the result of downloading a media URL in the history database
type DownloadDBEntry struct {
	Status      DownloadStatus `json:"status"`
	LocalPath   string         `json:"local_path,omitempty"` // Path of the written/existing file (on success/skip)
	Kind        MediaKind      `json:"kind,omitempty"`
	BatchID     string         `json:"batch_id,omitempty"`
	ErrorType   string         `json:"error_type,omitempty"` // Error category (on failure)
	LastAttempt time.Time      `json:"last_attempt"`
}
