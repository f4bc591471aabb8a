package domain

import (
	"strings"
	"time"
)

// ExportStatus tracks an export request through its lifecycle.
type ExportStatus string

const (
	ExportPending    ExportStatus = "pending"
	ExportProcessing ExportStatus = "processing"
	ExportCompleted  ExportStatus = "completed"
	ExportFailed     ExportStatus = "failed"
)

// ExportFormat is the file format of a data export.
type ExportFormat string

const (
	ExportFormatJSON ExportFormat = "json"
	ExportFormatCSV  ExportFormat = "csv"
	ExportFormatPDF  ExportFormat = "pdf"
)

// ParseExportFormat normalizes a requested format, defaulting to JSON.
func ParseExportFormat(raw string) (ExportFormat, error) {
	switch ExportFormat(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ExportFormatJSON:
		return ExportFormatJSON, nil
	case ExportFormatCSV:
		return ExportFormatCSV, nil
	case ExportFormatPDF:
		return "", NewError(KindValidation, "format_unsupported", "pdf exports are not available; use json or csv")
	}
	return "", Validation("format", "must be one of json, csv")
}

const (
	ExportTypeFull = "full_export"

	DefaultExportTTL          = 7 * 24 * time.Hour
	DefaultExportMaxDownloads = 3
	ExportReclaimAfter        = 30 * time.Minute
	ExportJobTimeout          = 10 * time.Minute
)

// Recognized data types an export can be scoped to.
const (
	ExportDataProfile   = "profile"
	ExportDataWardrobe  = "wardrobe"
	ExportDataStyle     = "style"
	ExportDataAnalytics = "analytics"
)

// ExportRequest is a user's request for a copy of their data.
type ExportRequest struct {
	ID            string
	UserID        string
	RequestType   string
	DataTypes     []string
	Format        ExportFormat
	Status        ExportStatus
	Progress      int
	FilePath      string
	FileSizeBytes int64
	DownloadToken *string
	ExpiresAt     *time.Time
	DownloadCount int
	MaxDownloads  int
	ErrorMessage  string
	HeartbeatAt   *time.Time
	CreatedAt     time.Time
	StartedAt     *time.Time
	CompletedAt   *time.Time
}

// IsOpen reports whether the request still blocks a new one.
func (e ExportRequest) IsOpen() bool {
	return e.Status == ExportPending || e.Status == ExportProcessing
}

// DownloadAvailable reports whether the file may be downloaded at the supplied moment.
func (e ExportRequest) DownloadAvailable(at time.Time) bool {
	if e.Status != ExportCompleted || e.DownloadToken == nil || e.ExpiresAt == nil {
		return false
	}
	return at.Before(*e.ExpiresAt) && e.DownloadCount < e.MaxDownloads
}

// Includes reports whether the export covers dataType. An empty selection covers everything.
func (e ExportRequest) Includes(dataType string) bool {
	if len(e.DataTypes) == 0 {
		return true
	}
	for _, t := range e.DataTypes {
		if t == dataType {
			return true
		}
	}
	return false
}

// Complete transitions the request to COMPLETED with a download token expiring ttl later.
func (e *ExportRequest) Complete(at time.Time, token, path string, size int64, ttl time.Duration) {
	if ttl <= 0 {
		ttl = DefaultExportTTL
	}
	expires := at.Add(ttl)
	completed := at
	e.Status = ExportCompleted
	e.Progress = 100
	e.FilePath = path
	e.FileSizeBytes = size
	e.DownloadToken = &token
	e.ExpiresAt = &expires
	e.CompletedAt = &completed
	e.ErrorMessage = ""
}

// Fail transitions the request to FAILED with a message.
func (e *ExportRequest) Fail(at time.Time, message string) {
	completed := at
	e.Status = ExportFailed
	e.ErrorMessage = message
	e.CompletedAt = &completed
}

// FileName is the attachment name presented to the client.
func (e ExportRequest) FileName() string {
	return "tanvi_data_export_" + e.UserID + "." + string(e.Format)
}

// ExportDocument is the top-level layout of an export file.
type ExportDocument struct {
	UserProfile   map[string]any   `json:"user_profile"`
	StyleProfile  map[string]any   `json:"style_profile"`
	WardrobeItems []map[string]any `json:"wardrobe_items"`
	OutfitHistory []map[string]any `json:"outfit_history"`
	Analytics     []map[string]any `json:"analytics"`
	StyleInsights []map[string]any `json:"style_insights"`
	ExportInfo    ExportInfo       `json:"export_info"`
}

// ExportInfo describes the export itself.
type ExportInfo struct {
	RequestedAt time.Time    `json:"requested_at"`
	ExportType  string       `json:"export_type"`
	Format      ExportFormat `json:"format"`
}

// ExportFragment is a peer-owned slice of an export document.
type ExportFragment struct {
	StyleProfile  map[string]any   `json:"style_profile,omitempty"`
	StyleInsights []map[string]any `json:"style_insights,omitempty"`
	WardrobeItems []map[string]any `json:"wardrobe_items,omitempty"`
	OutfitHistory []map[string]any `json:"outfit_history,omitempty"`
}
