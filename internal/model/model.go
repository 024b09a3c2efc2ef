// Package model defines the persistent entities shared by the core components.
package model

import "time"

// Status is a TrackedFile's position in the state graph (spec §4.8).
type Status string

const (
	StatusNew           Status = "NEW"
	StatusProcessing    Status = "PROCESSING"
	StatusClassified    Status = "CLASSIFIED"
	StatusReadyToMove   Status = "READY_TO_MOVE"
	StatusMoving        Status = "MOVING"
	StatusMoved         Status = "MOVED"
	StatusError         Status = "ERROR"
	StatusRetry         Status = "RETRY"
	StatusIgnored       Status = "IGNORED"
)

// IsTerminal reports whether the status ends the processing flow (MOVED,
// ERROR, IGNORED). ERROR can still be reset to NEW or moved to IGNORED.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusMoved, StatusError, StatusIgnored:
		return true
	default:
		return false
	}
}

// LogLevel is a ProcessingLog severity.
type LogLevel string

const (
	LogInfo  LogLevel = "INFO"
	LogWarn  LogLevel = "WARN"
	LogError LogLevel = "ERROR"
)

// Audit holds the fields every persisted entity carries.
type Audit struct {
	CreatedAt time.Time
	UpdatedAt time.Time
	Note      string
	Active    bool
}

// TrackedFile is one discovered file moving through the pipeline.
type TrackedFile struct {
	Hash         string // 64-hex SHA-256, immutable primary key
	OriginalPath string
	FileName     string
	FileSize     int64

	Status Status

	SuggestedCategory string
	Confidence        float64
	ClassifiedAt      *time.Time

	Category   string
	TargetPath string

	MovedToPath string
	MovedAt     *time.Time

	RetryCount  int
	LastError   string
	LastErrorAt *time.Time

	Audit
}

// ProcessingLog is an append-only audit trail entry tied to a TrackedFile.
type ProcessingLog struct {
	ID          int64
	FileHash    string
	Level       LogLevel
	Category    string
	Message     string
	DetailsJSON string
	DurationMS  int64
	CreatedAt   time.Time
}

// RollbackPoint records enough information to reverse a completed move.
type RollbackPoint struct {
	ID            string // UUID
	FileHash      string
	OperationType string
	OriginalPath  string
	TargetPath    string
	Info          string
	CreatedAt     time.Time
	Active        bool
}

// UserPreference is a typed key/value setting; out of scope for core behavior.
type UserPreference struct {
	Key       string
	Value     string
	ValueType string
	Audit
}
