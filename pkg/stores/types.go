package stores

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Status is the outcome of a translation run.
type Status string

const (
	StatusSuccess  Status = "success"
	StatusFailure  Status = "failure"
	StatusCanceled Status = "canceled"
)

// Translation is one row of the history ledger.
type Translation struct {
	// ID is the pipeline run ID.
	ID string `json:"id"`

	// SourcePath is the DSL file that was translated.
	SourcePath string `json:"source_path"`

	// SourceSHA256 is the hex digest of the source text.
	SourceSHA256 string `json:"source_sha256"`

	// OutputSHA256 is the hex digest of the generated text; empty on failure.
	OutputSHA256 string `json:"output_sha256,omitempty"`

	// OutputPath is where the output was written; empty for stdout.
	OutputPath string `json:"output_path,omitempty"`

	Status       Status `json:"status"`
	ErrorCount   int    `json:"error_count"`
	WarningCount int    `json:"warning_count"`

	// Message is the first error message of a failed run.
	Message string `json:"message,omitempty"`

	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// Digest returns the hex SHA-256 of text, the form stored in the ledger.
func Digest(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
