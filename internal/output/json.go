// Package output provides the JSON response envelope shared by every nmem
// CLI subcommand and by structured error reporting.
package output

import (
	"encoding/json"
	"errors"
	"io"
	"os"

	"github.com/nmem/nmem/internal/models"
)

// Response is the standard JSON envelope for CLI subcommand output.
type Response struct {
	SchemaVersion   string            `json:"schema_version"`
	Success         bool              `json:"success"`
	Data            interface{}       `json:"data,omitempty"`
	Error           string            `json:"error,omitempty"`
	ErrorCode       string            `json:"error_code,omitempty"`
	ErrorContext    map[string]string `json:"error_context,omitempty"`
	SuggestedAction string            `json:"suggested_action,omitempty"`
}

// Config holds output configuration.
type Config struct {
	Writer io.Writer
	Pretty bool
}

// DefaultConfig returns configuration using stdout and environment.
func DefaultConfig() Config {
	pretty := os.Getenv("NMEM_PRETTY_JSON") == "1"
	return Config{Writer: os.Stdout, Pretty: pretty}
}

// Success wraps a successful response with data.
func Success(data interface{}) Response {
	return Response{SchemaVersion: "v1", Success: true, Data: data}
}

// Error wraps an error in a response, enriching with structured metadata
// when the error implements models.RecoverableError.
func Error(err error) Response {
	resp := Response{SchemaVersion: "v1", Success: false, Error: err.Error()}
	var re models.RecoverableError
	if errors.As(err, &re) {
		resp.ErrorCode = re.ErrorCode()
		resp.ErrorContext = re.Context()
		resp.SuggestedAction = re.SuggestedAction()
	}
	return resp
}

// PrintWith prints a value as JSON to the configured writer.
func PrintWith(cfg Config, v interface{}) error {
	enc := json.NewEncoder(cfg.Writer)
	if cfg.Pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}

// Print prints a value as compact JSON to stdout. Compact by default to
// minimize token/output size for agent consumption; set NMEM_PRETTY_JSON=1
// for humans.
func Print(v interface{}) error {
	return PrintWith(DefaultConfig(), v)
}

// PrintSuccess prints a success response.
func PrintSuccess(data interface{}) error {
	return Print(Success(data))
}

// PrintError prints an error response.
func PrintError(err error) error {
	return Print(Error(err))
}
