package api

import (
	"net/http"

	"mixtape/internal/batch"
	"mixtape/internal/links"
	"mixtape/internal/workflow"
)

// Envelope is the response shape of every inbound operation. Error carries the
// error kind on failure; Message is human readable in both cases.
type Envelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// BatchList wraps a listing of batches.
type BatchList struct {
	Batches []*batch.Batch `json:"batches"`
	Count   int            `json:"count"`
}

// CleanupResult reports a retention sweep.
type CleanupResult struct {
	Days    int `json:"days"`
	Removed int `json:"removed"`
}

// ValidationResult is the per-line link report returned by ValidateURLs.
type ValidationResult = links.Report

// StatisticsResult is the aggregate view returned by Statistics.
type StatisticsResult = workflow.Statistics

// ProgressResult is the polling view returned by Progress.
type ProgressResult = workflow.Progress

// CreateRequest is the body accepted by Create. Text is an alternative to
// URLs: a pasted block with one link or share snippet per line.
type CreateRequest struct {
	batch.Request
	Text string `json:"text,omitempty"`
}

// DaemonStatus aggregates runtime information for `mixtape daemon status`.
type DaemonStatus struct {
	Running       bool               `json:"running"`
	PID           int                `json:"pid"`
	APIBind       string             `json:"api_bind"`
	StartedAt     string             `json:"started_at,omitempty"`
	ActiveWorkers int                `json:"active_workers"`
	LockPath      string             `json:"lock_path"`
	Storage       string             `json:"storage"`
	Statistics    StatisticsResult   `json:"statistics"`
	Dependencies  []DependencyStatus `json:"dependencies"`
}

// DependencyStatus reports availability of an external binary.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description,omitempty"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// HTTPStatus maps an envelope error kind to the HTTP status code the daemon
// answers with.
func HTTPStatus(kind string) int {
	switch kind {
	case "":
		return http.StatusOK
	case batch.KindValidation:
		return http.StatusBadRequest
	case batch.KindNotFound:
		return http.StatusNotFound
	case batch.KindIllegalTransition:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
