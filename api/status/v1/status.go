package v1

import (
	"time"

	"github.com/jdholdren/satelit/api"
)

type (
	Health struct {
		Status string `json:"status"`
	}

	RunError struct {
		Kind    string `json:"kind"`
		Message string `json:"message"`
	}

	// Status describes the scheduler's last run. Times are omitted until there's been one.
	Status struct {
		Driver     string     `json:"driver"`
		Running    bool       `json:"running"`
		Runs       int        `json:"runs"`
		StartedAt  *time.Time `json:"started_at,omitempty"`
		FinishedAt *time.Time `json:"finished_at,omitempty"`
		More       bool       `json:"more"`
		Error      *RunError  `json:"error,omitempty"`
		NextRunAt  *time.Time `json:"next_run_at,omitempty"`
	}

	CreateRunRequest struct {
		// Why the run was asked for, only logged.
		Reason string `json:"reason"`
	}

	CreateRunResponse struct {
		// False when a run was already queued.
		Queued bool `json:"queued"`
	}

	IndexFile struct {
		ID        string    `json:"id"`
		Source    string    `json:"source"`
		Hash      string    `json:"hash"`
		Pending   bool      `json:"pending"`
		CreatedAt time.Time `json:"created_at"`
		UpdatedAt time.Time `json:"updated_at"`
	}

	FailedImport struct {
		ID        string    `json:"id"`
		IndexID   string    `json:"index_id"`
		TitleIDs  []int32   `json:"title_ids"`
		CreatedAt time.Time `json:"created_at"`
		UpdatedAt time.Time `json:"updated_at"`
	}
)

const maxReasonLength = 256

func (r CreateRunRequest) Validate() error {
	var errs []api.ErrorDetail
	if len(r.Reason) > maxReasonLength {
		errs = append(errs, api.ErrorDetail{
			Field: "reason",
			Error: "reason must be at most 256 characters",
		})
	}
	if len(errs) > 0 {
		return api.Error{
			Reason:  "invalid_request",
			Message: "request was invalid",
			Details: errs,
		}
	}

	return nil
}
