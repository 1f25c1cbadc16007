package api

import "fmt"

// Error is the body of a rejected request.
type Error struct {
	Reason  string        `json:"reason"`
	Message string        `json:"message"`
	Details []ErrorDetail `json:"details,omitempty"`
}

type ErrorDetail struct {
	Field string `json:"field"`
	Error string `json:"error"`
}

func (e Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Reason, e.Message)
}
