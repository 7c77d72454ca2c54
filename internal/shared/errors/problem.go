// Package errors renders RFC 7807 Problem Details for the HTTP API.
package errors

import (
	"net/http"
)

// ProblemDetail is an RFC 7807 body extended with a rejection code.
type ProblemDetail struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	// Code is the machine readable rejection code callers branch on.
	Code     string `json:"code,omitempty"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

func (p ProblemDetail) Error() string {
	if p.Detail == "" {
		return p.Title
	}
	return p.Title + ": " + p.Detail
}

// WithDetail returns a copy with the given detail message.
func (p ProblemDetail) WithDetail(detail string) ProblemDetail {
	p.Detail = detail
	return p
}

// WithCode returns a copy carrying the rejection code.
func (p ProblemDetail) WithCode(code string) ProblemDetail {
	p.Code = code
	return p
}

const (
	TypeValidation     = "/problems/validation-rejected"
	TypeNotFound       = "/problems/not-found"
	TypeConflict       = "/problems/concurrency-conflict"
	TypeUnknownCommand = "/problems/unknown-command"
	TypeBadRequest     = "/problems/bad-request"
	TypeInternal       = "/problems/internal-error"
)

// Problem templates. Mappers copy them and fill in Code and Detail.
var (
	// ErrValidation is a failed domain precondition.
	ErrValidation = newProblem(TypeValidation, "Validation Rejected", http.StatusUnprocessableEntity)

	ErrNotFound = newProblem(TypeNotFound, "Resource Not Found", http.StatusNotFound)

	// ErrConflict means the aggregate moved past the expected sequence.
	ErrConflict = newProblem(TypeConflict, "Concurrency Conflict", http.StatusConflict)

	ErrUnknownCommand = newProblem(TypeUnknownCommand, "Unknown Command", http.StatusBadRequest)

	// ErrBadRequest is a body or parameter that could not be decoded.
	ErrBadRequest = newProblem(TypeBadRequest, "Bad Request", http.StatusBadRequest)

	ErrInternal = newProblem(TypeInternal, "Internal Server Error", http.StatusInternalServerError)
)

func newProblem(typ, title string, status int) ProblemDetail {
	return ProblemDetail{Type: typ, Title: title, Status: status}
}
