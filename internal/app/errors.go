package app

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

const (
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeForbidden        = "FORBIDDEN"
	CodeNotFound         = "NOT_FOUND"
	CodeConflict         = "CONFLICT"
	CodeAlreadyProcessed = "ALREADY_PROCESSED"
	CodeValidation       = "VALIDATION_ERROR"
	CodeServerError      = "SERVER_ERROR"
)

func errUnauthorized() *DomainError {
	return domainError(http.StatusUnauthorized, CodeUnauthorized, "Unauthorized", nil)
}

func errForbidden(message string) *DomainError {
	if message == "" {
		message = "Forbidden"
	}
	return domainError(http.StatusForbidden, CodeForbidden, message, nil)
}

func errNotFound(what string) *DomainError {
	return domainError(http.StatusNotFound, CodeNotFound, what+" not found", nil)
}

func errConflict(message string) *DomainError {
	return domainError(http.StatusConflict, CodeConflict, message, nil)
}

// AlreadyProcessedDetails lets a client tell "already handled" apart from
// other failures and redirect to the sharer.
type AlreadyProcessedDetails struct {
	Status   string `json:"status"`
	SharerID string `json:"sharerId"`
}

func errAlreadyProcessed(what, status, sharerID string) *DomainError {
	return domainError(http.StatusConflict, CodeAlreadyProcessed,
		fmt.Sprintf("%s already %s", what, strings.ToLower(status)),
		AlreadyProcessedDetails{Status: status, SharerID: sharerID})
}

func errValidation(message string) *DomainError {
	return domainError(http.StatusUnprocessableEntity, CodeValidation, message, nil)
}

// IsCode reports whether err is a DomainError with the given code.
func IsCode(err error, code string) bool {
	var de *DomainError
	return errors.As(err, &de) && de.Code == code
}
