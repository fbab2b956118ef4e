package errors

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/pkg/errors"

	mirrorerrors "github.com/customeros/mailmirror/internal/errors"
)

type MultiErrors struct {
	Errors map[string][]ErrorInfo
}

type ErrorInfo struct {
	Message  string
	RawError error
}

func NewMultiErrors() *MultiErrors {
	return &MultiErrors{
		Errors: make(map[string][]ErrorInfo),
	}
}

func (e *MultiErrors) Add(key, message string, err error) {
	e.Errors[key] = append(e.Errors[key], ErrorInfo{
		Message:  message,
		RawError: err,
	})
}

func (e *MultiErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

func (e *MultiErrors) Error() string {
	var parts []string
	for field, errors := range e.Errors {
		for _, err := range errors {
			parts = append(parts, fmt.Sprintf("%s: %s", field, err.Message))
		}
	}
	return strings.Join(parts, " | ")
}

// Fields flattens the errors for a JSON response.
func (e *MultiErrors) Fields() map[string][]string {
	out := make(map[string][]string, len(e.Errors))
	for field, infos := range e.Errors {
		for _, info := range infos {
			out[field] = append(out[field], info.Message)
		}
	}
	return out
}

// HTTPStatus maps engine errors onto response codes.
func HTTPStatus(err error) int {
	var multi *MultiErrors
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &multi), errors.Is(err, mirrorerrors.ErrInvalidInput), errors.Is(err, mirrorerrors.ErrUnsupportedMutation):
		return http.StatusBadRequest
	case errors.Is(err, mirrorerrors.ErrSyncInProgress):
		return http.StatusConflict
	case errors.Is(err, mirrorerrors.ErrUnknownTrigger):
		return http.StatusNotFound
	case errors.Is(err, mirrorerrors.ErrStorageUnavailable), errors.Is(err, mirrorerrors.ErrSchemaMismatch):
		return http.StatusServiceUnavailable
	case errors.Is(err, mirrorerrors.ErrNetworkFailure):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
