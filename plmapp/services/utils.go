package services

import (
	"errors"
	"log/slog"
	"net/http"

	"openplm/plmapp/controllers"
	"openplm/plmapp/references"
	"openplm/plmapp/schema"
)

type codedError struct {
	err  error
	code int
}

func (e *codedError) Error() string {
	return e.err.Error()
}

func (e *codedError) Unwrap() error {
	return e.err
}

func CodedError(err error, code int) error {
	return &codedError{err: err, code: code}
}

func GetResponseCode(err error) int {
	var cerr *codedError
	if errors.As(err, &cerr) {
		return cerr.code
	}
	slog.Error("non coded error passed to GetResponseCode", "error", err)
	return http.StatusInternalServerError
}

// controllerError assigns a response code to a controller error so every
// handler can report failures uniformly.
func controllerError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, controllers.ErrValidation),
		errors.Is(err, references.ErrBadReference),
		errors.Is(err, references.ErrBadRevision):
		return CodedError(err, http.StatusBadRequest)
	case errors.Is(err, controllers.ErrPermission):
		return CodedError(err, http.StatusForbidden)
	case errors.Is(err, controllers.ErrPromotion),
		errors.Is(err, controllers.ErrRevision):
		return CodedError(err, http.StatusUnprocessableEntity)
	case errors.Is(err, controllers.ErrConflict),
		errors.Is(err, schema.ErrLinkExists),
		errors.Is(err, schema.ErrStateBoundary),
		errors.Is(err, schema.ErrLifecycleExists):
		return CodedError(err, http.StatusConflict)
	case errors.Is(err, controllers.ErrLock):
		return CodedError(err, http.StatusLocked)
	case errors.Is(err, schema.ErrObjectNotFound),
		errors.Is(err, schema.ErrEcrNotFound),
		errors.Is(err, schema.ErrUserNotFound),
		errors.Is(err, schema.ErrGroupNotFound),
		errors.Is(err, schema.ErrFileNotFound),
		errors.Is(err, schema.ErrLifecycleNotFound),
		errors.Is(err, schema.ErrNoStateAt):
		return CodedError(err, http.StatusNotFound)
	case errors.Is(err, schema.ErrStateNotInLifecycle),
		errors.Is(err, schema.ErrEmptyLifecycle),
		errors.Is(err, schema.ErrInvalidOfficialState):
		return CodedError(err, http.StatusBadRequest)
	default:
		return CodedError(err, http.StatusInternalServerError)
	}
}
