package repository

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig indicates the repository lacks a value the backend requires,
	// for example a client or a mapping.
	ErrConfig = errors.New("repository misconfigured")

	// ErrNotFound is returned when a document or index does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrStore indicates the backend rejected a write (mapping or version conflict,
	// malformed document). The backend's detail is joined as *BackendError.
	ErrStore = errors.New("backend rejected the write")

	// ErrBackendUnavailable wraps transport failures. The repository never retries;
	// retry policy belongs to the client.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrUnsupported is returned by clients for capabilities their backend lacks.
	ErrUnsupported = errors.New("operation not supported by backend")

	// ErrResultsConsumed is yielded when search results are iterated a second time.
	ErrResultsConsumed = errors.New("search results already consumed")

	// ErrInvalidDocument indicates a value could not be converted to or from a document.
	ErrInvalidDocument = errors.New("invalid document")
)

// BackendError carries the status and reason reported by the backend unchanged.
type BackendError struct {
	Status int
	Type   string
	Reason string
}

func (e *BackendError) Error() string {
	switch {
	case e.Type != "" && e.Reason != "":
		return fmt.Sprintf("[%d] %s: %s", e.Status, e.Type, e.Reason)
	case e.Reason != "":
		return fmt.Sprintf("[%d] %s", e.Status, e.Reason)
	default:
		return fmt.Sprintf("[%d] backend error", e.Status)
	}
}

// IsNotFound reports whether err is a not-found error, either ErrNotFound or a
// BackendError with status 404.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNotFound) {
		return true
	}
	var be *BackendError
	return errors.As(err, &be) && be.Status == 404
}

// IsUnavailable reports whether err is a transport failure.
func IsUnavailable(err error) bool {
	return err != nil && errors.Is(err, ErrBackendUnavailable)
}

// storeError maps a write failure: backend rejections become ErrStore, transport
// failures and everything else pass through unchanged.
func storeError(err error) error {
	var be *BackendError
	if errors.As(err, &be) && !errors.Is(err, ErrStore) {
		return errors.Join(ErrStore, err)
	}
	return err
}

// notFound makes backend 404s match ErrNotFound and returns other errors unchanged.
func notFound(err error) error {
	if IsNotFound(err) && !errors.Is(err, ErrNotFound) {
		return errors.Join(ErrNotFound, err)
	}
	return err
}
