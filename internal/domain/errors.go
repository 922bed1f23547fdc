package domain

import (
	"errors"
	"net/http"
)

var (
	// ErrMissingFile signals that the request carried no "image" file field.
	ErrMissingFile = errors.New("no file uploaded")
	// ErrInvalidFileType signals a filename with an unsupported (or no) extension.
	ErrInvalidFileType = errors.New("invalid file type")
	// ErrRateLimited signals that a client exceeded one of its request windows.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrProcessingFailure wraps any failure of the inference call. Its cause
	// is logged but never sent to the client.
	ErrProcessingFailure = errors.New("failed to process image")
	// ErrInitialization signals that the inference session could not be created.
	// It is fatal: the process must not start serving.
	ErrInitialization = errors.New("inference session initialization failed")
	// ErrNotInitialized is returned when the session is requested before startup completed.
	ErrNotInitialized = errors.New("inference session not initialized")
	// ErrAlreadyInitialized is returned on a second initialization attempt.
	ErrAlreadyInitialized = errors.New("inference session already initialized")
)

// HTTPStatus maps an error to the status code returned to clients.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrMissingFile), errors.Is(err, ErrInvalidFileType):
		return http.StatusBadRequest
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrNotInitialized):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the client-safe message for err. Unknown errors and
// processing failures collapse into the same generic text.
func PublicMessage(err error) string {
	switch {
	case errors.Is(err, ErrMissingFile):
		return "No file uploaded"
	case errors.Is(err, ErrInvalidFileType):
		return "Invalid file type. Supported: PNG, JPG, JPEG, WEBP"
	case errors.Is(err, ErrRateLimited):
		return "Rate limit exceeded"
	case errors.Is(err, ErrNotInitialized):
		return "Service not ready"
	default:
		return "Failed to process image"
	}
}
