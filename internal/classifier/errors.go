package classifier

import (
	"fmt"

	"github.com/arribada/audiocontroller/internal/errors"
)

var (
	// ErrClassification matches every error returned by an engine invocation
	ErrClassification = errors.NewStd("classification failed")

	// ErrOutOfRange is returned when an engine pulls outside the window
	ErrOutOfRange = errors.NewStd("signal range out of bounds")
)

// ClassificationError carries the engine's status code
type ClassificationError struct {
	Code int
	Err  error
}

func (e *ClassificationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("classifier returned %d", e.Code)
	}
	return fmt.Sprintf("classifier returned %d: %v", e.Code, e.Err)
}

func (e *ClassificationError) Unwrap() error { return e.Err }

// Is matches ErrClassification
func (e *ClassificationError) Is(target error) bool { return target == ErrClassification }

// ErrorCategory implements errors.CategorizedError
func (e *ClassificationError) ErrorCategory() errors.ErrorCategory {
	return errors.CategoryClassification
}

// NewClassificationError wraps err with an engine status code
func NewClassificationError(code int, err error) error {
	return &ClassificationError{Code: code, Err: err}
}
