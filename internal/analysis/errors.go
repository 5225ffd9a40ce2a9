package analysis

import "github.com/arribada/audiocontroller/internal/errors"

// ErrWindowMismatch is returned when the configured window length differs from the model input
var ErrWindowMismatch = errors.NewStd("window length does not match model input")
