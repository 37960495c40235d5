package analysis

import (
	"fmt"

	"github.com/hotspot-detector/geodetect/internal/errors"
)

// Kind classifies why an analysis failed.
type Kind int

const (
	// KindModelUnavailable means the model never loaded.
	KindModelUnavailable Kind = iota + 1
	// KindInference covers model failures and malformed model output.
	KindInference
	// KindUnreadableRaster means the file has no usable georeferencing.
	KindUnreadableRaster
)

func (k Kind) String() string {
	switch k {
	case KindModelUnavailable:
		return "model_unavailable"
	case KindInference:
		return "inference_error"
	case KindUnreadableRaster:
		return "unreadable_raster"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is the failure outcome of Analyze.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Detail == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrorCategory implements errors.CategorizedError.
func (e *Error) ErrorCategory() errors.ErrorCategory {
	switch e.Kind {
	case KindModelUnavailable:
		return errors.CategoryState
	case KindUnreadableRaster:
		return errors.CategoryRaster
	default:
		return errors.CategoryInference
	}
}

// KindOf extracts the failure kind from err, or 0 if err is not an *Error.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return 0
}
