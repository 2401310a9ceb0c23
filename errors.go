package adaptprofiler

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// Sentinel errors for common profiler error conditions. Use with errors.Is.
var (
	// ErrInvalidConfig indicates a RunConfig failed validation.
	ErrInvalidConfig = errors.New("invalid run configuration")

	// ErrMissingCoreRegime indicates a configuration defines no "core" regime, which
	// every run requires as its first administered regime.
	ErrMissingCoreRegime = errors.New("configuration is missing the core regime")

	// ErrPoolExhausted indicates the selector found no eligible, unused item for the
	// current regime and stage. Engine.Run does not return it: a run whose pool runs
	// out ends normally with stop reason stopping.ReasonItemPoolExhausted.
	ErrPoolExhausted = errors.New("item pool exhausted")

	// ErrAdapterContract indicates a ModelAdapter returned a response violating its
	// contract: a negative prompt or completion token count. Empty text is accepted
	// and scored like any other output.
	ErrAdapterContract = errors.New("model adapter violated its response contract")
)

// Error kinds categorize profiler errors by type.
const (
	KindConfiguration  = "configuration"
	KindValidation     = "validation"
	KindAdapter        = "adapter"
	KindPoolExhausted  = "pool_exhausted"
	KindInternal       = "internal"
)

// ProfilerError is a structured error type wrapping an underlying error with the
// operation that failed and its category.
type ProfilerError struct {
	// Op is the operation that failed, e.g. "Engine.Run", "config.Load".
	Op string

	// Kind categorizes the error.
	Kind string

	// Err is the underlying error.
	Err error

	// Context carries additional debugging detail (run_id, item_id, call_index, ...).
	Context map[string]any
}

func (e *ProfilerError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("adaptprofiler: %s: %s", e.Op, e.Kind)
	}
	if len(e.Context) > 0 {
		return fmt.Sprintf("adaptprofiler: %s (%s): %v [context: %+v]", e.Op, e.Kind, e.Err, e.Context)
	}
	return fmt.Sprintf("adaptprofiler: %s (%s): %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *ProfilerError) Unwrap() error {
	return e.Err
}

// Is matches by Kind (and Op, if the target specifies one), falling back to
// unwrapping the underlying error.
func (e *ProfilerError) Is(target error) bool {
	if target == nil {
		return false
	}
	if t, ok := target.(*ProfilerError); ok {
		if t.Kind != "" && e.Kind == t.Kind {
			if t.Op == "" || e.Op == t.Op {
				return true
			}
		}
	}
	return errors.Is(e.Err, target)
}

// WithContext returns a copy of e with ctx merged into Context.
func (e *ProfilerError) WithContext(ctx map[string]any) *ProfilerError {
	out := *e
	if out.Context == nil {
		out.Context = make(map[string]any, len(ctx))
	}
	for k, v := range ctx {
		out.Context[k] = v
	}
	return &out
}

func newConfigurationError(op string, err error) *ProfilerError {
	return &ProfilerError{Op: op, Kind: KindConfiguration, Err: err}
}

func newValidationError(op string, err error) *ProfilerError {
	return &ProfilerError{Op: op, Kind: KindValidation, Err: err}
}

func newAdapterError(op string, err error) *ProfilerError {
	return &ProfilerError{Op: op, Kind: KindAdapter, Err: err}
}

func newPoolExhaustedError(op string) *ProfilerError {
	return &ProfilerError{Op: op, Kind: KindPoolExhausted, Err: ErrPoolExhausted}
}

func newInternalError(op string, err error) *ProfilerError {
	return &ProfilerError{Op: op, Kind: KindInternal, Err: err}
}

// CloseWithLog closes closer and logs any error at warning level, intended for defer
// statements where a close error should not be silently swallowed. If logger is nil,
// slog.Default() is used.
func CloseWithLog(closer io.Closer, logger *slog.Logger, name string) {
	if closer == nil {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := closer.Close(); err != nil {
		logger.Warn("failed to close resource", "resource", name, "error", err)
	}
}
