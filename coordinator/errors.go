package coordinator

import "errors"

// ErrCapacityExceeded indicates Acquire was refused because maxConcurrent slots are
// already held.
var ErrCapacityExceeded = errors.New("coordinator: run capacity exceeded")
