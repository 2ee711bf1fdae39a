package evalrun

import "errors"

var (
	ErrNotFound   = errors.New("eval run not found")
	ErrRunRunning = errors.New("cannot delete a running evaluation")
)
