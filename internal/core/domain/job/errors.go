package job

import "errors"

var (
	ErrNotFound      = errors.New("job not found")
	ErrUnknownType   = errors.New("unknown job type")
	ErrNotCancelable = errors.New("job is not in a cancelable state")
)
