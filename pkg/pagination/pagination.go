// Package pagination provides limit/offset parsing for list endpoints.
package pagination

import "strconv"

const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// Params holds limit/offset pagination parameters.
type Params struct {
	Limit  int
	Offset int
}

// Parse reads limit/offset query strings, clamping to valid ranges.
// Limit defaults to defaultLimit and is clamped to [1, maxLimit];
// offset defaults to 0 and is clamped to >= 0.
func Parse(limitStr, offsetStr string, defaultLimit, maxLimit int) Params {
	p := Params{Limit: defaultLimit, Offset: 0}
	if limitStr != "" {
		if v, err := strconv.Atoi(limitStr); err == nil {
			p.Limit = v
		}
	}
	if offsetStr != "" {
		if v, err := strconv.Atoi(offsetStr); err == nil {
			p.Offset = v
		}
	}
	if p.Limit < 1 {
		p.Limit = 1
	}
	if p.Limit > maxLimit {
		p.Limit = maxLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// HasNext reports whether more rows exist past the current page.
func HasNext(total int64, limit, offset int) bool {
	return int64(offset+limit) < total
}
