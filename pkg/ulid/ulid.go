// Package ulid wraps oklog/ulid with database and JSON support so domain
// models can use ULIDs as primary keys without caring about encoding.
package ulid

import (
	"crypto/rand"
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// ULID is a universally unique lexicographically sortable identifier.
type ULID struct {
	ulid.ULID `json:"-"`
}

// New generates a new ULID with the current timestamp.
func New() ULID {
	return ULID{ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader)}
}

// NewFromTime generates a new ULID with a specific timestamp.
func NewFromTime(t time.Time) ULID {
	return ULID{ulid.MustNew(ulid.Timestamp(t), rand.Reader)}
}

// Parse parses a ULID string.
func Parse(s string) (ULID, error) {
	parsed, err := ulid.Parse(s)
	if err != nil {
		return ULID{}, err
	}
	return ULID{parsed}, nil
}

// MustParse parses a ULID string, panicking on error.
func MustParse(s string) ULID {
	parsed, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return parsed
}

func (u ULID) String() string {
	return u.ULID.String()
}

// Time returns the timestamp portion of the ULID.
func (u ULID) Time() time.Time {
	return ulid.Time(u.ULID.Time())
}

// IsZero returns true if the ULID is zero-valued.
func (u ULID) IsZero() bool {
	return u.ULID == ulid.ULID{}
}

// Scan implements sql.Scanner for database reads.
func (u *ULID) Scan(value interface{}) error {
	if value == nil {
		*u = ULID{}
		return nil
	}
	switch v := value.(type) {
	case string:
		parsed, err := Parse(v)
		if err != nil {
			return err
		}
		*u = parsed
		return nil
	case []byte:
		parsed, err := Parse(string(v))
		if err != nil {
			return err
		}
		*u = parsed
		return nil
	default:
		return fmt.Errorf("cannot scan %T into ULID", value)
	}
}

// Value implements driver.Valuer for database writes.
func (u ULID) Value() (driver.Value, error) {
	if u.IsZero() {
		return nil, nil
	}
	return u.String(), nil
}

// MarshalJSON implements json.Marshaler.
func (u ULID) MarshalJSON() ([]byte, error) {
	return []byte(`"` + u.String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (u *ULID) UnmarshalJSON(data []byte) error {
	if len(data) < 2 {
		return fmt.Errorf("invalid JSON for ULID: %s", string(data))
	}
	str := string(data[1 : len(data)-1])
	if str == "null" || str == "" {
		*u = ULID{}
		return nil
	}
	parsed, err := Parse(str)
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (u ULID) MarshalText() ([]byte, error) {
	return []byte(u.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (u *ULID) UnmarshalText(data []byte) error {
	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}
