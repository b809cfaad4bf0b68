package db

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"
)

// Vector maps []float32 onto the pgvector wire format, which uses
// "[1,2,3]" rather than the Postgres array literal.
type Vector []float32

var (
	_ driver.Valuer = (Vector)(nil)
	_ fmt.Stringer  = (Vector)(nil)
)

func (v Vector) String() string {
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

func (v Vector) Value() (driver.Value, error) {
	return v.String(), nil
}

func (v *Vector) Scan(src any) error {
	var s string
	switch val := src.(type) {
	case []byte:
		s = string(val)
	case string:
		s = val
	case nil:
		*v = nil
		return nil
	default:
		return fmt.Errorf("db: cannot scan %T into Vector", src)
	}

	s = strings.Trim(strings.TrimSpace(s), "[]")
	if s == "" {
		*v = Vector{}
		return nil
	}
	parts := strings.Split(s, ",")
	out := make(Vector, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return fmt.Errorf("db: parse vector component %d: %w", i, err)
		}
		out[i] = float32(f)
	}
	*v = out
	return nil
}
