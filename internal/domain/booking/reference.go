package booking

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

var ErrInvalidReference = errors.New("invalid booking reference")

var referencePattern = regexp.MustCompile(`^([A-Z]{2,4})-(\d{4})-(\d{6})$`)

// FormatReference renders a per-year sequence number as the human-readable
// booking reference, e.g. BK-2026-000042. Sequence numbers come from an
// atomic per-year counter; formatting is the only concern here.
func FormatReference(prefix string, year int, seq int64) string {
	return fmt.Sprintf("%s-%04d-%06d", prefix, year, seq)
}

type ReferenceParts struct {
	Prefix string
	Year   int
	Seq    int64
}

func ParseReference(ref string) (ReferenceParts, error) {
	m := referencePattern.FindStringSubmatch(ref)
	if m == nil {
		return ReferenceParts{}, ErrInvalidReference
	}
	year, err := strconv.Atoi(m[2])
	if err != nil {
		return ReferenceParts{}, ErrInvalidReference
	}
	seq, err := strconv.ParseInt(m[3], 10, 64)
	if err != nil {
		return ReferenceParts{}, ErrInvalidReference
	}
	return ReferenceParts{Prefix: m[1], Year: year, Seq: seq}, nil
}
