//go:build unit

package booking_test

import (
	"testing"

	"capacity-core/internal/domain/booking"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatReference(t *testing.T) {
	assert.Equal(t, "BK-2026-000001", booking.FormatReference("BK", 2026, 1))
	assert.Equal(t, "BK-2026-012345", booking.FormatReference("BK", 2026, 12345))
	assert.Equal(t, "TBL-2027-999999", booking.FormatReference("TBL", 2027, 999999))
}

func TestParseReference(t *testing.T) {
	testCases := []struct {
		name  string
		ref   string
		want  booking.ReferenceParts
		errIs error
	}{
		{
			name: "valid reference",
			ref:  "BK-2026-000042",
			want: booking.ReferenceParts{Prefix: "BK", Year: 2026, Seq: 42},
		},
		{
			name: "longer prefix",
			ref:  "TBL-2026-000001",
			want: booking.ReferenceParts{Prefix: "TBL", Year: 2026, Seq: 1},
		},
		{name: "empty", ref: "", errIs: booking.ErrInvalidReference},
		{name: "missing sequence", ref: "BK-2026", errIs: booking.ErrInvalidReference},
		{name: "short sequence", ref: "BK-2026-42", errIs: booking.ErrInvalidReference},
		{name: "lowercase prefix", ref: "bk-2026-000042", errIs: booking.ErrInvalidReference},
		{name: "garbage", ref: "not-a-reference", errIs: booking.ErrInvalidReference},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := booking.ParseReference(tc.ref)
			if tc.errIs != nil {
				require.ErrorIs(t, err, tc.errIs)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestFormatParseRoundTrip(t *testing.T) {
	ref := booking.FormatReference("BK", 2026, 987654)
	parts, err := booking.ParseReference(ref)
	require.NoError(t, err)
	assert.Equal(t, booking.ReferenceParts{Prefix: "BK", Year: 2026, Seq: 987654}, parts)
}
