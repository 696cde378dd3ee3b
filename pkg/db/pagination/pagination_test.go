package pagination

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	in := Cursor{CreatedAt: "2026-08-01T12:00:00.000000001Z", ID: "42"}

	encoded, err := EncodeCursor(in)
	require.NoError(t, err)

	out, err := DecodeCursor(encoded)
	require.NoError(t, err)
	require.Equal(t, in, *out)
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	_, err := DecodeCursor("not base64!!")
	require.Error(t, err)

	_, err = DecodeCursor("bm90IGpzb24=")
	require.Error(t, err)
}

type row struct {
	ID string
}

func page(n int) []*row {
	rows := make([]*row, n)
	for i := range rows {
		rows[i] = &row{ID: strconv.Itoa(i)}
	}
	return rows
}

func TestTrimFullPage(t *testing.T) {
	rows, info := Trim(page(4), 3, func(r *row) Cursor { return Cursor{ID: r.ID} })

	require.Len(t, rows, 3)
	require.True(t, info.HasMore)

	cursor, err := DecodeCursor(info.NextCursor)
	require.NoError(t, err)
	require.Equal(t, "2", cursor.ID)
}

func TestTrimPartialPage(t *testing.T) {
	rows, info := Trim(page(2), 3, func(r *row) Cursor { return Cursor{ID: r.ID} })

	require.Len(t, rows, 2)
	require.False(t, info.HasMore)
	require.NotEmpty(t, info.NextCursor)
}

func TestTrimEmptyPage(t *testing.T) {
	rows, info := Trim(page(0), 3, func(r *row) Cursor { return Cursor{ID: r.ID} })

	require.Empty(t, rows)
	require.False(t, info.HasMore)
	require.Empty(t, info.NextCursor)
}
