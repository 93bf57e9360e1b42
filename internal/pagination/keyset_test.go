package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type row struct{ ID int64 }

func rowID(r row) int64 { return r.ID }

// fixture returns a fetch over ids 1..n that honours cursor and limit like the SQL does.
func fixture(n int64) (Fetch[row], *int) {
	calls := 0
	return func(cursor int64, limit int) ([]row, error) {
		calls++
		var out []row
		for id := cursor + 1; id <= n && len(out) < limit; id++ {
			out = append(out, row{ID: id})
		}
		return out, nil
	}, &calls
}

func TestLoad_WalksStableDatasetWithoutGapsOrDuplicates(t *testing.T) {
	fetch, calls := fixture(25)

	var (
		cursor int64
		sizes  []int
		seen   = map[int64]bool{}
	)
	for {
		page, err := Load(cursor, 10, fetch, rowID)
		require.NoError(t, err)
		sizes = append(sizes, len(page.Items))
		for _, r := range page.Items {
			assert.False(t, seen[r.ID], "duplicate id %d", r.ID)
			seen[r.ID] = true
		}
		if !page.HasMore {
			break
		}
		cursor = page.NextCursor
	}

	assert.Equal(t, []int{10, 10, 5}, sizes)
	assert.Len(t, seen, 25)
	assert.Equal(t, 3, *calls)
}

func TestTrim(t *testing.T) {
	rows := []row{{1}, {2}, {3}}

	p := Trim(rows, 2, rowID)
	assert.True(t, p.HasMore)
	assert.Len(t, p.Items, 2)
	assert.Equal(t, int64(2), p.NextCursor)

	p = Trim(rows, 3, rowID)
	assert.False(t, p.HasMore)
	assert.Equal(t, int64(3), p.NextCursor)

	p = Trim[row](nil, 3, rowID)
	assert.False(t, p.HasMore)
	assert.Zero(t, p.NextCursor)
}

func TestNormalizeLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, NormalizeLimit(0))
	assert.Equal(t, DefaultLimit, NormalizeLimit(-4))
	assert.Equal(t, 7, NormalizeLimit(7))
	assert.Equal(t, MaxLimit, NormalizeLimit(1000))
}

func TestParseCursorAndLimit(t *testing.T) {
	c, err := ParseCursor("")
	require.NoError(t, err)
	assert.Zero(t, c)

	c, err = ParseCursor(" 42 ")
	require.NoError(t, err)
	assert.Equal(t, int64(42), c)

	_, err = ParseCursor("abc")
	assert.ErrorIs(t, err, ErrInvalidCursor)
	_, err = ParseCursor("-1")
	assert.ErrorIs(t, err, ErrInvalidCursor)

	assert.Equal(t, DefaultLimit, ParseLimit("nope"))
	assert.Equal(t, 25, ParseLimit("25"))
	assert.Equal(t, MaxLimit, ParseLimit("500"))
}
