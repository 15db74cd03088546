package history

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rec(id int64) Record {
	return Record{ID: id, URL: fmt.Sprintf("https://youtu.be/%d", id), Chapters: fmt.Sprintf("00:00 Part %d", id)}
}

func TestPrependEvictsOldestBeyondLimit(t *testing.T) {
	var list []Record
	for i := int64(1); i <= 6; i++ {
		list = Prepend(list, rec(i), DefaultMaxEntries)
		assert.LessOrEqual(t, len(list), DefaultMaxEntries)
	}

	require.Len(t, list, 5)
	ids := make([]int64, 0, len(list))
	for _, r := range list {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []int64{6, 5, 4, 3, 2}, ids)
}

func TestPrependDoesNotMutateInput(t *testing.T) {
	in := []Record{rec(2), rec(1)}
	out := Prepend(in, rec(3), 2)

	assert.Equal(t, []Record{rec(3), rec(2)}, out)
	assert.Equal(t, []Record{rec(2), rec(1)}, in)
}

func TestPrependNonPositiveLimitUsesDefault(t *testing.T) {
	var list []Record
	for i := int64(1); i <= 8; i++ {
		list = Prepend(list, rec(i), 0)
	}
	assert.Len(t, list, DefaultMaxEntries)
}

func TestTruncate(t *testing.T) {
	list := []Record{rec(7), rec(6), rec(5), rec(4)}
	assert.Equal(t, []Record{rec(7), rec(6)}, Truncate(list, 2))
	assert.Equal(t, list, Truncate(list, 10))
}

func TestNextIDStaysUnique(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)

	assert.Equal(t, now.UnixMilli(), NextID(now, nil))
	assert.Equal(t, now.UnixMilli()+1, NextID(now, []Record{{ID: now.UnixMilli()}}))
	assert.Equal(t, now.UnixMilli(), NextID(now, []Record{{ID: now.UnixMilli() - 10}}))
}
