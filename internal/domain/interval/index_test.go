package interval

import (
	"fmt"
	"math/rand"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zatekoja/medlogistics/backend/internal/domain/entities"
)

var base = time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

func window(fromHour, untilHour int) entities.TimeWindow {
	return entities.NewTimeWindow(base.Add(time.Duration(fromHour)*time.Hour), base.Add(time.Duration(untilHour)*time.Hour))
}

func ids(entries []Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.ID)
	}
	return out
}

func TestIndex_QueryOverlap(t *testing.T) {
	ix := New()
	require.NoError(t, ix.Insert(Entry{ID: "a", Window: window(8, 12), Status: "approved"}))
	require.NoError(t, ix.Insert(Entry{ID: "b", Window: window(12, 13), Status: "approved"}))
	require.NoError(t, ix.Insert(Entry{ID: "c", Window: window(20, 22), Status: "pending"}))

	assert.Equal(t, []string{"a"}, ids(ix.QueryOverlap(window(10, 12))))
	assert.Equal(t, []string{"a", "b"}, ids(ix.QueryOverlap(window(10, 14))))
	assert.Empty(t, ix.QueryOverlap(window(13, 20)), "touching endpoints do not conflict")
	assert.Equal(t, []string{"c"}, ids(ix.QueryOverlap(window(21, 23))))
}

func TestIndex_InsertRejectsDuplicatesAndEmptyWindows(t *testing.T) {
	ix := New()
	require.NoError(t, ix.Insert(Entry{ID: "a", Window: window(1, 2)}))
	assert.Error(t, ix.Insert(Entry{ID: "a", Window: window(3, 4)}))
	assert.Error(t, ix.Insert(Entry{ID: "b", Window: window(5, 5)}))
	assert.Equal(t, 1, ix.Len())
}

func TestIndex_RemoveAndUpdate(t *testing.T) {
	ix := New()
	for i := 0; i < 10; i++ {
		require.NoError(t, ix.Insert(Entry{ID: fmt.Sprintf("r%d", i), Window: window(i, i+2), Status: "pending"}))
	}

	assert.True(t, ix.Remove("r4"))
	assert.False(t, ix.Remove("r4"))
	assert.Equal(t, 9, ix.Len())
	assert.Equal(t, []string{"r3", "r5"}, ids(ix.QueryOverlap(window(4, 6))))

	assert.True(t, ix.Update("r5", "approved"))
	got, ok := ix.Get("r5")
	require.True(t, ok)
	assert.Equal(t, "approved", got.Status)
	for _, e := range ix.QueryOverlap(window(5, 6)) {
		if e.ID == "r5" {
			assert.Equal(t, "approved", e.Status)
		}
	}
}

func TestIndex_MatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	ix := New()
	live := map[string]entities.TimeWindow{}

	for step := 0; step < 2000; step++ {
		if len(live) > 0 && rng.Intn(3) == 0 {
			for id := range live {
				require.True(t, ix.Remove(id))
				delete(live, id)
				break
			}
			continue
		}
		from := rng.Intn(500)
		w := window(from, from+1+rng.Intn(24))
		id := fmt.Sprintf("e%d", step)
		require.NoError(t, ix.Insert(Entry{ID: id, Window: w}))
		live[id] = w
	}

	for q := 0; q < 200; q++ {
		from := rng.Intn(520)
		w := window(from, from+1+rng.Intn(30))

		var want []string
		for id, lw := range live {
			if lw.Overlaps(w) {
				want = append(want, id)
			}
		}
		got := ids(ix.QueryOverlap(w))
		sort.Strings(want)
		sort.Strings(got)
		assert.Equal(t, want, got, "query %s", w)
	}

	all := ix.All()
	assert.Len(t, all, len(live))
	for i := 1; i < len(all); i++ {
		assert.False(t, less(all[i], all[i-1]), "entries must be ordered by start")
	}
}
