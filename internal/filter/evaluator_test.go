package filter

import (
	"runtime"
	"testing"
	"time"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func sameSlice[T any](a, b []T) bool {
	return len(a) == len(b) && unsafe.SliceData(a) == unsafe.SliceData(b)
}

func TestNewEvaluator_Defaults(t *testing.T) {
	e := NewEvaluator[Record]()
	assert.Equal(t, 120*time.Millisecond, e.Debounce())

	e = NewEvaluator[Record](WithDebounce(300*time.Millisecond), WithLogger(zap.NewNop()))
	assert.Equal(t, 300*time.Millisecond, e.Debounce())
}

func TestEvaluator_Immediate(t *testing.T) {
	e := NewEvaluator[Record]()
	recs := sampleLeads()

	a := e.Immediate(recs, []Condition{{Field: "temperature", Operator: OpEquals, Value: "warm"}})
	b := e.Immediate(recs, []Condition{{Field: "temperature", Operator: OpEquals, Value: "warm"}})
	assert.Equal(t, []any{2, 4}, ids(a))
	assert.Equal(t, ids(a), ids(b))
	assert.False(t, sameSlice(a, b), "immediate mode must not cache")
}

func TestEvaluator_MemoizedReferentialStability(t *testing.T) {
	e := NewEvaluator[Record]()
	c := NewCollection(sampleLeads())

	warm := []Condition{{Field: "temperature", Operator: OpEquals, Value: "warm"}}
	first := e.Memoized(c, warm)
	second := e.Memoized(c, []Condition{{Field: "temperature", Operator: OpEquals, Value: "warm"}})

	require.Len(t, first, 2)
	assert.True(t, sameSlice(first, second), "identical conditions must return the cached slice")

	other := e.Memoized(c, []Condition{{Field: "temperature", Operator: OpEquals, Value: "hot"}})
	require.Len(t, other, 1)
	assert.False(t, sameSlice(first, other))
}

func TestEvaluator_MemoizedEmptyResultsAreDistinct(t *testing.T) {
	e := NewEvaluator[Record]()
	c := NewCollection([]Record{{"a": 1}})

	gt5 := e.Memoized(c, []Condition{{Field: "a", Operator: OpGT, Value: 5}})
	gt6 := e.Memoized(c, []Condition{{Field: "a", Operator: OpGT, Value: 6}})
	require.NotNil(t, gt5)
	require.NotNil(t, gt6)
	assert.Empty(t, gt5)
	assert.Empty(t, gt6)
	assert.False(t, sameSlice(gt5, gt6), "different conditions must return different references")

	again := e.Memoized(c, []Condition{{Field: "a", Operator: OpGT, Value: 5}})
	assert.True(t, sameSlice(gt5, again))
}

func TestEvaluator_MemoizedDropsUnreachableCollection(t *testing.T) {
	e := NewEvaluator[Record]()
	conds := []Condition{{Field: "temperature", Operator: OpEquals, Value: "hot"}}

	func() {
		c := NewCollection(sampleLeads())
		require.Len(t, e.Memoized(c, conds), 1)
	}()
	require.Equal(t, 1, e.cache.collections())

	assert.Eventually(t, func() bool {
		runtime.GC()
		return e.cache.collections() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestEvaluator_MemoizedScopedPerCollection(t *testing.T) {
	e := NewEvaluator[Record]()
	c1 := NewCollection(sampleLeads())
	c2 := NewCollection([]Record{{"id": 9, "temperature": "warm"}})

	conds := []Condition{{Field: "temperature", Operator: OpEquals, Value: "warm"}}
	r1 := e.Memoized(c1, conds)
	r2 := e.Memoized(c2, conds)

	assert.Equal(t, []any{2, 4}, ids(r1))
	assert.Equal(t, []any{9}, ids(r2))
	assert.Equal(t, 2, e.cache.collections())

	runtime.KeepAlive(c1)
	runtime.KeepAlive(c2)
}

func TestEvaluator_MemoizedEmptyConditions(t *testing.T) {
	e := NewEvaluator[Record]()
	recs := sampleLeads()
	c := NewCollection(recs)

	got := e.Memoized(c, nil)
	assert.True(t, sameSlice(recs, got))
	assert.Nil(t, e.Memoized(nil, nil))
}

func TestEvaluator_MemoizedUnserializableSkipsCache(t *testing.T) {
	e := NewEvaluator[Record](WithLogger(zap.NewNop()))
	c := NewCollection(sampleLeads())

	conds := []Condition{{Field: "name", Operator: "weird", Value: func() {}}}
	a := e.Memoized(c, conds)
	b := e.Memoized(c, conds)
	assert.Len(t, a, 4)
	assert.False(t, sameSlice(a, b))
}

func TestEvaluator_CacheBounded(t *testing.T) {
	e := NewEvaluator[Record](WithCacheSize(2, 1))
	c1 := NewCollection(sampleLeads())
	c2 := NewCollection(sampleLeads())
	c3 := NewCollection(sampleLeads())

	hot := []Condition{{Field: "temperature", Operator: OpEquals, Value: "hot"}}
	warm := []Condition{{Field: "temperature", Operator: OpEquals, Value: "warm"}}

	first := e.Memoized(c1, hot)
	e.Memoized(c1, warm) // evicts hot for c1
	again := e.Memoized(c1, hot)
	assert.False(t, sameSlice(first, again))

	e.Memoized(c2, hot)
	e.Memoized(c3, hot)
	assert.Equal(t, 2, e.cache.collections())

	runtime.KeepAlive(c1)
	runtime.KeepAlive(c2)
	runtime.KeepAlive(c3)
}

func TestEvaluator_Reset(t *testing.T) {
	e := NewEvaluator[Record]()
	c := NewCollection(sampleLeads())
	conds := []Condition{{Field: "temperature", Operator: OpEquals, Value: "hot"}}

	a := e.Memoized(c, conds)
	e.Reset()
	b := e.Memoized(c, conds)
	assert.False(t, sameSlice(a, b))
}

func TestEvaluator_DebounceSupersession(t *testing.T) {
	clock := &fakeClock{}
	e := NewEvaluator[Record](WithDebounce(100*time.Millisecond), withAfterFunc(clock.AfterFunc))
	c := NewCollection(sampleLeads())

	var calls [][]Record
	cb := func(r []Record) { calls = append(calls, r) }

	e.Debounced(c, []Condition{{Field: "temperature", Operator: OpEquals, Value: "hot"}}, cb)
	clock.Advance(50 * time.Millisecond)
	assert.Empty(t, calls)

	e.Debounced(c, []Condition{{Field: "temperature", Operator: OpEquals, Value: "cold"}}, cb)
	clock.Advance(100 * time.Millisecond)

	require.Len(t, calls, 1)
	assert.Equal(t, []any{3}, ids(calls[0]))
}

func TestEvaluator_DebounceCollapsesBursts(t *testing.T) {
	clock := &fakeClock{}
	e := NewEvaluator[Record](WithDebounce(100*time.Millisecond), withAfterFunc(clock.AfterFunc))
	c := NewCollection(sampleLeads())

	var calls int
	var last []Record
	for _, temp := range []string{"hot", "warm", "cold", "warm"} {
		e.Debounced(c, []Condition{{Field: "temperature", Operator: OpEquals, Value: temp}}, func(r []Record) {
			calls++
			last = r
		})
		clock.Advance(20 * time.Millisecond)
	}
	assert.Equal(t, 0, calls)

	clock.Advance(100 * time.Millisecond)
	assert.Equal(t, 1, calls)
	assert.Equal(t, []any{2, 4}, ids(last))

	clock.Advance(time.Second)
	assert.Equal(t, 1, calls)
}

func TestEvaluator_DebouncedUsesMemoizedResult(t *testing.T) {
	clock := &fakeClock{}
	e := NewEvaluator[Record](WithDebounce(10*time.Millisecond), withAfterFunc(clock.AfterFunc))
	c := NewCollection(sampleLeads())
	conds := []Condition{{Field: "temperature", Operator: OpEquals, Value: "warm"}}

	memo := e.Memoized(c, conds)

	var got []Record
	e.Debounced(c, conds, func(r []Record) { got = r })
	clock.Advance(10 * time.Millisecond)
	assert.True(t, sameSlice(memo, got))
}

func TestEvaluator_DebouncedCopiesConditions(t *testing.T) {
	clock := &fakeClock{}
	e := NewEvaluator[Record](WithDebounce(10*time.Millisecond), withAfterFunc(clock.AfterFunc))
	c := NewCollection(sampleLeads())

	conds := []Condition{{Field: "temperature", Operator: OpEquals, Value: "hot"}}
	var got []Record
	e.Debounced(c, conds, func(r []Record) { got = r })
	conds[0].Value = "cold"
	clock.Advance(10 * time.Millisecond)

	assert.Equal(t, []any{1}, ids(got))
}

func TestEvaluator_CancelAndFlush(t *testing.T) {
	clock := &fakeClock{}
	e := NewEvaluator[Record](WithDebounce(100*time.Millisecond), withAfterFunc(clock.AfterFunc))
	c := NewCollection(sampleLeads())
	conds := []Condition{{Field: "temperature", Operator: OpEquals, Value: "hot"}}

	var calls int
	e.Debounced(c, conds, func([]Record) { calls++ })
	e.Cancel()
	clock.Advance(time.Second)
	assert.Equal(t, 0, calls)

	e.Debounced(c, conds, func([]Record) { calls++ })
	assert.True(t, e.Flush())
	assert.Equal(t, 1, calls)
	clock.Advance(time.Second)
	assert.Equal(t, 1, calls)
	assert.False(t, e.Flush())
}
