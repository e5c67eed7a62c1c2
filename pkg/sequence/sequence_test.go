package sequence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type seqParams struct {
	min, max, increment, start int64
	previousAllocation         *int64
}

func i64ptr(v int64) *int64 { return &v }

func makeTestSequence(p seqParams) *Sequence {
	schema := Schema{
		SequenceID: 1,
		TableID:    1,
		ColPos:     1,
		Name:       "test_sequence",
		Start:      p.start,
		MinValue:   p.min,
		MaxValue:   p.max,
		Increment:  p.increment,
	}
	return New(schema, p.previousAllocation)
}

func TestDoubleAllocationNoops(t *testing.T) {
	p := seqParams{min: 1, max: 10, increment: 1, start: 1}
	seq := makeTestSequence(p)

	_, ok := seq.GenNextValue()
	assert.False(t, ok)

	newAlloc := seq.AllocateSteps(1)
	assert.Equal(t, int64(2), newAlloc)

	newAlloc = seq.AllocateSteps(2)
	assert.Equal(t, int64(2), newAlloc, "allocating again before exhausting the first allocation is a no-op")

	v, ok := seq.GenNextValue()
	require.True(t, ok)
	assert.Equal(t, int64(1), v)

	_, ok = seq.GenNextValue()
	assert.False(t, ok)
}

// assertSequenceWorks generates `steps` values and checks each lands in
// range and matches the wraparound arithmetic computed independently. Go's
// `%`, like Rust's, takes the sign of the dividend, so the
// `((n % range) + range) % range` form keeps the result non-negative for a
// negative raw_next.
func assertSequenceWorks(t *testing.T, seq *Sequence, p seqParams, initialValue, steps int64) {
	t.Helper()
	for i := int64(0); i < steps; i++ {
		if seq.NeedsAllocation() {
			seq.AllocateSteps(10)
		}
		val, ok := seq.GenNextValue()
		require.True(t, ok)
		assert.GreaterOrEqual(t, val, p.min)
		assert.LessOrEqual(t, val, p.max)

		rng := p.max - p.min + 1
		rawNext := initialValue + i*p.increment
		wrappedNext := ((rawNext-p.min)%rng+rng)%rng + p.min
		assert.Equal(t, wrappedNext, val, "iteration %d", i)
	}
}

func TestSimpleLoop(t *testing.T) {
	p := seqParams{min: 1, max: 10, increment: 1, start: 1}
	seq := makeTestSequence(p)
	assertSequenceWorks(t, seq, p, p.start, 100)
}

func TestLoopWithOddIncrement(t *testing.T) {
	p := seqParams{min: 1, max: 100, increment: 3, start: 1}
	seq := makeTestSequence(p)
	assertSequenceWorks(t, seq, p, p.start, 100)
}

func TestLoopWithOddIncrementAndEvenStart(t *testing.T) {
	p := seqParams{min: 1, max: 100, increment: 3, start: 10}
	seq := makeTestSequence(p)
	assertSequenceWorks(t, seq, p, p.start, 100)
}

func TestLoopWithFullyNegativeRange(t *testing.T) {
	p := seqParams{min: -100, max: -1, increment: 3, start: -50}
	seq := makeTestSequence(p)
	assertSequenceWorks(t, seq, p, p.start, 100)
}

func TestSimpleNegativeLoop(t *testing.T) {
	p := seqParams{min: 1, max: 10, increment: -1, start: 1}
	seq := makeTestSequence(p)
	assertSequenceWorks(t, seq, p, p.start, 100)
}

func TestRestartingAfterAllocation(t *testing.T) {
	p := seqParams{min: 1, max: 100, increment: 1, start: 1}
	seq := makeTestSequence(p)
	require.True(t, seq.NeedsAllocation())

	newAllocation := seq.AllocateSteps(40)
	var previousValue int64
	for !seq.NeedsAllocation() {
		v, ok := seq.GenNextValue()
		require.True(t, ok)
		previousValue = v
		assert.LessOrEqual(t, previousValue, newAllocation)
	}
	assert.Equal(t, newAllocation-1, previousValue)

	restartedParams := p
	restartedParams.previousAllocation = i64ptr(newAllocation)
	restarted := makeTestSequence(restartedParams)
	require.True(t, restarted.NeedsAllocation())
	restarted.AllocateSteps(1)
	next, ok := restarted.GenNextValue()
	require.True(t, ok)
	assert.Equal(t, newAllocation, next)
}

func TestFirstValueIsPrevAllocation(t *testing.T) {
	p := seqParams{min: 1, max: 100, increment: 1, start: 1, previousAllocation: i64ptr(7)}
	seq := makeTestSequence(p)
	require.True(t, seq.NeedsAllocation())
	seq.AllocateSteps(1)
	v, ok := seq.GenNextValue()
	require.True(t, ok)
	assert.Equal(t, int64(7), v)
}

func TestIncrementRangePanics(t *testing.T) {
	p := seqParams{min: 1, max: 10, increment: 10, start: 1}
	assert.Panics(t, func() { makeTestSequence(p) })
}

func TestPreviousOutOfRangePanics(t *testing.T) {
	p := seqParams{min: 1, max: 10, increment: 1, start: 1, previousAllocation: i64ptr(100)}
	assert.Panics(t, func() { makeTestSequence(p) })
}

func TestPreviousOutOfRangeButZero(t *testing.T) {
	p := seqParams{min: 1, max: 10, increment: 1, start: 1, previousAllocation: i64ptr(0)}
	seq := makeTestSequence(p)
	require.True(t, seq.NeedsAllocation())
	seq.AllocateSteps(1)
	v, ok := seq.GenNextValue()
	require.True(t, ok)
	assert.Equal(t, int64(1), v)
}

func TestStartOutOfRangePanics(t *testing.T) {
	p := seqParams{min: 1, max: 10, increment: 1, start: 100}
	assert.Panics(t, func() { makeTestSequence(p) })
}

func TestStateInsertGetRemove(t *testing.T) {
	st := NewState()
	seq := makeTestSequence(seqParams{min: 1, max: 10, increment: 1, start: 1})
	st.Insert(seq)

	assert.Same(t, seq, st.Get(1))
	assert.Nil(t, st.Get(2))

	removed := st.Remove(1)
	assert.Same(t, seq, removed)
	assert.Nil(t, st.Get(1))
}
