package iter

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, it PositionIter) ([]uint64, error) {
	t.Helper()
	var out []uint64
	for {
		v, ok, err := it.Next()
		if err != nil {
			return out, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, v)
	}
}

func TestOrUnionDeduplicates(t *testing.T) {
	a := Slice([]uint64{1, 3, 5})
	b := Slice([]uint64{3, 4, 5, 6})
	out, err := drain(t, Or([]PositionIter{a, b}))
	require.NoError(t, err)
	require.Equal(t, []uint64{1, 3, 4, 5, 6}, out)
}

func TestOrOfEmptyChildrenIsEmpty(t *testing.T) {
	out, err := drain(t, Or([]PositionIter{Empty(), Empty()}))
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestOrWithNoChildrenIsEmpty(t *testing.T) {
	out, err := drain(t, Or(nil))
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestAndIntersectionSkipsNonMembers(t *testing.T) {
	a := Slice([]uint64{1, 2, 3, 4, 5})
	b := Slice([]uint64{2, 4, 5, 6})
	c := Slice([]uint64{2, 4, 5, 7})
	out, err := drain(t, And([]PositionIter{a, b, c}))
	require.NoError(t, err)
	require.Equal(t, []uint64{2, 4, 5}, out)
}

func TestAndWithEmptyChildIsEmpty(t *testing.T) {
	a := Slice([]uint64{1, 2, 3})
	out, err := drain(t, And([]PositionIter{a, Empty()}))
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestAndOfThreeWithOneDisjointIsEmpty(t *testing.T) {
	a := Slice([]uint64{1, 2, 3})
	b := Slice([]uint64{1, 2, 3})
	disjoint := Slice([]uint64{100, 200})
	out, err := drain(t, And([]PositionIter{a, b, disjoint}))
	require.NoError(t, err)
	require.Empty(t, out)
}

type errIter struct {
	emitted bool
	err     error
}

func (e *errIter) Next() (uint64, bool, error) {
	if e.emitted {
		return 0, false, e.err
	}
	e.emitted = true
	return 1, true, nil
}

func TestOrPropagatesErrorAndThenStaysExhausted(t *testing.T) {
	boom := errors.New("boom")
	it := Or([]PositionIter{&errIter{err: boom}, Slice([]uint64{1, 2})})
	_, err := drain(t, it)
	require.ErrorIs(t, err, boom)
	// subsequent calls keep returning the same terminal state
	_, ok, err2 := it.Next()
	require.False(t, ok)
	require.ErrorIs(t, err2, boom)
}

func TestAndPropagatesError(t *testing.T) {
	boom := errors.New("boom")
	it := And([]PositionIter{&errIter{err: boom}, Slice([]uint64{1, 1})})
	_, err := drain(t, it)
	require.ErrorIs(t, err, boom)
}
