package generic

import (
	"testing"

	assert_ "github.com/stretchr/testify/assert"
)

func TestSet(t *testing.T) {
	assert := assert_.New(t)

	s := NewSet[int]()
	assert.Equal(0, s.Count())
	assert.False(s.Contains(1))
	assert.Equal(1, s.Add(1))
	assert.Equal(0, s.Add(1))
	assert.True(s.Contains(1))
	assert.True(s.Remove(1))
	assert.False(s.Remove(1))
	assert.Equal(0, s.Count())

	s2 := s.Clone()
	s2.Add(1)
	assert.True(s2.Contains(1))
	assert.False(s.Contains(1))
	s2.Clear()
	assert.False(s2.Contains(1))

	s3 := NewSet(1, 2, 3)
	assert.True(s3.Contains(1, 3))
	assert.False(s3.Contains(1, 4))
	assert.ElementsMatch([]int{1, 2, 3}, s3.Clone().ToSlice())
}

func TestSorted(t *testing.T) {
	type quality string
	assert_.Equal(t, []quality{"1080p", "360p", "best"}, Sorted(NewSet[quality]("best", "360p", "1080p")))
}
