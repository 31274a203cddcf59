package sync_

import (
	"strconv"
	"sync"
	"testing"

	assert_ "github.com/stretchr/testify/assert"
)

func TestMap(t *testing.T) {
	assert := assert_.New(t)
	m := NewMap[string, int]()

	_, ok := m.Load("job")
	assert.False(ok)
	m.Store("job", 1)
	v, ok := m.Load("job")
	assert.True(ok)
	assert.Equal(1, v)

	assert.False(m.DeleteIf("job", func(v int) bool { return v == 2 }))
	assert.True(m.DeleteIf("job", func(v int) bool { return v == 1 }))
	assert.False(m.DeleteIf("job", func(int) bool { return true }))
	assert.Equal(0, m.Len())
}

func TestMap_LoadOrCreate(t *testing.T) {
	assert := assert_.New(t)
	m := NewMap[string, *int]()
	calls := 0
	create := func() *int { calls++; n := calls; return &n }

	first := m.LoadOrCreate("10.0.0.1", 2, create)
	assert.Same(first, m.LoadOrCreate("10.0.0.1", 2, create))
	assert.Equal(1, calls)

	m.LoadOrCreate("10.0.0.2", 2, create)
	assert.Equal(2, m.Len())
	// A third client empties the full map before being added
	m.LoadOrCreate("10.0.0.3", 2, create)
	assert.Equal(1, m.Len())
	_, ok := m.Load("10.0.0.1")
	assert.False(ok)
}

func TestRace(t *testing.T) {
	assert := assert_.New(t)
	rw := NewRWMutexed(map[string]int{})
	jobs := NewMap[string, int]()
	start := NewEvent()
	wg := sync.WaitGroup{}

	// 50 writers each bump the counter 50 times while 50 readers poll it
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start.Wait()
			for j := 0; j < 50; j++ {
				_ = rw.Locked(func(v *map[string]int) error {
					(*v)["progress"]++
					return nil
				})
			}
			jobs.Store(strconv.Itoa(i), i)
		}(i)
	}
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start.Wait()
			for j := 0; j < 50; j++ {
				_ = rw.RLocked(func(v *map[string]int) error {
					_ = (*v)["progress"]
					return nil
				})
			}
		}()
	}

	start.Set()
	wg.Wait()

	var total int
	_ = rw.RLocked(func(v *map[string]int) error {
		total = (*v)["progress"]
		return nil
	})
	assert.Equal(2500, total)
	assert.Equal(50, jobs.Len())
}
