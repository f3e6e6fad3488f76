package util

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAtomicRef(t *testing.T) {
	type snapshot struct {
		version int
		items   []int
	}

	ref := NewAtomicRef(&snapshot{version: 0})
	wg := sync.WaitGroup{}
	for i := 1; i <= 100; i++ {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			s := &snapshot{version: v, items: make([]int, v)}
			ref.Set(s)
		}(i)
		got := ref.Get()
		assert.Equal(t, got.version, len(got.items))
	}
	wg.Wait()

	old := ref.Swap(nil)
	assert.NotNil(t, old)
	assert.Nil(t, ref.Get())
}
