package util

import (
	"sync"

	"github.com/relex/gotils/logger"
)

// Pool is a typed sync.Pool
//
// Objects are recycled per goroutine for things which are not thread-safe, e.g. base.FieldSetExtractor
type Pool[T any] struct {
	pool sync.Pool
}

// NewPool creates a Pool with the constructor for new objects
func NewPool[T any](newObject func() T) *Pool[T] {
	return &Pool[T]{
		pool: sync.Pool{
			New: func() any {
				return newObject()
			},
		},
	}
}

// Get takes an object from pool or creates a new one
func (p *Pool[T]) Get() T {
	raw := p.pool.Get()
	val, ok := raw.(T)
	if !ok {
		logger.Panic("wrong type of object in Pool: ", raw)
	}
	return val
}

// Put returns an object to pool
func (p *Pool[T]) Put(value T) {
	p.pool.Put(value)
}
