package base

import (
	"github.com/relex/gotils/channels"
)

// PipelineWorker is a background worker of one registered plugin, e.g. the consumer draining its receive buffer
type PipelineWorker interface {

	// Start launches the worker in its own goroutine
	Start()

	// Stopped is signaled after the worker has drained its buffer one final time and exited
	Stopped() channels.Awaitable
}
