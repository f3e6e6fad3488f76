package dbase

import (
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/relex/peer-forwarder/defs"
)

// NewRetryBackoff creates the backoff of registry re-watch attempts, which never gives up
func NewRetryBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.RandomizationFactor = 0.2
	b.InitialInterval = 50 * time.Millisecond
	b.Multiplier = 2
	b.MaxInterval = defs.RegistryRetryMaxInterval
	b.MaxElapsedTime = 0 // never stop
	b.Reset()
	return b
}
