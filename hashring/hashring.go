// Package hashring assigns correlation key values to peers by consistent hashing
package hashring

import (
	"strings"
	"sync"

	"github.com/lafikl/consistent"
	"github.com/relex/gotils/logger"
	"github.com/relex/gotils/promexporter/promext"
	"github.com/relex/gotils/promexporter/promreg"
	"github.com/relex/peer-forwarder/base"
	"github.com/relex/peer-forwarder/defs"
	"github.com/relex/peer-forwarder/discovery/dbase"
	"github.com/relex/peer-forwarder/util"
	"golang.org/x/exp/slices"
)

// keySeparator joins values of multiple keys into one composite key, must not appear in normal values
const keySeparator = "\x00"

// HashRing maps composite key values to the owning peer
//
// Lookups are lock-free on an immutable snapshot. A new snapshot is built on every peer list change.
type HashRing struct {
	logger      logger.Logger
	provider    base.PeerListProvider
	state       *util.AtomicRef[ringState]
	rebuildLock sync.Mutex
	peersGauge  promext.RWGauge
	rebuilds    promext.RWCounter
	close       util.RunOnce
}

type ringState struct {
	peers []string
	ring  *consistent.Consistent // nil if there is no peer
}

// New creates a HashRing from the current peer list of provider and subscribes to its changes
//
// Exactly one listener is registered to the provider per HashRing, to be removed on Close
func New(parentLogger logger.Logger, provider base.PeerListProvider, metricCreator promreg.MetricCreator) *HashRing {
	r := &HashRing{
		logger:     parentLogger.WithField(defs.LabelComponent, "HashRing"),
		provider:   provider,
		state:      util.NewAtomicRef[ringState](nil),
		peersGauge: metricCreator.AddOrGetGauge("ring_peers", "Numbers of peers in hash ring", nil, nil),
		rebuilds:   metricCreator.AddOrGetCounter("ring_rebuilds_total", "Numbers of hash ring rebuilds on membership change", nil, nil),
	}
	r.close = util.NewRunOnce(func() {
		provider.RemoveListener(r)
	})

	// subscribe first so no change is missed between the initial listing and subscription
	provider.AddListener(r)
	r.rebuild(provider.GetPeerList())
	return r
}

// OnPeerListChanged rebuilds the ring with the new peer list
func (r *HashRing) OnPeerListChanged(peers []string) {
	r.rebuild(peers)
}

// GetOwner returns the peer owning the given key values, or false if the ring has no peer
//
// Values must be in the same order as the identification keys of the caller
func (r *HashRing) GetOwner(values []string) (string, bool) {
	state := r.state.Get()
	if state.ring == nil {
		return "", false
	}
	owner, err := state.ring.Get(strings.Join(values, keySeparator))
	if err != nil {
		return "", false
	}
	return owner, true
}

// Peers returns the sorted peers in the current ring
func (r *HashRing) Peers() []string {
	return slices.Clone(r.state.Get().peers)
}

// Close unsubscribes from peer list changes, the ring keeps its last state
func (r *HashRing) Close() {
	r.close()
}

func (r *HashRing) rebuild(peers []string) {
	r.rebuildLock.Lock()
	defer r.rebuildLock.Unlock()

	normalized := dbase.NormalizePeers(peers)
	previous := r.state.Get()
	if previous != nil && dbase.EqualPeers(previous.peers, normalized) {
		return
	}

	next := &ringState{peers: normalized}
	if len(normalized) > 0 {
		next.ring = consistent.New()
		for _, p := range normalized {
			next.ring.Add(p)
		}
	}
	r.state.Set(next)
	r.peersGauge.Set(int64(len(normalized)))
	r.rebuilds.Inc()
	r.logger.Infof("rebuilt with %d peers: %v", len(normalized), normalized)
}
