// Package dstatic provides peer discovery from a fixed list of endpoints
package dstatic

import (
	"errors"
	"fmt"

	"github.com/relex/peer-forwarder/base"
	"github.com/relex/peer-forwarder/discovery/dbase"
	"golang.org/x/exp/slices"
)

// ErrMissingEndpoints is returned when no endpoint list is given at all
var ErrMissingEndpoints = errors.New("endpoints are required")

// Provider provides a fixed peer list, listeners are never notified
type Provider struct {
	peers     []string
	listeners dbase.ListenerList
}

// NewProvider creates a static Provider of the given endpoints
//
// Returns error for nil list or the first invalid endpoint found
func NewProvider(endpoints []string) (*Provider, error) {
	if endpoints == nil {
		return nil, ErrMissingEndpoints
	}
	for i, ep := range endpoints {
		if err := dbase.ValidateEndpoint(ep); err != nil {
			return nil, fmt.Errorf("[%d]: invalid endpoint '%s': %w", i, ep, err)
		}
	}
	return &Provider{
		peers: dbase.NormalizePeers(endpoints),
	}, nil
}

// GetPeerList returns the configured endpoints, sorted
func (p *Provider) GetPeerList() []string {
	return slices.Clone(p.peers)
}

// AddListener registers a listener, which won't be called since membership never changes
func (p *Provider) AddListener(listener base.PeerListListener) {
	p.listeners.Add(listener)
}

// RemoveListener unregisters a listener
func (p *Provider) RemoveListener(listener base.PeerListListener) {
	p.listeners.Remove(listener)
}

// Close does nothing
func (p *Provider) Close() {
}
