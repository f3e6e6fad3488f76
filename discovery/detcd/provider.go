// Package detcd provides peer discovery from keys under a prefix in etcd, where each node registers itself with a lease
package detcd

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/relex/gotils/channels"
	"github.com/relex/gotils/logger"
	"github.com/relex/peer-forwarder/base"
	"github.com/relex/peer-forwarder/defs"
	"github.com/relex/peer-forwarder/discovery/dbase"
	clientv3 "go.etcd.io/etcd/client/v3"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Client is the subset of *clientv3.Client used by Provider
type Client interface {
	clientv3.KV
	clientv3.Watcher
	clientv3.Lease
}

// Provider mirrors keys under prefix as the peer list, where the peer address is the key without prefix
type Provider struct {
	logger      logger.Logger
	client      Client
	prefix      string
	selfAddress string
	ttl         time.Duration
	ctx         context.Context
	cancel      context.CancelFunc
	peersLock   sync.RWMutex
	peerSet     map[string]struct{}
	peers       []string
	listeners   dbase.ListenerList
	stopped     channels.Awaitable
}

// NewProvider creates an etcd provider on the client, which is closed with the Provider
//
// If selfAddress is non-empty, it's registered under prefix with a lease of the given TTL, kept alive until Close
func NewProvider(parentLogger logger.Logger, client Client, prefix string, selfAddress string, ttl time.Duration) (*Provider, error) {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Provider{
		logger:      parentLogger.WithFields(logger.Fields{defs.LabelComponent: "EtcdPeerListProvider", "prefix": prefix}),
		client:      client,
		prefix:      prefix,
		selfAddress: selfAddress,
		ttl:         ttl,
		ctx:         ctx,
		cancel:      cancel,
	}

	initCtx, initCancel := context.WithTimeout(ctx, defs.RegistryInitialTimeout)
	defer initCancel()

	var keepAlive <-chan *clientv3.LeaseKeepAliveResponse
	var leaseID clientv3.LeaseID
	if selfAddress != "" {
		var err error
		leaseID, keepAlive, err = p.registerSelf(initCtx)
		if err != nil {
			cancel()
			return nil, err
		}
	}

	revision, err := p.load(initCtx)
	if err != nil {
		cancel()
		return nil, err
	}
	p.logger.Infof("found %d peers: %v", len(p.peers), p.peers)

	// add before creating the awaitable, which would be done immediately on zero counter
	taskCounter := &sync.WaitGroup{}
	taskCounter.Add(1)
	if selfAddress != "" {
		taskCounter.Add(1)
	}
	p.stopped = channels.NewWaitGroupAwaitable(taskCounter)
	go func() {
		defer taskCounter.Done()
		p.runWatch(revision)
	}()
	if selfAddress != "" {
		go func() {
			defer taskCounter.Done()
			p.runKeepAlive(leaseID, keepAlive)
		}()
	}
	return p, nil
}

// GetPeerList returns the current peers, sorted
func (p *Provider) GetPeerList() []string {
	p.peersLock.RLock()
	defer p.peersLock.RUnlock()
	return slices.Clone(p.peers)
}

// AddListener registers a listener to be called on changes under prefix
func (p *Provider) AddListener(listener base.PeerListListener) {
	p.listeners.Add(listener)
}

// RemoveListener unregisters a listener
func (p *Provider) RemoveListener(listener base.PeerListListener) {
	p.listeners.Remove(listener)
}

// Close stops watching, revokes the self registration and closes the client
func (p *Provider) Close() {
	p.cancel()
	p.stopped.WaitForever()
	if err := p.client.Close(); err != nil {
		p.logger.Warnf("failed to close client: %s", err.Error())
	}
}

// load reads all keys under prefix and returns the revision to watch from
func (p *Provider) load(ctx context.Context) (int64, error) {
	resp, err := p.client.Get(ctx, p.prefix, clientv3.WithPrefix())
	if err != nil {
		return 0, fmt.Errorf("failed to list '%s': %w", p.prefix, err)
	}
	peerSet := make(map[string]struct{}, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		if addr := strings.TrimPrefix(string(kv.Key), p.prefix); addr != "" {
			peerSet[addr] = struct{}{}
		}
	}
	p.replace(peerSet)
	return resp.Header.Revision, nil
}

func (p *Provider) runWatch(revision int64) {
	retry := dbase.NewRetryBackoff()
	for {
		watchCtx, watchCancel := context.WithCancel(p.ctx)
		watchChan := p.client.Watch(watchCtx, p.prefix, clientv3.WithPrefix(), clientv3.WithRev(revision+1))
		for resp := range watchChan {
			if werr := resp.Err(); werr != nil {
				p.logger.Warnf("watch error: %s", werr.Error())
				break
			}
			retry.Reset()
			revision = resp.Header.Revision
			p.apply(resp.Events)
		}
		watchCancel()

		for {
			if p.ctx.Err() != nil {
				p.logger.Info("stopped watching")
				return
			}
			delay := retry.NextBackOff()
			select {
			case <-p.ctx.Done():
				continue
			case <-time.After(delay):
			}
			// reload as the revision may have been compacted
			rev, err := p.load(p.ctx)
			if err != nil {
				p.logger.Warnf("failed to reload, retry: %s", err.Error())
				continue
			}
			revision = rev
			break
		}
	}
}

func (p *Provider) apply(events []*clientv3.Event) {
	p.peersLock.RLock()
	peerSet := maps.Clone(p.peerSet)
	p.peersLock.RUnlock()

	for _, ev := range events {
		addr := strings.TrimPrefix(string(ev.Kv.Key), p.prefix)
		if addr == "" {
			continue
		}
		switch ev.Type {
		case clientv3.EventTypePut:
			peerSet[addr] = struct{}{}
		case clientv3.EventTypeDelete:
			delete(peerSet, addr)
		}
	}
	p.replace(peerSet)
}

// replace sets new peers and notifies listeners if changed
func (p *Provider) replace(peerSet map[string]struct{}) {
	peers := dbase.NormalizePeers(maps.Keys(peerSet))

	p.peersLock.Lock()
	if p.peerSet != nil && dbase.EqualPeers(p.peers, peers) {
		p.peersLock.Unlock()
		return
	}
	initial := p.peerSet == nil
	previous := p.peers
	p.peerSet = peerSet
	p.peers = peers
	p.peersLock.Unlock()

	if !initial {
		p.logger.Infof("peers changed from %v to %v", previous, peers)
		p.listeners.Notify(peers)
	}
}

func (p *Provider) registerSelf(ctx context.Context) (clientv3.LeaseID, <-chan *clientv3.LeaseKeepAliveResponse, error) {
	grant, err := p.client.Grant(ctx, int64(p.ttl/time.Second))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to grant lease: %w", err)
	}
	key := p.prefix + p.selfAddress
	if _, err := p.client.Put(ctx, key, p.selfAddress, clientv3.WithLease(grant.ID)); err != nil {
		return 0, nil, fmt.Errorf("failed to register self as '%s': %w", key, err)
	}
	keepAlive, kerr := p.client.KeepAlive(p.ctx, grant.ID)
	if kerr != nil {
		return 0, nil, fmt.Errorf("failed to keep lease alive: %w", kerr)
	}
	p.logger.Infof("registered self as %s with lease %x", key, grant.ID)
	return grant.ID, keepAlive, nil
}

func (p *Provider) runKeepAlive(leaseID clientv3.LeaseID, keepAlive <-chan *clientv3.LeaseKeepAliveResponse) {
	retry := dbase.NewRetryBackoff()
	for {
		for range keepAlive {
			retry.Reset()
		}
		if p.ctx.Err() != nil {
			revokeCtx, revokeCancel := context.WithTimeout(context.Background(), defs.RegistrySessionTimeout)
			if _, err := p.client.Revoke(revokeCtx, leaseID); err != nil {
				p.logger.Warnf("failed to revoke lease %x: %s", leaseID, err.Error())
			}
			revokeCancel()
			return
		}

		// the lease expired or the connection was lost
		p.logger.Warnf("lease %x lost, registering again", leaseID)
		for {
			select {
			case <-p.ctx.Done():
				return
			case <-time.After(retry.NextBackOff()):
			}
			id, ch, err := p.registerSelf(p.ctx)
			if err != nil {
				p.logger.Warn(err.Error())
				continue
			}
			leaseID, keepAlive = id, ch
			break
		}
	}
}
