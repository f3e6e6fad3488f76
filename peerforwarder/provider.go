// Package peerforwarder routes records of stateful plugins to the nodes owning their identification keys
package peerforwarder

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/puzpuzpuz/xsync"
	"github.com/relex/gotils/logger"
	"github.com/relex/gotils/promexporter/promreg"
	"github.com/relex/peer-forwarder/base"
	"github.com/relex/peer-forwarder/buffer/receivebuffer"
	"github.com/relex/peer-forwarder/defs"
	"github.com/relex/peer-forwarder/forwardclient"
	"github.com/relex/peer-forwarder/hashring"
	"github.com/relex/peer-forwarder/util"
)

// Ring maps identification key values to owning peers
type Ring interface {
	GetOwner(values []string) (string, bool)
	Close()
}

// Sender sends record batches to peers
type Sender interface {
	Send(ctx context.Context, records []*base.Record, peer string, pipelineName string, pluginID string) error
	Close()
}

// ClientFactory creates the components shared by all remote forwarders of a Provider
type ClientFactory interface {
	NewPeerListProvider(parentLogger logger.Logger, cfg *Config, metricCreator promreg.MetricCreator) (base.PeerListProvider, error)
	NewHashRing(parentLogger logger.Logger, provider base.PeerListProvider, metricCreator promreg.MetricCreator) Ring
	NewClient(parentLogger logger.Logger, cfg *Config) Sender
	ListLocalIPs() ([]net.IP, error)
}

// DefaultClientFactory creates shared components from configuration
type DefaultClientFactory struct{}

// NewPeerListProvider creates the peer list provider of the configured discovery
func (DefaultClientFactory) NewPeerListProvider(parentLogger logger.Logger, cfg *Config, metricCreator promreg.MetricCreator) (base.PeerListProvider, error) {
	return cfg.Discovery.Value.NewPeerListProvider(parentLogger, cfg.SelfAddress(), metricCreator)
}

// NewHashRing creates a hashring.HashRing
func (DefaultClientFactory) NewHashRing(parentLogger logger.Logger, provider base.PeerListProvider, metricCreator promreg.MetricCreator) Ring {
	return hashring.New(parentLogger, provider, metricCreator)
}

// NewClient creates a forwardclient.Client
func (DefaultClientFactory) NewClient(parentLogger logger.Logger, cfg *Config) Sender {
	return forwardclient.New(parentLogger, forwardclient.Config{
		Port:           cfg.Port,
		RequestTimeout: cfg.RequestTimeout,
		Compression:    cfg.Compression,
	})
}

// ListLocalIPs lists addresses of local network interfaces
func (DefaultClientFactory) ListLocalIPs() ([]net.IP, error) {
	return util.ListLocalIPs()
}

// Provider creates and tracks peer forwarders of all plugin instances in the process
//
// The peer list provider, hash ring and client are created once on the first remote registration and shared by all
type Provider struct {
	logger        logger.Logger
	config        *Config
	factory       ClientFactory
	metricCreator promreg.MetricCreator
	registrations *xsync.MapOf[*registration]

	lifecycle  sync.RWMutex // held for reading by registrations in progress
	closed     bool
	sharedOnce sync.Once
	shared     *sharedComponents
	sharedErr  error
	shutdown   util.RunOnce
}

type sharedComponents struct {
	peerList base.PeerListProvider
	ring     Ring
	client   Sender
	locality *locality

	requestsMutex  sync.RWMutex
	requestsClosed bool
	inflight       *util.TrackedWaitGroup // forwarding requests in progress
}

// beginRequests reserves n forwarding requests, or returns false if requests have been stopped
func (shared *sharedComponents) beginRequests(n int) bool {
	shared.requestsMutex.RLock()
	defer shared.requestsMutex.RUnlock()
	if shared.requestsClosed {
		return false
	}
	shared.inflight.Add(n)
	return true
}

func (shared *sharedComponents) endRequest() {
	shared.inflight.Done()
}

// stopRequests rejects new forwarding requests and waits for the ones in progress
func (shared *sharedComponents) stopRequests(shutdownLogger logger.Logger) {
	shared.requestsMutex.Lock()
	shared.requestsClosed = true
	shared.requestsMutex.Unlock()

	if n := shared.inflight.Peek(); n > 0 {
		shutdownLogger.Infof("waiting for %d forwarding requests", n)
	}
	shared.inflight.Wait()
}

type registration struct {
	pipelineName string
	pluginID     string
	remote       bool
	entry        *util.AtomicRef[registrationEntry] // nil until fully registered
}

type registrationEntry struct {
	buffer    *receivebuffer.Buffer
	forwarder base.PeerForwarder
}

// NewProvider creates a Provider; cfg must have been verified
func NewProvider(parentLogger logger.Logger, cfg *Config, factory ClientFactory, metricCreator promreg.MetricCreator) *Provider {
	p := &Provider{
		logger:        parentLogger.WithField(defs.LabelComponent, "PeerForwarderProvider"),
		config:        cfg,
		factory:       factory,
		metricCreator: metricCreator.AddOrGetPrefix("peer_forwarder_", nil, nil),
		registrations: xsync.NewMapOf[*registration](),
	}
	p.shutdown = util.NewRunOnce(p.doShutdown)
	return p
}

// Register creates the peer forwarder of a plugin instance, identified by pipeline name and plugin ID
//
// A receive buffer is created for every registration, including local ones
func (p *Provider) Register(pipelineName string, pluginID string, identificationKeys []string) (base.PeerForwarder, error) {
	if len(identificationKeys) == 0 {
		return nil, fmt.Errorf("%s/%s: %w", pipelineName, pluginID, base.ErrEmptyIdentificationKeys)
	}

	p.lifecycle.RLock()
	defer p.lifecycle.RUnlock()
	if p.closed {
		return nil, fmt.Errorf("%s/%s: %w", pipelineName, pluginID, base.ErrProviderShutdown)
	}

	key := registrationKey(pipelineName, pluginID)
	reg := &registration{
		pipelineName: pipelineName,
		pluginID:     pluginID,
		remote:       p.config.RequiresForwarding(),
		entry:        util.NewAtomicRef[registrationEntry](nil),
	}
	if _, loaded := p.registrations.LoadOrStore(key, reg); loaded {
		return nil, fmt.Errorf("%s/%s: %w", pipelineName, pluginID, base.ErrDuplicateRegistration)
	}

	regLogger := p.logger.WithFields(logger.Fields{
		defs.LabelComponent: "PeerForwarder",
		defs.LabelPipeline:  pipelineName,
		defs.LabelPlugin:    pluginID,
	})
	regMetricCreator := p.metricCreator.AddOrGetPrefix("", []string{defs.LabelPipeline, defs.LabelPlugin}, []string{pipelineName, pluginID})
	metrics := newForwarderMetrics(regMetricCreator)
	buffer := receivebuffer.New(p.config.BufferSize, p.config.BatchSize, regMetricCreator)

	var forwarder base.PeerForwarder
	if reg.remote {
		shared, err := p.getShared()
		if err != nil {
			p.registrations.Delete(key)
			return nil, fmt.Errorf("%s/%s: %w", pipelineName, pluginID, err)
		}
		forwarder = newRemoteForwarder(regLogger, pipelineName, pluginID, identificationKeys, shared, buffer, p.config.RequestTimeout, metrics)
		regLogger.Infof("registered remote peer forwarder by keys %v", identificationKeys)
	} else {
		forwarder = newLocalForwarder(buffer, metrics)
		regLogger.Infof("registered local peer forwarder by keys %v", identificationKeys)
	}

	reg.entry.Set(&registrationEntry{
		buffer:    buffer,
		forwarder: forwarder,
	})
	return forwarder, nil
}

// IsPeerForwardingRequired tells whether any registration may forward records to peers
func (p *Provider) IsPeerForwardingRequired() bool {
	required := false
	p.registrations.Range(func(key string, reg *registration) bool {
		if reg.remote && reg.entry.Get() != nil {
			required = true
			return false
		}
		return true
	})
	return required
}

// ReceiveBufferMap returns receive buffers of all registrations, by pipeline name and then plugin ID
func (p *Provider) ReceiveBufferMap() map[string]map[string]*receivebuffer.Buffer {
	result := make(map[string]map[string]*receivebuffer.Buffer)
	p.registrations.Range(func(key string, reg *registration) bool {
		entry := reg.entry.Get()
		if entry == nil {
			return true
		}
		pluginMap, ok := result[reg.pipelineName]
		if !ok {
			pluginMap = make(map[string]*receivebuffer.Buffer)
			result[reg.pipelineName] = pluginMap
		}
		pluginMap[reg.pluginID] = entry.buffer
		return true
	})
	return result
}

// LookupBuffer finds the receive buffer of a registration
func (p *Provider) LookupBuffer(pipelineName string, pluginID string) (*receivebuffer.Buffer, bool) {
	reg, ok := p.registrations.Load(registrationKey(pipelineName, pluginID))
	if !ok {
		return nil, false
	}
	entry := reg.entry.Get()
	if entry == nil {
		return nil, false
	}
	return entry.buffer, true
}

// Shutdown unsubscribes from membership changes, stops discovery and closes all receive buffers for writing
//
// Forwarding requests in progress are waited for, each bounded by the request timeout. Later calls of ForwardRecords
// return all records as local and later registrations fail with base.ErrProviderShutdown.
// Records remaining in buffers can still be read afterwards.
func (p *Provider) Shutdown() {
	p.shutdown()
}

func (p *Provider) doShutdown() {
	// wait for registrations in progress, no more after this
	p.lifecycle.Lock()
	p.closed = true
	p.lifecycle.Unlock()

	if p.shared != nil {
		p.shared.ring.Close()
		p.shared.peerList.Close()
		p.shared.stopRequests(p.logger)
		p.shared.client.Close()
	}
	p.registrations.Range(func(key string, reg *registration) bool {
		if entry := reg.entry.Get(); entry != nil {
			entry.buffer.Close()
		}
		return true
	})
	p.logger.Info("shut down")
}

func (p *Provider) getShared() (*sharedComponents, error) {
	p.sharedOnce.Do(func() {
		localIPs, err := p.factory.ListLocalIPs()
		if err != nil {
			p.logger.Warnf("failed to list local addresses: %s", err.Error())
		}
		peerList, err := p.factory.NewPeerListProvider(p.logger, p.config, p.metricCreator)
		if err != nil {
			p.sharedErr = fmt.Errorf("failed to create peer list provider: %w", err)
			return
		}
		p.shared = &sharedComponents{
			peerList: peerList,
			ring:     p.factory.NewHashRing(p.logger, peerList, p.metricCreator),
			client:   p.factory.NewClient(p.logger, p.config),
			locality: newLocality(p.config.NodeAddress, p.config.Port, localIPs),
			inflight: &util.TrackedWaitGroup{},
		}
		p.logger.Infof("initialized peer forwarding on node '%s'", p.config.NodeAddress)
	})
	return p.shared, p.sharedErr
}

func registrationKey(pipelineName string, pluginID string) string {
	return pipelineName + "\x00" + pluginID
}
