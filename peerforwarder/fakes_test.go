package peerforwarder

import (
	"context"
	"net"
	"sync"

	"github.com/relex/gotils/logger"
	"github.com/relex/gotils/promexporter/promreg"
	"github.com/relex/peer-forwarder/base"
	"github.com/relex/peer-forwarder/base/bconfig"
	"github.com/relex/peer-forwarder/defs"
	"github.com/relex/peer-forwarder/discovery/dstatic"
	"golang.org/x/exp/slices"
)

// fakeRing assigns owners by the first key value
type fakeRing struct {
	owners map[string]string
	closed bool
}

func (r *fakeRing) GetOwner(values []string) (string, bool) {
	owner, ok := r.owners[values[0]]
	return owner, ok
}

func (r *fakeRing) Close() {
	r.closed = true
}

type sentBatch struct {
	peer         string
	pipelineName string
	pluginID     string
	records      []*base.Record
}

type fakeSender struct {
	mutex  sync.Mutex
	sent   []sentBatch
	errors map[string]error
	closed bool
}

func (s *fakeSender) Send(ctx context.Context, records []*base.Record, peer string, pipelineName string, pluginID string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.sent = append(s.sent, sentBatch{peer, pipelineName, pluginID, slices.Clone(records)})
	return s.errors[peer]
}

func (s *fakeSender) Close() {
	s.closed = true
}

func (s *fakeSender) batches() []sentBatch {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return slices.Clone(s.sent)
}

type fakeFactory struct {
	mutex     sync.Mutex
	ring      *fakeRing
	sender    *fakeSender
	localIPs  []net.IP
	providers int
	rings     int
	clients   int
}

func newFakeFactory(owners map[string]string) *fakeFactory {
	return &fakeFactory{
		ring:   &fakeRing{owners: owners},
		sender: &fakeSender{errors: map[string]error{}},
	}
}

func (f *fakeFactory) NewPeerListProvider(parentLogger logger.Logger, cfg *Config, metricCreator promreg.MetricCreator) (base.PeerListProvider, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.providers++
	return DefaultClientFactory{}.NewPeerListProvider(parentLogger, cfg, metricCreator)
}

func (f *fakeFactory) NewHashRing(parentLogger logger.Logger, provider base.PeerListProvider, metricCreator promreg.MetricCreator) Ring {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.rings++
	return f.ring
}

func (f *fakeFactory) NewClient(parentLogger logger.Logger, cfg *Config) Sender {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.clients++
	return f.sender
}

func (f *fakeFactory) ListLocalIPs() ([]net.IP, error) {
	return f.localIPs, nil
}

func newStaticConfig(nodeAddress string, endpoints ...string) *Config {
	cfg := &Config{
		NodeAddress: nodeAddress,
		Discovery: bconfig.DiscoveryConfigHolder{
			Location: "test",
			Value: &dstatic.Config{
				Header:    bconfig.Header{Type: defs.DiscoveryStatic},
				Endpoints: endpoints,
			},
		},
	}
	cfg.SetDefaults()
	return cfg
}

func newTestRecord(traceID string) *base.Record {
	return base.NewRecord("TRACE", map[string]interface{}{
		"traceId": traceID,
	})
}
