package peerforwarder

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"

	"github.com/relex/gotils/logger"
	"github.com/relex/gotils/promexporter/promext"
	"github.com/relex/gotils/promexporter/promreg"
	"github.com/relex/peer-forwarder/base"
	"github.com/relex/peer-forwarder/forwardclient"
	"github.com/relex/peer-forwarder/util"
	"github.com/stretchr/testify/assert"
)

func TestRemoteForwarderPartition(t *testing.T) {
	factory := newFakeFactory(map[string]string{
		"a": "192.0.2.1",
		"b": "192.0.2.2",
		"c": "192.0.2.2",
		"d": "192.0.2.3:5000",
	})
	mfactory := promreg.NewMetricFactory("testpf_", nil, nil)
	provider := NewProvider(logger.WithField("test", t.Name()), newStaticConfig("192.0.2.1", "192.0.2.1", "192.0.2.2", "192.0.2.3:5000"), factory, mfactory)
	defer provider.Shutdown()

	forwarder, err := provider.Register("p", "x", []string{"traceId"})
	if !assert.NoError(t, err) {
		return
	}

	ra, rb, rc, rd, rz := newTestRecord("a"), newTestRecord("b"), newTestRecord("c"), newTestRecord("d"), newTestRecord("z")

	t.Run("one local one remote", func(tt *testing.T) {
		result := forwarder.ForwardRecords([]*base.Record{ra, rb})
		assert.Equal(tt, []*base.Record{ra}, result)
		batches := factory.sender.batches()
		if !assert.Len(tt, batches, 1) {
			return
		}
		assert.Equal(tt, sentBatch{"192.0.2.2", "p", "x", []*base.Record{rb}}, batches[0])
	})

	t.Run("one request per peer", func(tt *testing.T) {
		factory.sender.sent = nil
		result := forwarder.ForwardRecords([]*base.Record{rb, ra, rd, rc, rz})
		assert.Equal(tt, []*base.Record{ra, rz}, result) // unowned "z" stays local
		batches := factory.sender.batches()
		assert.Len(tt, batches, 2)
		for _, batch := range batches {
			switch batch.peer {
			case "192.0.2.2":
				assert.Equal(tt, []*base.Record{rb, rc}, batch.records)
			case "192.0.2.3:5000":
				assert.Equal(tt, []*base.Record{rd}, batch.records)
			default:
				tt.Errorf("unexpected peer %s", batch.peer)
			}
		}
	})

	t.Run("failed records returned", func(tt *testing.T) {
		factory.sender.sent = nil
		factory.sender.errors["192.0.2.2"] = &forwardclient.StatusError{StatusCode: 500, Body: "oops"}
		defer delete(factory.sender.errors, "192.0.2.2")

		result := forwarder.ForwardRecords([]*base.Record{ra, rb, rd})
		assert.Equal(tt, []*base.Record{ra, rb}, result)
		assert.Len(tt, factory.sender.batches(), 2)
	})

	t.Run("empty input", func(tt *testing.T) {
		factory.sender.sent = nil
		assert.Empty(tt, forwarder.ForwardRecords(nil))
		assert.Empty(tt, factory.sender.batches())
	})

	dump := promext.DumpMetrics("", true, false, mfactory)
	assert.Contains(t, dump, `reason="status"} 1`)
	assert.Contains(t, dump, `testpf_peer_forwarder_records_fallback_total{pipeline="p",plugin="x"} 1`)
	assert.Contains(t, dump, `testpf_peer_forwarder_records_forwarded_total{pipeline="p",plugin="x"} 5`)
	assert.Contains(t, dump, `testpf_peer_forwarder_records_local_total{pipeline="p",plugin="x"} 4`)
	assert.Contains(t, dump, `testpf_peer_forwarder_forward_requests_total{pipeline="p",plugin="x"} 5`)
	assert.Equal(t, 1.0, util.SumMetricValues(mfactory.AddOrGetCounterVec("peer_forwarder_forward_errors_total", "", nil, nil)))
}

func TestRemoteForwarderLocalInterface(t *testing.T) {
	factory := newFakeFactory(map[string]string{
		"a": "192.0.2.2",
		"b": "192.0.2.2:5000",
	})
	factory.localIPs = []net.IP{net.ParseIP("192.0.2.2")}
	provider := NewProvider(logger.WithField("test", t.Name()), newStaticConfig("node-a", "node-a", "192.0.2.2"), factory, promreg.NewMetricFactory("testpfiface_", nil, nil))
	defer provider.Shutdown()

	forwarder, err := provider.Register("p", "x", []string{"traceId"})
	if !assert.NoError(t, err) {
		return
	}
	ra, rb := newTestRecord("a"), newTestRecord("b")
	assert.Equal(t, []*base.Record{ra}, forwarder.ForwardRecords([]*base.Record{ra, rb}))
	batches := factory.sender.batches()
	if assert.Len(t, batches, 1) {
		assert.Equal(t, "192.0.2.2:5000", batches[0].peer)
	}
}

func TestRemoteForwarderNoLoss(t *testing.T) {
	owners := map[string]string{}
	for i := 0; i < 100; i++ {
		owners[fmt.Sprint(i)] = fmt.Sprintf("192.0.2.%d", i%4+1)
	}
	factory := newFakeFactory(owners)
	factory.sender.errors["192.0.2.3"] = errors.New("connection refused")
	mfactory := promreg.NewMetricFactory("testpfloss_", nil, nil)
	provider := NewProvider(logger.WithField("test", t.Name()), newStaticConfig("192.0.2.1", "192.0.2.1", "192.0.2.2"), factory, mfactory)
	defer provider.Shutdown()

	forwarder, err := provider.Register("p", "x", []string{"traceId"})
	if !assert.NoError(t, err) {
		return
	}

	records := make([]*base.Record, 0, 100)
	for i := 0; i < 100; i++ {
		records = append(records, newTestRecord(fmt.Sprint(i)))
	}
	result := forwarder.ForwardRecords(records)

	seen := map[*base.Record]int{}
	for _, r := range result {
		seen[r]++
	}
	for _, batch := range factory.sender.batches() {
		if batch.peer == "192.0.2.3" {
			continue
		}
		for _, r := range batch.records {
			seen[r]++
		}
	}
	assert.Len(t, seen, 100)
	for r, count := range seen {
		assert.Equal(t, 1, count, r.GetString("traceId"))
	}
	assert.Len(t, result, 50) // owned by 192.0.2.1 and failed 192.0.2.3
	assert.Equal(t, 1.0, util.SumMetricValues(mfactory.AddOrGetCounterVec("peer_forwarder_forward_errors_total", "", nil, nil)))
}

func TestLocalForwarder(t *testing.T) {
	factory := newFakeFactory(nil)
	provider := NewProvider(logger.WithField("test", t.Name()), newStaticConfig("", "192.0.2.1"), factory, promreg.NewMetricFactory("testpflocal_", nil, nil))
	defer provider.Shutdown()

	forwarder, err := provider.Register("p", "x", []string{"traceId"})
	if !assert.NoError(t, err) {
		return
	}
	assert.IsType(t, &localForwarder{}, forwarder)
	assert.False(t, provider.IsPeerForwardingRequired())
	assert.Equal(t, 0, factory.rings)
	assert.Equal(t, 0, factory.providers)

	records := []*base.Record{newTestRecord("a"), newTestRecord("b")}
	assert.Equal(t, records, forwarder.ForwardRecords(records))

	buffers := provider.ReceiveBufferMap()
	if !assert.Contains(t, buffers, "p") || !assert.Contains(t, buffers["p"], "x") {
		return
	}
	assert.Empty(t, forwarder.ReceiveRecords())
	assert.NoError(t, buffers["p"]["x"].WriteAll(records, 0))
	assert.Equal(t, records, forwarder.ReceiveRecords())
}

func TestProviderRegistrations(t *testing.T) {
	factory := newFakeFactory(nil)
	provider := NewProvider(logger.WithField("test", t.Name()), newStaticConfig("192.0.2.1", "192.0.2.1", "192.0.2.2"), factory, promreg.NewMetricFactory("testpfreg_", nil, nil))

	t.Run("empty keys", func(tt *testing.T) {
		_, err := provider.Register("p", "x", nil)
		assert.ErrorIs(tt, err, base.ErrEmptyIdentificationKeys)
		assert.False(tt, provider.IsPeerForwardingRequired())
	})

	t.Run("shared components created once", func(tt *testing.T) {
		wg := sync.WaitGroup{}
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, err := provider.Register("p", fmt.Sprintf("plugin%d", i), []string{"traceId"})
				assert.NoError(tt, err)
			}(i)
		}
		wg.Wait()
		assert.Equal(tt, 1, factory.providers)
		assert.Equal(tt, 1, factory.rings)
		assert.Equal(tt, 1, factory.clients)
		assert.True(tt, provider.IsPeerForwardingRequired())
		assert.Len(tt, provider.ReceiveBufferMap()["p"], 10)
	})

	t.Run("duplicate", func(tt *testing.T) {
		_, err := provider.Register("p", "plugin3", []string{"spanId"})
		assert.ErrorIs(tt, err, base.ErrDuplicateRegistration)
		assert.Len(tt, provider.ReceiveBufferMap()["p"], 10)
	})

	t.Run("lookup", func(tt *testing.T) {
		buffer, ok := provider.LookupBuffer("p", "plugin3")
		assert.True(tt, ok)
		assert.Same(tt, provider.ReceiveBufferMap()["p"]["plugin3"], buffer)
		_, ok = provider.LookupBuffer("p", "missing")
		assert.False(tt, ok)
	})

	t.Run("shutdown", func(tt *testing.T) {
		provider.Shutdown()
		provider.Shutdown()
		assert.True(tt, factory.ring.closed)
		assert.True(tt, factory.sender.closed)
		buffer, _ := provider.LookupBuffer("p", "plugin0")
		assert.Error(tt, buffer.WriteAll([]*base.Record{newTestRecord("a")}, 0))
		_, err := provider.Register("p", "late", []string{"traceId"})
		assert.ErrorIs(tt, err, base.ErrProviderShutdown)
		_, ok := provider.LookupBuffer("p", "late")
		assert.False(tt, ok)
	})
}

func TestProviderShutdownKeepsRecordsLocal(t *testing.T) {
	factory := newFakeFactory(map[string]string{
		"a": "192.0.2.1",
		"b": "192.0.2.2",
	})
	mfactory := promreg.NewMetricFactory("testpfstop_", nil, nil)
	provider := NewProvider(logger.WithField("test", t.Name()), newStaticConfig("192.0.2.1", "192.0.2.1", "192.0.2.2"), factory, mfactory)

	forwarder, err := provider.Register("p", "early", []string{"traceId"})
	if !assert.NoError(t, err) {
		return
	}
	provider.Shutdown()

	ra, rb := newTestRecord("a"), newTestRecord("b")
	assert.Equal(t, []*base.Record{ra, rb}, forwarder.ForwardRecords([]*base.Record{ra, rb}))
	assert.Empty(t, factory.sender.batches())
	assert.Contains(t, promext.DumpMetrics("", true, false, mfactory), `testpfstop_peer_forwarder_records_local_total{pipeline="p",plugin="early"} 2`)

	late, lateErr := provider.Register("p", "late", []string{"traceId"})
	assert.ErrorIs(t, lateErr, base.ErrProviderShutdown)
	assert.Nil(t, late)
	assert.Len(t, provider.ReceiveBufferMap()["p"], 1)
}

func TestProviderDiscoveryFailure(t *testing.T) {
	factory := newFakeFactory(nil)
	cfg := newStaticConfig("192.0.2.1", "192.0.2.1", "bad_host")
	provider := NewProvider(logger.WithField("test", t.Name()), cfg, factory, promreg.NewMetricFactory("testpffail_", nil, nil))
	defer provider.Shutdown()

	_, err := provider.Register("p", "x", []string{"traceId"})
	assert.EqualError(t, err, "p/x: failed to create peer list provider: .endpoints[1]: invalid endpoint 'bad_host': invalid host 'bad_host'")
	_, ok := provider.LookupBuffer("p", "x")
	assert.False(t, ok)
	assert.Equal(t, 0, factory.rings)
}
