package run

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/relex/gotils/logger"
	"github.com/relex/peer-forwarder/base"
	"github.com/relex/peer-forwarder/defs"
	"github.com/relex/peer-forwarder/discovery/ddns"
	"github.com/relex/peer-forwarder/discovery/detcd"
	"github.com/relex/peer-forwarder/discovery/dstatic"
	"github.com/relex/peer-forwarder/forwardclient"
	"github.com/relex/peer-forwarder/testdata"
	"github.com/stretchr/testify/assert"
)

type collectingSink struct {
	mutex   sync.Mutex
	records map[string][]*base.Record
}

func (sink *collectingSink) Consume(pipelineName string, pluginID string, records []*base.Record) {
	sink.mutex.Lock()
	defer sink.mutex.Unlock()
	key := pipelineName + "/" + pluginID
	sink.records[key] = append(sink.records[key], records...)
}

func (sink *collectingSink) count(key string) int {
	sink.mutex.Lock()
	defer sink.mutex.Unlock()
	return len(sink.records[key])
}

func writeConfig(t *testing.T, contents string) string {
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfigFile(t *testing.T) {
	cfg, err := LoadConfigFile(testdata.GetConfigPath())
	if !assert.NoError(t, err) {
		return
	}
	assert.Equal(t, "127.0.0.1", cfg.PeerForwarder.NodeAddress)
	assert.Equal(t, 48, cfg.PeerForwarder.BatchSize)
	assert.Equal(t, 10*time.Second, cfg.PeerForwarder.RequestTimeout)
	assert.Equal(t, []string{"127.0.0.1", "192.0.2.10", "192.0.2.11"}, cfg.PeerForwarder.Discovery.Value.(*dstatic.Config).Endpoints)
	assert.Len(t, cfg.Pipelines, 2)
	assert.Equal(t, []string{"service", "resource/host.name"}, cfg.Pipelines[1].Plugins[0].IdentificationKeys)
	assert.Equal(t, ":4994", cfg.ReceiverAddress())

	dnsCfg, err := LoadConfigFile(testdata.GetPath("config_dns.yml"))
	if assert.NoError(t, err) {
		assert.Equal(t, "peers.example.com", dnsCfg.PeerForwarder.Discovery.Value.(*ddns.Config).Domain)
		assert.Equal(t, 512, dnsCfg.PeerForwarder.BufferSize)
	}

	etcdCfg, err := LoadConfigFile(testdata.GetPath("config_etcd.yml"))
	if assert.NoError(t, err) {
		assert.Equal(t, "/peer-forwarder/peers/", etcdCfg.PeerForwarder.Discovery.Value.(*detcd.Config).Prefix)
		assert.True(t, etcdCfg.PeerForwarder.RequiresForwarding())
	}
}

func TestLoadConfigFileErrors(t *testing.T) {
	const discovery = `
peerForwarder:
  discovery:
    type: static
    endpoints: [10.0.0.1, 10.0.0.2]
`
	for _, c := range []struct {
		name     string
		contents string
		err      string
	}{
		{"unknown field", "foo: 1\n", "field foo not found in type run.Config"},
		{"no discovery", "pipelines: []\n", "peerForwarder.discovery is undefined"},
		{"bad discovery", "peerForwarder:\n  discovery:\n    type: static\n    endpoints: []\n", "peerForwarder.discovery.endpoints is empty"},
		{"no pipeline", discovery, "pipelines is empty"},
		{"no pipeline name", discovery + "pipelines:\n  - plugins: []\n", "pipelines[0].name is unspecified"},
		{"duplicate pipeline", discovery + `
pipelines:
  - name: a
    plugins: [{id: x, identificationKeys: [k]}]
  - name: a
    plugins: [{id: x, identificationKeys: [k]}]
`, "pipelines[1].name: duplicate 'a'"},
		{"no plugin", discovery + "pipelines:\n  - name: a\n", "pipelines[0].plugins is empty"},
		{"duplicate plugin", discovery + `
pipelines:
  - name: a
    plugins: [{id: x, identificationKeys: [k]}, {id: x, identificationKeys: [k]}]
`, "pipelines[0].plugins[1].id: duplicate 'x'"},
		{"no keys", discovery + `
pipelines:
  - name: a
    plugins: [{id: x}]
`, "pipelines[0].plugins[0].identificationKeys is empty"},
	} {
		t.Run(c.name, func(tt *testing.T) {
			_, err := LoadConfigFile(writeConfig(tt, c.contents))
			if assert.Error(tt, err) {
				assert.Contains(tt, err.Error(), c.err)
			}
		})
	}
}

func TestLoaderStaticProvider(t *testing.T) {
	loader, err := NewLoaderFromConfigFile(testdata.GetConfigPath(), "testloaderstatic_")
	if !assert.NoError(t, err) {
		return
	}
	provider, registrations, err := loader.CreateProvider(logger.WithField("test", t.Name()))
	if !assert.NoError(t, err) {
		return
	}
	defer provider.Shutdown()

	assert.True(t, provider.IsPeerForwardingRequired())
	assert.Len(t, registrations, 3)
	buffers := provider.ReceiveBufferMap()
	assert.Len(t, buffers["trace-pipeline"], 2)
	assert.Len(t, buffers["log-pipeline"], 1)
}

func TestLoaderLocalLifecycle(t *testing.T) {
	defs.EnableTestMode()
	tlogger := logger.WithField("test", t.Name())
	loader, err := NewLoaderFromConfigFile(testdata.GetPath("config_local.yml"), "testloaderlocal_")
	if !assert.NoError(t, err) {
		return
	}
	sink := &collectingSink{records: map[string][]*base.Record{}}
	loader.Sink = sink

	provider, registrations, err := loader.CreateProvider(tlogger)
	if !assert.NoError(t, err) {
		return
	}
	assert.False(t, provider.IsPeerForwardingRequired())
	server, err := loader.LaunchReceiver(tlogger, provider)
	if !assert.NoError(t, err) {
		provider.Shutdown()
		return
	}
	stopDrainWorkers := loader.LaunchDrainWorkers(tlogger, registrations)

	client := forwardclient.New(tlogger, forwardclient.Config{Port: loader.PeerForwarder.Port, RequestTimeout: time.Second})
	defer client.Close()
	records := []*base.Record{
		base.NewRecord("LOG", map[string]interface{}{"service": "a"}),
		base.NewRecord("LOG", map[string]interface{}{"service": "b"}),
	}
	assert.NoError(t, client.Send(context.Background(), records, server.Addr().String(), "log-pipeline", "aggregate"))

	assert.Eventually(t, func() bool {
		return sink.count("log-pipeline/aggregate") == 2
	}, defs.TestReadTimeout, 10*time.Millisecond)

	// left in buffer for the final drain
	buffer, _ := provider.LookupBuffer("log-pipeline", "aggregate")
	assert.NoError(t, buffer.WriteAll(records, 0))

	Shutdown(tlogger, server, provider, stopDrainWorkers)
	assert.Equal(t, 4, sink.count("log-pipeline/aggregate"))
	assert.Error(t, client.Send(context.Background(), records, server.Addr().String(), "log-pipeline", "aggregate"))
}

func TestLoaderRegistrationFailure(t *testing.T) {
	path := writeConfig(t, `
peerForwarder:
  discovery:
    type: dns
    domain: peers.invalid
    server: 127.0.0.1:1
pipelines:
  - name: a
    plugins: [{id: x, identificationKeys: [k]}]
`)
	defs.EnableTestMode()
	loader, err := NewLoaderFromConfigFile(path, "testloaderfail_")
	if !assert.NoError(t, err) {
		return
	}
	_, _, err = loader.CreateProvider(logger.WithField("test", t.Name()))
	if assert.Error(t, err) {
		assert.Contains(t, err.Error(), "pipelines[0].plugins[0]: a/x: failed to create peer list provider")
	}
}
