// Package ddns provides peer discovery by resolving a domain name to all of its A and AAAA records
package ddns

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/miekg/dns"
	"github.com/relex/gotils/channels"
	"github.com/relex/gotils/logger"
	"github.com/relex/gotils/promexporter/promext"
	"github.com/relex/gotils/promexporter/promreg"
	"github.com/relex/peer-forwarder/base"
	"github.com/relex/peer-forwarder/defs"
	"github.com/relex/peer-forwarder/discovery/dbase"
	"golang.org/x/exp/slices"
)

// Provider refreshes peers from DNS periodically, within the TTL window [defs.DNSMinTTL, defs.DNSMaxTTL]
type Provider struct {
	logger        logger.Logger
	domain        string
	server        string
	client        *dns.Client
	clock         clockwork.Clock
	peersLock     sync.RWMutex
	peers         []string
	listeners     dbase.ListenerList
	stopRequest   *channels.SignalAwaitable
	stopped       *channels.SignalAwaitable
	lookupsTotal  promext.RWCounter
	failuresTotal promext.RWCounter
	changesTotal  promext.RWCounter
}

// NewProvider creates a DNS provider and resolves the domain for the first time
//
// Returns error if the initial resolution fails, then refreshing is started in background
func NewProvider(parentLogger logger.Logger, cfg *Config, clock clockwork.Clock, metricCreator promreg.MetricCreator) (*Provider, error) {
	if err := cfg.VerifyConfig(); err != nil {
		return nil, err
	}
	server, serr := cfg.resolveServer()
	if serr != nil {
		return nil, fmt.Errorf("failed to determine DNS server: %w", serr)
	}
	dnsMetricCreator := metricCreator.AddOrGetPrefix("dns_", nil, nil)
	p := &Provider{
		logger:        parentLogger.WithFields(logger.Fields{defs.LabelComponent: "DNSPeerListProvider", "domain": cfg.Domain}),
		domain:        dns.Fqdn(cfg.Domain),
		server:        server,
		client:        &dns.Client{Timeout: defs.DNSQueryTimeout},
		clock:         clock,
		stopRequest:   channels.NewSignalAwaitable(),
		stopped:       channels.NewSignalAwaitable(),
		lookupsTotal:  dnsMetricCreator.AddOrGetCounter("lookups_total", "Numbers of DNS lookups for peers", nil, nil),
		failuresTotal: dnsMetricCreator.AddOrGetCounter("lookup_failures_total", "Numbers of failed DNS lookups for peers", nil, nil),
		changesTotal:  dnsMetricCreator.AddOrGetCounter("peer_changes_total", "Numbers of peer list changes from DNS", nil, nil),
	}

	peers, ttl, err := p.resolve()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve '%s' using %s: %w", cfg.Domain, server, err)
	}
	p.peers = peers
	p.logger.Infof("resolved %d peers: %v, next refresh in %s", len(peers), peers, ttl)

	go p.run(ttl)
	return p, nil
}

// GetPeerList returns the last successfully resolved addresses, sorted
func (p *Provider) GetPeerList() []string {
	p.peersLock.RLock()
	defer p.peersLock.RUnlock()
	return slices.Clone(p.peers)
}

// AddListener registers a listener to be called on changes of resolved addresses
func (p *Provider) AddListener(listener base.PeerListListener) {
	p.listeners.Add(listener)
}

// RemoveListener unregisters a listener
func (p *Provider) RemoveListener(listener base.PeerListListener) {
	p.listeners.Remove(listener)
}

// Close stops refreshing and waits for the background goroutine to exit
func (p *Provider) Close() {
	p.stopRequest.Signal()
	p.stopped.WaitForever()
}

func (p *Provider) run(initialDelay time.Duration) {
	defer p.stopped.Signal()

	delay := initialDelay
	for {
		select {
		case <-p.stopRequest.Channel():
			p.logger.Info("stopped")
			return
		case <-p.clock.After(delay):
		}

		peers, ttl, err := p.resolve()
		if err != nil {
			// keep the previous list and retry soon
			p.logger.Warnf("failed to refresh: %s", err.Error())
			delay = defs.DNSMinTTL
			continue
		}
		delay = ttl
		p.update(peers)
	}
}

func (p *Provider) update(peers []string) {
	p.peersLock.Lock()
	if dbase.EqualPeers(p.peers, peers) {
		p.peersLock.Unlock()
		p.logger.Debugf("unchanged %d peers", len(peers))
		return
	}
	previous := p.peers
	p.peers = peers
	p.peersLock.Unlock()

	p.changesTotal.Inc()
	p.logger.Infof("peers changed from %v to %v", previous, peers)
	p.listeners.Notify(peers)
}

// resolve looks up both A and AAAA records and returns the sorted addresses and the TTL clamped in the window
func (p *Provider) resolve() ([]string, time.Duration, error) {
	p.lookupsTotal.Inc()
	addresses := make([]string, 0, 8)
	var minTTL uint32
	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		answers, err := p.query(qtype)
		if err != nil {
			p.failuresTotal.Inc()
			return nil, 0, err
		}
		for _, rr := range answers {
			var ip net.IP
			switch record := rr.(type) {
			case *dns.A:
				ip = record.A
			case *dns.AAAA:
				ip = record.AAAA
			default:
				continue // e.g. CNAME in the chain
			}
			addresses = append(addresses, ip.String())
			if ttl := rr.Header().Ttl; minTTL == 0 || ttl < minTTL {
				minTTL = ttl
			}
		}
	}
	return dbase.NormalizePeers(addresses), clampTTL(time.Duration(minTTL) * time.Second), nil
}

func (p *Provider) query(qtype uint16) ([]dns.RR, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(p.domain, qtype)
	msg.RecursionDesired = true

	resp, _, err := p.client.Exchange(msg, p.server)
	if err != nil {
		return nil, fmt.Errorf("%s query: %w", dns.TypeToString[qtype], err)
	}
	if resp.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf("%s query: %s", dns.TypeToString[qtype], dns.RcodeToString[resp.Rcode])
	}
	return resp.Answer, nil
}

func clampTTL(ttl time.Duration) time.Duration {
	switch {
	case ttl < defs.DNSMinTTL:
		return defs.DNSMinTTL
	case ttl > defs.DNSMaxTTL:
		return defs.DNSMaxTTL
	default:
		return ttl
	}
}
