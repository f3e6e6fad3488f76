// Package dzookeeper provides peer discovery from children of a ZooKeeper node, where each node registers itself as ephemeral child
package dzookeeper

import (
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-zookeeper/zk"
	"github.com/relex/gotils/channels"
	"github.com/relex/gotils/logger"
	"github.com/relex/peer-forwarder/base"
	"github.com/relex/peer-forwarder/defs"
	"github.com/relex/peer-forwarder/discovery/dbase"
	"golang.org/x/exp/slices"
)

// Conn is the subset of *zk.Conn used by Provider
type Conn interface {
	State() zk.State
	Exists(path string) (bool, *zk.Stat, error)
	Create(path string, data []byte, flags int32, acl []zk.ACL) (string, error)
	ChildrenW(path string) ([]string, *zk.Stat, <-chan zk.Event, error)
	Close()
}

// Provider watches children of rootPath as the peer list
type Provider struct {
	logger      logger.Logger
	conn        Conn
	rootPath    string
	selfAddress string
	peersLock   sync.RWMutex
	peers       []string
	listeners   dbase.ListenerList
	stopRequest *channels.SignalAwaitable
	stopped     *channels.SignalAwaitable
}

// NewProvider creates a ZooKeeper provider on the connection, which is closed with the Provider
//
// If selfAddress is non-empty, it's registered as an ephemeral child of rootPath to be discovered by other nodes
func NewProvider(parentLogger logger.Logger, conn Conn, rootPath string, selfAddress string) (*Provider, error) {
	p := &Provider{
		logger:      parentLogger.WithFields(logger.Fields{defs.LabelComponent: "ZookeeperPeerListProvider", "path": rootPath}),
		conn:        conn,
		rootPath:    path.Clean("/" + rootPath),
		selfAddress: selfAddress,
		stopRequest: channels.NewSignalAwaitable(),
		stopped:     channels.NewSignalAwaitable(),
	}
	if err := p.waitConnected(defs.RegistryInitialTimeout); err != nil {
		return nil, err
	}
	if err := p.ensurePath(p.rootPath); err != nil {
		return nil, fmt.Errorf("failed to create path '%s': %w", p.rootPath, err)
	}
	if err := p.registerSelf(); err != nil {
		return nil, err
	}

	children, events, err := p.watch()
	if err != nil {
		return nil, err
	}
	p.peers = children
	p.logger.Infof("found %d peers: %v", len(children), children)

	go p.run(events)
	return p, nil
}

// GetPeerList returns the current children, sorted
func (p *Provider) GetPeerList() []string {
	p.peersLock.RLock()
	defer p.peersLock.RUnlock()
	return slices.Clone(p.peers)
}

// AddListener registers a listener to be called on changes of children
func (p *Provider) AddListener(listener base.PeerListListener) {
	p.listeners.Add(listener)
}

// RemoveListener unregisters a listener
func (p *Provider) RemoveListener(listener base.PeerListListener) {
	p.listeners.Remove(listener)
}

// Close stops watching and closes the connection, which removes the ephemeral self node
func (p *Provider) Close() {
	p.stopRequest.Signal()
	p.stopped.WaitForever()
	p.conn.Close()
}

func (p *Provider) run(events <-chan zk.Event) {
	defer p.stopped.Signal()

	retry := dbase.NewRetryBackoff()
	for {
		select {
		case <-p.stopRequest.Channel():
			p.logger.Info("stopped")
			return
		case ev := <-events:
			p.logger.Debugf("event %s on %s", ev.Type, ev.Path)
			if ev.Err != nil {
				p.logger.Warnf("watch error: %s", ev.Err.Error())
			}
		}

		for {
			children, nextEvents, err := p.watch()
			if err == nil {
				retry.Reset()
				events = nextEvents
				p.update(children)
				break
			}
			delay := retry.NextBackOff()
			p.logger.Warnf("failed to watch, retry in %s: %s", delay, err.Error())
			if p.stopRequest.Wait(delay) {
				p.logger.Info("stopped")
				return
			}
			// the ephemeral node is gone if session expired
			if rerr := p.registerSelf(); rerr != nil {
				p.logger.Warn(rerr.Error())
			}
		}
	}
}

func (p *Provider) watch() ([]string, <-chan zk.Event, error) {
	children, _, events, err := p.conn.ChildrenW(p.rootPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to watch children of '%s': %w", p.rootPath, err)
	}
	return dbase.NormalizePeers(children), events, nil
}

func (p *Provider) update(peers []string) {
	p.peersLock.Lock()
	if dbase.EqualPeers(p.peers, peers) {
		p.peersLock.Unlock()
		return
	}
	previous := p.peers
	p.peers = peers
	p.peersLock.Unlock()

	p.logger.Infof("peers changed from %v to %v", previous, peers)
	p.listeners.Notify(peers)
}

func (p *Provider) registerSelf() error {
	if p.selfAddress == "" {
		return nil
	}
	nodePath := path.Join(p.rootPath, p.selfAddress)
	_, err := p.conn.Create(nodePath, nil, zk.FlagEphemeral, zk.WorldACL(zk.PermAll))
	if err != nil && !errors.Is(err, zk.ErrNodeExists) {
		return fmt.Errorf("failed to register self as '%s': %w", nodePath, err)
	}
	p.logger.Infof("registered self as %s", nodePath)
	return nil
}

func (p *Provider) ensurePath(fullPath string) error {
	current := ""
	for _, part := range strings.Split(fullPath, "/") {
		if part == "" {
			continue
		}
		current = current + "/" + part
		exists, _, err := p.conn.Exists(current)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		if _, err := p.conn.Create(current, nil, 0, zk.WorldACL(zk.PermAll)); err != nil && !errors.Is(err, zk.ErrNodeExists) {
			return err
		}
	}
	return nil
}

func (p *Provider) waitConnected(timeout time.Duration) error {
	op := func() error {
		if st := p.conn.State(); st != zk.StateHasSession {
			return fmt.Errorf("state=%s", st)
		}
		return nil
	}
	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(100*time.Millisecond), uint64(timeout/(100*time.Millisecond)))
	if err := backoff.Retry(op, b); err != nil {
		return fmt.Errorf("not connected after %s: %w", timeout, err)
	}
	return nil
}
