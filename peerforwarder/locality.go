package peerforwarder

import (
	"net"
	"strings"

	"github.com/relex/peer-forwarder/util"
)

// locality decides whether a ring owner is this node
//
// An owner is local if it equals the node address, or names a local interface address on the receive port
type locality struct {
	nodeHost   string
	nodePort   int
	listenPort int
	localIPs   []net.IP
}

func newLocality(nodeAddress string, listenPort int, localIPs []net.IP) *locality {
	l := &locality{
		nodePort:   listenPort,
		listenPort: listenPort,
		localIPs:   localIPs,
	}
	if len(nodeAddress) > 0 {
		if host, port, err := util.SplitHostPortDefault(nodeAddress, listenPort); err == nil {
			l.nodeHost = host
			l.nodePort = port
		}
	}
	return l
}

func (l *locality) IsLocal(owner string) bool {
	host, port, err := util.SplitHostPortDefault(owner, l.listenPort)
	if err != nil {
		return false
	}
	if len(l.nodeHost) > 0 && port == l.nodePort && strings.EqualFold(host, l.nodeHost) {
		return true
	}
	return port == l.listenPort && util.ContainsIP(l.localIPs, host)
}
