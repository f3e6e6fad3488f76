package util

import (
	"context"
	"errors"
	"io"
	"net"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// IsNetworkError checks if the given error comes from network layer, e.g. connection refused or reset
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}
	if IsNetworkClosed(err) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	return errors.Is(err, unix.ECONNREFUSED) || errors.Is(err, unix.ECONNRESET) || errors.Is(err, unix.EPIPE)
}

// IsNetworkClosed checks if the given error tells closing of network connection
func IsNetworkClosed(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Err.Error() == "use of closed network connection"
	}
	return false
}

// IsNetworkTimeout checks if the given error is network timeout or deadline of context
func IsNetworkTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr) && urlErr.Timeout()
}

// SplitHostPortDefault splits "host:port" or "host" with port defaulted
//
// IPv6 addresses may be given with or without brackets if no port is present
func SplitHostPortDefault(address string, defaultPort int) (string, int, error) {
	if host, portStr, err := net.SplitHostPort(address); err == nil {
		port, perr := strconv.Atoi(portStr)
		if perr != nil || port <= 0 || port > 65535 {
			return "", 0, errors.New("invalid port '" + portStr + "'")
		}
		return host, port, nil
	}
	return strings.TrimSuffix(strings.TrimPrefix(address, "["), "]"), defaultPort, nil
}

// JoinHostPort is net.JoinHostPort with integer port
func JoinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// ListLocalIPs lists the IP addresses bound to all network interfaces of this host
func ListLocalIPs() ([]net.IP, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, err
	}
	ips := make([]net.IP, 0, len(addrs))
	for _, addr := range addrs {
		switch v := addr.(type) {
		case *net.IPNet:
			ips = append(ips, v.IP)
		case *net.IPAddr:
			ips = append(ips, v.IP)
		}
	}
	return ips, nil
}

// ContainsIP checks if the given host string is an IP address in the list
func ContainsIP(ips []net.IP, host string) bool {
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	for _, candidate := range ips {
		if candidate.Equal(ip) {
			return true
		}
	}
	return false
}
