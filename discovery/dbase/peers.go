package dbase

import (
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/exp/slices"
)

var hostnameLabelRegex = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9-]{0,61}[A-Za-z0-9])?$`)

// NormalizePeers returns a sorted copy of peer addresses without duplicates or empty entries
func NormalizePeers(peers []string) []string {
	result := make([]string, 0, len(peers))
	for _, p := range peers {
		if p = strings.TrimSpace(p); p != "" {
			result = append(result, p)
		}
	}
	slices.Sort(result)
	return slices.Compact(result)
}

// EqualPeers checks if two normalized peer lists are identical
func EqualPeers(a []string, b []string) bool {
	return slices.Equal(a, b)
}

// ValidateEndpoint checks whether the given endpoint is a syntactically valid IP address or hostname, optionally with port
func ValidateEndpoint(endpoint string) error {
	host := endpoint
	if h, port, err := net.SplitHostPort(endpoint); err == nil {
		if num, perr := strconv.Atoi(port); perr != nil || num <= 0 || num > 65535 {
			return fmt.Errorf("invalid port '%s'", port)
		}
		host = h
	}
	if net.ParseIP(host) != nil {
		return nil
	}
	if !IsValidHostname(host) {
		return fmt.Errorf("invalid host '%s'", host)
	}
	return nil
}

// IsValidHostname checks a hostname according to RFC 1123
func IsValidHostname(host string) bool {
	host = strings.TrimSuffix(host, ".")
	if len(host) == 0 || len(host) > 253 {
		return false
	}
	for _, label := range strings.Split(host, ".") {
		if !hostnameLabelRegex.MatchString(label) {
			return false
		}
	}
	return true
}
