// Package peers renders ranked proxies as squid cache_peer directives.
package peers

import (
	"fmt"
	"net"
	"strconv"

	"github.com/hashicorp/go-multierror"

	"proxyrank/pkg/record"
)

const cachePeerFormat = "cache_peer %s parent %d 0 no-query weighted-round-robin weight=1 " +
	"connect-fail-limit=2 allow-miss max-conn=5 name=proxy-%d"

// AnonymityDirectives follow the peer list so squid never goes direct or leaks the client
var AnonymityDirectives = []string{
	"request_header_access Via deny all",
	"request_header_access X-Forwarded-For deny all",
	"request_header_access From deny all",
	"never_direct allow all",
}

// Peer is one cache_peer line target
type Peer struct {
	Host string
	Port int
}

// Address joins host and port
func (p Peer) Address() string {
	return net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
}

// FromRanked converts ranked keys into peers, keeping rank order. The same host:port
// under two schemes becomes one peer. Keys that do not parse are skipped and
// reported together in the returned error.
func FromRanked(keys []string) ([]Peer, error) {
	var errs *multierror.Error
	peers := make([]Peer, 0, len(keys))
	seen := make(map[string]bool, len(keys))

	for _, key := range keys {
		_, host, port, err := record.SplitKey(key)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}

		peer := Peer{Host: host, Port: port}
		if seen[peer.Address()] {
			continue
		}
		seen[peer.Address()] = true
		peers = append(peers, peer)
	}

	return peers, errs.ErrorOrNil()
}

// CachePeerLines renders one cache_peer line per peer, named proxy-0, proxy-1, ...
func CachePeerLines(peers []Peer) []string {
	lines := make([]string, 0, len(peers))
	for idx, peer := range peers {
		lines = append(lines, fmt.Sprintf(cachePeerFormat, peer.Host, peer.Port, idx))
	}
	return lines
}
