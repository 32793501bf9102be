package record

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// SupportedProtocols lists the schemes a proxy key may carry
var SupportedProtocols = []string{"http", "https", "socks4", "socks5"}

// NormalizeKey turns an ingested line into a canonical scheme://host:port key.
// Entries without a scheme are treated as http. minLength guards against
// truncated lines and applies to the raw trimmed input.
func NormalizeKey(raw string, minLength int) (string, error) {
	entry := strings.TrimSpace(raw)
	if len(entry) < minLength {
		return "", fmt.Errorf("%w: %q shorter than %d", ErrInvalidProxyFormat, entry, minLength)
	}

	scheme := "http"
	hostPort := entry
	if idx := strings.Index(entry, "://"); idx >= 0 {
		scheme = strings.ToLower(entry[:idx])
		hostPort = entry[idx+3:]
	}
	if !IsSupportedProtocol(scheme) {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrInvalidProxyFormat, scheme)
	}

	host, port, err := SplitHostPort(hostPort)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%s://%s", scheme, net.JoinHostPort(host, strconv.Itoa(port))), nil
}

// SplitHostPort validates a host:port pair with a port in 1-65535
func SplitHostPort(hostPort string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(strings.TrimSuffix(hostPort, "/"))
	if err != nil {
		return "", 0, fmt.Errorf("%w: %q: %v", ErrInvalidProxyFormat, hostPort, err)
	}
	if host == "" {
		return "", 0, fmt.Errorf("%w: %q has no host", ErrInvalidProxyFormat, hostPort)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		return "", 0, fmt.Errorf("%w: invalid port %q", ErrInvalidProxyFormat, portStr)
	}
	return host, port, nil
}

// SplitKey breaks a canonical key into scheme, host and port
func SplitKey(key string) (string, string, int, error) {
	scheme, hostPort, ok := strings.Cut(key, "://")
	if !ok {
		return "", "", 0, fmt.Errorf("%w: %q has no scheme", ErrInvalidProxyFormat, key)
	}
	host, port, err := SplitHostPort(hostPort)
	if err != nil {
		return "", "", 0, err
	}
	return scheme, host, port, nil
}

// IsSupportedProtocol reports whether scheme is one of SupportedProtocols
func IsSupportedProtocol(scheme string) bool {
	for _, p := range SupportedProtocols {
		if p == scheme {
			return true
		}
	}
	return false
}
