// Package linkcheck validates product links before they are handed to an
// import job.
package linkcheck

import (
	"errors"
	"fmt"
	"net/netip"
	"net/url"
	"strings"
)

// ErrInvalidLink is wrapped by every validation failure.
var ErrInvalidLink = errors.New("invalid import link")

// MaxLength bounds the accepted link length.
const MaxLength = 2048

// Validate checks that link is an absolute http(s) URL pointing at a public
// host and returns it normalised. Host names are not resolved; only literal
// addresses are screened.
func Validate(link string) (string, error) {
	link = strings.TrimSpace(link)
	if link == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidLink)
	}
	if len(link) > MaxLength {
		return "", fmt.Errorf("%w: longer than %d bytes", ErrInvalidLink, MaxLength)
	}

	u, err := url.Parse(link)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidLink, err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return "", fmt.Errorf("%w: scheme must be http or https", ErrInvalidLink)
	}
	if u.User != nil {
		return "", fmt.Errorf("%w: credentials are not allowed", ErrInvalidLink)
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidLink)
	}
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return "", fmt.Errorf("%w: local host %q", ErrInvalidLink, host)
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		if reason := blocked(addr.Unmap()); reason != "" {
			return "", fmt.Errorf("%w: %s address %s", ErrInvalidLink, reason, addr)
		}
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	return u.String(), nil
}

func blocked(addr netip.Addr) string {
	switch {
	case addr.IsLoopback():
		return "loopback"
	case addr.IsPrivate():
		return "private"
	case addr.IsLinkLocalUnicast(), addr.IsLinkLocalMulticast():
		return "link-local"
	case addr.IsUnspecified():
		return "unspecified"
	case addr.IsMulticast():
		return "multicast"
	}
	return ""
}
