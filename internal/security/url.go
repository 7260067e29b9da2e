// Package security guards outbound HTTP fetches against SSRF.
//
// The web tools fetch model-chosen URLs, so every target is validated
// against private ranges, loopback, link-local, and cloud metadata
// endpoints, both statically and again at DNS resolution time.
package security

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const maxRedirects = 10

// URLValidator decides whether an outbound URL is safe to fetch.
type URLValidator struct {
	allowedSchemes map[string]struct{}
	blockedHosts   map[string]struct{}
}

// NewURLValidator creates a validator with default blocklists.
func NewURLValidator() *URLValidator {
	return &URLValidator{
		allowedSchemes: map[string]struct{}{
			"http":  {},
			"https": {},
		},
		blockedHosts: map[string]struct{}{
			"localhost":                {},
			"metadata.google.internal": {},
			"metadata.gce.internal":    {},
			"metadata.internal":        {},
		},
	}
}

// Validate statically checks a URL. Hostnames that are not IP literals
// pass here and are re-checked at dial time by the safe transport.
func (v *URLValidator) Validate(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	if _, ok := v.allowedSchemes[strings.ToLower(u.Scheme)]; !ok {
		return fmt.Errorf("unsupported scheme: %s (allowed: http, https)", u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("empty hostname")
	}
	return v.validateHost(host)
}

func (v *URLValidator) validateHost(host string) error {
	if _, blocked := v.blockedHosts[strings.ToLower(host)]; blocked {
		return fmt.Errorf("blocked host: %s", host)
	}
	if ip := net.ParseIP(host); ip != nil {
		return v.checkIP(ip)
	}
	// Plain hostname: resolved IPs are checked in safeDialContext.
	return nil
}

func (v *URLValidator) checkIP(ip net.IP) error {
	// Normalize IPv6-mapped IPv4 (::ffff:127.0.0.1 -> 127.0.0.1).
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}

	switch {
	case ip.IsLoopback():
		return fmt.Errorf("loopback address not allowed: %s", ip)
	case ip.IsPrivate():
		return fmt.Errorf("private IP not allowed: %s", ip)
	case ip.IsLinkLocalUnicast(), ip.IsLinkLocalMulticast():
		return fmt.Errorf("link-local address not allowed: %s", ip)
	case ip.IsUnspecified():
		return fmt.Errorf("unspecified address not allowed: %s", ip)
	}

	// Link-local already covers this; kept explicit because it is the
	// single most attacked target.
	if ip.String() == "169.254.169.254" {
		return fmt.Errorf("cloud metadata endpoint blocked: %s", ip)
	}
	return nil
}

// Client returns an http.Client whose transport re-validates resolved
// IPs at dial time and whose redirect policy re-validates every hop.
func (v *URLValidator) Client(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:       timeout,
		Transport:     v.SafeTransport(),
		CheckRedirect: v.ValidateRedirect,
	}
}

// SafeTransport returns a transport that validates IPs during DNS
// resolution, closing the rebinding gap Validate alone leaves open.
func (v *URLValidator) SafeTransport() *http.Transport {
	return &http.Transport{
		DialContext:         v.safeDialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
}

func (v *URLValidator) safeDialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
		port = ""
	}

	if ip := net.ParseIP(host); ip != nil {
		if err := v.checkIP(ip); err != nil {
			return nil, fmt.Errorf("SSRF blocked: %w", err)
		}
		return (&net.Dialer{}).DialContext(ctx, network, addr)
	}

	ips, err := net.DefaultResolver.LookupIP(ctx, "ip", host)
	if err != nil {
		return nil, fmt.Errorf("DNS lookup failed: %w", err)
	}
	for _, ip := range ips {
		if err := v.checkIP(ip); err != nil {
			return nil, fmt.Errorf("SSRF blocked (resolved %s -> %s): %w", host, ip, err)
		}
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("no IP addresses resolved for %s", host)
	}

	// Dial the IP we validated, not the hostname, to avoid a second
	// resolution racing the check.
	targetAddr := ips[0].String()
	if port != "" {
		targetAddr = net.JoinHostPort(targetAddr, port)
	}
	return (&net.Dialer{}).DialContext(ctx, network, targetAddr)
}

// ValidateRedirect is an http.Client CheckRedirect policy that bounds
// the chain and validates each target.
func (v *URLValidator) ValidateRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return fmt.Errorf("stopped after %d redirects", maxRedirects)
	}
	return v.Validate(req.URL.String())
}
