package discovery

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"strings"
	"time"
)

// SearchTarget is the SSDP ST answered by ColorTouch thermostats.
const SearchTarget = "colortouch:ecp"

// DefaultTimeout bounds an SSDP search.
const DefaultTimeout = 10 * time.Second

// Logger defines the logging interface used by the Discoverer.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Endpoint is one thermostat found by discovery.
type Endpoint struct {
	ID     string // USN id or the hex IPv4 of a static host
	Host   string // host[:port] for the HTTP API
	Name   string // from the USN, empty for static hosts
	Type   string // from the USN, empty for static hosts
	USN    string
	Static bool
}

// Address returns the controller node address for the endpoint.
func (e Endpoint) Address() string {
	return ThermostatAddress(e.ID)
}

// Resolver looks up IPv4 addresses. *net.Resolver satisfies it.
type Resolver interface {
	LookupIP(ctx context.Context, network, host string) ([]net.IP, error)
}

// Searcher performs an SSDP search and returns raw answers.
type Searcher interface {
	Search(ctx context.Context, target string, timeout time.Duration) ([]Response, error)
}

// Discoverer finds thermostats from a static list or SSDP.
//
// Thread Safety: Discover is safe for concurrent use.
type Discoverer struct {
	hosts    []string
	timeout  time.Duration
	resolver Resolver
	searcher Searcher
	logger   Logger
}

// Option configures a Discoverer.
type Option func(*Discoverer)

// WithResolver replaces net.DefaultResolver.
func WithResolver(r Resolver) Option {
	return func(d *Discoverer) { d.resolver = r }
}

// WithSearcher replaces the multicast SSDP searcher.
func WithSearcher(s Searcher) Option {
	return func(d *Discoverer) { d.searcher = s }
}

// WithLogger sets the logger.
func WithLogger(l Logger) Option {
	return func(d *Discoverer) {
		if l != nil {
			d.logger = l
		}
	}
}

// New creates a Discoverer. hostList is the configured "host;host" value;
// an empty list selects SSDP.
func New(hostList string, timeout time.Duration, opts ...Option) *Discoverer {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	d := &Discoverer{
		hosts:    SplitHosts(hostList),
		timeout:  timeout,
		resolver: net.DefaultResolver,
		searcher: &SSDPSearcher{},
		logger:   noopLogger{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Static reports whether a host list is configured.
func (d *Discoverer) Static() bool {
	return len(d.hosts) > 0
}

// Discover returns the endpoints currently visible. An empty slice with a
// nil error means nothing was found.
func (d *Discoverer) Discover(ctx context.Context) ([]Endpoint, error) {
	if d.Static() {
		return d.staticEndpoints(ctx), nil
	}

	responses, err := d.searcher.Search(ctx, SearchTarget, d.timeout)
	if err != nil {
		return nil, fmt.Errorf("ssdp search: %w", err)
	}
	d.logger.Debug("ssdp search finished", "responses", len(responses))

	seen := make(map[string]bool, len(responses))
	endpoints := make([]Endpoint, 0, len(responses))
	for _, r := range responses {
		if r.USN == "" || seen[r.USN] {
			continue
		}
		ep, err := r.Endpoint()
		if err != nil {
			d.logger.Warn("ignoring ssdp response", "usn", r.USN, "location", r.Location, "error", err)
			continue
		}
		seen[r.USN] = true
		endpoints = append(endpoints, ep)
	}
	return endpoints, nil
}

func (d *Discoverer) staticEndpoints(ctx context.Context) []Endpoint {
	endpoints := make([]Endpoint, 0, len(d.hosts))
	for _, host := range d.hosts {
		id, err := d.hostID(ctx, host)
		if err != nil {
			id = NodeAddress(host)
			d.logger.Warn("unable to resolve configured host, using hostname as id", "host", host, "id", id, "error", err)
		}
		endpoints = append(endpoints, Endpoint{ID: id, Host: host, Static: true})
	}
	return endpoints
}

// hostID resolves host to its first IPv4 address in 8-digit hex.
func (d *Discoverer) hostID(ctx context.Context, host string) (string, error) {
	name := host
	if h, _, err := net.SplitHostPort(host); err == nil {
		name = h
	}
	ips, err := d.resolver.LookupIP(ctx, "ip4", name)
	if err != nil {
		return "", err
	}
	for _, ip := range ips {
		if v4 := ip.To4(); v4 != nil {
			return fmt.Sprintf("%08x", binary.BigEndian.Uint32(v4)), nil
		}
	}
	return "", fmt.Errorf("no IPv4 address for %s", name)
}

// SplitHosts splits a semicolon separated host list, dropping blanks.
func SplitHosts(list string) []string {
	var hosts []string
	for _, h := range strings.Split(list, ";") {
		if h = strings.TrimSpace(h); h != "" {
			hosts = append(hosts, h)
		}
	}
	return hosts
}
