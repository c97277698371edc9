package discovery

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/enbility/zeroconf/v3"
)

// Discovery defaults.
const (
	DefaultService = "_brickd._tcp"
	Domain         = "local."
	DefaultTimeout = 5 * time.Second
)

// ErrNotFound is returned when no daemon answered before the timeout.
var ErrNotFound = errors.New("no daemon found")

// Endpoint is a resolved daemon instance.
type Endpoint struct {
	Instance  string
	Host      string
	Port      int
	Addresses []string
}

// Address returns the host to dial: the first resolved address, or the
// advertised host name if none resolved.
func (e Endpoint) Address() string {
	if len(e.Addresses) > 0 {
		return e.Addresses[0]
	}
	return e.Host
}

// String returns host:port.
func (e Endpoint) String() string {
	return net.JoinHostPort(e.Address(), strconv.Itoa(e.Port))
}

// Config configures a Resolver.
type Config struct {
	// Service is the DNS-SD service type (default DefaultService).
	Service string

	// Timeout bounds Lookup (default DefaultTimeout).
	Timeout time.Duration

	// Interface restricts browsing to one network interface.
	// Empty string means all interfaces.
	Interface string

	Logger *slog.Logger
}

// browseFunc runs one DNS-SD browse. Replaced in tests.
type browseFunc func(ctx context.Context, service, domain string, entries, removed chan *zeroconf.ServiceEntry, opts ...zeroconf.ClientOption) error

func zeroconfBrowse(ctx context.Context, service, domain string, entries, removed chan *zeroconf.ServiceEntry, opts ...zeroconf.ClientOption) error {
	return zeroconf.Browse(ctx, service, domain, entries, removed, opts...)
}

// Resolver browses for daemon instances.
type Resolver struct {
	config Config
	browse browseFunc
}

// NewResolver creates a resolver using mDNS.
func NewResolver(config Config) *Resolver {
	if config.Service == "" {
		config.Service = DefaultService
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	return &Resolver{config: config, browse: zeroconfBrowse}
}

// Lookup returns the first daemon instance that has an address.
func (r *Resolver) Lookup(ctx context.Context) (Endpoint, error) {
	ctx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	found, err := r.Browse(ctx)
	if err != nil {
		return Endpoint{}, err
	}
	for ep := range found {
		if len(ep.Addresses) == 0 || ep.Port == 0 {
			continue
		}
		r.infoLog("daemon found", "instance", ep.Instance, "endpoint", ep.String())
		return ep, nil
	}
	return Endpoint{}, ErrNotFound
}

// Browse streams daemon instances until ctx ends. An instance is emitted
// when first seen and again whenever another interface adds addresses to
// it. The channel is closed when browsing stops.
func (r *Resolver) Browse(ctx context.Context) (<-chan Endpoint, error) {
	out := make(chan Endpoint)

	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	ctx, cancel := context.WithCancel(ctx)

	go func() {
		defer close(out)
		defer cancel()

		// Track instances by name, aggregating addresses
		seen := make(map[string]*Endpoint)

		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					return
				}
				ep := entryToEndpoint(entry)
				if existing, found := seen[ep.Instance]; found {
					n := len(existing.Addresses)
					existing.Addresses = mergeAddresses(existing.Addresses, ep.Addresses)
					if len(existing.Addresses) == n {
						continue
					}
					ep = *existing
				} else {
					seen[ep.Instance] = &ep
				}
				emit := ep
				emit.Addresses = append([]string(nil), ep.Addresses...)
				select {
				case out <- emit:
				case <-ctx.Done():
					return
				}

			case entry, ok := <-removed:
				if !ok {
					removed = nil
					continue
				}
				if existing, found := seen[entry.Instance]; found {
					existing.Addresses = removeAddresses(existing.Addresses, entry)
					if len(existing.Addresses) == 0 {
						delete(seen, entry.Instance)
					}
					r.debugLog("daemon instance gone", "instance", entry.Instance)
				}

			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		if err := r.browse(ctx, r.config.Service, Domain, entries, removed, r.options()...); err != nil {
			r.debugLog("browse failed", "error", err)
			cancel()
		}
	}()

	return out, nil
}

// options returns zeroconf client options based on config.
func (r *Resolver) options() []zeroconf.ClientOption {
	var opts []zeroconf.ClientOption
	if r.config.Interface != "" {
		iface, err := net.InterfaceByName(r.config.Interface)
		if err == nil {
			opts = append(opts, zeroconf.SelectIfaces([]net.Interface{*iface}))
		}
	}
	return opts
}

func entryToEndpoint(entry *zeroconf.ServiceEntry) Endpoint {
	addrs := make([]string, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	for _, ip := range entry.AddrIPv4 {
		addrs = append(addrs, ip.String())
	}
	for _, ip := range entry.AddrIPv6 {
		addrs = append(addrs, ip.String())
	}
	return Endpoint{
		Instance:  entry.Instance,
		Host:      entry.HostName,
		Port:      entry.Port,
		Addresses: addrs,
	}
}

// mergeAddresses adds new addresses to existing list, avoiding duplicates.
func mergeAddresses(existing, add []string) []string {
	seen := make(map[string]bool, len(existing))
	for _, addr := range existing {
		seen[addr] = true
	}
	for _, addr := range add {
		if !seen[addr] {
			existing = append(existing, addr)
			seen[addr] = true
		}
	}
	return existing
}

// removeAddresses drops the entry's addresses from the list.
func removeAddresses(addresses []string, entry *zeroconf.ServiceEntry) []string {
	toRemove := make(map[string]bool)
	for _, ip := range entry.AddrIPv4 {
		toRemove[ip.String()] = true
	}
	for _, ip := range entry.AddrIPv6 {
		toRemove[ip.String()] = true
	}

	result := make([]string, 0, len(addresses))
	for _, addr := range addresses {
		if !toRemove[addr] {
			result = append(result, addr)
		}
	}
	return result
}

func (r *Resolver) debugLog(msg string, args ...any) {
	if r.config.Logger != nil {
		r.config.Logger.Debug(msg, args...)
	}
}

func (r *Resolver) infoLog(msg string, args ...any) {
	if r.config.Logger != nil {
		r.config.Logger.Info(msg, args...)
	}
}
