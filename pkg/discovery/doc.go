// Package discovery finds the Brick Daemon on the local network.
//
// A daemon host advertises a DNS-SD service (by default _brickd._tcp in
// the local. domain). When the configured bus host is "auto", the
// controller browses for that service and connects to the first instance
// that resolves to an address.
//
// Entries for the same instance arriving from several interfaces are
// merged into one Endpoint whose address list grows as they come in.
package discovery
