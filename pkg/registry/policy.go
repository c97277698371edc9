package registry

import "fmt"

// DisconnectPolicy decides what happens when a module reports itself
// disconnected.
type DisconnectPolicy uint8

const (
	// DisconnectIgnore leaves the slot in place until the next epoch or a
	// new module of the same kind replaces it.
	DisconnectIgnore DisconnectPolicy = iota

	// DisconnectInvalidate clears the slot bound to the disconnected UID and
	// deregisters its callbacks. A disconnected display is detached.
	DisconnectInvalidate
)

// String returns the policy name as used in configuration.
func (p DisconnectPolicy) String() string {
	switch p {
	case DisconnectIgnore:
		return "ignore"
	case DisconnectInvalidate:
		return "invalidate"
	default:
		return fmt.Sprintf("DisconnectPolicy(%d)", uint8(p))
	}
}

// ParseDisconnectPolicy parses "ignore" or "invalidate". The empty string
// means ignore.
func ParseDisconnectPolicy(s string) (DisconnectPolicy, error) {
	switch s {
	case "", "ignore":
		return DisconnectIgnore, nil
	case "invalidate":
		return DisconnectInvalidate, nil
	default:
		return DisconnectIgnore, fmt.Errorf("unknown disconnect policy %q", s)
	}
}
