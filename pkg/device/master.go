package device

import "context"

// Master is the master brick. The controller only touches its status LED.
type Master struct {
	Device
}

// NewMaster binds a master brick at uid.
func NewMaster(caller Caller, uid uint32) *Master {
	return &Master{Device: newDevice(caller, uid, KindMaster)}
}

// EnableStatusLED turns the status LED on.
func (m *Master) EnableStatusLED(ctx context.Context) error {
	_, err := m.call(ctx, 238, nil)
	return err
}

// DisableStatusLED turns the status LED off.
func (m *Master) DisableStatusLED(ctx context.Context) error {
	_, err := m.call(ctx, 239, nil)
	return err
}
