package plcclient

import "context"

// Driver is the injected industrial-protocol driver boundary. Implementations
// wrap a wire-level library (CIP/EtherNet-IP or similar); their internals are
// opaque to the client. Variable names are device-level names, already mapped
// from logical names by the caller.
type Driver interface {
	// Connect establishes a session with the device at addr (ip:port).
	// It must respect the context deadline.
	Connect(ctx context.Context, addr string) error

	// ReadVariable reads the current value of a device variable.
	ReadVariable(name string) (any, error)

	// WriteVariable writes a value to a device variable.
	WriteVariable(name string, value any) error
}

// DriverCloser is optionally implemented by drivers whose sessions need an
// explicit teardown. A driver without it is closed implicitly by dropping
// the reference.
type DriverCloser interface {
	Driver
	Close() error
}

// closeDriver releases the driver session when it supports closing.
// Absence of a close operation is success, not an error.
func closeDriver(d Driver) error {
	if dc, ok := d.(DriverCloser); ok {
		return dc.Close()
	}
	return nil
}
