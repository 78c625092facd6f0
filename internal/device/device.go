package device

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// NotFoundError represents an error when a BLE resource is not found
type NotFoundError struct {
	Resource string   // "service", "characteristic", "device"
	UUIDs    []string // One or more identifiers (e.g., [serviceUUID] or [serviceUUID, charUUID])
}

func (e *NotFoundError) Error() string {
	if len(e.UUIDs) == 0 {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	if len(e.UUIDs) == 1 {
		return fmt.Sprintf("%s %q not found", e.Resource, e.UUIDs[0])
	}
	return fmt.Sprintf("%s %q not found in service %q", e.Resource, e.UUIDs[len(e.UUIDs)-1], e.UUIDs[0])
}

// ConnectionState represents the specific kind of connection state failure
type ConnectionState string

const (
	NotConnected     ConnectionState = "not_connected"
	AlreadyConnected ConnectionState = "already_connected"
	NotInitialized   ConnectionState = "not_initialized"
)

// ConnectionError represents any connection-related problem
type ConnectionError struct {
	State ConnectionState
	Msg   string
}

// Error implements the error interface
func (e *ConnectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.State)
	}
	return fmt.Sprintf("%s: %s", e.State, e.Msg)
}

// Is allows errors.Is to compare ConnectionError values by State
func (e *ConnectionError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ConnectionError)
	if !ok {
		return false
	}
	return e.State == t.State
}

// Predefined sentinel errors for connection states
var (
	ErrNotConnected     = &ConnectionError{State: NotConnected}
	ErrAlreadyConnected = &ConnectionError{State: AlreadyConnected}
	ErrNotInitialized   = &ConnectionError{State: NotInitialized}
)

// Operation errors
var (
	ErrTimeout      = errors.New("timeout")
	ErrUnsupported  = errors.New("unsupported")
	ErrBluetoothOff = errors.New("bluetooth is turned off")
)

// NormalizeError maps error strings common to BLE stacks onto the sentinels
// above. The original error is kept in the chain.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	var cerr *ConnectionError
	if errors.As(err, &cerr) || errors.Is(err, ErrBluetoothOff) || errors.Is(err, ErrTimeout) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	msg := err.Error()
	switch {
	case containsIgnoreCase(msg, "bluetooth is turned off"),
		containsIgnoreCase(msg, "powered off"):
		return fmt.Errorf("%w: %v", ErrBluetoothOff, err)
	case containsIgnoreCase(msg, "device not connected"),
		containsIgnoreCase(msg, "not connected"),
		containsIgnoreCase(msg, "disconnected"):
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	case containsIgnoreCase(msg, "device already connected"):
		return fmt.Errorf("%w: %v", ErrAlreadyConnected, err)
	case containsIgnoreCase(msg, "connection is not initialized"):
		return fmt.Errorf("%w: %v", ErrNotInitialized, err)
	default:
		return err
	}
}

// containsIgnoreCase checks substring case-insensitively
func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// IsConnectionState reports whether err is a ConnectionError with the given state
func IsConnectionState(err error, state ConnectionState) bool {
	var cerr *ConnectionError
	if errors.As(err, &cerr) {
		return cerr.State == state
	}
	return false
}

// Advertisement is a single advertising report seen during a scan.
type Advertisement struct {
	Address          string
	LocalName        string
	RSSI             int
	Connectable      bool
	Services         []string // normalized service UUIDs
	ManufacturerData []byte
}

// HasService reports whether the advertisement lists the given service UUID.
func (a Advertisement) HasService(uuid string) bool {
	want := NormalizeUUID(uuid)
	for _, s := range a.Services {
		if s == want {
			return true
		}
	}
	return false
}

// Transport is a BLE central: it scans for peripherals and dials them.
type Transport interface {
	// Scan delivers advertisements to handler until ctx is done. Returning
	// because ctx was cancelled or timed out is not an error.
	Scan(ctx context.Context, handler func(Advertisement)) error
	// Dial opens a GATT connection and discovers the peripheral's profile.
	Dial(ctx context.Context, address string) (Link, error)
	// Close releases the underlying adapter.
	Close() error
}

// Link is one open GATT connection.
type Link interface {
	Address() string
	Services() []Service
	Read(ctx context.Context, service, char string) ([]byte, error)
	Write(ctx context.Context, service, char string, data []byte, withResponse bool) error
	Subscribe(ctx context.Context, service, char string, handler func([]byte)) error
	Unsubscribe(ctx context.Context, service, char string) error
	Disconnect() error
	// Disconnected is closed when the link goes down for any reason.
	Disconnected() <-chan struct{}
}
