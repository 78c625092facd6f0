package devicetest

import (
	"context"
	"sync"

	"github.com/srg/powerup/internal/device"
)

// Transport is an in-memory device.Transport over a set of Peripherals.
type Transport struct {
	// ScanErr, when set, is returned by Scan before anything is delivered.
	ScanErr error
	// DialErr, when set, is returned by Dial.
	DialErr error

	mu          sync.Mutex
	peripherals []*Peripheral
	scans       int
	dials       int
	closed      bool
}

var _ device.Transport = (*Transport)(nil)

// NewTransport creates a transport that advertises the given peripherals.
func NewTransport(peripherals ...*Peripheral) *Transport {
	return &Transport{peripherals: peripherals}
}

// Add registers another peripheral.
func (t *Transport) Add(p *Peripheral) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.peripherals = append(t.peripherals, p)
}

// Scan delivers one advertisement per peripheral and then blocks until ctx
// is done, like a radio scan would.
func (t *Transport) Scan(ctx context.Context, handler func(device.Advertisement)) error {
	t.mu.Lock()
	t.scans++
	if t.ScanErr != nil {
		err := t.ScanErr
		t.mu.Unlock()
		return err
	}
	peripherals := append([]*Peripheral(nil), t.peripherals...)
	t.mu.Unlock()

	for _, p := range peripherals {
		if ctx.Err() != nil {
			return nil
		}
		handler(p.advertisement())
	}
	<-ctx.Done()
	return nil
}

// Dial connects to the peripheral with the given address.
func (t *Transport) Dial(ctx context.Context, address string) (device.Link, error) {
	t.mu.Lock()
	t.dials++
	dialErr := t.DialErr
	peripherals := append([]*Peripheral(nil), t.peripherals...)
	t.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if dialErr != nil {
		return nil, dialErr
	}
	for _, p := range peripherals {
		if p.Address == address {
			return p.open()
		}
	}
	return nil, &device.NotFoundError{Resource: "device", UUIDs: []string{address}}
}

// Close marks the transport closed.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

// Scans returns how many times Scan was called.
func (t *Transport) Scans() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.scans
}

// Dials returns how many times Dial was called.
func (t *Transport) Dials() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dials
}

// Closed reports whether Close was called.
func (t *Transport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}
