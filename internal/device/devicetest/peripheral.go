// Package devicetest provides an in-memory device.Transport with a fluent
// peripheral builder, for tests that exercise code written against the
// device package without a radio.
package devicetest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/srg/powerup/internal/device"
)

// Write records one characteristic write seen by a peripheral.
type Write struct {
	Service      string
	Char         string
	Data         []byte
	WithResponse bool
}

type charKey struct {
	service string
	char    string
}

func keyOf(service, char string) charKey {
	return charKey{service: device.NormalizeUUID(service), char: device.NormalizeUUID(char)}
}

// Peripheral is a simulated GATT server.
type Peripheral struct {
	Address    string
	Name       string
	RSSI       int
	Advertised []string // service UUIDs put in the advertisement

	mu           sync.Mutex
	services     []device.Service
	values       map[charKey][]byte
	readErrs     map[charKey]error
	writeErrs    map[charKey]error
	subs         map[charKey]func([]byte)
	writes       []Write
	calls        int
	linked       bool
	disconnected chan struct{}
}

// NewPeripheral creates a peripheral with no services.
func NewPeripheral(address, name string) *Peripheral {
	return &Peripheral{
		Address:   address,
		Name:      name,
		RSSI:      -60,
		values:    make(map[charKey][]byte),
		readErrs:  make(map[charKey]error),
		writeErrs: make(map[charKey]error),
		subs:      make(map[charKey]func([]byte)),
	}
}

// WithService adds a service; following WithCharacteristic calls attach to it.
func (p *Peripheral) WithService(uuid string) *Peripheral {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.services = append(p.services, device.Service{UUID: device.NormalizeUUID(uuid)})
	return p
}

// WithAdvertisedService lists a service UUID in the advertisement.
func (p *Peripheral) WithAdvertisedService(uuid string) *Peripheral {
	p.Advertised = append(p.Advertised, device.NormalizeUUID(uuid))
	return p
}

// WithCharacteristic adds a characteristic to the last added service.
// props is a comma separated list: read, write, write-without-response, notify, indicate.
func (p *Peripheral) WithCharacteristic(uuid, props string, value []byte) *Peripheral {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.services) == 0 {
		panic("WithCharacteristic: no service added yet, call WithService first")
	}
	last := &p.services[len(p.services)-1]
	last.Characteristics = append(last.Characteristics, device.Characteristic{
		UUID:       device.NormalizeUUID(uuid),
		Properties: parseProperties(props),
	})
	p.values[keyOf(last.UUID, uuid)] = value
	return p
}

// FailRead makes reads of the characteristic return err.
func (p *Peripheral) FailRead(service, char string, err error) *Peripheral {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readErrs[keyOf(service, char)] = err
	return p
}

// FailWrite makes writes to the characteristic return err.
func (p *Peripheral) FailWrite(service, char string, err error) *Peripheral {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeErrs[keyOf(service, char)] = err
	return p
}

// SetValue replaces the value returned by reads.
func (p *Peripheral) SetValue(service, char string, value []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values[keyOf(service, char)] = value
}

// Value returns the current value of a characteristic.
func (p *Peripheral) Value(service, char string) []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.values[keyOf(service, char)]
}

// Notify pushes a notification to the current subscriber, if any.
// Returns false when nobody is subscribed.
func (p *Peripheral) Notify(service, char string, data []byte) bool {
	p.mu.Lock()
	h := p.subs[keyOf(service, char)]
	p.mu.Unlock()
	if h == nil {
		return false
	}
	h(data)
	return true
}

// Subscribed reports whether a notification handler is registered.
func (p *Peripheral) Subscribed(service, char string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.subs[keyOf(service, char)] != nil
}

// Writes returns a copy of all writes received.
func (p *Peripheral) Writes() []Write {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Write, len(p.writes))
	copy(out, p.writes)
	return out
}

// Calls returns the number of GATT operations (read, write, subscribe)
// the peripheral has served.
func (p *Peripheral) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// Connected reports whether a link to the peripheral is open.
func (p *Peripheral) Connected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.linked
}

// Drop simulates the peripheral going away: the open link reports
// disconnection and further operations fail.
func (p *Peripheral) Drop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeLocked()
}

func (p *Peripheral) closeLocked() {
	if !p.linked {
		return
	}
	p.linked = false
	p.subs = make(map[charKey]func([]byte))
	close(p.disconnected)
}

func (p *Peripheral) advertisement() device.Advertisement {
	return device.Advertisement{
		Address:     p.Address,
		LocalName:   p.Name,
		RSSI:        p.RSSI,
		Connectable: true,
		Services:    append([]string(nil), p.Advertised...),
	}
}

func (p *Peripheral) open() (*link, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.linked {
		return nil, fmt.Errorf("%w: %s", device.ErrAlreadyConnected, p.Address)
	}
	p.linked = true
	p.disconnected = make(chan struct{})
	services := make([]device.Service, len(p.services))
	for i, svc := range p.services {
		services[i] = device.Service{
			UUID:            svc.UUID,
			Characteristics: append([]device.Characteristic(nil), svc.Characteristics...),
		}
	}
	return &link{p: p, services: services, done: p.disconnected}, nil
}

func parseProperties(props string) device.Property {
	var out device.Property
	for _, p := range strings.Split(props, ",") {
		switch strings.TrimSpace(p) {
		case "read":
			out |= device.PropRead
		case "write":
			out |= device.PropWrite
		case "write-without-response":
			out |= device.PropWriteWithoutResponse
		case "notify":
			out |= device.PropNotify
		case "indicate":
			out |= device.PropIndicate
		}
	}
	return out
}

// link is the device.Link handed out by Transport.Dial.
type link struct {
	p        *Peripheral
	services []device.Service
	done     chan struct{}
}

func (l *link) Address() string { return l.p.Address }

func (l *link) Services() []device.Service { return l.services }

// begin validates the link and characteristic and counts the call.
// Caller must hold l.p.mu.
func (l *link) begin(service, char string, want device.Property) (charKey, error) {
	select {
	case <-l.done:
		return charKey{}, device.ErrNotConnected
	default:
	}
	l.p.calls++
	c, err := device.FindCharacteristic(l.services, service, char)
	if err != nil {
		return charKey{}, err
	}
	if want != 0 && c.Properties&want == 0 {
		return charKey{}, fmt.Errorf("characteristic %s does not support %s", c.UUID, want)
	}
	return keyOf(service, char), nil
}

func (l *link) Read(ctx context.Context, service, char string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.p.mu.Lock()
	defer l.p.mu.Unlock()
	k, err := l.begin(service, char, device.PropRead)
	if err != nil {
		return nil, err
	}
	if err := l.p.readErrs[k]; err != nil {
		return nil, err
	}
	return append([]byte(nil), l.p.values[k]...), nil
}

func (l *link) Write(ctx context.Context, service, char string, data []byte, withResponse bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.p.mu.Lock()
	defer l.p.mu.Unlock()
	k, err := l.begin(service, char, device.PropWrite|device.PropWriteWithoutResponse)
	if err != nil {
		return err
	}
	if err := l.p.writeErrs[k]; err != nil {
		return err
	}
	cp := append([]byte(nil), data...)
	l.p.values[k] = cp
	l.p.writes = append(l.p.writes, Write{Service: k.service, Char: k.char, Data: cp, WithResponse: withResponse})
	return nil
}

func (l *link) Subscribe(ctx context.Context, service, char string, handler func([]byte)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.p.mu.Lock()
	defer l.p.mu.Unlock()
	k, err := l.begin(service, char, device.PropNotify|device.PropIndicate)
	if err != nil {
		return err
	}
	l.p.subs[k] = handler
	return nil
}

func (l *link) Unsubscribe(_ context.Context, service, char string) error {
	l.p.mu.Lock()
	defer l.p.mu.Unlock()
	delete(l.p.subs, keyOf(service, char))
	return nil
}

func (l *link) Disconnect() error {
	l.p.mu.Lock()
	defer l.p.mu.Unlock()
	select {
	case <-l.done:
		return nil
	default:
	}
	if l.p.disconnected == l.done {
		l.p.closeLocked()
	}
	return nil
}

func (l *link) Disconnected() <-chan struct{} { return l.done }
