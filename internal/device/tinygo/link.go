package tinygo

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/powerup/internal/device"
	"tinygo.org/x/bluetooth"
)

// maxReadSize bounds a single characteristic read (ATT maximum attribute length).
const maxReadSize = 512

// gattChar is the part of a tinygo characteristic a Link uses.
// BlueZ keeps notification state inside the characteristic, so Links hold
// pointers to the discovered values, never copies.
type gattChar interface {
	Read(data []byte) (int, error)
	WriteWithoutResponse(p []byte) (int, error)
	EnableNotifications(callback func(buf []byte)) error
}

// ackWriter is implemented by characteristics that support write requests.
// tinygo offers it on CoreBluetooth and WinRT but not on BlueZ.
type ackWriter interface {
	Write(p []byte) (int, error)
}

// gattDevice is the part of bluetooth.Device a Link uses.
type gattDevice interface {
	Disconnect() error
}

var (
	_ gattChar   = (*bluetooth.DeviceCharacteristic)(nil)
	_ gattDevice = bluetooth.Device{}
)

type charKey struct {
	service string
	char    string
}

// Link is a connected tinygo bluetooth.Device.
type Link struct {
	address  string
	dev      gattDevice
	logger   *logrus.Logger
	services []device.Service
	chars    map[charKey]gattChar

	writeMu   sync.Mutex
	noAckOnce sync.Once
	closeOnce sync.Once
	done      chan struct{}
}

var _ device.Link = (*Link)(nil)

func newLink(address string, dev gattDevice, logger *logrus.Logger) *Link {
	return &Link{
		address: address,
		dev:     dev,
		logger:  logger,
		chars:   make(map[charKey]gattChar),
		done:    make(chan struct{}),
	}
}

func discover(ctx context.Context, address string, dev bluetooth.Device, logger *logrus.Logger) (*Link, error) {
	l := newLink(address, dev, logger)

	services, err := device.Await(ctx, "discover services", func() ([]bluetooth.DeviceService, error) {
		return dev.DiscoverServices(nil)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to discover services: %w", NormalizeError(err))
	}

	for _, s := range services {
		chars, err := device.Await(ctx, "discover characteristics", func() ([]bluetooth.DeviceCharacteristic, error) {
			return s.DiscoverCharacteristics(nil)
		})
		if err != nil {
			return nil, fmt.Errorf("failed to discover characteristics of %s: %w", s.UUID().String(), NormalizeError(err))
		}
		l.addService(s.UUID().String())
		for i := range chars {
			l.addCharacteristic(s.UUID().String(), chars[i].UUID().String(), &chars[i])
		}
	}
	device.SortServices(l.services)

	logger.WithFields(logrus.Fields{
		"address":  address,
		"services": len(l.services),
	}).Debug("Profile discovered successfully")
	return l, nil
}

func (l *Link) addService(uuid string) {
	u := device.NormalizeUUID(uuid)
	for _, s := range l.services {
		if s.UUID == u {
			return
		}
	}
	l.services = append(l.services, device.Service{UUID: u})
}

// addCharacteristic registers c under its service. tinygo does not expose
// characteristic properties on every platform; zero means unknown.
func (l *Link) addCharacteristic(service, char string, c gattChar) {
	svc, uuid := device.NormalizeUUID(service), device.NormalizeUUID(char)
	l.addService(svc)
	for i := range l.services {
		if l.services[i].UUID == svc {
			l.services[i].Characteristics = append(l.services[i].Characteristics, device.Characteristic{UUID: uuid})
		}
	}
	l.chars[charKey{service: svc, char: uuid}] = c
}

// Address returns the peripheral address.
func (l *Link) Address() string { return l.address }

// Services returns the discovered profile.
func (l *Link) Services() []device.Service { return l.services }

// Disconnected is closed once the link is down.
func (l *Link) Disconnected() <-chan struct{} { return l.done }

func (l *Link) markClosed() {
	l.closeOnce.Do(func() { close(l.done) })
}

func (l *Link) lookup(service, char string) (gattChar, error) {
	select {
	case <-l.done:
		return nil, device.ErrNotConnected
	default:
	}
	c, ok := l.chars[charKey{service: device.NormalizeUUID(service), char: device.NormalizeUUID(char)}]
	if !ok {
		if _, err := device.FindService(l.services, service); err != nil {
			return nil, err
		}
		return nil, &device.NotFoundError{Resource: "characteristic", UUIDs: []string{service, char}}
	}
	return c, nil
}

// Read reads up to maxReadSize bytes of the characteristic value.
func (l *Link) Read(ctx context.Context, service, char string) ([]byte, error) {
	c, err := l.lookup(service, char)
	if err != nil {
		return nil, err
	}
	data, err := device.Await(ctx, "read "+char, func() ([]byte, error) {
		buf := make([]byte, maxReadSize)
		n, err := c.Read(buf)
		if err != nil {
			return nil, err
		}
		return buf[:n], nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read characteristic %s: %w", char, NormalizeError(err))
	}
	return data, nil
}

// Write writes data with or without response. Where the stack has no write
// requests the data goes out as a write command.
func (l *Link) Write(ctx context.Context, service, char string, data []byte, withResponse bool) error {
	c, err := l.lookup(service, char)
	if err != nil {
		return err
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	write := c.WriteWithoutResponse
	if withResponse {
		if ack, ok := c.(ackWriter); ok {
			write = ack.Write
		} else {
			l.noAckOnce.Do(func() {
				l.logger.WithField("address", l.address).Info("Acknowledged writes are not available on this BLE stack, writing without response")
			})
		}
	}

	_, err = device.Await(ctx, "write "+char, func() (int, error) {
		return write(data)
	})
	if err != nil {
		return fmt.Errorf("failed to write to characteristic %s in service %s: %w", char, service, NormalizeError(err))
	}
	return nil
}

// Subscribe enables notifications on the characteristic.
func (l *Link) Subscribe(ctx context.Context, service, char string, handler func([]byte)) error {
	c, err := l.lookup(service, char)
	if err != nil {
		return err
	}
	_, err = device.Await(ctx, "subscribe "+char, func() (struct{}, error) {
		return struct{}{}, c.EnableNotifications(func(buf []byte) {
			handler(append([]byte(nil), buf...))
		})
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to characteristic %s: %w", char, NormalizeError(err))
	}
	return nil
}

// Unsubscribe disables notifications; tinygo does this with a nil callback.
func (l *Link) Unsubscribe(ctx context.Context, service, char string) error {
	c, err := l.lookup(service, char)
	if err != nil {
		return err
	}
	_, err = device.Await(ctx, "unsubscribe "+char, func() (struct{}, error) {
		return struct{}{}, c.EnableNotifications(nil)
	})
	return NormalizeError(err)
}

// Disconnect closes the connection; a second call is a no-op.
func (l *Link) Disconnect() error {
	select {
	case <-l.done:
		return nil
	default:
	}
	l.logger.WithField("address", l.address).Info("Disconnecting BLE device...")
	err := l.dev.Disconnect()
	l.markClosed()
	if err != nil {
		return fmt.Errorf("failed to disconnect: %w", NormalizeError(err))
	}
	return nil
}
