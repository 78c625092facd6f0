package goble

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/powerup/internal/device"
)

// Options configures the go-ble transport.
type Options struct {
	// AdapterID selects the HCI device on Linux (hciN). Ignored on macOS.
	AdapterID int
}

// DeviceFactory creates ble.Device instances (can be overridden in tests)
//
//nolint:revive // DeviceFactory name is intentional for test mocking
var DeviceFactory = func(opts Options) (ble.Device, error) {
	return newDevice(opts)
}

// central is the scanning half of ble.Device.
type central interface {
	Scan(ctx context.Context, allowDup bool, h ble.AdvHandler) error
	Stop() error
}

// dialFunc opens a GATT client. ble.Device.Dial satisfies it via a closure.
type dialFunc func(ctx context.Context, addr ble.Addr) (gattClient, error)

// Transport implements device.Transport on top of github.com/go-ble/ble.
type Transport struct {
	dev    central
	dial   dialFunc
	logger *logrus.Logger
}

var _ device.Transport = (*Transport)(nil)

// NewTransport creates the platform BLE device and wraps it.
func NewTransport(opts Options, logger *logrus.Logger) (*Transport, error) {
	dev, err := DeviceFactory(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create BLE device: %w", NormalizeError(err))
	}
	return newTransport(dev, func(ctx context.Context, addr ble.Addr) (gattClient, error) {
		return dev.Dial(ctx, addr)
	}, logger), nil
}

func newTransport(dev central, dial dialFunc, logger *logrus.Logger) *Transport {
	if logger == nil {
		logger = logrus.New()
	}
	return &Transport{dev: dev, dial: dial, logger: logger}
}

// Scan reports advertisements until ctx is done.
func (t *Transport) Scan(ctx context.Context, handler func(device.Advertisement)) error {
	t.logger.Debug("Starting go-ble scan")
	err := t.dev.Scan(ctx, true, func(adv ble.Advertisement) {
		handler(NewAdvertisement(adv))
	})
	// The macOS backend only returns once ctx is cancelled, always with ctx's error.
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return NormalizeError(err)
	}
	return nil
}

// Dial connects to the peripheral at address and discovers its full profile.
func (t *Transport) Dial(ctx context.Context, address string) (device.Link, error) {
	t.logger.WithField("address", address).Debug("Dialing BLE device...")
	client, err := t.dial(ctx, ble.NewAddr(address))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to device with address %q: %w", address, NormalizeError(err))
	}

	t.logger.WithField("address", address).Debug("Discovering services and characteristics...")
	profile, err := device.Await(ctx, "discover profile", func() (*ble.Profile, error) {
		return client.DiscoverProfile(true)
	})
	if err != nil {
		if cancelErr := client.CancelConnection(); cancelErr != nil {
			t.logger.WithField("cancel_error", cancelErr).Warn("Failed to cancel connection during profile discovery failure")
		}
		return nil, fmt.Errorf("failed to discover profile: %w", NormalizeError(err))
	}

	l := newLink(address, client, profile, t.logger)
	t.logger.WithFields(logrus.Fields{
		"address":  address,
		"services": len(l.services),
	}).Debug("Profile discovered successfully")
	return l, nil
}

// Close stops the underlying HCI / CoreBluetooth device.
func (t *Transport) Close() error {
	if t.dev == nil {
		return nil
	}
	dev := t.dev
	t.dev = nil
	return NormalizeError(dev.Stop())
}
