// Package tinygo implements device.Transport on tinygo.org/x/bluetooth
// (BlueZ over D-Bus on Linux, CoreBluetooth on macOS, WinRT on Windows).
package tinygo

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/powerup/internal/device"
	"github.com/srg/powerup/internal/groutine"
	"tinygo.org/x/bluetooth"
)

// Options configures the tinygo transport.
type Options struct {
	// AdapterID selects a BlueZ adapter such as "hci1". Empty uses the default adapter.
	AdapterID string
	// WatchServices are service UUIDs reported in Advertisement.Services when
	// present. tinygo only answers "does the report contain X".
	WatchServices []string
}

// stopScanRetry is how often StopScan is retried while the adapter has not
// registered the scan yet.
var stopScanRetry = 20 * time.Millisecond

// central is the scanning part of *bluetooth.Adapter.
type central interface {
	Scan(callback func(*bluetooth.Adapter, bluetooth.ScanResult)) error
	StopScan() error
}

// connectFunc connects to address and discovers its profile.
type connectFunc func(ctx context.Context, address string) (*Link, error)

// Transport wraps a tinygo bluetooth adapter.
type Transport struct {
	central central
	connect connectFunc
	watch   []bluetooth.UUID
	logger  *logrus.Logger

	mu    sync.Mutex
	links map[string]*Link // keyed by lowercase address
}

var _ device.Transport = (*Transport)(nil)

// NewTransport enables the adapter and registers the connect handler used to
// detect peripheral disconnection.
func NewTransport(opts Options, logger *logrus.Logger) (*Transport, error) {
	if logger == nil {
		logger = logrus.New()
	}

	watch := make([]bluetooth.UUID, 0, len(opts.WatchServices))
	for _, s := range opts.WatchServices {
		u, err := ParseUUID(s)
		if err != nil {
			return nil, err
		}
		watch = append(watch, u)
	}

	adapter, err := newAdapter(opts.AdapterID)
	if err != nil {
		return nil, err
	}
	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("failed to enable BLE adapter: %w", NormalizeError(err))
	}

	t := newTransport(adapter, adapterConnect(adapter, logger), watch, logger)
	adapter.SetConnectHandler(func(d bluetooth.Device, connected bool) {
		if !connected {
			t.handleDisconnect(d.Address.String())
		}
	})
	return t, nil
}

func newTransport(c central, connect connectFunc, watch []bluetooth.UUID, logger *logrus.Logger) *Transport {
	return &Transport{
		central: c,
		connect: connect,
		watch:   watch,
		logger:  logger,
		links:   make(map[string]*Link),
	}
}

func adapterConnect(adapter *bluetooth.Adapter, logger *logrus.Logger) connectFunc {
	return func(ctx context.Context, address string) (*Link, error) {
		addr, err := parseAddress(address)
		if err != nil {
			return nil, err
		}

		params := bluetooth.ConnectionParams{}
		if deadline, ok := ctx.Deadline(); ok {
			params.ConnectionTimeout = bluetooth.NewDuration(time.Until(deadline))
		}

		logger.WithField("address", address).Debug("Connecting via tinygo adapter...")
		dev, err := device.Await(ctx, "connect", func() (bluetooth.Device, error) {
			return adapter.Connect(addr, params)
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to device with address %q: %w", address, NormalizeError(err))
		}

		l, err := discover(ctx, address, dev, logger)
		if err != nil {
			if derr := dev.Disconnect(); derr != nil {
				logger.WithError(derr).Warn("Failed to disconnect after discovery failure")
			}
			return nil, err
		}
		return l, nil
	}
}

// handleDisconnect closes the link of a peripheral the stack reported gone.
func (t *Transport) handleDisconnect(address string) {
	addr := strings.ToLower(address)
	t.mu.Lock()
	l, ok := t.links[addr]
	delete(t.links, addr)
	t.mu.Unlock()
	if ok {
		t.logger.WithField("address", addr).Warn("BLE stack reported disconnection")
		l.markClosed()
	}
}

// Scan runs the adapter scan until ctx is done.
func (t *Transport) Scan(ctx context.Context, handler func(device.Advertisement)) error {
	if err := ctx.Err(); err != nil {
		return nil
	}

	done := make(chan struct{})
	defer close(done)
	groutine.Go(context.Background(), "tinygo-scan-stop", func(context.Context) {
		select {
		case <-ctx.Done():
			t.stopScan(done)
		case <-done:
		}
	})

	err := t.central.Scan(func(_ *bluetooth.Adapter, r bluetooth.ScanResult) {
		if ctx.Err() != nil {
			return
		}
		handler(newAdvertisement(r.Address.String(), r.RSSI, r, t.watch))
	})
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("scan failed: %w", NormalizeError(err))
	}
	return nil
}

// stopScan stops the running scan. Cancellation can land before the adapter
// registered the scan, in which case StopScan is retried until it has one to
// stop or the scan returned on its own.
func (t *Transport) stopScan(done <-chan struct{}) {
	ticker := time.NewTicker(stopScanRetry)
	defer ticker.Stop()
	for {
		err := t.central.StopScan()
		if err == nil {
			return
		}
		if !isNotScanning(err) {
			t.logger.WithError(err).Warn("Failed to stop scan")
			return
		}
		select {
		case <-done:
			return
		case <-ticker.C:
		}
	}
}

func isNotScanning(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "no scan in progress") || strings.Contains(msg, "not calling Scan function")
}

// Dial connects and discovers every service and characteristic.
func (t *Transport) Dial(ctx context.Context, address string) (device.Link, error) {
	l, err := t.connect(ctx, address)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	t.links[strings.ToLower(address)] = l
	t.mu.Unlock()
	return l, nil
}

// Close forgets tracked links. tinygo adapters cannot be disabled.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.links = make(map[string]*Link)
	return nil
}

// ParseUUID parses full or 16-bit UUID strings.
func ParseUUID(s string) (bluetooth.UUID, error) {
	n := device.NormalizeUUID(s)
	if len(n) == 4 {
		var v uint16
		if _, err := fmt.Sscanf(n, "%04x", &v); err != nil {
			return bluetooth.UUID{}, fmt.Errorf("invalid UUID %q: %w", s, err)
		}
		return bluetooth.New16BitUUID(v), nil
	}
	u, err := bluetooth.ParseUUID(s)
	if err != nil {
		return bluetooth.UUID{}, fmt.Errorf("invalid UUID %q: %w", s, err)
	}
	return u, nil
}

// adPayload is the part of bluetooth.ScanResult used for conversion.
type adPayload interface {
	LocalName() string
	HasServiceUUID(bluetooth.UUID) bool
}

func newAdvertisement(address string, rssi int16, p adPayload, watch []bluetooth.UUID) device.Advertisement {
	adv := device.Advertisement{
		Address:     address,
		LocalName:   p.LocalName(),
		RSSI:        int(rssi),
		Connectable: true,
	}
	for _, u := range watch {
		if p.HasServiceUUID(u) {
			adv.Services = append(adv.Services, device.NormalizeUUID(u.String()))
		}
	}
	return adv
}
