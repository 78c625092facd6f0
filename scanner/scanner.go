// Package scanner lists nearby BLE peripherals, optionally narrowed to the
// ones that look like PowerUp controllers.
package scanner

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	"github.com/srg/powerup/internal/device"
)

// ProgressCallback is called when the scan phase changes
type ProgressCallback func(phase string)

// DeviceEventType marks if the device was newly discovered or updated
type DeviceEventType int

const (
	EventNew DeviceEventType = iota
	EventUpdated
)

// DeviceEvent is published for every accepted advertisement.
type DeviceEvent struct {
	Type   DeviceEventType
	Device Device
}

// Device is a peripheral seen during a scan.
type Device struct {
	Address     string
	Name        string
	RSSI        int
	Connectable bool
	Services    []string
	FirstSeen   time.Time
	LastSeen    time.Time
	Seen        int // advertisements received
}

// DisplayName returns the advertised name or the address when unnamed.
func (d Device) DisplayName() string {
	if d.Name != "" {
		return d.Name
	}
	return d.Address
}

// ScanOptions configures scanning behavior
type ScanOptions struct {
	Duration     time.Duration
	ServiceUUIDs []string // keep devices advertising any of these
	Names        []string // or whose name matches one of these, case-insensitive
	AllowList    []string
	BlockList    []string
}

// DefaultScanOptions returns default scanning options
func DefaultScanOptions() *ScanOptions {
	return &ScanOptions{
		Duration: 10 * time.Second,
	}
}

// Scanner handles BLE device discovery
type Scanner struct {
	transport device.Transport
	devices   *hashmap.Map[string, Device]
	events    *eventRing
	logger    *logrus.Logger
	now       func() time.Time

	scanOptions *ScanOptions
}

// NewScanner creates a new BLE scanner
func NewScanner(transport device.Transport, logger *logrus.Logger) *Scanner {
	if logger == nil {
		logger = logrus.New()
	}

	return &Scanner{
		transport: transport,
		devices:   hashmap.New[string, Device](),
		events:    newEventRing(100),
		logger:    logger,
		now:       time.Now,
	}
}

// Scan performs BLE discovery with provided options and returns the
// devices found, strongest signal first.
func (s *Scanner) Scan(ctx context.Context, opts *ScanOptions, progressCallback ProgressCallback) ([]Device, error) {
	s.devices = hashmap.New[string, Device]()

	if opts == nil {
		opts = DefaultScanOptions()
	}
	if progressCallback == nil {
		progressCallback = func(string) {} // No-op callback
	}

	s.logger.WithField("duration", opts.Duration).Info("Starting BLE scan...")
	progressCallback("Scanning")

	scanCtx, cancel := ctx, context.CancelFunc(func() {})
	if opts.Duration > 0 {
		scanCtx, cancel = context.WithTimeout(ctx, opts.Duration)
	}
	defer cancel()

	s.scanOptions = opts
	defer func() {
		s.scanOptions = nil
	}()
	if err := s.transport.Scan(scanCtx, s.handleAdvertisement); err != nil {
		return nil, fmt.Errorf("scan failed: %w", device.NormalizeError(err))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.logger.WithField("device_count", s.devices.Len()).Info("BLE scan completed")
	progressCallback("Processing results")

	return s.Devices(), nil
}

// Devices returns a snapshot of the devices discovered by the last scan,
// strongest signal first.
func (s *Scanner) Devices() []Device {
	devs := make([]Device, 0, s.devices.Len())
	s.devices.Range(func(_ string, d Device) bool {
		devs = append(devs, d)
		return true
	})
	sort.Slice(devs, func(i, j int) bool {
		if devs[i].RSSI != devs[j].RSSI {
			return devs[i].RSSI > devs[j].RSSI
		}
		return devs[i].Address < devs[j].Address
	})
	return devs
}

// Events return a read-only channel of device events
func (s *Scanner) Events() <-chan DeviceEvent {
	return s.events.C()
}

// DroppedEvents returns how many events were overwritten because nobody
// drained Events fast enough.
func (s *Scanner) DroppedEvents() int64 {
	return s.events.Dropped()
}

// handleAdvertisement updates existing or adds a new device
func (s *Scanner) handleAdvertisement(adv device.Advertisement) {
	id := strings.ToLower(adv.Address)
	now := s.now()

	dev, existing := s.devices.Get(id)
	if !existing {
		if !shouldIncludeDevice(adv, s.scanOptions) {
			return
		}
		dev = Device{Address: adv.Address, FirstSeen: now}
	}

	if adv.LocalName != "" {
		dev.Name = adv.LocalName
	}
	dev.RSSI = adv.RSSI
	dev.Connectable = adv.Connectable
	for _, svc := range adv.Services {
		if !contains(dev.Services, svc) {
			dev.Services = append(dev.Services, svc)
		}
	}
	dev.LastSeen = now
	dev.Seen++
	s.devices.Set(id, dev)

	event := DeviceEvent{Device: dev, Type: EventUpdated}
	if !existing {
		event.Type = EventNew
		s.logger.WithFields(logrus.Fields{
			"device":  dev.DisplayName(),
			"address": dev.Address,
			"rssi":    dev.RSSI,
		}).Info("Discovered new device")
	}
	s.events.ForceSend(event)
}

// shouldIncludeDevice applies the allow and block lists, then keeps devices
// matching any name or service filter
func shouldIncludeDevice(adv device.Advertisement, opts *ScanOptions) bool {
	if opts == nil {
		return true
	}

	for _, blocked := range opts.BlockList {
		if strings.EqualFold(adv.Address, blocked) {
			return false
		}
	}

	if len(opts.AllowList) > 0 && !containsFold(opts.AllowList, adv.Address) {
		return false
	}

	if len(opts.Names) == 0 && len(opts.ServiceUUIDs) == 0 {
		return true
	}
	if adv.LocalName != "" && containsFold(opts.Names, adv.LocalName) {
		return true
	}
	for _, required := range opts.ServiceUUIDs {
		if adv.HasService(required) {
			return true
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
