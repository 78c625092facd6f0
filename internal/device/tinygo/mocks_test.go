package tinygo

import (
	"errors"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
	"tinygo.org/x/bluetooth"
)

// mockChar is a testify mock of a characteristic without write requests,
// as tinygo exposes them on BlueZ.
type mockChar struct {
	mock.Mock
}

func (m *mockChar) Read(data []byte) (int, error) {
	args := m.Called(data)
	return args.Int(0), args.Error(1)
}

func (m *mockChar) WriteWithoutResponse(p []byte) (int, error) {
	args := m.Called(p)
	return args.Int(0), args.Error(1)
}

func (m *mockChar) EnableNotifications(callback func(buf []byte)) error {
	return m.Called(callback).Error(0)
}

// mockAckChar adds write requests, as on CoreBluetooth and WinRT.
type mockAckChar struct {
	mockChar
}

func (m *mockAckChar) Write(p []byte) (int, error) {
	args := m.Called(p)
	return args.Int(0), args.Error(1)
}

// notifyChar keeps notification state in the characteristic like BlueZ
// does: a nil callback only stops notifications that this value started.
type notifyChar struct {
	mockChar

	mu       sync.Mutex
	callback func([]byte)
	stops    int
}

func (c *notifyChar) EnableNotifications(callback func(buf []byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if callback == nil {
		if c.callback == nil {
			return nil
		}
		c.callback = nil
		c.stops++
		return nil
	}
	if c.callback != nil {
		return errors.New("bluetooth: characteristic notifications already enabled")
	}
	c.callback = callback
	return nil
}

func (c *notifyChar) notify(data []byte) bool {
	c.mu.Lock()
	cb := c.callback
	c.mu.Unlock()
	if cb == nil {
		return false
	}
	cb(data)
	return true
}

type mockDevice struct {
	mock.Mock
}

func (m *mockDevice) Disconnect() error {
	return m.Called().Error(0)
}

// fakePayload implements the advertisement payload fields the transport reads.
type fakePayload struct {
	bluetooth.AdvertisementPayload

	name     string
	services []bluetooth.UUID
}

func (p fakePayload) LocalName() string { return p.name }

func (p fakePayload) HasServiceUUID(u bluetooth.UUID) bool {
	for _, s := range p.services {
		if s == u {
			return true
		}
	}
	return false
}

// fakeCentral replays scan results and then blocks until StopScan, like
// tinygo adapters. StopScan fails until the scan has been registered, which
// happens startDelay after Scan is called.
type fakeCentral struct {
	results    []bluetooth.ScanResult
	scanErr    error
	startDelay time.Duration
	onScan     func()

	mu        sync.Mutex
	scanning  bool
	stop      chan struct{}
	stopCalls int
}

func (f *fakeCentral) Scan(callback func(*bluetooth.Adapter, bluetooth.ScanResult)) error {
	if f.scanErr != nil {
		return f.scanErr
	}
	if f.onScan != nil {
		f.onScan()
	}
	time.Sleep(f.startDelay)

	f.mu.Lock()
	f.scanning = true
	f.stop = make(chan struct{})
	stop := f.stop
	f.mu.Unlock()

	for _, r := range f.results {
		callback(nil, r)
	}
	<-stop
	return nil
}

func (f *fakeCentral) StopScan() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalls++
	if !f.scanning {
		return errors.New("bluetooth: there is no scan in progress")
	}
	f.scanning = false
	close(f.stop)
	return nil
}

func (f *fakeCentral) StopCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopCalls
}
