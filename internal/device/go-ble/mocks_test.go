package goble

import (
	"context"

	"github.com/go-ble/ble"
	"github.com/stretchr/testify/mock"
)

// mockClient is a testify mock of the gattClient subset of ble.Client.
type mockClient struct {
	mock.Mock
}

func (m *mockClient) DiscoverProfile(force bool) (*ble.Profile, error) {
	args := m.Called(force)
	p, _ := args.Get(0).(*ble.Profile)
	return p, args.Error(1)
}

func (m *mockClient) ReadCharacteristic(c *ble.Characteristic) ([]byte, error) {
	args := m.Called(c)
	b, _ := args.Get(0).([]byte)
	return b, args.Error(1)
}

func (m *mockClient) WriteCharacteristic(c *ble.Characteristic, value []byte, noRsp bool) error {
	return m.Called(c, value, noRsp).Error(0)
}

func (m *mockClient) Subscribe(c *ble.Characteristic, ind bool, h ble.NotificationHandler) error {
	return m.Called(c, ind, h).Error(0)
}

func (m *mockClient) Unsubscribe(c *ble.Characteristic, ind bool) error {
	return m.Called(c, ind).Error(0)
}

func (m *mockClient) ClearSubscriptions() error {
	return m.Called().Error(0)
}

func (m *mockClient) CancelConnection() error {
	return m.Called().Error(0)
}

// disconnectingClient adds the Disconnected channel exposed by real clients.
type disconnectingClient struct {
	mockClient
	gone chan struct{}
}

func (c *disconnectingClient) Disconnected() <-chan struct{} { return c.gone }

// fakeCentral replays advertisements and then waits for ctx like a radio scan.
type fakeCentral struct {
	ads     []ble.Advertisement
	scanErr error
	stopped bool
}

func (f *fakeCentral) Scan(ctx context.Context, _ bool, h ble.AdvHandler) error {
	if f.scanErr != nil {
		return f.scanErr
	}
	for _, a := range f.ads {
		h(a)
	}
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeCentral) Stop() error {
	f.stopped = true
	return nil
}

// fakeAdvertisement implements ble.Advertisement.
type fakeAdvertisement struct {
	name     string
	addr     string
	rssi     int
	services []ble.UUID
	manuf    []byte
}

func (a *fakeAdvertisement) LocalName() string              { return a.name }
func (a *fakeAdvertisement) ManufacturerData() []byte       { return a.manuf }
func (a *fakeAdvertisement) ServiceData() []ble.ServiceData { return nil }
func (a *fakeAdvertisement) Services() []ble.UUID           { return a.services }
func (a *fakeAdvertisement) OverflowService() []ble.UUID    { return nil }
func (a *fakeAdvertisement) TxPowerLevel() int              { return 127 }
func (a *fakeAdvertisement) Connectable() bool              { return true }
func (a *fakeAdvertisement) SolicitedService() []ble.UUID   { return nil }
func (a *fakeAdvertisement) RSSI() int                      { return a.rssi }
func (a *fakeAdvertisement) Addr() ble.Addr                 { return ble.NewAddr(a.addr) }
