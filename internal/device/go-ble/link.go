package goble

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/powerup/internal/device"
	"github.com/srg/powerup/internal/groutine"
)

// gattClient is the subset of ble.Client a link uses.
type gattClient interface {
	DiscoverProfile(force bool) (*ble.Profile, error)
	ReadCharacteristic(c *ble.Characteristic) ([]byte, error)
	WriteCharacteristic(c *ble.Characteristic, value []byte, noRsp bool) error
	Subscribe(c *ble.Characteristic, ind bool, h ble.NotificationHandler) error
	Unsubscribe(c *ble.Characteristic, ind bool) error
	ClearSubscriptions() error
	CancelConnection() error
}

type charKey struct {
	service string
	char    string
}

// Link is a live go-ble GATT connection.
type Link struct {
	address  string
	client   gattClient
	logger   *logrus.Logger
	services []device.Service
	chars    map[charKey]*ble.Characteristic

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

var _ device.Link = (*Link)(nil)

func newLink(address string, client gattClient, profile *ble.Profile, logger *logrus.Logger) *Link {
	l := &Link{
		address: address,
		client:  client,
		logger:  logger,
		chars:   make(map[charKey]*ble.Characteristic),
		done:    make(chan struct{}),
	}

	if profile != nil {
		for _, bleSvc := range profile.Services {
			svc := device.Service{UUID: device.NormalizeUUID(bleSvc.UUID.String())}
			for _, bleChar := range bleSvc.Characteristics {
				uuid := device.NormalizeUUID(bleChar.UUID.String())
				svc.Characteristics = append(svc.Characteristics, device.Characteristic{
					UUID:       uuid,
					Properties: NewProperties(bleChar.Property),
				})
				l.chars[charKey{service: svc.UUID, char: uuid}] = bleChar
			}
			l.services = append(l.services, svc)
		}
	}
	device.SortServices(l.services)

	// CoreBluetooth and the HCI client both expose Disconnected(); neither is
	// part of the narrow client interface, so probe for it.
	if dc, ok := client.(interface{ Disconnected() <-chan struct{} }); ok {
		groutine.Go(context.Background(), "ble-link-monitor", func(ctx context.Context) {
			select {
			case <-dc.Disconnected():
				l.logger.WithField("address", address).Warn("BLE stack reported disconnection")
				l.markClosed()
			case <-l.done:
			}
		})
	} else {
		l.logger.Debug("Client does not expose Disconnected(); relying on explicit Disconnect")
	}
	return l
}

// Address returns the peripheral address this link was dialed with.
func (l *Link) Address() string { return l.address }

// Services returns the discovered profile, sorted by UUID.
func (l *Link) Services() []device.Service { return l.services }

// Disconnected is closed once the link is down.
func (l *Link) Disconnected() <-chan struct{} { return l.done }

func (l *Link) markClosed() {
	l.closeOnce.Do(func() { close(l.done) })
}

func (l *Link) lookup(service, char string) (*ble.Characteristic, error) {
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

// Read reads the characteristic value.
func (l *Link) Read(ctx context.Context, service, char string) ([]byte, error) {
	c, err := l.lookup(service, char)
	if err != nil {
		return nil, err
	}
	data, err := device.Await(ctx, "read "+char, func() ([]byte, error) {
		return l.client.ReadCharacteristic(c)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read characteristic %s: %w", char, NormalizeError(err))
	}
	return data, nil
}

// Write writes data to the characteristic. When the characteristic only
// supports write-without-response, withResponse is ignored.
func (l *Link) Write(ctx context.Context, service, char string, data []byte, withResponse bool) error {
	c, err := l.lookup(service, char)
	if err != nil {
		return err
	}
	noRsp := !withResponse
	if c.Property&ble.CharWrite == 0 && c.Property&ble.CharWriteNR != 0 {
		noRsp = true
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	_, err = device.Await(ctx, "write "+char, func() (struct{}, error) {
		return struct{}{}, l.client.WriteCharacteristic(c, data, noRsp)
	})
	if err != nil {
		return fmt.Errorf("failed to write to characteristic %s in service %s: %w", char, service, NormalizeError(err))
	}
	return nil
}

// Subscribe enables notifications (or indications when the characteristic
// only indicates) and forwards each value to handler.
func (l *Link) Subscribe(ctx context.Context, service, char string, handler func([]byte)) error {
	c, err := l.lookup(service, char)
	if err != nil {
		return err
	}
	ind := c.Property&ble.CharNotify == 0 && c.Property&ble.CharIndicate != 0
	_, err = device.Await(ctx, "subscribe "+char, func() (struct{}, error) {
		return struct{}{}, l.client.Subscribe(c, ind, func(data []byte) {
			handler(data)
		})
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to characteristic %s: %w", char, NormalizeError(err))
	}
	return nil
}

// Unsubscribe disables notifications for the characteristic.
func (l *Link) Unsubscribe(ctx context.Context, service, char string) error {
	c, err := l.lookup(service, char)
	if err != nil {
		return err
	}
	ind := c.Property&ble.CharNotify == 0 && c.Property&ble.CharIndicate != 0
	_, err = device.Await(ctx, "unsubscribe "+char, func() (struct{}, error) {
		return struct{}{}, l.client.Unsubscribe(c, ind)
	})
	return NormalizeError(err)
}

// Disconnect clears subscriptions and cancels the connection. Calling it on
// an already closed link is a no-op.
func (l *Link) Disconnect() error {
	select {
	case <-l.done:
		return nil
	default:
	}

	l.logger.WithField("address", l.address).Info("Disconnecting BLE device...")
	var errs []string
	if err := l.client.ClearSubscriptions(); err != nil {
		errs = append(errs, err.Error())
		l.logger.WithError(err).Warn("Failed to clear subscriptions during disconnect")
	}
	err := l.client.CancelConnection()
	l.markClosed()
	if err != nil {
		return fmt.Errorf("failed to cancel connection: %w", NormalizeError(err))
	}
	if len(errs) > 0 {
		l.logger.WithField("errors", strings.Join(errs, "; ")).Debug("Disconnect completed with warnings")
	}
	return nil
}
