package goble

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/powerup/internal/device"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

const testAddress = "aa:bb:cc:dd:ee:ff"

type TransportTestSuite struct {
	suite.Suite

	logger  *logrus.Logger
	client  *mockClient
	central *fakeCentral
	motor   *ble.Characteristic
	level   *ble.Characteristic
	profile *ble.Profile
}

func (s *TransportTestSuite) SetupTest() {
	s.logger = logrus.New()
	s.logger.SetLevel(logrus.DebugLevel)
	s.client = &mockClient{}
	s.central = &fakeCentral{}

	s.motor = &ble.Characteristic{
		UUID:     ble.MustParse("86c3810e-0010-40d9-a117-26b300768cd6"),
		Property: ble.CharWriteNR,
	}
	s.level = &ble.Characteristic{
		UUID:     ble.MustParse("2a19"),
		Property: ble.CharRead | ble.CharNotify,
	}
	s.profile = &ble.Profile{Services: []*ble.Service{
		{UUID: ble.MustParse("86c3810e-f171-40d9-a117-26b300768cd6"), Characteristics: []*ble.Characteristic{s.motor}},
		{UUID: ble.MustParse("180f"), Characteristics: []*ble.Characteristic{s.level}},
	}}
}

func (s *TransportTestSuite) transport(client gattClient) *Transport {
	return newTransport(s.central, func(ctx context.Context, addr ble.Addr) (gattClient, error) {
		return client, nil
	}, s.logger)
}

func (s *TransportTestSuite) dial() *Link {
	s.client.On("DiscoverProfile", true).Return(s.profile, nil).Once()
	l, err := s.transport(s.client).Dial(context.Background(), testAddress)
	s.Require().NoError(err, "dial MUST succeed")
	return l.(*Link)
}

func (s *TransportTestSuite) TestScan() {
	// GOAL: Verify go-ble advertisements are converted and a cancelled scan is not an error
	//
	// TEST SCENARIO: two advertisements replayed → handler sees both normalized → ctx timeout → nil error

	s.central.ads = []ble.Advertisement{
		&fakeAdvertisement{name: "PowerUp", addr: testAddress, rssi: -40, services: []ble.UUID{ble.MustParse("86c3810e-f171-40d9-a117-26b300768cd6")}},
		&fakeAdvertisement{name: "Other", addr: "11:22:33:44:55:66", rssi: -80},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	var seen []device.Advertisement
	err := s.transport(s.client).Scan(ctx, func(a device.Advertisement) {
		seen = append(seen, a)
	})

	s.Require().NoError(err, "scan ending on ctx MUST not be an error")
	s.Require().Len(seen, 2)
	s.Assert().Equal("PowerUp", seen[0].LocalName)
	s.Assert().Equal(testAddress, seen[0].Address)
	s.Assert().Equal(-40, seen[0].RSSI)
	s.Assert().True(seen[0].HasService("86c3810e-f171-40d9-a117-26b300768cd6"))
	s.Assert().Empty(seen[1].Services)
}

func (s *TransportTestSuite) TestScanError() {
	s.central.scanErr = errors.New("central manager has invalid state: have=4 want=5: is Bluetooth turned on?")

	err := s.transport(s.client).Scan(context.Background(), func(device.Advertisement) {})

	s.Assert().ErrorIs(err, device.ErrBluetoothOff, "powered off adapter MUST map to ErrBluetoothOff")
}

func (s *TransportTestSuite) TestDial() {
	s.Run("profile is exposed sorted and normalized", func() {
		l := s.dial()

		services := l.Services()
		s.Require().Len(services, 2)
		s.Assert().Equal("180f", services[0].UUID)
		s.Assert().Equal("86c3810ef17140d9a11726b300768cd6", services[1].UUID)
		s.Assert().True(services[0].Characteristics[0].Properties.Has(device.PropRead | device.PropNotify))
		s.Assert().Equal(testAddress, l.Address())
	})

	s.Run("profile discovery failure cancels the connection", func() {
		client := &mockClient{}
		client.On("DiscoverProfile", true).Return(nil, errors.New("att: timeout")).Once()
		client.On("CancelConnection").Return(nil).Once()

		_, err := s.transport(client).Dial(context.Background(), testAddress)

		s.Assert().ErrorContains(err, "failed to discover profile")
		client.AssertExpectations(s.T())
	})

	s.Run("dial failure is wrapped", func() {
		tr := newTransport(s.central, func(ctx context.Context, addr ble.Addr) (gattClient, error) {
			return nil, errors.New("can't dial")
		}, s.logger)

		_, err := tr.Dial(context.Background(), testAddress)

		s.Assert().ErrorContains(err, "failed to connect to device")
	})
}

func (s *TransportTestSuite) TestReadWrite() {
	l := s.dial()

	s.Run("read returns the characteristic value", func() {
		s.client.On("ReadCharacteristic", s.level).Return([]byte{77}, nil).Once()

		data, err := l.Read(context.Background(), "180F", "2A19")

		s.Require().NoError(err)
		s.Assert().Equal([]byte{77}, data)
	})

	s.Run("write-without-response characteristic forces noRsp", func() {
		s.client.On("WriteCharacteristic", s.motor, []byte{127}, true).Return(nil).Once()

		err := l.Write(context.Background(), "86c3810e-f171-40d9-a117-26b300768cd6", "86c3810e-0010-40d9-a117-26b300768cd6", []byte{127}, true)

		s.Require().NoError(err)
	})

	s.Run("unknown characteristic is NotFoundError", func() {
		_, err := l.Read(context.Background(), "180f", "2a1a")

		var nf *device.NotFoundError
		s.Require().ErrorAs(err, &nf)
		s.Assert().Equal("characteristic", nf.Resource)
	})

	s.Run("unknown service is NotFoundError", func() {
		_, err := l.Read(context.Background(), "ffff", "2a19")

		var nf *device.NotFoundError
		s.Require().ErrorAs(err, &nf)
		s.Assert().Equal("service", nf.Resource)
	})

	s.Run("read error is normalized", func() {
		s.client.On("ReadCharacteristic", s.level).Return(nil, errors.New("device not connected")).Once()

		_, err := l.Read(context.Background(), "180f", "2a19")

		s.Assert().ErrorIs(err, device.ErrNotConnected)
	})

	s.client.AssertExpectations(s.T())
}

func (s *TransportTestSuite) TestSubscribe() {
	l := s.dial()

	var handler ble.NotificationHandler
	s.client.On("Subscribe", s.level, false, mock.Anything).
		Run(func(args mock.Arguments) { handler = args.Get(2).(ble.NotificationHandler) }).
		Return(nil).Once()

	var got []byte
	err := l.Subscribe(context.Background(), "180f", "2a19", func(b []byte) { got = b })
	s.Require().NoError(err)
	s.Require().NotNil(handler)

	handler([]byte{42})
	s.Assert().Equal([]byte{42}, got, "notification MUST reach the handler")

	s.client.On("Unsubscribe", s.level, false).Return(nil).Once()
	s.Assert().NoError(l.Unsubscribe(context.Background(), "180f", "2a19"))
}

func (s *TransportTestSuite) TestDisconnect() {
	s.Run("disconnect is idempotent", func() {
		l := s.dial()
		s.client.On("ClearSubscriptions").Return(nil).Once()
		s.client.On("CancelConnection").Return(nil).Once()

		s.Require().NoError(l.Disconnect())
		s.Require().NoError(l.Disconnect(), "second disconnect MUST be a no-op")

		select {
		case <-l.Disconnected():
		default:
			s.Fail("Disconnected channel MUST be closed")
		}

		_, err := l.Read(context.Background(), "180f", "2a19")
		s.Assert().ErrorIs(err, device.ErrNotConnected)
	})

	s.Run("stack disconnection closes the link", func() {
		client := &disconnectingClient{gone: make(chan struct{})}
		client.On("DiscoverProfile", true).Return(s.profile, nil).Once()

		l, err := s.transport(client).Dial(context.Background(), testAddress)
		s.Require().NoError(err)

		close(client.gone)

		select {
		case <-l.Disconnected():
		case <-time.After(time.Second):
			s.Fail("link MUST observe stack disconnection")
		}
	})
}

func (s *TransportTestSuite) TestClose() {
	tr := s.transport(s.client)

	s.Require().NoError(tr.Close())
	s.Require().NoError(tr.Close(), "second close MUST be a no-op")
	s.Assert().True(s.central.stopped)
}

func TestTransportTestSuite(t *testing.T) {
	suite.Run(t, new(TransportTestSuite))
}
