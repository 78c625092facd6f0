package powerup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/powerup/internal/device"
	"github.com/srg/powerup/internal/groutine"
)

const (
	// DefaultScanTimeout bounds the search for the peripheral when Connect is
	// given a non-positive timeout.
	DefaultScanTimeout    = 5 * time.Second
	defaultConnectTimeout = 30 * time.Second
	defaultOpTimeout      = 5 * time.Second
)

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(logger *logrus.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithProfile replaces DefaultProfile.
func WithProfile(p Profile) Option {
	return func(s *Session) { s.profile = p }
}

// WithWriteResponse selects acknowledged (true) or unacknowledged writes
// for motor and rudder commands.
func WithWriteResponse(withResponse bool) Option {
	return func(s *Session) { s.withResponse = withResponse }
}

// WithConnectTimeout bounds GATT connection and profile discovery.
func WithConnectTimeout(d time.Duration) Option {
	return func(s *Session) { s.connectTimeout = d }
}

// WithOperationTimeout bounds every read, write and subscribe. Zero leaves
// only the caller's context.
func WithOperationTimeout(d time.Duration) Option {
	return func(s *Session) { s.opTimeout = d }
}

// Session is a connection to one PowerUp controller.
type Session struct {
	transport      device.Transport
	profile        Profile
	logger         *logrus.Logger
	withResponse   bool
	connectTimeout time.Duration
	opTimeout      time.Duration

	mu         sync.Mutex
	link       device.Link
	connecting bool
	batterySub bool
	onBattery  func(level int)
	monitors   groutine.Group
}

// NewSession creates a disconnected session over transport.
func NewSession(transport device.Transport, opts ...Option) *Session {
	s := &Session{
		transport:      transport,
		profile:        DefaultProfile(),
		logger:         logrus.New(),
		withResponse:   true,
		connectTimeout: defaultConnectTimeout,
		opTimeout:      defaultOpTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Profile returns the GATT identifiers the session uses.
func (s *Session) Profile() Profile {
	return s.profile
}

// IsConnected reports whether the session holds a link.
func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.link != nil
}

// Address returns the address of the connected peripheral, or "".
func (s *Session) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.link == nil {
		return ""
	}
	return s.link.Address()
}

// Connect scans for up to timeout for a peripheral advertising name
// (case-insensitive), connects to it and checks that it exposes the control
// and battery services.
//
// It returns false with a nil error when no such peripheral is found or it
// cannot be connected and validated. Errors are reserved for misuse and for
// failures of the BLE stack itself.
func (s *Session) Connect(ctx context.Context, name string, timeout time.Duration) (bool, error) {
	s.mu.Lock()
	if s.connecting {
		s.mu.Unlock()
		return false, ErrConnectInProgress
	}
	if s.link != nil {
		s.mu.Unlock()
		return false, device.ErrAlreadyConnected
	}
	s.connecting = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.connecting = false
		s.mu.Unlock()
	}()

	if timeout <= 0 {
		timeout = DefaultScanTimeout
	}

	log := s.logger.WithField("name", name)
	log.WithField("timeout", timeout).Info("Searching for device...")

	adv, found, err := s.find(ctx, name, timeout)
	if err != nil {
		return false, err
	}
	if !found {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		log.Info("Device not found")
		return false, nil
	}

	log = log.WithField("address", adv.Address)
	log.WithField("rssi", adv.RSSI).Debug("Device found, connecting...")

	dialCtx, cancel := context.WithTimeout(ctx, s.connectTimeout)
	link, err := s.transport.Dial(dialCtx, adv.Address)
	cancel()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		err = device.NormalizeError(err)
		if errors.Is(err, device.ErrBluetoothOff) {
			return false, &TransportError{Op: "connect", Err: err}
		}
		log.WithError(err).Warn("Failed to connect to device")
		return false, nil
	}

	if err := s.validate(link); err != nil {
		log.WithError(err).Warn("Device does not expose the PowerUp profile")
		if derr := link.Disconnect(); derr != nil {
			log.WithError(derr).Warn("Failed to disconnect after validation failure")
		}
		return false, nil
	}

	s.mu.Lock()
	s.link = link
	s.batterySub = false
	s.mu.Unlock()

	s.monitors.Go(context.Background(), "powerup-monitor-"+adv.Address, func(context.Context) {
		s.watch(link)
	})

	log.Info("Connected")
	return true, nil
}

// find returns the first advertisement whose local name matches.
func (s *Session) find(ctx context.Context, name string, timeout time.Duration) (device.Advertisement, bool, error) {
	scanCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	hit := make(chan device.Advertisement, 1)
	err := s.transport.Scan(scanCtx, func(adv device.Advertisement) {
		if adv.LocalName == "" || !strings.EqualFold(adv.LocalName, name) {
			return
		}
		select {
		case hit <- adv:
			cancel()
		default:
		}
	})

	select {
	case adv := <-hit:
		return adv, true, nil
	default:
	}
	if err != nil {
		return device.Advertisement{}, false, &TransportError{Op: "scan", Err: device.NormalizeError(err)}
	}
	return device.Advertisement{}, false, nil
}

func (s *Session) validate(link device.Link) error {
	services := link.Services()
	for _, uuid := range []string{s.profile.ControlService, s.profile.BatteryService} {
		if _, err := device.FindService(services, uuid); err != nil {
			return err
		}
	}
	return nil
}

// watch clears the session link when the transport reports that link gone.
func (s *Session) watch(link device.Link) {
	<-link.Disconnected()

	s.mu.Lock()
	dropped := s.link == link
	if dropped {
		s.link = nil
		s.batterySub = false
	}
	s.mu.Unlock()

	if dropped {
		s.logger.WithField("address", link.Address()).Warn("Device disconnected")
	}
}

// Disconnect closes the link. It is a no-op when not connected.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	link := s.link
	s.link = nil
	s.batterySub = false
	s.mu.Unlock()

	if link == nil {
		return nil
	}

	if err := link.Disconnect(); err != nil {
		return &TransportError{Op: "disconnect", Err: device.NormalizeError(err)}
	}
	s.monitors.Wait()
	s.logger.WithField("address", link.Address()).Info("Disconnected")
	return nil
}

func (s *Session) currentLink() (device.Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.link == nil {
		return nil, device.ErrNotConnected
	}
	return s.link, nil
}

func (s *Session) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opTimeout > 0 {
		return context.WithTimeout(ctx, s.opTimeout)
	}
	return context.WithCancel(ctx)
}

// SetMotorSpeed writes speed (0 to 254) to the motor characteristic.
func (s *Session) SetMotorSpeed(ctx context.Context, speed int) error {
	link, err := s.currentLink()
	if err != nil {
		return err
	}
	if err := checkRange("speed", speed, MinMotorSpeed, MaxMotorSpeed); err != nil {
		return err
	}
	if err := s.write(ctx, link, "set motor speed", s.profile.Motor, byte(speed)); err != nil {
		return err
	}
	s.logger.WithField("speed", speed).Debug("Motor speed set")
	return nil
}

// SetRudderAngle writes angle (-128 to 127) to the rudder characteristic as
// a two's complement byte.
func (s *Session) SetRudderAngle(ctx context.Context, angle int) error {
	link, err := s.currentLink()
	if err != nil {
		return err
	}
	if err := checkRange("angle", angle, MinRudderAngle, MaxRudderAngle); err != nil {
		return err
	}
	if err := s.write(ctx, link, "set rudder angle", s.profile.Rudder, byte(int8(angle))); err != nil {
		return err
	}
	s.logger.WithField("angle", angle).Debug("Rudder angle set")
	return nil
}

func (s *Session) write(ctx context.Context, link device.Link, op, char string, b byte) error {
	opCtx, cancel := s.opContext(ctx)
	defer cancel()
	if err := link.Write(opCtx, s.profile.ControlService, char, []byte{b}, s.withResponse); err != nil {
		return &TransportError{Op: op, Err: device.NormalizeError(err)}
	}
	return nil
}

func (s *Session) read(ctx context.Context, op, service, char string) ([]byte, error) {
	link, err := s.currentLink()
	if err != nil {
		return nil, err
	}
	opCtx, cancel := s.opContext(ctx)
	defer cancel()
	data, err := link.Read(opCtx, service, char)
	if err != nil {
		return nil, &TransportError{Op: op, Err: device.NormalizeError(err)}
	}
	if len(data) == 0 {
		return nil, &TransportError{Op: op, Err: ErrEmptyValue}
	}
	return data, nil
}

// BatteryLevel reads the battery level in percent.
func (s *Session) BatteryLevel(ctx context.Context) (int, error) {
	data, err := s.read(ctx, "read battery level", s.profile.BatteryService, s.profile.BatteryLevel)
	if err != nil {
		return 0, err
	}
	level := int(data[0])
	s.logger.WithField("level", level).Debug("Battery level read")
	return level, nil
}

// ChargingStatus reports whether the controller is charging.
func (s *Session) ChargingStatus(ctx context.Context) (bool, error) {
	data, err := s.read(ctx, "read charging status", s.profile.ControlService, s.profile.Charging)
	if err != nil {
		return false, err
	}
	charging := s.profile.decodeCharging(data)
	s.logger.WithFields(logrus.Fields{
		"raw":      fmt.Sprintf("%x", data),
		"charging": charging,
	}).Debug("Charging status read")
	return charging, nil
}

// EnableBatteryNotifications calls cb with every battery level the
// controller pushes. The transport subscription is made once per link;
// calling again only replaces cb.
func (s *Session) EnableBatteryNotifications(ctx context.Context, cb func(level int)) error {
	if cb == nil {
		return ErrNilCallback
	}

	s.mu.Lock()
	link := s.link
	if link == nil {
		s.mu.Unlock()
		return device.ErrNotConnected
	}
	s.onBattery = cb
	subscribed := s.batterySub
	s.mu.Unlock()

	if subscribed {
		s.logger.Debug("Battery callback replaced")
		return nil
	}

	opCtx, cancel := s.opContext(ctx)
	defer cancel()
	if err := link.Subscribe(opCtx, s.profile.BatteryService, s.profile.BatteryLevel, s.handleBattery); err != nil {
		return &TransportError{Op: "subscribe battery level", Err: device.NormalizeError(err)}
	}

	s.mu.Lock()
	if s.link == link {
		s.batterySub = true
	}
	s.mu.Unlock()

	s.logger.Info("Battery notifications enabled")
	return nil
}

// DisableBatteryNotifications unsubscribes and clears the callback.
func (s *Session) DisableBatteryNotifications(ctx context.Context) error {
	s.mu.Lock()
	link := s.link
	subscribed := s.batterySub
	s.onBattery = nil
	s.batterySub = false
	s.mu.Unlock()

	if link == nil {
		return device.ErrNotConnected
	}
	if !subscribed {
		return nil
	}

	opCtx, cancel := s.opContext(ctx)
	defer cancel()
	if err := link.Unsubscribe(opCtx, s.profile.BatteryService, s.profile.BatteryLevel); err != nil {
		return &TransportError{Op: "unsubscribe battery level", Err: device.NormalizeError(err)}
	}
	return nil
}

func (s *Session) handleBattery(data []byte) {
	if len(data) == 0 {
		s.logger.Debug("Ignoring empty battery notification")
		return
	}

	s.mu.Lock()
	cb := s.onBattery
	s.mu.Unlock()

	if cb != nil {
		cb(int(data[0]))
	}
}
