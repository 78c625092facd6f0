package devicetest

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"
)

// PeripheralSuite is a reusable testify suite that hands each test a fresh
// in-memory Transport.
//
// Basic usage (default empty transport):
//
//	type SessionSuite struct {
//	    devicetest.PeripheralSuite
//	}
//
// Custom peripheral usage:
//
//	func (s *SessionSuite) SetupTest() {
//	    s.WithPeripheral("AA:BB:CC:DD:EE:FF", "PowerUp").
//	        WithService("180F").
//	        WithCharacteristic("2A19", "read,notify", []byte{50})
//
//	    s.PeripheralSuite.SetupTest() // call parent last to apply configuration
//	}
type PeripheralSuite struct {
	suite.Suite

	Logger      *logrus.Logger
	TestTimeout time.Duration
	Transport   *Transport

	pending []*Peripheral
}

// SetupSuite creates the suite logger. Called once before all tests.
func (s *PeripheralSuite) SetupSuite() {
	s.Logger = logrus.New()
	s.Logger.SetLevel(logrus.DebugLevel) // enable debug logs to track execution flow
	s.TestTimeout = 5 * time.Second
	s.Logger.Debug("Suite setup completed")
}

// SetupTest builds the transport from the peripherals configured so far.
func (s *PeripheralSuite) SetupTest() {
	s.Transport = NewTransport(s.pending...)
	s.pending = nil
	s.Logger.Debug("Test setup completed - ready for execution")
}

// TearDownTest drops the transport.
func (s *PeripheralSuite) TearDownTest() {
	if s.Transport != nil {
		_ = s.Transport.Close()
	}
	s.Transport = nil
	s.pending = nil
}

// WithPeripheral starts configuring a peripheral that will be advertised by
// the transport created in SetupTest.
func (s *PeripheralSuite) WithPeripheral(address, name string) *Peripheral {
	p := NewPeripheral(address, name)
	if s.Transport != nil {
		s.Transport.Add(p)
	} else {
		s.pending = append(s.pending, p)
	}
	return p
}
