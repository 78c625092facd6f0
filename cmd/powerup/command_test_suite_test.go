package main

import (
	"bytes"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/srg/powerup/internal/device"
	"github.com/srg/powerup/internal/device/devicetest"
	"github.com/srg/powerup/pkg/config"
	"github.com/srg/powerup/pkg/powerup"
)

const testDeviceAddress = "00:00:00:00:00:01"

// CommandTestSuite runs commands against an in-memory PowerUp.
// All cmd/powerup test suites should embed this.
type CommandTestSuite struct {
	devicetest.PeripheralSuite

	Profile    powerup.Profile
	Peripheral *devicetest.Peripheral

	origTransport func(*config.Config, *logrus.Logger) (device.Transport, error)
}

func (s *CommandTestSuite) SetupTest() {
	s.T().Setenv("HOME", s.T().TempDir()) // no user config file
	color.NoColor = true

	s.Profile = powerup.DefaultProfile()
	p := s.Profile
	s.Peripheral = s.WithPeripheral(testDeviceAddress, powerup.DefaultDeviceName).
		WithAdvertisedService(p.ControlService).
		WithService(p.ControlService).
		WithCharacteristic(p.Motor, "write,write-without-response", []byte{0}).
		WithCharacteristic(p.Rudder, "write,write-without-response", []byte{0}).
		WithCharacteristic(p.Charging, "read", []byte{0}).
		WithService(p.BatteryService).
		WithCharacteristic(p.BatteryLevel, "read,notify", []byte{87})
	s.WithPeripheral("00:00:00:00:00:02", "Headphones").WithAdvertisedService("180f")

	s.PeripheralSuite.SetupTest()

	s.origTransport = newTransport
	newTransport = func(*config.Config, *logrus.Logger) (device.Transport, error) {
		return s.Transport, nil
	}
}

func (s *CommandTestSuite) TearDownTest() {
	newTransport = s.origTransport
	s.PeripheralSuite.TearDownTest()
}

// ExecuteCommand runs the CLI with args, returns stdout and error.
// A short scan timeout is prepended so "not found" cases finish quickly.
func (s *CommandTestSuite) ExecuteCommand(args ...string) (string, error) {
	out := new(bytes.Buffer)
	errOut := new(bytes.Buffer)
	cmd := newRootCmd()
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetIn(new(bytes.Buffer)) // never a terminal
	cmd.SetArgs(append([]string{"--scan-timeout", "200ms"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

// Writes returns the values written to char.
func (s *CommandTestSuite) Writes(char string) [][]byte {
	var out [][]byte
	for _, w := range s.Peripheral.Writes() {
		if w.Char == device.NormalizeUUID(char) {
			out = append(out, w.Data)
		}
	}
	return out
}
