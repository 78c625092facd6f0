package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/powerup/internal/device"
	goble "github.com/srg/powerup/internal/device/go-ble"
	"github.com/srg/powerup/internal/device/tinygo"
	"github.com/srg/powerup/pkg/config"
	"github.com/srg/powerup/pkg/powerup"
)

// newTransport opens the configured BLE stack (can be overridden in tests)
var newTransport = func(cfg *config.Config, logger *logrus.Logger) (device.Transport, error) {
	hci, err := cfg.HCIIndex()
	if err != nil {
		return nil, err
	}

	switch cfg.Transport {
	case config.TransportTinyGo:
		id := ""
		if hci >= 0 {
			id = fmt.Sprintf("hci%d", hci)
		}
		return tinygo.NewTransport(tinygo.Options{
			AdapterID:     id,
			WatchServices: []string{powerup.DefaultProfile().ControlService},
		}, logger)
	default:
		if hci < 0 {
			hci = 0
		}
		return goble.NewTransport(goble.Options{AdapterID: hci}, logger)
	}
}

// app is the per-invocation environment shared by commands.
type app struct {
	cfg       *config.Config
	logger    *logrus.Logger
	transport device.Transport
}

// loadConfig reads the config file and applies the persistent flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("name") {
		cfg.DeviceName, _ = flags.GetString("name")
	}
	if flags.Changed("transport") {
		cfg.Transport, _ = flags.GetString("transport")
	}
	if flags.Changed("adapter") {
		cfg.AdapterID, _ = flags.GetString("adapter")
	}
	if flags.Changed("scan-timeout") {
		cfg.ScanTimeout, _ = flags.GetDuration("scan-timeout")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// setup validates flags, builds the logger and opens the transport. After
// it succeeds usage is no longer printed on error.
func setup(cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger, err := configureLogger(cmd, cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	transport, err := newTransport(cfg, logger)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, logger: logger, transport: transport}, nil
}

func (a *app) close() {
	if err := a.transport.Close(); err != nil {
		a.logger.WithError(err).Warn("Failed to close transport")
	}
}

// connect returns a connected session or ErrDeviceNotFound.
func (a *app) connect(ctx context.Context) (*powerup.Session, error) {
	s := powerup.NewSession(a.transport,
		powerup.WithLogger(a.logger),
		powerup.WithWriteResponse(a.cfg.WriteWithResponse),
		powerup.WithConnectTimeout(a.cfg.ConnectTimeout),
		powerup.WithOperationTimeout(a.cfg.OpTimeout),
	)

	ok, err := s.Connect(ctx, a.cfg.DeviceName, a.cfg.ScanTimeout)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: no %q found within %s", ErrDeviceNotFound, a.cfg.DeviceName, a.cfg.ScanTimeout)
	}
	return s, nil
}

// withSession runs fn against a connected session and always disconnects.
func withSession(cmd *cobra.Command, fn func(ctx context.Context, a *app, s *powerup.Session) error) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	s, err := a.connect(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.Disconnect(); err != nil {
			a.logger.WithError(err).Warn("Failed to disconnect")
		}
	}()

	return fn(ctx, a, s)
}

// signalContext is cancelled on Ctrl+C or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func displayUUID(uuid string) string {
	if len(uuid) == 32 {
		return strings.Join([]string{uuid[:8], uuid[8:12], uuid[12:16], uuid[16:20], uuid[20:]}, "-")
	}
	return uuid
}
