package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/srg/powerup/internal/device"
	"github.com/srg/powerup/internal/groutine"
	"github.com/srg/powerup/pkg/powerup"
	"github.com/srg/powerup/scanner"
)

func newScanCmd() *cobra.Command {
	var (
		duration time.Duration
		format   string
		services []string
		all      bool
		watch    bool
	)

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan for PowerUp controllers",
		Long: `Scan for nearby BLE peripherals and list the ones that look like PowerUp
controllers: devices advertising the configured name or the PowerUp control
service. Use --all to list every advertiser.

Examples:
  powerup scan
  powerup scan --duration 20s --all
  powerup scan --services 180f --format json
  powerup scan --watch --duration 1m`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "table" && format != "json" {
				return fmt.Errorf("invalid format '%s': must be one of [table json]", format)
			}
			if watch && format != "table" {
				return fmt.Errorf("--watch prints live rows and cannot be combined with --format %s", format)
			}
			var serviceUUIDs []string
			if len(services) > 0 {
				var err error
				if serviceUUIDs, err = device.ValidateUUID(services...); err != nil {
					return fmt.Errorf("invalid service UUID: %w", err)
				}
			}

			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			opts := &scanner.ScanOptions{Duration: duration, ServiceUUIDs: serviceUUIDs}
			if !all && len(serviceUUIDs) == 0 {
				opts.Names = []string{a.cfg.DeviceName}
				opts.ServiceUUIDs = []string{powerup.DefaultProfile().ControlService}
			}

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			progress := NewCountdownProgressPrinter(cmd.ErrOrStderr(), "Scanning for BLE devices", "Scanning", duration, "Processing results")
			progress.Start()
			defer progress.Stop()

			s := scanner.NewScanner(a.transport, a.logger)

			var watchers groutine.Group
			watchCtx, stopWatch := context.WithCancel(ctx)
			if watch {
				watchers.Go(watchCtx, "scan-watch", func(ctx context.Context) {
					printDeviceEvents(ctx, cmd.OutOrStdout(), s.Events())
				})
			}
			devices, err := s.Scan(ctx, opts, progress.Callback())
			stopWatch()
			watchers.Wait()
			if err != nil {
				return err
			}
			if dropped := s.DroppedEvents(); watch && dropped > 0 {
				a.logger.WithField("dropped_events", dropped).Warn("Scan events were overwritten before they were printed")
			}

			progress.Stop()
			if watch {
				fmt.Fprintf(cmd.OutOrStdout(), "%d device(s) found\n", len(devices))
				return nil
			}
			if format == "json" {
				return displayDevicesJSON(cmd.OutOrStdout(), devices)
			}
			return displayDevicesTable(cmd.OutOrStdout(), devices)
		},
	}

	cmd.Flags().DurationVarP(&duration, "duration", "d", 5*time.Second, "Scan duration")
	cmd.Flags().StringVarP(&format, "format", "f", "table", "Output format (table, json)")
	cmd.Flags().StringSliceVarP(&services, "services", "s", nil, "Filter by advertised service UUIDs")
	cmd.Flags().BoolVar(&all, "all", false, "List every advertiser, not only PowerUp controllers")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Print devices as they are discovered or their signal changes")
	return cmd
}

func displayDevicesTable(out io.Writer, devices []scanner.Device) error {
	if len(devices) == 0 {
		fmt.Fprintln(out, "No devices discovered")
		return nil
	}

	control := device.NormalizeUUID(powerup.DefaultProfile().ControlService)
	highlight := color.New(color.FgGreen, color.Bold)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS\tRSSI\tSERVICES")
	fmt.Fprintln(w, strings.Repeat("-", 72))
	for _, d := range devices {
		name := truncate(d.DisplayName(), 24)
		for _, s := range d.Services {
			if s == control {
				name = highlight.Sprint(name)
				break
			}
		}

		short := make([]string, 0, len(d.Services))
		for _, s := range d.Services {
			short = append(short, device.ShortenUUID(s))
		}

		fmt.Fprintf(w, "%s\t%s\t%d dBm\t%s\n", name, d.Address, d.RSSI, truncate(strings.Join(short, ","), 30))
	}
	return w.Flush()
}

// watchRSSIDelta is the signal change that makes an update worth printing.
const watchRSSIDelta = 5

// printDeviceEvents prints a row per new device and per noticeable RSSI
// change until ctx is done, then drains what is already queued.
func printDeviceEvents(ctx context.Context, out io.Writer, events <-chan scanner.DeviceEvent) {
	printed := make(map[string]int)
	show := func(ev scanner.DeviceEvent) {
		d := ev.Device
		tag := "new"
		if ev.Type == scanner.EventUpdated {
			last, ok := printed[d.Address]
			if ok && abs(d.RSSI-last) < watchRSSIDelta {
				return
			}
			tag = "update"
		}
		printed[d.Address] = d.RSSI
		fmt.Fprintf(out, "%-7s %-24s %s %d dBm\n", tag, truncate(d.DisplayName(), 24), d.Address, d.RSSI)
	}

	for {
		select {
		case ev := <-events:
			show(ev)
		case <-ctx.Done():
			for {
				select {
				case ev := <-events:
					show(ev)
				default:
					return
				}
			}
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

type deviceJSON struct {
	Name        string   `json:"name"`
	Address     string   `json:"address"`
	RSSI        int      `json:"rssi"`
	Connectable bool     `json:"connectable"`
	Services    []string `json:"services"`
	LastSeen    string   `json:"last_seen"`
}

func displayDevicesJSON(out io.Writer, devices []scanner.Device) error {
	list := make([]deviceJSON, 0, len(devices))
	for _, d := range devices {
		services := d.Services
		if services == nil {
			services = []string{}
		}
		list = append(list, deviceJSON{
			Name:        d.Name,
			Address:     d.Address,
			RSSI:        d.RSSI,
			Connectable: d.Connectable,
			Services:    services,
			LastSeen:    d.LastSeen.Format(time.RFC3339),
		})
	}
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(list)
}
