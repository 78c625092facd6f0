package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/srg/powerup/pkg/powerup"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show battery level and charging state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(ctx context.Context, a *app, s *powerup.Session) error {
				level, err := s.BatteryLevel(ctx)
				if err != nil {
					return err
				}
				charging, err := s.ChargingStatus(ctx)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Device:   %s (%s)\n", a.cfg.DeviceName, s.Address())
				fmt.Fprintf(out, "Battery:  %s\n", batteryColor(level).Sprintf("%d%%", level))
				fmt.Fprintf(out, "Charging: %s\n", yesNo(charging))
				return nil
			})
		},
	}
}

func batteryColor(level int) *color.Color {
	switch {
	case level >= 50:
		return color.New(color.FgGreen)
	case level >= 20:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgRed, color.Bold)
	}
}
