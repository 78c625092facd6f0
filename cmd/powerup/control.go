package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/srg/powerup/pkg/powerup"
)

func newMotorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "motor <speed>",
		Short: "Set motor speed (0-254)",
		Example: `  powerup motor 127
  powerup motor 0`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			speed, err := parseIntArg("speed", args[0])
			if err != nil {
				return err
			}
			return withSession(cmd, func(ctx context.Context, _ *app, s *powerup.Session) error {
				if err := s.SetMotorSpeed(ctx, speed); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Motor speed set to %d\n", speed)
				return nil
			})
		},
	}
}

func newRudderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rudder <angle>",
		Short: "Set rudder angle (-128 to 127)",
		Example: `  powerup rudder -- -64
  powerup rudder 0`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			angle, err := parseIntArg("angle", args[0])
			if err != nil {
				return err
			}
			return withSession(cmd, func(ctx context.Context, _ *app, s *powerup.Session) error {
				if err := s.SetRudderAngle(ctx, angle); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Rudder angle set to %d\n", angle)
				return nil
			})
		},
	}
}

func parseIntArg(name, arg string) (int, error) {
	v, err := strconv.Atoi(arg)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: must be an integer", name, arg)
	}
	return v, nil
}
