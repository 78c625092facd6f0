package main

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/powerup/internal/drive"
	"github.com/srg/powerup/pkg/powerup"
)

const driveTick = 50 * time.Millisecond

func newDriveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "drive",
		Short: "Drive interactively from the keyboard",
		Long: `Connects to the controller and maps keys to commands:

  ` + drive.Help + `

Commands are rate-limited (drive.max_rate in the config file); the motor is
stopped when the command exits.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(ctx context.Context, a *app, s *powerup.Session) error {
				c := drive.NewController(s, drive.Options{
					SpeedStep:  a.cfg.Drive.SpeedStep,
					RudderStep: a.cfg.Drive.RudderStep,
					MaxRate:    a.cfg.Drive.MaxRate,
				}, a.logger)
				in, ok := cmd.InOrStdin().(*os.File)
				if !ok {
					return drive.ErrNotTerminal
				}
				return drive.Run(ctx, in, cmd.OutOrStdout(), c, driveTick)
			})
		},
	}
}
