package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/powerup/pkg/powerup"
)

func newBatteryCmd() *cobra.Command {
	var (
		watch    bool
		duration time.Duration
	)

	cmd := &cobra.Command{
		Use:   "battery",
		Short: "Read the battery level, or watch it change",
		Example: `  powerup battery
  powerup battery --watch
  powerup battery --watch --for 1m`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(ctx context.Context, _ *app, s *powerup.Session) error {
				out := cmd.OutOrStdout()

				level, err := s.BatteryLevel(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Battery: %s\n", batteryColor(level).Sprintf("%d%%", level))
				if !watch {
					return nil
				}

				if duration > 0 {
					var cancel context.CancelFunc
					ctx, cancel = context.WithTimeout(ctx, duration)
					defer cancel()
				}

				levels := make(chan int, 16)
				err = s.EnableBatteryNotifications(ctx, func(level int) {
					select {
					case levels <- level:
					default:
					}
				})
				if err != nil {
					return err
				}
				fmt.Fprintln(out, "Watching battery level, press Ctrl+C to stop...")

				lost := disconnected(ctx, s)
				for {
					select {
					case <-ctx.Done():
						if duration > 0 && ctx.Err() == context.DeadlineExceeded {
							return nil
						}
						return ctx.Err()
					case level := <-levels:
						fmt.Fprintf(out, "%s Battery: %s\n", time.Now().Format("15:04:05"), batteryColor(level).Sprintf("%d%%", level))
					case <-lost:
						return ErrConnectionLost
					}
				}
			})
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Print every battery notification until Ctrl+C")
	cmd.Flags().DurationVar(&duration, "for", 0, "Stop watching after this long (0 = until Ctrl+C)")
	return cmd
}

// disconnected polls the session and closes the returned channel once the
// link is gone.
func disconnected(ctx context.Context, s *powerup.Session) <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		ticker := time.NewTicker(250 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !s.IsConnected() {
					close(ch)
					return
				}
			}
		}
	}()
	return ch
}
