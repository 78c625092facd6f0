package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/srg/powerup/pkg/powerup"
)

func newDiagCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "diag",
		Short: "Read every readable characteristic and print the raw values",
		Long: `Connects to the controller, walks every discovered service and reads each
readable characteristic. Read failures are reported inline and do not stop the
sweep; the command fails only if it cannot connect.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, func(ctx context.Context, _ *app, s *powerup.Session) error {
				diag, err := s.TestAllCharacteristics(ctx)
				if err != nil {
					return err
				}
				printDiagnostics(cmd.OutOrStdout(), diag)
				return nil
			})
		},
	}
}

func printDiagnostics(out io.Writer, diag *powerup.Diagnostics) {
	header := color.New(color.FgCyan, color.Bold)
	fail := color.New(color.FgRed)
	dim := color.New(color.Faint)

	fmt.Fprintf(out, "Device %s\n", diag.Address)
	for sp := diag.Services.Oldest(); sp != nil; sp = sp.Next() {
		svc := sp.Value
		fmt.Fprintln(out)
		header.Fprintf(out, "Service %s", displayUUID(svc.UUID))
		if svc.Name != "" {
			header.Fprintf(out, " (%s)", svc.Name)
		}
		fmt.Fprintln(out)

		for cp := svc.Characteristics.Oldest(); cp != nil; cp = cp.Next() {
			c := cp.Value
			name := ""
			if c.Name != "" {
				name = " (" + c.Name + ")"
			}
			fmt.Fprintf(out, "  Characteristic %s%s [%s]\n", displayUUID(c.UUID), name, c.Properties)
			switch {
			case c.Skipped:
				dim.Fprintln(out, "    not readable")
			case c.Err != nil:
				fail.Fprintf(out, "    Error reading: %v\n", c.Err)
			default:
				fmt.Fprintf(out, "    Value: %s\n", hex.EncodeToString(c.Value))
			}
		}
	}

	if n := diag.Failures(); n > 0 {
		fmt.Fprintln(out)
		fail.Fprintf(out, "%d characteristic(s) could not be read\n", n)
	}
}
