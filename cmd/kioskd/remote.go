package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/micro-ha/kiosk-lock/internal/client"
	"github.com/micro-ha/kiosk-lock/internal/logging"
	"github.com/micro-ha/kiosk-lock/internal/model"
)

const remoteTimeout = 30 * time.Second

func pairCmd(addr *string) *cobra.Command {
	return &cobra.Command{
		Use:   "pair CODE",
		Short: "Pair the device with a station code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), remoteTimeout)
			defer cancel()
			rec, err := client.New(*addr).Pair(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Paired %s with %s / %s (station %d)\n",
				rec.DeviceID, rec.ShopName, rec.StationName, rec.StationID)
			return nil
		},
	}
}

func unpairCmd(addr *string) *cobra.Command {
	return &cobra.Command{
		Use:   "unpair",
		Short: "Clear the pairing and lock the device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), remoteTimeout)
			defer cancel()
			if err := client.New(*addr).Unpair(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Unpaired")
			return nil
		},
	}
}

func statusCmd(addr *string) *cobra.Command {
	var (
		watch  bool
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the current lock state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := client.New(*addr)
			out := cmd.OutOrStdout()
			if !watch {
				ctx, cancel := context.WithTimeout(cmd.Context(), remoteTimeout)
				defer cancel()
				state, err := c.State(ctx)
				if err != nil {
					return err
				}
				return printState(out, state, asJSON)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			logger := logging.NewWithWriter(os.Stderr, slog.LevelWarn)
			client.NewWatcher(c, logger).Run(ctx, func(state client.State) {
				_ = printState(out, state, asJSON)
			})
			return nil
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "follow state changes")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print raw JSON")
	return cmd
}

func printState(w io.Writer, s client.State, asJSON bool) error {
	if asJSON {
		return json.NewEncoder(w).Encode(s)
	}
	line := string(s.State.Kind)
	switch s.State.Kind {
	case model.LockLocked:
		line += fmt.Sprintf(" (%s)", s.DisplayReason)
	case model.LockGracePeriod:
		line += fmt.Sprintf(" (%ds remaining)", s.State.SecondsRemaining)
	}
	if s.State.StationName != "" {
		line += fmt.Sprintf(" %s / %s", s.State.ShopName, s.State.StationName)
	}
	if !s.PollerRunning {
		line += " [poller stopped]"
	}
	_, err := fmt.Fprintln(w, line)
	return err
}
