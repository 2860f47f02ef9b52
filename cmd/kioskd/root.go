package main

import (
	"github.com/spf13/cobra"

	"github.com/micro-ha/kiosk-lock/internal/client"
)

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "kioskd",
		Short:         "Kiosk lock daemon and control client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(runCmd())

	var addr string
	remote := []*cobra.Command{pairCmd(&addr), unpairCmd(&addr), statusCmd(&addr)}
	for _, c := range remote {
		c.Flags().StringVar(&addr, "addr", client.DefaultAddr, "address of the running daemon")
		root.AddCommand(c)
	}
	return root
}
