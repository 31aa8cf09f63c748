package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRSSICmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rssi <device-address>",
		Short: "Read the received signal strength of a connected device",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, args[0], func(s *session) error {
				rssi, err := s.client.ReadRSSI(s.ctx, s.address)
				if err != nil {
					return fmt.Errorf("failed to read RSSI: %w", err)
				}
				if jsonOutput(cmd, s) {
					return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]int{"rssi": rssi})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d dBm\n", rssi)
				return nil
			})
		},
	}
}

func newMTUCmd() *cobra.Command {
	var mtu int
	cmd := &cobra.Command{
		Use:   "mtu <device-address>",
		Short: "Negotiate the ATT MTU and print the agreed value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if mtu < 23 || mtu > 517 {
				return fmt.Errorf("mtu must be between 23 and 517, got %d", mtu)
			}
			return withSession(cmd, args[0], func(s *session) error {
				agreed, err := s.client.RequestMTU(s.ctx, s.address, mtu)
				if err != nil {
					return fmt.Errorf("failed to negotiate MTU: %w", err)
				}
				if jsonOutput(cmd, s) {
					return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]int{"mtu": agreed})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d\n", agreed)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&mtu, "request", 247, "MTU to request (23-517)")
	return cmd
}
