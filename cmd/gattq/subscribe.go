package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

type subscribeOptions struct {
	service  string
	hex      bool
	factor   int
	count    int
	duration time.Duration
}

func newSubscribeCmd() *cobra.Command {
	opts := &subscribeOptions{}
	cmd := &cobra.Command{
		Use:   "subscribe <device-address> <char-uuid>",
		Short: "Stream characteristic notifications or indications",
		Long: fmt.Sprintf(`Enables value change delivery and prints every value until Ctrl+C,
--count values or --duration. Indications are used when the characteristic
does not support notifications.

Examples:
  # Heart rate measurements as hex
  gattq subscribe %s 2a37 --hex

  # Batch three frames per printed value, stop after 10 values
  gattq subscribe %s 6e400003-b5a3-f393-e0a9-e50e24dcca9e --factor 3 --count 10

%s`, exampleDeviceAddress, exampleDeviceAddress, deviceAddressNote),
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubscribe(cmd, args, opts)
		},
	}

	cmd.Flags().StringVar(&opts.service, "service", "", "Service UUID (required if characteristic UUID is ambiguous)")
	cmd.Flags().BoolVar(&opts.hex, "hex", false, "Output as hex lines; raw bytes by default")
	cmd.Flags().IntVar(&opts.factor, "factor", 1, "Frames batched into one value (1 = no batching)")
	cmd.Flags().IntVar(&opts.count, "count", 0, "Stop after N values (0 = unlimited)")
	cmd.Flags().DurationVar(&opts.duration, "duration", 0, "Stop after this long (0 = until Ctrl+C)")
	return cmd
}

func runSubscribe(cmd *cobra.Command, args []string, opts *subscribeOptions) error {
	address, char := args[0], args[1]
	if opts.factor < 1 {
		return fmt.Errorf("factor must be at least 1, got %d", opts.factor)
	}
	if opts.count < 0 {
		return fmt.Errorf("count must not be negative, got %d", opts.count)
	}

	return withSession(cmd, address, func(s *session) error {
		service, charUUID, err := s.resolve(opts.service, char)
		if err != nil {
			return err
		}

		sub, err := s.client.Subscribe(s.ctx, s.address, service, charUUID, opts.factor)
		if err != nil {
			return fmt.Errorf("failed to subscribe: %w", err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Subscribed to %s. Press Ctrl+C to stop...\n", charUUID)

		var deadline <-chan time.Time
		if opts.duration > 0 {
			timer := time.NewTimer(opts.duration)
			defer timer.Stop()
			deadline = timer.C
		}

		out := cmd.OutOrStdout()
		asJSON := jsonOutput(cmd, s)
		received := 0
		for {
			select {
			case <-s.ctx.Done():
				return nil
			case <-deadline:
				return s.client.Unsubscribe(s.ctx, s.address, service, charUUID)
			case ev, ok := <-sub.C():
				if !ok {
					return ErrConnectionLost
				}
				if err := outputValue(out, asJSON, opts.hex, charUUID, ev.Value); err != nil {
					return err
				}
				received++
				if opts.count > 0 && received >= opts.count {
					s.logger.WithField("overwritten", sub.Metrics().Overwritten).Debug("Subscription finished")
					return s.client.Unsubscribe(s.ctx, s.address, service, charUUID)
				}
			}
		}
	})
}
