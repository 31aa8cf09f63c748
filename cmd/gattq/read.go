package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/gattq/internal/gatt"
)

type readOptions struct {
	service string
	hex     bool
	watch   string
}

func newReadCmd() *cobra.Command {
	opts := &readOptions{}
	cmd := &cobra.Command{
		Use:   "read <device-address> <char-uuid>",
		Short: "Read a characteristic value",
		Long: fmt.Sprintf(`Reads a characteristic. The service is resolved automatically unless
the characteristic UUID appears in more than one service.

Examples:
  # Read Battery Level
  gattq read %s 2a19 --hex

  # Read with service disambiguation
  gattq read %s 2a19 --service 180f

  # Poll every 500ms until Ctrl+C
  gattq read %s 2a37 --watch 500ms

%s`, exampleDeviceAddress, exampleDeviceAddress, exampleDeviceAddress, deviceAddressNote),
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRead(cmd, args, opts)
		},
	}

	cmd.Flags().StringVar(&opts.service, "service", "", "Service UUID (required if characteristic UUID is ambiguous)")
	cmd.Flags().BoolVar(&opts.hex, "hex", false, "Output as hex string (e.g., 'ff01'); raw bytes by default")
	cmd.Flags().StringVar(&opts.watch, "watch", "", "Continuously read at interval (e.g., 1s, 500ms); default 1s if no value given")
	cmd.Flags().Lookup("watch").NoOptDefVal = "1s"
	return cmd
}

func runRead(cmd *cobra.Command, args []string, opts *readOptions) error {
	address, char := args[0], args[1]

	var interval time.Duration
	if opts.watch != "" {
		var err error
		interval, err = time.ParseDuration(opts.watch)
		if err != nil {
			return fmt.Errorf("invalid watch interval: %w", err)
		}
		if interval <= 0 {
			return fmt.Errorf("watch interval must be positive, got %v", interval)
		}
	}

	return withSession(cmd, address, func(s *session) error {
		service, charUUID, err := s.resolve(opts.service, char)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		readOnce := func() error {
			data, err := s.client.Read(s.ctx, s.address, service, charUUID)
			if err != nil {
				return fmt.Errorf("failed to read characteristic: %w", err)
			}
			return outputValue(out, jsonOutput(cmd, s), opts.hex, charUUID, data)
		}

		if interval == 0 {
			return readOnce()
		}

		fmt.Fprintf(cmd.ErrOrStderr(), "Watching (reading every %v). Press Ctrl+C to stop...\n", interval)
		if err := readOnce(); err != nil {
			return err
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.ctx.Done():
				return nil
			case <-ticker.C:
				if err := readOnce(); err != nil {
					if errors.Is(err, gatt.ErrDisconnected) || errors.Is(err, gatt.ErrNotConnected) {
						return ErrConnectionLost
					}
					if s.ctx.Err() != nil {
						return nil
					}
					// Log other errors but continue watching
					s.logger.WithField("error", err).Warn("Failed to read characteristic, continuing...")
				}
			}
		}
	})
}

type valueRecord struct {
	Characteristic string `json:"characteristic"`
	Value          string `json:"value"`
}

// outputValue writes one value as a JSON line, a hex line or raw bytes
func outputValue(out io.Writer, asJSON, asHex bool, char string, data []byte) error {
	switch {
	case asJSON:
		line, err := json.Marshal(valueRecord{Characteristic: char, Value: hex.EncodeToString(data)})
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, string(line))
		return err
	case asHex:
		_, err := fmt.Fprintln(out, hex.EncodeToString(data))
		return err
	default:
		_, err := out.Write(data)
		return err
	}
}
