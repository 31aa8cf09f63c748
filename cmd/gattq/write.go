package main

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

type writeOptions struct {
	service    string
	hex        bool
	noResponse bool
	chunk      int
	chunkDelay time.Duration
}

func newWriteCmd() *cobra.Command {
	opts := &writeOptions{}
	cmd := &cobra.Command{
		Use:   "write <device-address> <char-uuid> <data>",
		Short: "Write to a characteristic",
		Long: fmt.Sprintf(`Writes data to a characteristic. Payloads longer than one frame are split
into MTU-sized chunks; with response each chunk waits for its acknowledgement,
without response chunks are paced by --chunk-delay.

Examples:
  # Write a string
  gattq write %s 2a06 "high"

  # Write hex data
  gattq write %s 2a06 01 --hex

  # Stream a long payload without response, 20-byte chunks
  gattq write %s 6e400002-b5a3-f393-e0a9-e50e24dcca9e "$(cat fw.txt)" --without-response --chunk 20

%s`, exampleDeviceAddress, exampleDeviceAddress, exampleDeviceAddress, deviceAddressNote),
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWrite(cmd, args, opts)
		},
	}

	cmd.Flags().StringVar(&opts.service, "service", "", "Service UUID (required if characteristic UUID is ambiguous)")
	cmd.Flags().BoolVar(&opts.hex, "hex", false, "Parse input as hex string (e.g., 'ff01'); raw bytes by default")
	cmd.Flags().BoolVar(&opts.noResponse, "without-response", false, "Write without response (faster, no ACK)")
	cmd.Flags().IntVar(&opts.chunk, "chunk", 0, "Force N-byte chunks; default 0, derived from the MTU")
	cmd.Flags().DurationVar(&opts.chunkDelay, "chunk-delay", -1, "Delay between unacknowledged chunks; default from configuration")
	return cmd
}

func runWrite(cmd *cobra.Command, args []string, opts *writeOptions) error {
	address, char, input := args[0], args[1], args[2]

	data := []byte(input)
	if opts.hex {
		var err error
		data, err = hex.DecodeString(strings.ReplaceAll(input, " ", ""))
		if err != nil {
			return fmt.Errorf("invalid hex data: %w", err)
		}
	}
	if len(data) == 0 {
		return fmt.Errorf("no data to write")
	}
	if opts.chunk < 0 {
		return fmt.Errorf("chunk size must not be negative, got %d", opts.chunk)
	}

	return withSession(cmd, address, func(s *session) error {
		if opts.chunk > 0 {
			s.cfg.MaxFrameSize = opts.chunk
		}
		if opts.chunkDelay >= 0 {
			s.cfg.WriteChunkDelay = opts.chunkDelay
		}

		service, charUUID, err := s.resolve(opts.service, char)
		if err != nil {
			return err
		}

		if err := s.client.Write(s.ctx, s.address, service, charUUID, data, !opts.noResponse); err != nil {
			return fmt.Errorf("failed to write characteristic: %w", err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %d bytes to %s\n", len(data), charUUID)
		return nil
	})
}
