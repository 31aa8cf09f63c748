package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/gattq/internal/gatt"
	"github.com/srg/gattq/internal/gatt/goble"
	"github.com/srg/gattq/pkg/client"
	"github.com/srg/gattq/pkg/config"
)

// RadioFactory creates the hardware radio (can be overridden in tests)
var RadioFactory = func(cfg *config.Config, logger *logrus.Logger) gatt.Radio {
	return goble.NewRadio(logger, cfg.ConnectTimeout)
}

// session is a connected client bound to one device for the duration of a command
type session struct {
	ctx     context.Context
	cfg     *config.Config
	logger  *logrus.Logger
	client  *client.Client
	address string
}

// loadConfig reads --config when given; otherwise defaults apply
func loadConfig(cmd *cobra.Command) (*config.Config, string, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}

	configuredLevel := ""
	if path != "" {
		configuredLevel = cfg.LogLevel
	}
	if timeout, _ := cmd.Flags().GetDuration("timeout"); timeout > 0 {
		cfg.OperationTimeout = timeout
	}
	return cfg, configuredLevel, nil
}

// withSession connects to address, runs fn and disconnects. Ctrl+C cancels
// the context handed to fn.
func withSession(cmd *cobra.Command, address string, fn func(s *session) error) error {
	cfg, configuredLevel, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := configureLogger(cmd, configuredLevel)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := client.New(RadioFactory(cfg, logger), cfg, client.WithLogger(logger))
	defer c.Close()

	// Animate only on a terminal
	if isTerminal(cmd.ErrOrStderr()) {
		progress := NewProgressPrinter(cmd.ErrOrStderr(), fmt.Sprintf("Connecting to %s", address), "Connecting")
		progress.Start()
		err = c.Connect(ctx, address)
		progress.Stop()
	} else {
		err = c.Connect(ctx, address)
	}
	if err != nil {
		if ctx.Err() != nil {
			return context.Canceled
		}
		return fmt.Errorf("failed to connect to %s: %w", address, err)
	}

	s := &session{ctx: ctx, cfg: cfg, logger: logger, client: c, address: address}
	runErr := fn(s)
	if errors.Is(runErr, gatt.ErrDisconnected) {
		runErr = fmt.Errorf("%w: %v", ErrConnectionLost, runErr)
	}

	disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Disconnect(disconnectCtx, address, false); err != nil {
		logger.WithField("error", err).Debug("Graceful disconnect failed")
	}
	return runErr
}

// resolve locates a characteristic by UUID, searching every service when
// service is empty. The returned UUIDs are in lookup form.
func (s *session) resolve(service, char string) (string, string, error) {
	services, err := s.client.Services(s.ctx, s.address)
	if err != nil {
		return "", "", fmt.Errorf("service discovery failed: %w", err)
	}
	return resolveCharacteristic(services, service, char)
}

func resolveCharacteristic(services []*gatt.Service, service, char string) (string, string, error) {
	charUUID := gatt.NormalizeUUID(char)
	serviceUUID := gatt.NormalizeUUID(service)

	var matches []string
	for _, svc := range services {
		if serviceUUID != "" && svc.UUID != serviceUUID {
			continue
		}
		for _, c := range svc.Characteristics {
			if c.UUID == charUUID {
				matches = append(matches, svc.UUID)
			}
		}
	}

	switch len(matches) {
	case 0:
		if serviceUUID != "" {
			return "", "", &gatt.NotFoundError{Resource: "characteristic", UUIDs: []string{service, char}}
		}
		return "", "", &gatt.NotFoundError{Resource: "characteristic", UUIDs: []string{"*", char}}
	case 1:
		return matches[0], charUUID, nil
	default:
		return "", "", fmt.Errorf("characteristic %s is ambiguous, found in services %v; use --service", char, matches)
	}
}
