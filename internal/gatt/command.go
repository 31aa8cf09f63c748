package gatt

import (
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Command is one unit of queued work. The queue owns it from Enqueue until
// Completed or Clear.
type Command struct {
	ID             string
	Kind           Kind
	Service        string
	Characteristic string
	Descriptor     string
	Payload        []byte

	enqueuedAt time.Time
	run        func(cmd *Command)
}

// NewCommand creates a command whose dispatch closure is run.
// The closure talks to the hardware and must either leave the command in
// flight (a completion event will follow) or call CommandQueue.Completed.
func NewCommand(kind Kind, run func(cmd *Command)) *Command {
	return &Command{
		ID:   uuid.NewString(),
		Kind: kind,
		run:  run,
	}
}

// Target sets the attribute identifiers of the command
func (c *Command) Target(service, characteristic string) *Command {
	c.Service = service
	c.Characteristic = characteristic
	return c
}

// Fields returns log fields describing the command
func (c *Command) Fields() logrus.Fields {
	fields := logrus.Fields{
		"command_id": c.ID,
		"kind":       c.Kind.String(),
	}
	if c.Service != "" {
		fields["service_uuid"] = c.Service
	}
	if c.Characteristic != "" {
		fields["char_uuid"] = c.Characteristic
	}
	if c.Descriptor != "" {
		fields["desc_uuid"] = c.Descriptor
	}
	if len(c.Payload) > 0 {
		fields["bytes"] = len(c.Payload)
	}
	return fields
}
