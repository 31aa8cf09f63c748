package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/srg/gattq/internal/bledb"
	"github.com/srg/gattq/internal/gatt"
)

func newServicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "services <device-address>",
		Short: "List the GATT services, characteristics and descriptors of a device",
		Long: fmt.Sprintf(`Connects, runs service discovery and prints the attribute tree.

Examples:
  # Table output
  gattq services %s

  # JSON output for scripting
  gattq services %s --json

%s`, exampleDeviceAddress, exampleDeviceAddress, deviceAddressNote),
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, args[0], func(s *session) error {
				services, err := s.client.Services(s.ctx, s.address)
				if err != nil {
					return fmt.Errorf("service discovery failed: %w", err)
				}
				if jsonOutput(cmd, s) {
					return writeServicesJSON(cmd.OutOrStdout(), services)
				}
				return writeServicesTable(cmd.OutOrStdout(), services)
			})
		},
	}
}

type descriptorView struct {
	UUID string `json:"uuid"`
	Name string `json:"name,omitempty"`
}

type characteristicView struct {
	UUID        string           `json:"uuid"`
	Name        string           `json:"name,omitempty"`
	Properties  string           `json:"properties"`
	Descriptors []descriptorView `json:"descriptors,omitempty"`
}

type serviceView struct {
	UUID            string               `json:"uuid"`
	Name            string               `json:"name,omitempty"`
	Characteristics []characteristicView `json:"characteristics"`
}

func serviceViews(services []*gatt.Service) []serviceView {
	views := make([]serviceView, 0, len(services))
	for _, svc := range services {
		view := serviceView{
			UUID:            svc.UUID,
			Name:            bledb.LookupService(svc.UUID),
			Characteristics: []characteristicView{},
		}
		for _, c := range svc.Characteristics {
			cv := characteristicView{
				UUID:       c.UUID,
				Name:       bledb.LookupCharacteristic(c.UUID),
				Properties: c.Properties.String(),
			}
			for _, d := range c.Descriptors {
				cv.Descriptors = append(cv.Descriptors, descriptorView{UUID: d.UUID, Name: bledb.LookupDescriptor(d.UUID)})
			}
			view.Characteristics = append(view.Characteristics, cv)
		}
		views = append(views, view)
	}
	return views
}

func writeServicesJSON(out io.Writer, services []*gatt.Service) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(serviceViews(services))
}

func writeServicesTable(out io.Writer, services []*gatt.Service) error {
	header := color.New(color.Bold)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	for _, svc := range serviceViews(services) {
		fmt.Fprintf(w, "%s\t%s\t\n", header.Sprintf("service %s", svc.UUID), svc.Name)
		for _, c := range svc.Characteristics {
			fmt.Fprintf(w, "  %s\t%s\t%s\n", c.UUID, c.Name, c.Properties)
			for _, d := range c.Descriptors {
				fmt.Fprintf(w, "    %s\t%s\t\n", d.UUID, d.Name)
			}
		}
	}
	return w.Flush()
}
