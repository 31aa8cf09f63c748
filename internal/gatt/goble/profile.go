package goble

import (
	"github.com/go-ble/ble"
	"github.com/srg/gattq/internal/gatt"
)

// convertProfile turns a discovered go-ble profile into the gatt tree.
// Every characteristic keeps its *ble.Characteristic as the opaque Handle.
func convertProfile(p *ble.Profile) []*gatt.Service {
	if p == nil {
		return nil
	}

	services := make([]*gatt.Service, 0, len(p.Services))
	for _, bleService := range p.Services {
		svc := &gatt.Service{
			UUID:            bleService.UUID.String(),
			Characteristics: make([]*gatt.Characteristic, 0, len(bleService.Characteristics)),
		}

		for _, bleChar := range bleService.Characteristics {
			char := &gatt.Characteristic{
				UUID:       bleChar.UUID.String(),
				Service:    svc.UUID,
				Properties: gatt.Property(bleChar.Property),
				Handle:     bleChar,
			}
			for _, d := range bleChar.Descriptors {
				char.Descriptors = append(char.Descriptors, &gatt.Descriptor{
					UUID:   d.UUID.String(),
					Handle: d,
				})
			}
			svc.Characteristics = append(svc.Characteristics, char)
		}
		services = append(services, svc)
	}
	return services
}

// handleOf extracts the platform characteristic from a discovered gatt one
func handleOf(c *gatt.Characteristic) (*ble.Characteristic, error) {
	if c == nil {
		return nil, gatt.ErrLinkHandleMissing
	}
	h, ok := c.Handle.(*ble.Characteristic)
	if !ok || h == nil {
		return nil, &gatt.NotFoundError{Resource: "characteristic", UUIDs: []string{c.Service, c.UUID}}
	}
	return h, nil
}
