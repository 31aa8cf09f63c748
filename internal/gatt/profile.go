package gatt

import "strings"

// Property is the ATT characteristic properties bit field
type Property uint8

const (
	PropBroadcast   Property = 0x01
	PropRead        Property = 0x02
	PropWriteNR     Property = 0x04
	PropWrite       Property = 0x08
	PropNotify      Property = 0x10
	PropIndicate    Property = 0x20
	PropSignedWrite Property = 0x40
	PropExtended    Property = 0x80
)

var propertyNames = []struct {
	p    Property
	name string
}{
	{PropBroadcast, "broadcast"},
	{PropRead, "read"},
	{PropWriteNR, "write-without-response"},
	{PropWrite, "write"},
	{PropNotify, "notify"},
	{PropIndicate, "indicate"},
	{PropSignedWrite, "signed-write"},
	{PropExtended, "extended"},
}

// Has reports whether every bit of q is set
func (p Property) Has(q Property) bool {
	return p&q == q
}

func (p Property) String() string {
	var names []string
	for _, pn := range propertyNames {
		if p&pn.p != 0 {
			names = append(names, pn.name)
		}
	}
	return strings.Join(names, ",")
}

// Service is a discovered GATT service.
// Trees handed out by a Connection are read-only snapshots.
type Service struct {
	UUID            string            `json:"uuid"`
	Characteristics []*Characteristic `json:"characteristics"`
}

// Characteristic is a discovered GATT characteristic
type Characteristic struct {
	UUID        string        `json:"uuid"`
	Service     string        `json:"service"`
	Properties  Property      `json:"properties"`
	Descriptors []*Descriptor `json:"descriptors,omitempty"`

	// Handle is the platform object the hardware shim addresses; opaque to the core
	Handle any `json:"-"`
}

// Descriptor is a discovered GATT descriptor
type Descriptor struct {
	UUID   string `json:"uuid"`
	Handle any    `json:"-"`
}

// CanNotify reports whether the characteristic supports notify or indicate
func (c *Characteristic) CanNotify() bool {
	return c.Properties&(PropNotify|PropIndicate) != 0
}

// findCharacteristic looks up a characteristic in a discovered tree
func findCharacteristic(services []*Service, service, char string) (*Characteristic, error) {
	svcUUID := NormalizeUUID(service)
	charUUID := NormalizeUUID(char)

	for _, svc := range services {
		if svc.UUID != svcUUID {
			continue
		}
		for _, c := range svc.Characteristics {
			if c.UUID == charUUID {
				return c, nil
			}
		}
		return nil, &NotFoundError{Resource: "characteristic", UUIDs: []string{service, char}}
	}
	return nil, &NotFoundError{Resource: "service", UUIDs: []string{service}}
}

// normalizeServices rewrites every UUID of the tree into lookup form and
// back-fills Characteristic.Service
func normalizeServices(services []*Service) []*Service {
	for _, svc := range services {
		svc.UUID = NormalizeUUID(svc.UUID)
		for _, c := range svc.Characteristics {
			c.UUID = NormalizeUUID(c.UUID)
			c.Service = svc.UUID
			for _, d := range c.Descriptors {
				d.UUID = NormalizeUUID(d.UUID)
			}
		}
	}
	return services
}

// CountCharacteristics returns the number of characteristics in a tree
func CountCharacteristics(services []*Service) int {
	total := 0
	for _, svc := range services {
		total += len(svc.Characteristics)
	}
	return total
}
