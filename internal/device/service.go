package device

import (
	"sort"
	"strings"

	"github.com/srg/powerup/internal/bledb"
)

// Property is the GATT characteristic property bit set.
type Property uint8

const (
	PropBroadcast Property = 1 << iota
	PropRead
	PropWriteWithoutResponse
	PropWrite
	PropNotify
	PropIndicate
)

var propertyNames = []struct {
	p    Property
	name string
}{
	{PropBroadcast, "broadcast"},
	{PropRead, "read"},
	{PropWriteWithoutResponse, "write-without-response"},
	{PropWrite, "write"},
	{PropNotify, "notify"},
	{PropIndicate, "indicate"},
}

// Has reports whether all bits of q are set.
func (p Property) Has(q Property) bool {
	return p&q == q
}

func (p Property) String() string {
	var names []string
	for _, pn := range propertyNames {
		if p.Has(pn.p) {
			names = append(names, pn.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ",")
}

// Characteristic describes a discovered characteristic.
type Characteristic struct {
	UUID       string // normalized
	Properties Property
}

// KnownName returns the registered name of the characteristic, if any.
func (c Characteristic) KnownName() string {
	return bledb.LookupCharacteristic(c.UUID)
}

// Service describes a discovered service and its characteristics.
type Service struct {
	UUID            string // normalized
	Characteristics []Characteristic
}

// KnownName returns the registered name of the service, if any.
func (s Service) KnownName() string {
	return bledb.LookupService(s.UUID)
}

// SortServices orders services and their characteristics by UUID so output
// is stable regardless of discovery order.
func SortServices(services []Service) {
	sort.Slice(services, func(i, j int) bool {
		return services[i].UUID < services[j].UUID
	})
	for _, svc := range services {
		sort.Slice(svc.Characteristics, func(i, j int) bool {
			return svc.Characteristics[i].UUID < svc.Characteristics[j].UUID
		})
	}
}

// FindService returns the service with the given UUID.
// Returns a NotFoundError if it is not present.
func FindService(services []Service, uuid string) (Service, error) {
	want := NormalizeUUID(uuid)
	for _, svc := range services {
		if svc.UUID == want {
			return svc, nil
		}
	}
	return Service{}, &NotFoundError{Resource: "service", UUIDs: []string{uuid}}
}

// FindCharacteristic returns the characteristic identified by service and
// characteristic UUID. Returns a NotFoundError if either is missing.
func FindCharacteristic(services []Service, service, uuid string) (Characteristic, error) {
	svc, err := FindService(services, service)
	if err != nil {
		return Characteristic{}, err
	}
	want := NormalizeUUID(uuid)
	for _, c := range svc.Characteristics {
		if c.UUID == want {
			return c, nil
		}
	}
	return Characteristic{}, &NotFoundError{Resource: "characteristic", UUIDs: []string{service, uuid}}
}
