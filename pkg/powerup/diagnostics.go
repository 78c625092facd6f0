package powerup

import (
	"context"
	"encoding/hex"

	"github.com/sirupsen/logrus"
	"github.com/srg/powerup/internal/device"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// CharacteristicReport is the outcome of probing one characteristic.
type CharacteristicReport struct {
	UUID       string
	Name       string // known name, "" when unknown
	Properties device.Property
	Skipped    bool // not readable
	Value      []byte
	Err        error
}

// ServiceReport groups the characteristic reports of one service.
type ServiceReport struct {
	UUID            string
	Name            string
	Characteristics *orderedmap.OrderedMap[string, *CharacteristicReport]
}

// Diagnostics is the result of TestAllCharacteristics, ordered by service
// then characteristic UUID.
type Diagnostics struct {
	Address  string
	Services *orderedmap.OrderedMap[string, *ServiceReport]
}

// Characteristic looks up the report for a characteristic.
func (d *Diagnostics) Characteristic(service, char string) (*CharacteristicReport, bool) {
	svc, ok := d.Services.Get(device.NormalizeUUID(service))
	if !ok {
		return nil, false
	}
	return svc.Characteristics.Get(device.NormalizeUUID(char))
}

// Each calls fn for every characteristic report in order.
func (d *Diagnostics) Each(fn func(svc *ServiceReport, char *CharacteristicReport)) {
	for sp := d.Services.Oldest(); sp != nil; sp = sp.Next() {
		for cp := sp.Value.Characteristics.Oldest(); cp != nil; cp = cp.Next() {
			fn(sp.Value, cp.Value)
		}
	}
}

// Failures counts characteristics whose read failed.
func (d *Diagnostics) Failures() int {
	n := 0
	d.Each(func(_ *ServiceReport, c *CharacteristicReport) {
		if c.Err != nil {
			n++
		}
	})
	return n
}

// readable treats unknown properties (zero) as readable; some transports
// do not report them.
func readable(p device.Property) bool {
	return p == 0 || p.Has(device.PropRead)
}

// TestAllCharacteristics reads every readable characteristic of every
// discovered service. Read failures are recorded in the report and do not
// stop the sweep.
func (s *Session) TestAllCharacteristics(ctx context.Context) (*Diagnostics, error) {
	link, err := s.currentLink()
	if err != nil {
		return nil, err
	}

	var services []device.Service
	for _, svc := range link.Services() {
		services = append(services, device.Service{
			UUID:            svc.UUID,
			Characteristics: append([]device.Characteristic(nil), svc.Characteristics...),
		})
	}
	device.SortServices(services)

	diag := &Diagnostics{
		Address:  link.Address(),
		Services: orderedmap.New[string, *ServiceReport](),
	}

	for _, svc := range services {
		sr := &ServiceReport{
			UUID:            svc.UUID,
			Name:            svc.KnownName(),
			Characteristics: orderedmap.New[string, *CharacteristicReport](),
		}
		diag.Services.Set(svc.UUID, sr)
		s.logger.WithFields(logrus.Fields{"service": svc.UUID, "name": sr.Name}).Info("Testing service")

		for _, c := range svc.Characteristics {
			cr := &CharacteristicReport{
				UUID:       c.UUID,
				Name:       c.KnownName(),
				Properties: c.Properties,
			}
			sr.Characteristics.Set(c.UUID, cr)

			log := s.logger.WithFields(logrus.Fields{
				"service":        svc.UUID,
				"characteristic": c.UUID,
				"properties":     c.Properties.String(),
			})

			if !readable(c.Properties) {
				cr.Skipped = true
				log.Debug("Characteristic is not readable, skipping")
				continue
			}

			opCtx, cancel := s.opContext(ctx)
			value, err := link.Read(opCtx, svc.UUID, c.UUID)
			cancel()
			if err != nil {
				cr.Err = device.NormalizeError(err)
				log.WithError(cr.Err).Warn("Error reading characteristic")
				if ctx.Err() != nil {
					return diag, ctx.Err()
				}
				continue
			}
			cr.Value = value
			log.WithField("value", hex.EncodeToString(value)).Info("Read value")
		}
	}
	return diag, nil
}
