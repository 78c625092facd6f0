package powerup

// DefaultDeviceName is the name a PowerUp controller advertises.
const DefaultDeviceName = "TailorToys PowerUp"

// Command ranges accepted by the controller.
const (
	MinMotorSpeed  = 0
	MaxMotorSpeed  = 254
	MinRudderAngle = -128
	MaxRudderAngle = 127
)

// Profile names the GATT services and characteristics a session talks to.
// It is passed by value to NewSession and never changes afterwards.
type Profile struct {
	ControlService string
	BatteryService string

	Motor        string // write, one unsigned byte
	Rudder       string // write, one two's complement byte
	BatteryLevel string // read/notify, percent in byte 0
	Charging     string // read, boolean-like byte 0

	// DecodeCharging turns the charging characteristic value into a flag.
	// Nil means "first byte is non-zero".
	DecodeCharging func(value []byte) bool
}

// DefaultProfile returns the identifiers used by PowerUp 3.0 firmware.
func DefaultProfile() Profile {
	return Profile{
		ControlService: "86c3810e-f171-40d9-a117-26b300768cd6",
		BatteryService: "0000180f-0000-1000-8000-00805f9b34fb",
		Motor:          "86c3810e-0010-40d9-a117-26b300768cd6",
		Rudder:         "86c3810e-0021-40d9-a117-26b300768cd6",
		BatteryLevel:   "00002a19-0000-1000-8000-00805f9b34fb",
		Charging:       "86c3810e-0040-40d9-a117-26b300768cd6",
	}
}

func (p Profile) decodeCharging(value []byte) bool {
	if p.DecodeCharging != nil {
		return p.DecodeCharging(value)
	}
	return value[0] != 0
}
