// Package powerup drives a TailorToys PowerUp controller over BLE.
//
// A Session binds to one peripheral found by advertised name, writes motor
// speed and rudder angle, and reads battery telemetry:
//
//	s := powerup.NewSession(transport, powerup.WithLogger(logger))
//	ok, err := s.Connect(ctx, powerup.DefaultDeviceName, 5*time.Second)
//	if err != nil || !ok {
//	    ...
//	}
//	defer s.Disconnect()
//	err = s.SetMotorSpeed(ctx, 127)
//
// The BLE stack itself sits behind device.Transport, so the same session
// runs on go-ble, tinygo bluetooth or the in-memory devicetest transport.
package powerup
