package param

import "math"

// Well known codes
const (
	RunMode      uint16 = 0x7005
	IqRef        uint16 = 0x7006
	SpeedRef     uint16 = 0x700A
	LimitTorque  uint16 = 0x700B
	CurrentKp    uint16 = 0x7010
	CurrentKi    uint16 = 0x7011
	CurrentGain  uint16 = 0x7014
	PositionRef  uint16 = 0x7016
	LimitSpeed   uint16 = 0x7017
	LimitCurrent uint16 = 0x7018
	MechPos      uint16 = 0x7019
	Iqf          uint16 = 0x701A
	MechVel      uint16 = 0x701B
	Vbus         uint16 = 0x701C
	PositionKp   uint16 = 0x701E
	SpeedKp      uint16 = 0x701F
	SpeedKi      uint16 = 0x7020
)

var defaultDescriptors = []Descriptor{
	{Code: RunMode, Name: "run_mode", Type: Uint8, Unit: "", Min: 0, Max: 5, Default: 0, Writable: true},
	{Code: IqRef, Name: "iq_ref", Type: Float, Unit: "A", Min: -90, Max: 90, Default: 0, Writable: true},
	{Code: SpeedRef, Name: "spd_ref", Type: Float, Unit: "rad/s", Min: -20, Max: 20, Default: 0, Writable: true},
	{Code: LimitTorque, Name: "limit_torque", Type: Float, Unit: "Nm", Min: 0, Max: 120, Default: 12, Writable: true},
	{Code: CurrentKp, Name: "cur_kp", Type: Float, Unit: "", Min: 0, Max: 200, Default: 0.125, Writable: true},
	{Code: CurrentKi, Name: "cur_ki", Type: Float, Unit: "", Min: 0, Max: 200, Default: 0.0158, Writable: true},
	{Code: CurrentGain, Name: "cur_filt_gain", Type: Float, Unit: "", Min: 0, Max: 1, Default: 0.1, Writable: true},
	{Code: PositionRef, Name: "loc_ref", Type: Float, Unit: "rad", Min: -4 * math.Pi, Max: 4 * math.Pi, Default: 0, Writable: true},
	{Code: LimitSpeed, Name: "limit_spd", Type: Float, Unit: "rad/s", Min: 0, Max: 20, Default: 2, Writable: true},
	{Code: LimitCurrent, Name: "limit_cur", Type: Float, Unit: "A", Min: 0, Max: 90, Default: 27, Writable: true},
	{Code: MechPos, Name: "mech_pos", Type: Float, Unit: "rad", Min: -4 * math.Pi, Max: 4 * math.Pi},
	{Code: Iqf, Name: "iqf", Type: Float, Unit: "A", Min: -90, Max: 90},
	{Code: MechVel, Name: "mech_vel", Type: Float, Unit: "rad/s", Min: -20, Max: 20},
	{Code: Vbus, Name: "vbus", Type: Float, Unit: "V", Min: 0, Max: 60},
	{Code: PositionKp, Name: "loc_kp", Type: Float, Unit: "", Min: 0, Max: 200, Default: 30, Writable: true},
	{Code: SpeedKp, Name: "spd_kp", Type: Float, Unit: "", Min: 0, Max: 200, Default: 2, Writable: true},
	{Code: SpeedKi, Name: "spd_ki", Type: Float, Unit: "", Min: 0, Max: 200, Default: 0.021, Writable: true},
}

func DefaultDescriptors() []Descriptor {
	descriptors := make([]Descriptor, len(defaultDescriptors))
	copy(descriptors, defaultDescriptors)
	return descriptors
}

// Default catalog of the actuator firmware parameters
func Default() *Catalog {
	c, err := NewCatalog(defaultDescriptors)
	if err != nil {
		panic(err)
	}
	return c
}
