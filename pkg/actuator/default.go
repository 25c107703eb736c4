package actuator

// Limb numbers
const (
	LeftArm  = 1
	RightArm = 2
	LeftLeg  = 3
	RightLeg = 4
)

var LimbNames = map[string]int{
	"left_arm":  LeftArm,
	"right_arm": RightArm,
	"left_leg":  LeftLeg,
	"right_leg": RightLeg,
}

// Torque ratings of the actuator sizes fitted on the robot
const (
	torqueSmall  = 17.0
	torqueMedium = 60.0
	torqueLarge  = 120.0
)

var defaultInfos = []Info{
	{Id: 11, Label: "Lsp", MaxTorque: torqueMedium}, // shoulder pitch
	{Id: 12, Label: "Lsr", MaxTorque: torqueMedium}, // shoulder roll
	{Id: 13, Label: "Lsy", MaxTorque: torqueSmall},  // shoulder yaw
	{Id: 14, Label: "Lep", MaxTorque: torqueSmall},  // elbow pitch
	{Id: 15, Label: "Lwr", MaxTorque: torqueSmall},  // wrist roll
	{Id: 21, Label: "Rsp", MaxTorque: torqueMedium},
	{Id: 22, Label: "Rsr", MaxTorque: torqueMedium},
	{Id: 23, Label: "Rsy", MaxTorque: torqueSmall},
	{Id: 24, Label: "Rep", MaxTorque: torqueSmall},
	{Id: 25, Label: "Rwr", MaxTorque: torqueSmall},
	{Id: 31, Label: "Lhp", MaxTorque: torqueLarge}, // hip pitch
	{Id: 32, Label: "Lhr", MaxTorque: torqueMedium},
	{Id: 33, Label: "Lhy", MaxTorque: torqueMedium},
	{Id: 34, Label: "Lkp", MaxTorque: torqueLarge}, // knee
	{Id: 35, Label: "Lap", MaxTorque: torqueSmall}, // ankle
	{Id: 41, Label: "Rhp", MaxTorque: torqueLarge},
	{Id: 42, Label: "Rhr", MaxTorque: torqueMedium},
	{Id: 43, Label: "Rhy", MaxTorque: torqueMedium},
	{Id: 44, Label: "Rkp", MaxTorque: torqueLarge},
	{Id: 45, Label: "Rap", MaxTorque: torqueSmall},
}

// DefaultInfos returns a copy of the built in actuator table
func DefaultInfos() []Info {
	infos := make([]Info, len(defaultInfos))
	copy(infos, defaultInfos)
	return infos
}

// Default registry of the 20 actuators of the robot
func Default() *Registry {
	r, err := NewRegistry(defaultInfos)
	if err != nil {
		panic(err)
	}
	return r
}
