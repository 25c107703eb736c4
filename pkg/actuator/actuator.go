package actuator

import (
	"errors"
	"fmt"
	"sort"
)

const (
	LimbMin  = 1
	LimbMax  = 4
	JointMin = 1
	JointMax = 5

	IdMin = LimbMin*10 + JointMin
	IdMax = LimbMax*10 + JointMax

	// Id answered by an actuator right after a factory reset
	PlaceholderId Id = 0x7F
)

var (
	ErrInvalidActuatorId = errors.New("invalid actuator id")
	ErrUnknownActuator   = errors.New("unknown actuator")
)

// Id is the two level (limb, joint) address of an actuator, written
// as a two digit decimal number e.g. 23 is joint 3 of limb 2.
type Id uint8

func (id Id) Limb() int {
	return int(id) / 10
}

func (id Id) Joint() int {
	return int(id) % 10
}

func (id Id) String() string {
	return fmt.Sprintf("%d", uint8(id))
}

// Validate checks that both digits are inside the limb/joint ranges
func (id Id) Validate() error {
	limb, joint := id.Limb(), id.Joint()
	if limb < LimbMin || limb > LimbMax || joint < JointMin || joint > JointMax {
		return fmt.Errorf("%w : %d (limb %d..%d, joint %d..%d)", ErrInvalidActuatorId, uint8(id), LimbMin, LimbMax, JointMin, JointMax)
	}
	return nil
}

type Info struct {
	Id        Id
	Label     string
	MaxTorque float64 // Nm
}

// Registry is a read only table of the actuators fitted on the robot.
// It is built once at startup and shared by reference.
type Registry struct {
	infos map[Id]Info
	ids   []Id
}

func NewRegistry(infos []Info) (*Registry, error) {
	r := &Registry{infos: make(map[Id]Info, len(infos))}
	for _, info := range infos {
		if err := info.Id.Validate(); err != nil {
			return nil, err
		}
		if _, ok := r.infos[info.Id]; ok {
			return nil, fmt.Errorf("duplicate actuator %v", info.Id)
		}
		if info.MaxTorque <= 0 {
			return nil, fmt.Errorf("actuator %v : max torque must be positive, got %v", info.Id, info.MaxTorque)
		}
		r.infos[info.Id] = info
		r.ids = append(r.ids, info.Id)
	}
	sort.Slice(r.ids, func(i, j int) bool { return r.ids[i] < r.ids[j] })
	return r, nil
}

func (r *Registry) Lookup(id Id) (Info, error) {
	info, ok := r.infos[id]
	if !ok {
		return Info{}, fmt.Errorf("%w : %v", ErrUnknownActuator, id)
	}
	return info, nil
}

// Label of the actuator or its numeric id if unknown
func (r *Registry) Label(id Id) string {
	info, err := r.Lookup(id)
	if err != nil {
		return id.String()
	}
	return info.Label
}

func (r *Registry) MaxTorque(id Id) (float64, error) {
	info, err := r.Lookup(id)
	if err != nil {
		return 0, err
	}
	return info.MaxTorque, nil
}

// All registered ids, sorted
func (r *Registry) Ids() []Id {
	ids := make([]Id, len(r.ids))
	copy(ids, r.ids)
	return ids
}

// Infos returns a copy of all entries, sorted by id
func (r *Registry) Infos() []Info {
	infos := make([]Info, 0, len(r.ids))
	for _, id := range r.ids {
		infos = append(infos, r.infos[id])
	}
	return infos
}

// Limb returns the registered ids of one limb, sorted
func (r *Registry) Limb(limb int) []Id {
	ids := make([]Id, 0, JointMax)
	for _, id := range r.ids {
		if id.Limb() == limb {
			ids = append(ids, id)
		}
	}
	return ids
}

// Select validates a list of raw ids against the registry.
// Order is preserved and duplicates are dropped.
func (r *Registry) Select(raw []int) ([]Id, error) {
	selected := make([]Id, 0, len(raw))
	seen := make(map[Id]bool, len(raw))
	for _, v := range raw {
		if v < 0 || v > 0xFF {
			return nil, fmt.Errorf("%w : %d", ErrInvalidActuatorId, v)
		}
		id := Id(v)
		if err := id.Validate(); err != nil {
			return nil, err
		}
		if _, err := r.Lookup(id); err != nil {
			return nil, err
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		selected = append(selected, id)
	}
	return selected, nil
}
