package actuator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	for _, id := range []Id{11, 15, 21, 33, 45} {
		assert.Nil(t, id.Validate(), "id %v", id)
	}
	for _, id := range []Id{0, 10, 16, 20, 46, 50, 51, PlaceholderId} {
		assert.ErrorIs(t, id.Validate(), ErrInvalidActuatorId, "id %v", id)
	}
	assert.Equal(t, 3, Id(34).Limb())
	assert.Equal(t, 4, Id(34).Joint())
}

func TestDefaultRegistry(t *testing.T) {
	r := Default()
	assert.Len(t, r.Ids(), 20)
	assert.Equal(t, "Lsp", r.Label(11))
	assert.Equal(t, "99", r.Label(99))
	torque, err := r.MaxTorque(34)
	assert.Nil(t, err)
	assert.EqualValues(t, 120, torque)
	_, err = r.Lookup(16)
	assert.ErrorIs(t, err, ErrUnknownActuator)
	assert.Equal(t, []Id{21, 22, 23, 24, 25}, r.Limb(RightArm))
}

func TestNewRegistryErrors(t *testing.T) {
	_, err := NewRegistry([]Info{{Id: 9, Label: "x", MaxTorque: 1}})
	assert.ErrorIs(t, err, ErrInvalidActuatorId)
	_, err = NewRegistry([]Info{{Id: 11, Label: "a", MaxTorque: 1}, {Id: 11, Label: "b", MaxTorque: 1}})
	assert.NotNil(t, err)
	_, err = NewRegistry([]Info{{Id: 11, Label: "a", MaxTorque: 0}})
	assert.NotNil(t, err)
}

func TestSelect(t *testing.T) {
	r, err := NewRegistry([]Info{
		{Id: 11, Label: "a", MaxTorque: 1},
		{Id: 12, Label: "b", MaxTorque: 1},
		{Id: 31, Label: "c", MaxTorque: 1},
	})
	assert.Nil(t, err)

	ids, err := r.Select([]int{31, 11, 31})
	assert.Nil(t, err)
	assert.Equal(t, []Id{31, 11}, ids)

	_, err = r.Select([]int{13})
	assert.ErrorIs(t, err, ErrUnknownActuator)
	_, err = r.Select([]int{300})
	assert.ErrorIs(t, err, ErrInvalidActuatorId)
}

func TestParseSelection(t *testing.T) {
	r := Default()
	t.Run("all", func(t *testing.T) {
		ids, err := r.ParseSelection("all")
		assert.Nil(t, err)
		assert.Len(t, ids, 20)
	})
	t.Run("limb name and single id", func(t *testing.T) {
		ids, err := r.ParseSelection("left_leg, 11")
		assert.Nil(t, err)
		assert.Equal(t, []Id{31, 32, 33, 34, 35, 11}, ids)
	})
	t.Run("wildcard", func(t *testing.T) {
		ids, err := r.ParseSelection("4x")
		assert.Nil(t, err)
		assert.Equal(t, []Id{41, 42, 43, 44, 45}, ids)
	})
	t.Run("invalid", func(t *testing.T) {
		_, err := r.ParseSelection("9x")
		assert.ErrorIs(t, err, ErrInvalidActuatorId)
		_, err = r.ParseSelection("abc")
		assert.ErrorIs(t, err, ErrInvalidActuatorId)
		_, err = r.ParseSelection(" , ")
		assert.ErrorIs(t, err, ErrInvalidActuatorId)
	})
}
