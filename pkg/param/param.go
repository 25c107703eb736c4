package param

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

var (
	ErrUnknownParameter  = errors.New("unknown parameter")
	ErrValueOutOfRange   = errors.New("value out of range")
	ErrReadOnlyParameter = errors.New("parameter is read only")
)

type Type uint8

const (
	Float Type = iota
	Uint8
)

func (t Type) String() string {
	switch t {
	case Float:
		return "float"
	case Uint8:
		return "uint8"
	default:
		return "unknown"
	}
}

func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "float", "float32", "f":
		return Float, nil
	case "uint8", "u8":
		return Uint8, nil
	default:
		return 0, fmt.Errorf("unknown parameter type %q", s)
	}
}

// Descriptor of one firmware parameter
type Descriptor struct {
	Code     uint16
	Name     string
	Type     Type
	Unit     string
	Min      float64
	Max      float64
	Default  float64
	Writable bool
}

func (d Descriptor) String() string {
	return fmt.Sprintf("x%04x %v (%v, [%v..%v] %v)", d.Code, d.Name, d.Type, d.Min, d.Max, d.Unit)
}

// Check a value against the documented range and type
func (d Descriptor) Validate(value float64) error {
	if !d.Writable {
		return fmt.Errorf("%w : %v", ErrReadOnlyParameter, d.Name)
	}
	if math.IsNaN(value) || value < d.Min || value > d.Max {
		return fmt.Errorf("%w : %v = %v, expected [%v..%v]", ErrValueOutOfRange, d.Name, value, d.Min, d.Max)
	}
	if d.Type == Uint8 && value != math.Trunc(value) {
		return fmt.Errorf("%w : %v expects an integer, got %v", ErrValueOutOfRange, d.Name, value)
	}
	return nil
}

// Catalog is the read only registry of known parameters
type Catalog struct {
	byCode map[uint16]Descriptor
	byName map[string]uint16
	codes  []uint16
}

func NewCatalog(descriptors []Descriptor) (*Catalog, error) {
	c := &Catalog{
		byCode: make(map[uint16]Descriptor, len(descriptors)),
		byName: make(map[string]uint16, len(descriptors)),
	}
	for _, d := range descriptors {
		if _, ok := c.byCode[d.Code]; ok {
			return nil, fmt.Errorf("duplicate parameter code x%04x", d.Code)
		}
		if d.Min > d.Max {
			return nil, fmt.Errorf("parameter x%04x : min %v > max %v", d.Code, d.Min, d.Max)
		}
		if d.Type == Uint8 && (d.Min < 0 || d.Max > math.MaxUint8) {
			return nil, fmt.Errorf("parameter x%04x : uint8 range [%v..%v] invalid", d.Code, d.Min, d.Max)
		}
		c.byCode[d.Code] = d
		if d.Name != "" {
			c.byName[strings.ToLower(d.Name)] = d.Code
		}
		c.codes = append(c.codes, d.Code)
	}
	sort.Slice(c.codes, func(i, j int) bool { return c.codes[i] < c.codes[j] })
	return c, nil
}

func (c *Catalog) Lookup(code uint16) (Descriptor, error) {
	d, ok := c.byCode[code]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w : x%04x", ErrUnknownParameter, code)
	}
	return d, nil
}

func (c *Catalog) ByName(name string) (Descriptor, error) {
	code, ok := c.byName[strings.ToLower(name)]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w : %q", ErrUnknownParameter, name)
	}
	return c.byCode[code], nil
}

// Resolve accepts a parameter name or a numeric code ("0x7005", "28677")
func (c *Catalog) Resolve(s string) (Descriptor, error) {
	if d, err := c.ByName(s); err == nil {
		return d, nil
	}
	code, err := strconv.ParseUint(strings.TrimSpace(s), 0, 16)
	if err != nil {
		return Descriptor{}, fmt.Errorf("%w : %q", ErrUnknownParameter, s)
	}
	return c.Lookup(uint16(code))
}

// Validate a write of value to code
func (c *Catalog) Validate(code uint16, value float64) (Descriptor, error) {
	d, err := c.Lookup(code)
	if err != nil {
		return d, err
	}
	return d, d.Validate(value)
}

func (c *Catalog) Codes() []uint16 {
	codes := make([]uint16, len(c.codes))
	copy(codes, c.codes)
	return codes
}

// Descriptors sorted by code
func (c *Catalog) Descriptors() []Descriptor {
	descriptors := make([]Descriptor, 0, len(c.codes))
	for _, code := range c.codes {
		descriptors = append(descriptors, c.byCode[code])
	}
	return descriptors
}
