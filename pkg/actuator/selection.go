package actuator

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseSelection turns an operator string into a validated id list.
// Accepted tokens, comma separated : "all", a limb name ("left_arm"),
// a limb wildcard ("3x") or a single id ("34").
func (r *Registry) ParseSelection(selection string) ([]Id, error) {
	raw := make([]int, 0)
	for _, token := range strings.Split(selection, ",") {
		token = strings.ToLower(strings.TrimSpace(token))
		if token == "" {
			continue
		}
		if token == "all" {
			for _, id := range r.ids {
				raw = append(raw, int(id))
			}
			continue
		}
		if limb, ok := LimbNames[token]; ok {
			for _, id := range r.Limb(limb) {
				raw = append(raw, int(id))
			}
			continue
		}
		if len(token) == 2 && token[1] == 'x' {
			limb, err := strconv.Atoi(token[:1])
			if err != nil || limb < LimbMin || limb > LimbMax {
				return nil, fmt.Errorf("%w : limb wildcard %q", ErrInvalidActuatorId, token)
			}
			for _, id := range r.Limb(limb) {
				raw = append(raw, int(id))
			}
			continue
		}
		v, err := strconv.Atoi(token)
		if err != nil {
			return nil, fmt.Errorf("%w : %q", ErrInvalidActuatorId, token)
		}
		raw = append(raw, v)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w : empty selection", ErrInvalidActuatorId)
	}
	return r.Select(raw)
}
