package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kbot-tools/actuatorctl/pkg/actuator"
	"github.com/kbot-tools/actuatorctl/pkg/protocol"
)

var (
	ErrNoResponse     = errors.New("no response")
	ErrNoInterfaces   = errors.New("no candidate interface")
	ErrPartialFailure = errors.New("sequence partially failed")
	ErrInvalidPeriod  = errors.New("period must be positive")
)

// NoResponseError is returned once every candidate interface timed out
type NoResponseError struct {
	Actuator actuator.Id
	Op       protocol.Opcode
	Tried    []string
}

func (e *NoResponseError) Error() string {
	return fmt.Sprintf("no response from actuator %v to %v (tried %v)", e.Actuator, e.Op, strings.Join(e.Tried, ","))
}

func (e *NoResponseError) Unwrap() error {
	return ErrNoResponse
}

type Step string

const (
	StepFactoryReset Step = "factory-reset"
	StepReassign     Step = "reassign"
)

// StepError reports which step of a chained sequence failed.
// Steps after the failing one were not attempted.
type StepError struct {
	Step Step
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%v : step %v failed : %v", ErrPartialFailure, e.Step, e.Err)
}

func (e *StepError) Unwrap() []error {
	return []error{ErrPartialFailure, e.Err}
}
