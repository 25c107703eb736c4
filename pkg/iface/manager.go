package iface

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"
)

var ErrInterfaceBringUpFailed = errors.New("interface bring up failed")

type State uint8

const (
	StateDown State = iota
	StateConfigured
	StateUp
)

func (s State) String() string {
	switch s {
	case StateDown:
		return "DOWN"
	case StateConfigured:
		return "CONFIGURED"
	case StateUp:
		return "UP"
	default:
		return "UNKNOWN"
	}
}

// Manager enumerates CAN interfaces and brings them up.
// A failing interface never stops the others.
type Manager struct {
	mu     sync.Mutex
	host   Host
	logger *log.Entry
	states map[string]State
}

func NewManager(host Host, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Manager{
		host:   host,
		logger: logger.WithField("service", "[IFACE]"),
		states: make(map[string]State),
	}
}

// Discover returns the available CAN interfaces, sorted by name
func (m *Manager) Discover() ([]string, error) {
	names, err := m.host.List()
	if err != nil {
		return nil, err
	}
	sorted := make([]string, len(names))
	copy(sorted, names)
	sort.Strings(sorted)
	m.logger.Debugf("discovered %v", sorted)
	return sorted, nil
}

// BringUp takes the interface down, configures it and brings it back up.
// Running it twice gives the same result.
func (m *Manager) BringUp(name string, bitrate int, txQueueLen int) error {
	m.setState(name, StateDown)
	steps := []struct {
		name string
		fn   func() error
	}{
		{"down", func() error { return m.host.Down(name) }},
		{"type", func() error { return m.host.SetType(name, "can", bitrate) }},
		{"txqueuelen", func() error { return m.host.SetTxQueueLen(name, txQueueLen) }},
	}
	for _, step := range steps {
		if err := step.fn(); err != nil {
			return fmt.Errorf("%w : %v (%v) : %v", ErrInterfaceBringUpFailed, name, step.name, err)
		}
	}
	m.setState(name, StateConfigured)
	if err := m.host.Up(name); err != nil {
		return fmt.Errorf("%w : %v (up) : %v", ErrInterfaceBringUpFailed, name, err)
	}
	m.setState(name, StateUp)
	m.logger.Infof("%v up | bitrate %v | txqueuelen %v", name, bitrate, txQueueLen)
	return nil
}

// BringUpAll brings every interface up and returns, in input order,
// the ones that succeeded. Failures are logged and reported in the map.
func (m *Manager) BringUpAll(names []string, bitrate int, txQueueLen int) ([]string, map[string]error) {
	up := make([]string, 0, len(names))
	failed := make(map[string]error)
	for _, name := range names {
		if err := m.BringUp(name, bitrate, txQueueLen); err != nil {
			m.logger.Warnf("excluding interface : %v", err)
			failed[name] = err
			continue
		}
		up = append(up, name)
	}
	return up, failed
}

func (m *Manager) State(name string) State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[name]
}

func (m *Manager) setState(name string, state State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[name] = state
}
