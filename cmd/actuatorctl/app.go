package main

import (
	"fmt"
	"slices"

	"github.com/kbot-tools/actuatorctl/pkg/actuator"
	can "github.com/kbot-tools/actuatorctl/pkg/can"
	"github.com/kbot-tools/actuatorctl/pkg/config"
	"github.com/kbot-tools/actuatorctl/pkg/engine"
	"github.com/kbot-tools/actuatorctl/pkg/iface"
	"github.com/kbot-tools/actuatorctl/pkg/param"
	"github.com/kbot-tools/actuatorctl/pkg/powerboard"
	"github.com/kbot-tools/actuatorctl/pkg/sim"
	"github.com/pterm/pterm"
	log "github.com/sirupsen/logrus"
)

// Interfaces simulated in a dry run, one per limb
var simulatedInterfaces = []string{"sim0", "sim1", "sim2", "sim3"}

type app struct {
	cfg      *config.Config
	logger   *log.Logger
	yes      bool
	simulate bool
	closers  []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func (a *app) registry() (*actuator.Registry, *param.Catalog, error) {
	registry, err := a.cfg.Registry()
	if err != nil {
		return nil, nil, err
	}
	catalog, err := a.cfg.Catalog()
	if err != nil {
		return nil, nil, err
	}
	return registry, catalog, nil
}

// Candidate interfaces : configured ones, or every CAN interface except
// the power board bus
func (a *app) interfaces() ([]string, error) {
	if len(a.cfg.Bus.Interfaces) > 0 {
		return a.cfg.Bus.Interfaces, nil
	}
	if a.simulate {
		return simulatedInterfaces, nil
	}
	names, err := iface.NewManager(iface.NewNetlinkHost(), a.logger).Discover()
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(names, func(name string) bool { return name == a.cfg.Power.Interface }), nil
}

func (a *app) bringUp(names []string) ([]string, map[string]error) {
	manager := iface.NewManager(iface.NewNetlinkHost(), a.logger)
	return manager.BringUpAll(names, a.cfg.Bus.Bitrate, a.cfg.Bus.TxQueueLen)
}

func (a *app) engine() (*engine.Engine, error) {
	registry, catalog, err := a.registry()
	if err != nil {
		return nil, err
	}
	names, err := a.interfaces()
	if err != nil {
		return nil, err
	}
	if a.cfg.Bus.BringUp {
		names, _ = a.bringUp(names)
	}
	if a.simulate {
		if err := a.simulateActuators(names, registry, catalog); err != nil {
			return nil, err
		}
	}
	ports, closePorts, err := engine.OpenPorts(a.cfg.Bus.Driver, names, a.cfg.Bus.KernelFilters, a.logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closePorts)
	options := engine.Options{
		HostId:   a.cfg.Bus.HostId,
		Timeouts: a.cfg.Timeouts,
		Parallel: a.cfg.Bus.Parallel,
	}
	return engine.New(ports, registry, catalog, options, a.logger), nil
}

// Each limb answers on its own simulated bus
func (a *app) simulateActuators(names []string, registry *actuator.Registry, catalog *param.Catalog) error {
	if len(names) == 0 {
		return nil
	}
	responders := make([]*sim.Responder, 0, len(names))
	for _, name := range names {
		bus, err := a.virtualBus(name)
		if err != nil {
			return err
		}
		responder, err := sim.NewResponder(bus, catalog, a.logger)
		if err != nil {
			return err
		}
		responders = append(responders, responder)
	}
	for _, id := range registry.Ids() {
		responders[(id.Limb()-1)%len(responders)].Attach(sim.NewActuator(id))
	}
	// A factory reset actuator waiting to be reassigned
	responders[0].Attach(sim.NewActuator(actuator.PlaceholderId))
	pterm.Warning.Printfln("dry run : %d simulated actuators on %v", len(registry.Ids()), names)
	return nil
}

func (a *app) virtualBus(name string) (can.Bus, error) {
	bus, err := can.NewBus("virtual", name)
	if err != nil {
		return nil, err
	}
	if err := bus.Connect(); err != nil {
		return nil, fmt.Errorf("simulating %v : %w", name, err)
	}
	a.closers = append(a.closers, func() { bus.Disconnect() })
	return bus, nil
}

func (a *app) powerBoard() (*powerboard.Client, error) {
	if a.simulate {
		bus, err := a.virtualBus(a.cfg.Power.Interface)
		if err != nil {
			return nil, err
		}
		board, err := sim.NewPowerBoard(bus, powerboard.AutoReportPeriod, a.logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, board.Close)
	}
	client, closeBus, err := powerboard.Open(a.cfg.Power.Driver, a.cfg.Power.Interface, a.cfg.Timeouts.Power, a.logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeBus)
	return client, nil
}

// Ask before destructive operations, unless -y was given
func (a *app) confirm(format string, args ...any) bool {
	if a.yes {
		return true
	}
	ok, err := pterm.DefaultInteractiveConfirm.Show(fmt.Sprintf(format, args...))
	if err != nil {
		a.logger.Warnf("confirmation failed : %v", err)
		return false
	}
	return ok
}
