package engine

import (
	"fmt"

	can "github.com/kbot-tools/actuatorctl/pkg/can"
	log "github.com/sirupsen/logrus"
)

// OpenPorts opens one bus per interface name with the given driver.
// Interfaces that cannot be opened are logged and left out, the returned
// close function disconnects the others.
func OpenPorts(driver string, names []string, kernelFilters bool, logger *log.Logger) ([]Port, func(), error) {
	if logger == nil {
		logger = log.StandardLogger()
	}
	entry := logger.WithField("service", "[ENGINE]")
	ports := make([]Port, 0, len(names))
	buses := make([]can.Bus, 0, len(names))

	closeAll := func() {
		for i, bus := range buses {
			if err := bus.Disconnect(); err != nil {
				entry.Warnf("disconnecting %v : %v", ports[i].Name, err)
			}
		}
	}

	for _, name := range names {
		port, bus, err := openPort(driver, name, kernelFilters, logger)
		if err != nil {
			entry.Warnf("excluding %v : %v", name, err)
			continue
		}
		ports = append(ports, port)
		buses = append(buses, bus)
	}
	if len(ports) == 0 {
		return nil, func() {}, fmt.Errorf("%w : none of %v could be opened", ErrNoInterfaces, names)
	}
	return ports, closeAll, nil
}

func openPort(driver string, name string, kernelFilters bool, logger *log.Logger) (Port, can.Bus, error) {
	bus, err := can.NewBus(driver, name)
	if err != nil {
		return Port{}, nil, err
	}
	bm, err := can.NewBusManager(bus, logger)
	if err != nil {
		return Port{}, nil, err
	}
	if err := bus.Connect(); err != nil {
		return Port{}, nil, err
	}
	if kernelFilters {
		if err := bm.EnableKernelFilters(true); err != nil {
			_ = bus.Disconnect()
			return Port{}, nil, fmt.Errorf("enabling kernel filters : %w", err)
		}
	}
	return Port{Name: name, Bus: bm}, bus, nil
}
