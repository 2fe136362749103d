package sim

import (
	"fmt"
	"log"
	"sort"
	"strings"
)

// A PortOwner is an element that communicates with others through ports.
type PortOwner interface {
	AddPort(name string, port Port)
	GetPortByName(name string) Port
	Ports() []Port
}

// PortOwnerBase provides an implementation of the PortOwner interface.
type PortOwnerBase struct {
	ports map[string]Port
}

// NewPortOwnerBase creates a new PortOwnerBase.
func NewPortOwnerBase() *PortOwnerBase {
	return &PortOwnerBase{
		ports: make(map[string]Port),
	}
}

// AddPort adds a new port with a given name.
func (po *PortOwnerBase) AddPort(name string, port Port) {
	if _, found := po.ports[name]; found {
		log.Panicf("port %s already exists", name)
	}

	po.ports[name] = port
}

// GetPortByName returns the port with the given name. It panics if the name
// is not found.
func (po *PortOwnerBase) GetPortByName(name string) Port {
	port, found := po.ports[name]
	if !found {
		available := make([]string, 0, len(po.ports))
		for n := range po.ports {
			available = append(available, n)
		}

		sort.Strings(available)

		panic(fmt.Sprintf("port %s is not available, options: %s",
			name, strings.Join(available, ", ")))
	}

	return port
}

// Ports returns all the ports, sorted by name.
func (po *PortOwnerBase) Ports() []Port {
	names := make([]string, 0, len(po.ports))
	for k := range po.ports {
		names = append(names, k)
	}

	sort.Strings(names)

	list := make([]Port, 0, len(po.ports))
	for _, n := range names {
		list = append(list, po.ports[n])
	}

	return list
}
