package sim

import "log"

// A Simulation holds everything that belongs to one simulated system: the
// engine, the components and their ports. It replaces process-wide
// registries so that several simulations can live in one process.
type Simulation struct {
	engine        Engine
	components    []Component
	compNameIndex map[string]int
	ports         []Port
	portNameIndex map[string]int
}

// NewSimulation creates a new simulation driven by the engine.
func NewSimulation(engine Engine) *Simulation {
	return &Simulation{
		engine:        engine,
		compNameIndex: make(map[string]int),
		portNameIndex: make(map[string]int),
	}
}

// GetEngine returns the engine of the simulation.
func (s *Simulation) GetEngine() Engine {
	return s.engine
}

// RegisterComponent registers a component and all its ports.
func (s *Simulation) RegisterComponent(c Component) {
	compName := c.Name()
	if _, found := s.compNameIndex[compName]; found {
		log.Panicf("component %s already registered", compName)
	}

	s.components = append(s.components, c)
	s.compNameIndex[compName] = len(s.components) - 1

	for _, p := range c.Ports() {
		s.registerPort(p)
	}
}

func (s *Simulation) registerPort(p Port) {
	portName := p.Name()
	if _, found := s.portNameIndex[portName]; found {
		log.Panicf("port %s already registered", portName)
	}

	s.ports = append(s.ports, p)
	s.portNameIndex[portName] = len(s.ports) - 1
}

// Components returns all the registered components.
func (s *Simulation) Components() []Component {
	return s.components
}

// GetComponentByName returns the component with the given name, or nil.
func (s *Simulation) GetComponentByName(name string) Component {
	i, found := s.compNameIndex[name]
	if !found {
		return nil
	}

	return s.components[i]
}

// GetPortByName returns the port with the given name, or nil.
func (s *Simulation) GetPortByName(name string) Port {
	i, found := s.portNameIndex[name]
	if !found {
		return nil
	}

	return s.ports[i]
}
