package topology

import (
	"errors"
	"fmt"
	"strings"
)

// Errors in the Configuration category: topology build fails before
// anything starts running.
var (
	ErrEmptyTopology      = errors.New("topology: configuration declares no sources and sinks")
	ErrUnknownComponent   = errors.New("topology: unknown component type")
	ErrUnknownInput       = errors.New("topology: input references an unknown component")
	ErrCycle              = errors.New("topology: component graph contains a cycle")
	ErrDuplicateConsumer  = errors.New("topology: output port consumed by more than one component")
	ErrInvalidWhenFull    = errors.New("topology: invalid when_full policy")
	ErrInvalidBufferStage = errors.New("topology: invalid buffer stage")
)

// edgeRef names one producer output: either a bare component id (the
// default port) or "<id>.<port>" (a named output).
type edgeRef struct {
	producerID string
	port       string // "" for the default port
}

func parseInput(ref string) edgeRef {
	if i := strings.IndexByte(ref, '.'); i >= 0 {
		return edgeRef{producerID: ref[:i], port: ref[i+1:]}
	}
	return edgeRef{producerID: ref}
}

func (e edgeRef) String() string {
	if e.port == "" {
		return e.producerID
	}
	return e.producerID + "." + e.port
}

// graph is the validated, in-memory shape of a Config: every input resolved
// to its producer, every producer's output consumed at most once, no
// cycles, non-empty.
type graph struct {
	cfg Config

	// consumers maps an edgeRef to the single consumer id reading it.
	consumers map[edgeRef]string
	// order lists transform then sink ids in a dependency-respecting
	// (topologically sorted) order, sources always implicitly first.
	transformOrder []string
	sinkOrder      []string
}

// Validate checks cfg's shape and confirms every component's type is
// registered, without constructing anything — used by the validate
// subcommand to report schema errors without the side effects (network
// dials, disk files) that Build's construction phase can have.
func Validate(cfg Config) error {
	if _, err := buildGraph(cfg); err != nil {
		return err
	}
	for id, sc := range cfg.Sources {
		if _, err := GetSourceFactory(sc.Type); err != nil {
			return fmt.Errorf("source %q: %w", id, err)
		}
	}
	for id, tc := range cfg.Transforms {
		if _, err := GetTransformFactory(tc.Type); err != nil {
			return fmt.Errorf("transform %q: %w", id, err)
		}
	}
	for id, sc := range cfg.Sinks {
		if _, err := GetSinkFactory(sc.Type); err != nil {
			return fmt.Errorf("sink %q: %w", id, err)
		}
	}
	return nil
}

// buildGraph validates cfg and returns its resolved graph, or a
// Configuration-category error describing the first problem found.
func buildGraph(cfg Config) (*graph, error) {
	if len(cfg.Sources) == 0 || len(cfg.Sinks) == 0 {
		return nil, ErrEmptyTopology
	}

	producerIDs := make(map[string]bool, len(cfg.Sources)+len(cfg.Transforms))
	for id := range cfg.Sources {
		producerIDs[id] = true
	}
	for id := range cfg.Transforms {
		producerIDs[id] = true
	}

	g := &graph{cfg: cfg, consumers: make(map[edgeRef]string)}

	type node struct {
		id     string
		inputs []string
	}
	var nodes []node
	for id, t := range cfg.Transforms {
		nodes = append(nodes, node{id: id, inputs: t.Inputs})
	}
	for id, s := range cfg.Sinks {
		nodes = append(nodes, node{id: id, inputs: s.Inputs})
	}

	for _, n := range nodes {
		if len(n.inputs) == 0 {
			return nil, fmt.Errorf("%w: %q declares no inputs", ErrUnknownInput, n.id)
		}
		for _, raw := range n.inputs {
			ref := parseInput(raw)
			if !producerIDs[ref.producerID] {
				return nil, fmt.Errorf("%w: %q references %q", ErrUnknownInput, n.id, raw)
			}
			if existing, ok := g.consumers[ref]; ok && existing != n.id {
				return nil, fmt.Errorf("%w: %q consumed by both %q and %q", ErrDuplicateConsumer, ref.String(), existing, n.id)
			}
			g.consumers[ref] = n.id
		}
	}

	order, err := topoSort(cfg)
	if err != nil {
		return nil, err
	}
	for _, id := range order {
		if _, ok := cfg.Transforms[id]; ok {
			g.transformOrder = append(g.transformOrder, id)
		} else {
			g.sinkOrder = append(g.sinkOrder, id)
		}
	}

	return g, nil
}

// topoSort orders transforms and sinks so every node appears after all of
// its input producers, detecting cycles via the standard three-color DFS.
func topoSort(cfg Config) ([]string, error) {
	inputsOf := make(map[string][]string, len(cfg.Transforms)+len(cfg.Sinks))
	for id, t := range cfg.Transforms {
		for _, raw := range t.Inputs {
			inputsOf[id] = append(inputsOf[id], parseInput(raw).producerID)
		}
	}
	for id, s := range cfg.Sinks {
		for _, raw := range s.Inputs {
			inputsOf[id] = append(inputsOf[id], parseInput(raw).producerID)
		}
	}

	const (
		white = iota
		gray
		black
	)
	color := make(map[string]int)
	var order []string

	var visit func(id string) error
	visit = func(id string) error {
		switch color[id] {
		case black:
			return nil
		case gray:
			return fmt.Errorf("%w: involving %q", ErrCycle, id)
		}
		color[id] = gray
		for _, dep := range inputsOf[id] {
			if _, isSourceDep := cfg.Sources[dep]; isSourceDep {
				continue // sources have no further upstream edges
			}
			if err := visit(dep); err != nil {
				return err
			}
		}
		color[id] = black
		order = append(order, id)
		return nil
	}

	for id := range cfg.Transforms {
		if err := visit(id); err != nil {
			return nil, err
		}
	}
	for id := range cfg.Sinks {
		if err := visit(id); err != nil {
			return nil, err
		}
	}
	return order, nil
}
