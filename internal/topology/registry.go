package topology

import (
	"fmt"
	"sort"

	"firestige.xyz/otus/internal/sink"
	"firestige.xyz/otus/internal/source"
	"firestige.xyz/otus/internal/transform"
)

// TransformFactory builds a transform.Transform from its decoded options,
// the Source/Sink equivalent of source.Factory/sink.Factory.
type TransformFactory func(cfg map[string]any) (transform.Transform, error)

// Global registry maps, populated during each plugin package's init()
// phase and read-only at topology build time — generalized from the
// capturer/parser/processor/reporter maps of a prior plugin registry
// down to three kinds.
var (
	sourceRegistry    = make(map[string]source.Factory)
	transformRegistry = make(map[string]TransformFactory)
	sinkRegistry      = make(map[string]sink.Factory)
)

// RegisterSource registers a source factory by type name. Panics if name is
// already registered, the same compile-time-wiring-bug contract as the
// registry this one generalizes.
func RegisterSource(name string, factory source.Factory) {
	if name == "" {
		panic("topology: source type name cannot be empty")
	}
	if factory == nil {
		panic("topology: source factory cannot be nil")
	}
	if _, exists := sourceRegistry[name]; exists {
		panic(fmt.Sprintf("topology: source type %q already registered", name))
	}
	sourceRegistry[name] = factory
}

// RegisterTransform registers a transform factory by type name.
func RegisterTransform(name string, factory TransformFactory) {
	if name == "" {
		panic("topology: transform type name cannot be empty")
	}
	if factory == nil {
		panic("topology: transform factory cannot be nil")
	}
	if _, exists := transformRegistry[name]; exists {
		panic(fmt.Sprintf("topology: transform type %q already registered", name))
	}
	transformRegistry[name] = factory
}

// RegisterSink registers a sink factory by type name.
func RegisterSink(name string, factory sink.Factory) {
	if name == "" {
		panic("topology: sink type name cannot be empty")
	}
	if factory == nil {
		panic("topology: sink factory cannot be nil")
	}
	if _, exists := sinkRegistry[name]; exists {
		panic(fmt.Sprintf("topology: sink type %q already registered", name))
	}
	sinkRegistry[name] = factory
}

// GetSourceFactory returns the factory registered for name.
func GetSourceFactory(name string) (source.Factory, error) {
	f, ok := sourceRegistry[name]
	if !ok {
		return nil, fmt.Errorf("%w: source type %q", ErrUnknownComponent, name)
	}
	return f, nil
}

// GetTransformFactory returns the factory registered for name.
func GetTransformFactory(name string) (TransformFactory, error) {
	f, ok := transformRegistry[name]
	if !ok {
		return nil, fmt.Errorf("%w: transform type %q", ErrUnknownComponent, name)
	}
	return f, nil
}

// GetSinkFactory returns the factory registered for name.
func GetSinkFactory(name string) (sink.Factory, error) {
	f, ok := sinkRegistry[name]
	if !ok {
		return nil, fmt.Errorf("%w: sink type %q", ErrUnknownComponent, name)
	}
	return f, nil
}

// ListSourceTypes returns a sorted list of all registered source type names.
func ListSourceTypes() []string { return sortedKeysSource(sourceRegistry) }

// ListTransformTypes returns a sorted list of all registered transform type
// names.
func ListTransformTypes() []string { return sortedKeysTransform(transformRegistry) }

// ListSinkTypes returns a sorted list of all registered sink type names.
func ListSinkTypes() []string { return sortedKeysSink(sinkRegistry) }

func sortedKeysSource(m map[string]source.Factory) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func sortedKeysTransform(m map[string]TransformFactory) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func sortedKeysSink(m map[string]sink.Factory) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
