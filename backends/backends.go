// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package backends defines the interface of an execution engine for a compiled graph.Graph, and a registry
// of the available implementations.
//
// A Backend binds caller-supplied tensors to the graph's inputs, executes the forward pass in topological
// order and the backward pass in reverse order. It does no optimizer stepping: parameter gradients are
// accumulated into each params.Parameter, and it is up to the training loop to apply and zero them.
//
// Binding mismatches (wrong number of tensors, wrong output sizes) are programming errors and panic,
// with exceptions.Panicf.
//
// To use the default backend, import it anonymously:
//
//	import _ "github.com/gomlx/deepworks/backends/default"
package backends

import (
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/gomlx/deepworks/pkg/core/graph"
	"github.com/gomlx/deepworks/pkg/core/tensors"
	"github.com/pkg/errors"
)

// Backend is the API implemented by execution engines.
//
// A Backend is not safe for concurrent use: each Forward must be followed by at most one Backward,
// and only then the next Forward can be called.
type Backend interface {
	// Name returns the short name of the backend. E.g.: "cpu".
	Name() string

	// Description is a longer description of the Backend that can be used to pretty-print.
	Description() string

	// Graph being executed.
	Graph() *graph.Graph

	// Forward binds inputs to the graph's inputs (same number and order as Graph.Inputs), executes the graph
	// and copies the results into outputs (same number and order as Graph.Outputs).
	//
	// Input tensors are only borrowed for the duration of the forward/backward cycle: they must not be
	// changed until Backward is called.
	Forward(inputs, outputs []*tensors.Tensor)

	// Backward feeds outputGrads (one per graph output) and propagates gradients in reverse order.
	// Gradients of the parameters are accumulated in their Grad tensors, and the gradients with respect
	// to the graph's inputs are copied into inputGrads (one per graph input, nil entries are skipped).
	//
	// It must be preceded by a Forward call.
	Backward(outputGrads, inputGrads []*tensors.Tensor)

	// SetTraining sets whether the following forward passes are in training mode (the default) or
	// inference mode. E.g.: BatchNorm1D uses batch statistics and updates its running statistics in training
	// mode, and uses the running statistics in inference mode.
	SetTraining(training bool)

	// Training returns whether forward passes are in training mode.
	Training() bool
}

// Constructor takes a config string (optionally empty) and the graph to execute, and returns a Backend.
type Constructor func(config string, g *graph.Graph) (Backend, error)

var (
	registeredConstructors = make(map[string]Constructor)
	firstRegistered        string
)

// Register backend with the given name, and a constructor that takes as input a configuration string that is
// passed along to the backend constructor.
//
// To be safe, call Register during initialization of a package.
func Register(name string, constructor Constructor) {
	if len(registeredConstructors) == 0 {
		firstRegistered = name
	}
	registeredConstructors[name] = constructor
}

// List the names of the registered backends, sorted.
func List() []string {
	return slices.Sorted(maps.Keys(registeredConstructors))
}

// DefaultConfig is the name of the default backend configuration to use if specified.
//
// See NewWithConfig for the format of the configuration string.
var DefaultConfig string

// DEEPWORKS_BACKEND is the environment variable with the default backend configuration to use.
//
// The format of config is "<backend_name>:<backend_configuration>".
const DEEPWORKS_BACKEND = "DEEPWORKS_BACKEND"

// New returns a new default Backend for the graph.
//
// The default is:
//
// 1. The environment DEEPWORKS_BACKEND is used as a configuration if defined.
// 2. Next the variable DefaultConfig is used as a configuration if defined.
// 3. The first registered backend is used with an empty configuration.
func New(g *graph.Graph) (Backend, error) {
	config, found := os.LookupEnv(DEEPWORKS_BACKEND)
	if found {
		return NewWithConfig(config, g)
	}
	if DefaultConfig != "" {
		return NewWithConfig(DefaultConfig, g)
	}
	return NewWithConfig("", g)
}

// NewWithConfig creates a Backend for the graph, given a configuration string formatted as
// "<backend_name>:<backend_configuration>", where "<backend_name>" is the name of a registered backend
// and "<backend_configuration>" is backend specific. If the name is empty, the first registered backend is used.
func NewWithConfig(config string, g *graph.Graph) (Backend, error) {
	if len(registeredConstructors) == 0 {
		return nil, errors.New(`no registered backends -- maybe import the default one with import _ "github.com/gomlx/deepworks/backends/default"?`)
	}
	backendName, backendConfig, _ := strings.Cut(config, ":")
	if backendName == "" {
		backendName = firstRegistered
	}
	constructor, found := registeredConstructors[backendName]
	if !found {
		return nil, errors.Errorf("can't find backend %q for configuration %q given, registered backends are %q",
			backendName, config, List())
	}
	backend, err := constructor(backendConfig, g)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to create backend %q for graph %q", backendName, g.Name())
	}
	return backend, nil
}
