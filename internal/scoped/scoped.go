// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package scoped provides a mapping from a string key to any value, organized in hierarchical scopes.
package scoped

import (
	"maps"
	"slices"
	"strings"
)

// Params maps keys to values per scope. Looking up a key searches from the given scope up to the root
// scope, and the first value found is returned.
//
// Example: let's say the current Params hold:
//
//	Scope: "/": { "learning_rate": 0.1, "num_hidden_layers": 2 }
//	Scope: "/fnn": { "num_hidden_layers": 3 }
//	Scope: "/fnn/hidden_0": { "learning_rate": 0.01 }
//
//	Params.Get("/fnn/hidden_0", "learning_rate") -> 0.01
//	Params.Get("/fnn/hidden_0", "num_hidden_layers") -> 3
//	Params.Get("/other", "num_hidden_layers") -> 2
//	Params.Get("/fnn", "epsilon") -> Not found.
//
// Scopes are absolute paths separated by Separator, and the root scope is the Separator itself.
type Params struct {
	Separator  string
	scopeToMap map[string]map[string]any
}

// New creates an empty Params.
func New(scopeSeparator string) *Params {
	return &Params{
		Separator:  scopeSeparator,
		scopeToMap: make(map[string]map[string]any),
	}
}

// Clone returns a copy of the Params. Values themselves are not deep-copied.
func (p *Params) Clone() *Params {
	clone := New(p.Separator)
	for scope, values := range p.scopeToMap {
		clone.scopeToMap[scope] = maps.Clone(values)
	}
	return clone
}

// Set the value for the given key, in the given scope.
func (p *Params) Set(scope, key string, value any) {
	values := p.scopeToMap[scope]
	if values == nil {
		values = make(map[string]any)
		p.scopeToMap[scope] = values
	}
	values[key] = value
}

// parent returns the parent scope, and false if scope is already the root.
func (p *Params) parent(scope string) (string, bool) {
	if scope == p.Separator || scope == "" {
		return "", false
	}
	idx := strings.LastIndex(scope, p.Separator)
	if idx <= 0 {
		return p.Separator, true
	}
	return scope[:idx], true
}

// Get retrieves the value for the given key in the given scope or any parent scope.
// E.g: Get("/a/b", "myKey") will search for "myKey" in scopes "/a/b", "/a" and "/"
// consecutively until "myKey" is found.
func (p *Params) Get(scope, key string) (value any, found bool) {
	for ok := true; ok; scope, ok = p.parent(scope) {
		if value, found = p.scopeToMap[scope][key]; found {
			return
		}
	}
	return nil, false
}

// Enumerate calls fn for every value stored, sorted by scope and then by key.
func (p *Params) Enumerate(fn func(scope, key string, value any)) {
	for _, scope := range slices.Sorted(maps.Keys(p.scopeToMap)) {
		values := p.scopeToMap[scope]
		for _, key := range slices.Sorted(maps.Keys(values)) {
			fn(scope, key, values[key])
		}
	}
}
