// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package context defines the Context used to build models: it organizes the parameters (weights) of
// a model and its hyperparameters in scopes.
package context

import (
	"fmt"
	"math/rand/v2"
	"reflect"
	"strings"

	"github.com/gomlx/deepworks/internal/scoped"
	"github.com/gomlx/deepworks/pkg/core/shapes"
	"github.com/gomlx/deepworks/pkg/core/tensors"
	"github.com/gomlx/deepworks/pkg/ml/initializer"
	"github.com/gomlx/deepworks/pkg/ml/params"
	. "github.com/gomlx/exceptions"
)

// Context organizes the information shared by the functions building a model graph:
//
//  1. Variables: the model parameters (weights), created as *params.Parameter.
//  2. Parameters: hyperparameters and any arbitrary information that needs sharing among the
//     graph building functions using the Context.
//
// Both are organized in "scopes". The Context object is a thin wrapper that contains the current scope
// (similar to a current directory) and a link to the actual data. One changes scopes with
// Context.In("new_scope"): it returns a new Context with the new scope set, but sharing all the data
// with the previous Context. E.g:
//
//	func main() {
//		ctx := context.New()
//		ctx.SetParam(fnn.ParamNumHiddenLayers, 2)  // Default number of hidden layers.
//		...
//	}
//
//	func ModelGraph(ctx *context.Context, x *graph.Node) (logits *graph.Node) {
//		...
//		{
//			ctx := ctx.In("output_layer")  // Same data, different scope.
//			logits = layers.Dense(ctx, logits, hiddenDim, numClasses, true)
//		}
//	}
//
// The context is by default Checked: creating a variable that already exists in the scope panics,
// unless Context.Reuse() is used, in which case requesting a variable that doesn't exist panics.
type Context struct {
	// scope for currently created variables and registration.
	scope string

	// reuse of variables, if set to true.
	reuse bool

	// checked access to variables: whether to check for reuse if variable is new or not.
	checked bool

	// initializer used for new variables. If nil, DefaultInitializer is used.
	initializer initializer.Initializer

	// data shared among all references of the Context.
	data *contextData
}

// contextData stores all context information and is shared among various Context, which
// serve only as scoped references.
type contextData struct {
	// params holds a model's building (hyper)parameters.
	params *scoped.Params

	// variablesMap for this context organized per scope, and variables in creation order.
	variablesMap map[string]map[string]*params.Parameter
	variables    params.Parameters

	// source of randomness for the default initializer, created on demand.
	source rand.Source
}

const (
	// ScopeSeparator is used between levels of scope. Scope names cannot use this character.
	ScopeSeparator = "/"

	// RootScope is the scope at the very root.
	RootScope = ScopeSeparator

	// ParamInitialSeed is the key for the hyperparameter with the seed (int) used by the default
	// initializer. The default is DefaultSeed.
	ParamInitialSeed = "initializers_seed"
)

// DefaultSeed used to initialize variables, if no ParamInitialSeed is set.
var DefaultSeed = 42

// New returns a new empty Context, in the root scope.
func New() *Context {
	return &Context{
		scope:   RootScope,
		checked: true,
		data: &contextData{
			params:       scoped.New(ScopeSeparator),
			variablesMap: make(map[string]map[string]*params.Parameter),
		},
	}
}

// copy creates a copy of the Context, but sharing the same "data" component.
func (ctx *Context) copy() *Context {
	ctx2 := &Context{}
	*ctx2 = *ctx
	return ctx2
}

// JoinScope and name into a single string.
// If scope is empty, name is returned.
// See also SplitScope.
func JoinScope(scope, name string) string {
	if strings.HasSuffix(scope, ScopeSeparator) {
		return scope + name
	}
	if scope == "" {
		return name
	}
	return fmt.Sprintf("%s%s%s", scope, ScopeSeparator, name)
}

// SplitScope splits the scope from the name for a combined string, typically created by JoinScope.
// If there is no scope configured, scope is set to "".
func SplitScope(scopeAndName string) (scope, name string) {
	if !strings.HasPrefix(scopeAndName, ScopeSeparator) {
		return "", scopeAndName
	}
	separationIdx := strings.LastIndex(scopeAndName, ScopeSeparator)
	name = scopeAndName[separationIdx+1:]
	if separationIdx == 0 {
		scope = RootScope
	} else {
		scope = scopeAndName[:separationIdx]
	}
	return
}

// Scope returns the full scope path.
func (ctx *Context) Scope() string {
	return ctx.scope
}

// In returns a new reference to the Context with the extra given scope. No ScopeSeparator ("/") is
// allowed in scope.
func (ctx *Context) In(scope string) *Context {
	if scope == "" {
		Panicf("cannot use empty scope for Context.In()")
	}
	if strings.Contains(scope, ScopeSeparator) {
		Panicf("cannot use separator %q in scope element %q", ScopeSeparator, scope)
	}
	return ctx.InAbsPath(JoinScope(ctx.scope, scope))
}

// Inf returns a new reference to the Context with the extra given scope, formatted with fmt.Sprintf.
func (ctx *Context) Inf(format string, args ...any) *Context {
	return ctx.In(fmt.Sprintf(format, args...))
}

// InAbsPath returns a new reference to the Context with the given absolute scope path. It should start with
// and have each element separated by ScopeSeparator. Use RootScope for the root scope.
func (ctx *Context) InAbsPath(scopePath string) *Context {
	if !strings.HasPrefix(scopePath, ScopeSeparator) {
		Panicf("absolute scope path must start with separator %q, instead got %q", ScopeSeparator, scopePath)
	}
	ctx2 := ctx.copy()
	ctx2.scope = scopePath
	return ctx2
}

// Reuse returns a new reference to the Context set to reuse variables.
// If checked is false, this setting is irrelevant.
func (ctx *Context) Reuse() *Context {
	ctx2 := ctx.copy()
	ctx2.reuse = true
	return ctx2
}

// IsReuse returns whether Context is marked for reuse. This is irrelevant if IsChecked is false.
func (ctx *Context) IsReuse() bool { return ctx.reuse }

// Checked returns a new context with the checked flag set accordingly.
// If checked is false variables are dynamically reused or created when needed, without any checks.
func (ctx *Context) Checked(checked bool) *Context {
	if ctx.checked == checked {
		return ctx
	}
	ctx2 := ctx.copy()
	ctx2.checked = checked
	return ctx2
}

// IsChecked returns whether context is checking reuse rules.
func (ctx *Context) IsChecked() bool { return ctx.checked }

// WithInitializer returns a new reference to the Context, with the initializer set.
// It doesn't affect other context references.
func (ctx *Context) WithInitializer(init initializer.Initializer) *Context {
	if init == nil {
		Panicf("Context.WithInitializer passed a nil initializer")
	}
	ctx2 := ctx.copy()
	ctx2.initializer = init
	return ctx2
}

// RandomSource returns the source of randomness shared by the context references, seeded with the
// hyperparameter ParamInitialSeed (or DefaultSeed) when first used.
func (ctx *Context) RandomSource() rand.Source {
	if ctx.data.source == nil {
		seed := GetParamOr(ctx.InAbsPath(RootScope), ParamInitialSeed, DefaultSeed)
		ctx.data.source = initializer.NewSource(uint64(seed))
	}
	return ctx.data.source
}

// DefaultInitializer returns the initializer used when none was set with WithInitializer:
// initializer.GlorotUniform using the context RandomSource.
func (ctx *Context) DefaultInitializer() initializer.Initializer {
	return initializer.GlorotUniform(ctx.RandomSource())
}

// GetParam returns the value for the given param key, searching successively from
// the current scope back to the root scope ("/"), in case the key is not found.
//
// E.g: if current scope is "/a/b", it will search for the key in "/a/b" scope, then
// in "/a" and finally in "/", and return the first result found.
func (ctx *Context) GetParam(key string) (value any, found bool) {
	return ctx.data.params.Get(ctx.scope, key)
}

// MustGetParam is like GetParam, but panics if the parameter is not found, or if it is not of type T
// (or convertible to it).
func MustGetParam[T any](ctx *Context, key string) T {
	var t T
	valueAny, found := ctx.GetParam(key)
	if !found {
		Panicf("parameter %q (of type %T) not found in scope %q (and its parents)", key, t, ctx.Scope())
	}
	if value, ok := valueAny.(T); ok {
		return value
	}
	v := reflect.ValueOf(valueAny)
	typeOfT := reflect.TypeOf(t)
	if !v.IsValid() || !v.CanConvert(typeOfT) {
		Panicf("MustGetParam[%T](ctx, %q): ctx(scope=%q)[%q]=(%T) %#v, and cannot be converted to %T",
			t, key, ctx.Scope(), key, valueAny, valueAny, t)
	}
	return v.Convert(typeOfT).Interface().(T)
}

// GetParamOr either returns the value for the given param key in the context `ctx`,
// searching successively from the current scope back to the root scope ("/"), or if the
// key is not found or the key is set to nil, it returns the given default value.
//
// Values of a different type are converted if possible (an `int` is converted to a `float64` transparently),
// otherwise it panics.
func GetParamOr[T any](ctx *Context, key string, defaultValue T) T {
	valueAny, found := ctx.GetParam(key)
	if !found || valueAny == nil {
		return defaultValue
	}
	return MustGetParam[T](ctx, key)
}

// SetParam sets the given param in the current scope. It will be visible (by GetParam)
// within this scope and descendant scopes (but not by other scopes).
func (ctx *Context) SetParam(key string, value any) {
	ctx.data.params.Set(ctx.scope, key, value)
}

// SetParams sets a collection of parameters in the current scope.
func (ctx *Context) SetParams(keyValues map[string]any) {
	for key, value := range keyValues {
		ctx.data.params.Set(ctx.scope, key, value)
	}
}

// EnumerateParams enumerates all parameters for all scopes calls fn with their values.
func (ctx *Context) EnumerateParams(fn func(scope, key string, value any)) {
	ctx.data.params.Enumerate(fn)
}

// GetVariableByScopeAndName returns the variable with the given name in the given scope, or nil if it doesn't exist.
func (ctx *Context) GetVariableByScopeAndName(scope, name string) *params.Parameter {
	return ctx.data.variablesMap[scope][name]
}

// GetVariable returns the variable with the given name in the current scope, or nil if it doesn't exist.
func (ctx *Context) GetVariable(name string) *params.Parameter {
	return ctx.GetVariableByScopeAndName(ctx.scope, name)
}

// checkNewVariable returns the existing variable, if any, after checking the reuse rules.
func (ctx *Context) checkNewVariable(name string) *params.Parameter {
	if strings.Contains(name, ScopeSeparator) {
		Panicf("cannot use separator %q in variable name %q", ScopeSeparator, name)
	}
	v := ctx.GetVariable(name)
	if v == nil && ctx.checked && ctx.reuse {
		Panicf("requested variable %q in scope %q with Context.Reuse set, but variable does not exist", name, ctx.scope)
	}
	if v != nil && ctx.checked && !ctx.reuse {
		Panicf("variable %q for scope %q already exists -- if this was deliberate, use Context.Reuse() or Context.Checked(false)",
			name, ctx.scope)
	}
	return v
}

// registerVariable creates the trainable parameter with the given value, and registers it in the current scope.
func (ctx *Context) registerVariable(name string, value *tensors.Tensor) *params.Parameter {
	v := params.New(JoinScope(ctx.scope, name), value, true)
	scopeVars := ctx.data.variablesMap[ctx.scope]
	if scopeVars == nil {
		scopeVars = make(map[string]*params.Parameter)
		ctx.data.variablesMap[ctx.scope] = scopeVars
	}
	scopeVars[name] = v
	ctx.data.variables = append(ctx.data.variables, v)
	return v
}

// VariableWithShape creates or returns an existing variable with the given shape in the current scope.
// It is initialized with the current variable initializer set for the context, and it is marked as trainable.
// Its name is the full path: scope and name joined (see JoinScope).
//
// If Context is set with Context.Checked(true) (the default), it panics if:
//
// - Context.Reuse() is not set and variable already exists;
// - Context.Reuse() is set and variable doesn't exist.
func (ctx *Context) VariableWithShape(name string, shape shapes.Shape) *params.Parameter {
	v := ctx.checkNewVariable(name)
	if v != nil {
		if !shape.Equal(v.Data.Shape()) {
			Panicf("requested to reuse variable %q in scope %q, but with different shape from original: "+
				"previous shape=%s, requested shape=%s", name, ctx.scope, v.Data.Shape(), shape)
		}
		return v
	}
	init := ctx.initializer
	if init == nil {
		init = ctx.DefaultInitializer()
	}
	value := init(shape)
	if !value.Shape().Equal(shape) {
		Panicf("initializer for variable %q in scope %q returned shape %s, wanted %s", name, ctx.scope, value.Shape(), shape)
	}
	return ctx.registerVariable(name, value)
}

// VariableWithValue creates or returns a variable initialized with the given value in the current scope.
// If the variable already exists, its value is not overwritten.
//
// The value can be a *tensors.Tensor or anything accepted by tensors.FromAnyValue. Tensors are cloned.
func (ctx *Context) VariableWithValue(name string, value any) *params.Parameter {
	v := ctx.checkNewVariable(name)
	if v != nil {
		return v
	}
	var t *tensors.Tensor
	if tensorValue, ok := value.(*tensors.Tensor); ok {
		t = tensorValue.Clone()
	} else {
		t = tensors.FromAnyValue(value)
	}
	return ctx.registerVariable(name, t)
}

// Parameters returns all variables created in the context, in creation order.
func (ctx *Context) Parameters() params.Parameters {
	return ctx.data.variables
}

// NumVariables returns the number of variables in the context.
func (ctx *Context) NumVariables() int {
	return len(ctx.data.variables)
}

// NumParameters returns the summed-up number of all variables elements.
func (ctx *Context) NumParameters() int {
	return ctx.data.variables.NumElements()
}

// Memory returns the total number of bytes used to store the values of the variables.
func (ctx *Context) Memory() (memory uintptr) {
	for _, v := range ctx.data.variables {
		memory += v.Data.Memory()
	}
	return
}
