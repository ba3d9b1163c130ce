// Package planfile loads device planning problems from YAML plan files.
//
// A plan file names the compilation configuration and a program written as a
// sequence of let bindings:
//
//	version: "1.0"
//	config:
//	  host: cpu0
//	  default: cuda0
//	  targets: {cpu: llvm, cuda: cuda}
//	params:
//	  - {name: x, type: "tensor[4]"}
//	body:
//	  - {let: y, call: add, args: [x, x]}
//	  - {let: z, on_device: {scope: cpu0, fixed: true}, args: [y]}
//	result: z
//
// Every expression built from the file records the line and column of the
// statement it came from.
package planfile

import (
	"bytes"
	"fmt"
	"os"

	"github.com/Masterminds/semver/v3"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	deverrors "github.com/orizon-lang/devplan/internal/errors"
	"github.com/orizon-lang/devplan/internal/ir"
	"github.com/orizon-lang/devplan/internal/position"
	"github.com/orizon-lang/devplan/internal/scope"
)

// SupportedVersions is the range of plan file versions this loader reads.
const SupportedVersions = ">= 1.0.0, < 2.0.0"

var supportedVersions = func() *semver.Constraints {
	c, err := semver.NewConstraint(SupportedVersions)
	if err != nil {
		panic(err)
	}

	return c
}()

// File is a loaded plan file.
type File struct {
	Path     string
	Version  *semver.Version
	Config   *scope.CompilationConfig
	Program  *ir.Function
	Bindings []Binding
}

// Binding is a named expression of the program: a parameter or a let.
type Binding struct {
	Name string
	Expr ir.Expr
}

// Error is a problem at a specific place in a plan file. Err holds the
// underlying error when there is one.
type Error struct {
	At  position.Span
	Msg string
	Err error
}

func (e *Error) Error() string {
	if !e.At.IsValid() {
		return e.Msg
	}

	return fmt.Sprintf("%s: %s", e.At, e.Msg)
}

// Span returns where the problem is.
func (e *Error) Span() position.Span { return e.At }

func (e *Error) Unwrap() error { return e.Err }

// Load reads and parses the plan file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading plan %s", path)
	}

	f, err := Parse(path, data)
	if err != nil {
		return nil, errors.Wrapf(err, "loading plan %s", path)
	}

	return f, nil
}

// ====== Raw YAML shapes ======

type rawFile struct {
	Version yaml.Node   `yaml:"version"`
	Config  yaml.Node   `yaml:"config"`
	Globals []rawParam  `yaml:"globals"`
	Params  []rawParam  `yaml:"params"`
	Body    []yaml.Node `yaml:"body"`
	Result  string      `yaml:"result"`
}

type rawConfig struct {
	Host    string            `yaml:"host"`
	Default string            `yaml:"default"`
	Targets map[string]string `yaml:"targets"`
}

type rawParam struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

type rawStatement struct {
	Let  string   `yaml:"let"`
	Type string   `yaml:"type"`
	Args []string `yaml:"args"`

	Call         string           `yaml:"call"`
	CallLowered  string           `yaml:"call_lowered"`
	Construct    string           `yaml:"construct"`
	OnDevice     *rawOnDevice     `yaml:"on_device"`
	DeviceCopy   *rawDeviceCopy   `yaml:"device_copy"`
	AllocStorage *rawAllocStorage `yaml:"alloc_storage"`
	Constant     *string          `yaml:"constant"`
	Tuple        []string         `yaml:"tuple"`
	Get          *rawGet          `yaml:"get"`
	If           *rawIf           `yaml:"if"`
}

type rawOnDevice struct {
	Scope string `yaml:"scope"`
	Fixed bool   `yaml:"fixed"`
}

type rawDeviceCopy struct {
	Src string `yaml:"src"`
	Dst string `yaml:"dst"`
}

type rawAllocStorage struct {
	Scope string `yaml:"scope"`
	DType string `yaml:"dtype"`
}

type rawGet struct {
	Tuple string `yaml:"tuple"`
	Index int    `yaml:"index"`
}

type rawIf struct {
	Cond string `yaml:"cond"`
	Then string `yaml:"then"`
	Else string `yaml:"else"`
}

var statementKeys = map[string]bool{
	"let": true, "type": true, "args": true,
	"call": true, "call_lowered": true, "construct": true,
	"on_device": true, "device_copy": true, "alloc_storage": true,
	"constant": true, "tuple": true, "get": true, "if": true,
}

// ====== Parsing ======

// Parse parses a plan file; filename is only used for positions.
func Parse(filename string, data []byte) (*File, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var raw rawFile
	if err := dec.Decode(&raw); err != nil {
		return nil, &Error{At: position.At(position.Position{Filename: filename, Line: 1, Column: 1}), Msg: err.Error()}
	}

	b := &builder{filename: filename, env: make(map[string]ir.Expr)}

	version, err := b.version(&raw.Version)
	if err != nil {
		return nil, err
	}

	var rc rawConfig
	if raw.Config.Kind != 0 {
		if err := raw.Config.Decode(&rc); err != nil {
			return nil, b.errorAt(&raw.Config, "invalid config: %v", err)
		}
	}

	config, err := buildConfig(rc)
	if err != nil {
		return nil, b.errorAt(&raw.Config, "invalid config: %v", err)
	}

	b.config = config

	if err := b.declare(raw.Globals, true); err != nil {
		return nil, err
	}

	if err := b.declare(raw.Params, false); err != nil {
		return nil, err
	}

	for i := range raw.Body {
		if err := b.statement(&raw.Body[i]); err != nil {
			return nil, err
		}
	}

	program, err := b.program(raw.Result)
	if err != nil {
		return nil, err
	}

	return &File{
		Path:     filename,
		Version:  version,
		Config:   config,
		Program:  program,
		Bindings: b.bindings,
	}, nil
}

func buildConfig(raw rawConfig) (*scope.CompilationConfig, error) {
	hostText := raw.Host
	if hostText == "" {
		hostText = "cpu0"
	}

	host, err := scope.ParseSEScope(hostText)
	if err != nil {
		return nil, errors.Wrap(err, "host")
	}

	defaultPrimary := host
	if raw.Default != "" {
		if defaultPrimary, err = scope.ParseSEScope(raw.Default); err != nil {
			return nil, errors.Wrap(err, "default")
		}
	}

	targets := make(map[scope.DeviceType]string, len(raw.Targets))
	for device, target := range raw.Targets {
		dt, err := scope.ParseDeviceType(device)
		if err != nil {
			return nil, errors.Wrap(err, "targets")
		}

		targets[dt] = target
	}

	return scope.NewCompilationConfig(host, defaultPrimary, targets)
}

type builder struct {
	filename string
	config   *scope.CompilationConfig
	env      map[string]ir.Expr
	params   []*ir.Var
	lets     []letBinding
	bindings []Binding
}

type letBinding struct {
	v     *ir.Var
	value ir.Expr
	span  position.Span
}

func (b *builder) spanOf(node *yaml.Node) position.Span {
	if node == nil || node.Line == 0 {
		return position.Span{}
	}

	return position.At(position.Position{Filename: b.filename, Line: node.Line, Column: node.Column})
}

func (b *builder) errorAt(node *yaml.Node, format string, args ...interface{}) error {
	return &Error{At: b.spanOf(node), Msg: fmt.Sprintf(format, args...)}
}

func (b *builder) version(node *yaml.Node) (*semver.Version, error) {
	if node.Kind == 0 {
		return nil, &Error{Msg: "missing version"}
	}

	v, err := semver.NewVersion(node.Value)
	if err != nil {
		return nil, b.errorAt(node, "invalid version %q: %v", node.Value, err)
	}

	if !supportedVersions.Check(v) {
		return nil, b.errorAt(node, "unsupported plan version %s (want %s)", v, SupportedVersions)
	}

	return v, nil
}

func (b *builder) bind(name string, e ir.Expr, node *yaml.Node) error {
	if name == "" {
		return b.errorAt(node, "binding without a name")
	}

	if _, exists := b.env[name]; exists {
		return b.errorAt(node, "%q is already defined", name)
	}

	b.env[name] = e

	return nil
}

func (b *builder) declare(params []rawParam, global bool) error {
	for _, p := range params {
		ty, err := ParseType(p.Type)
		if err != nil {
			return &Error{Msg: fmt.Sprintf("%s: %v", p.Name, err)}
		}

		if global {
			ft, ok := ir.AsFunc(ty)
			if !ok {
				return &Error{Msg: fmt.Sprintf("global %s must have a function type, got %s", p.Name, ty)}
			}

			if err := b.bind(p.Name, ir.NewGlobalVar(p.Name, ft), nil); err != nil {
				return err
			}

			continue
		}

		v := ir.NewVar(p.Name, ty)
		if err := b.bind(p.Name, v, nil); err != nil {
			return err
		}

		b.params = append(b.params, v)
		b.bindings = append(b.bindings, Binding{Name: p.Name, Expr: v})
	}

	return nil
}

func (b *builder) lookup(name string, node *yaml.Node) (ir.Expr, error) {
	e, ok := b.env[name]
	if !ok {
		return nil, b.errorAt(node, "undefined name %q", name)
	}

	return e, nil
}

func (b *builder) lookupAll(names []string, node *yaml.Node) ([]ir.Expr, error) {
	exprs := make([]ir.Expr, len(names))

	for i, name := range names {
		e, err := b.lookup(name, node)
		if err != nil {
			return nil, err
		}

		exprs[i] = e
	}

	return exprs, nil
}

func (b *builder) statement(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return b.errorAt(node, "statement must be a mapping")
	}

	for i := 0; i < len(node.Content); i += 2 {
		if key := node.Content[i].Value; !statementKeys[key] {
			return b.errorAt(node.Content[i], "unknown statement key %q", key)
		}
	}

	var st rawStatement
	if err := node.Decode(&st); err != nil {
		return b.errorAt(node, "%v", err)
	}

	value, err := b.expression(&st, node)
	if err != nil {
		return err
	}

	span := b.spanOf(node)
	setSpan(value, span)

	v := ir.NewVar(st.Let, value.CheckedType())
	v.SetSpan(span)

	if err := b.bind(st.Let, v, node); err != nil {
		return err
	}

	b.lets = append(b.lets, letBinding{v: v, value: value, span: span})
	b.bindings = append(b.bindings, Binding{Name: st.Let, Expr: v})

	return nil
}

func setSpan(e ir.Expr, span position.Span) {
	if s, ok := e.(interface{ SetSpan(position.Span) }); ok {
		s.SetSpan(span)
	}
}

// explicitType returns the statement's declared type, or fallback.
func (b *builder) explicitType(st *rawStatement, node *yaml.Node, fallback ir.Type) (ir.Type, error) {
	if st.Type == "" {
		if fallback == nil {
			return nil, b.errorAt(node, "%q needs an explicit type", st.Let)
		}

		return fallback, nil
	}

	ty, err := ParseType(st.Type)
	if err != nil {
		return nil, b.errorAt(node, "%v", err)
	}

	return ty, nil
}

func (b *builder) expression(st *rawStatement, node *yaml.Node) (ir.Expr, error) {
	forms := 0
	for _, set := range []bool{
		st.Call != "", st.CallLowered != "", st.Construct != "",
		st.OnDevice != nil, st.DeviceCopy != nil, st.AllocStorage != nil,
		st.Constant != nil, st.Tuple != nil, st.Get != nil, st.If != nil,
	} {
		if set {
			forms++
		}
	}

	if forms != 1 {
		return nil, b.errorAt(node, "statement %q must have exactly one expression form", st.Let)
	}

	args, err := b.lookupAll(st.Args, node)
	if err != nil {
		return nil, err
	}

	switch {
	case st.OnDevice != nil:
		s, err := b.scope(st.OnDevice.Scope, node)
		if err != nil {
			return nil, err
		}

		if len(args) != 1 {
			return nil, b.errorAt(node, "on_device takes exactly one argument")
		}

		return ir.OnDevice(args[0], s, st.OnDevice.Fixed), nil
	case st.DeviceCopy != nil:
		src, err := b.scope(st.DeviceCopy.Src, node)
		if err != nil {
			return nil, err
		}

		dst, err := b.scope(st.DeviceCopy.Dst, node)
		if err != nil {
			return nil, err
		}

		if len(args) != 1 {
			return nil, b.errorAt(node, "device_copy takes exactly one argument")
		}

		return ir.DeviceCopy(args[0], src, dst), nil
	case st.AllocStorage != nil:
		s, err := b.scope(st.AllocStorage.Scope, node)
		if err != nil {
			return nil, err
		}

		if len(args) != 2 {
			return nil, b.errorAt(node, "alloc_storage takes a size and an alignment")
		}

		return ir.AllocStorage(args[0], args[1], s, st.AllocStorage.DType), nil
	case st.Constant != nil:
		ty, err := b.explicitType(st, node, ir.Tensor())
		if err != nil {
			return nil, err
		}

		return ir.NewConstant(*st.Constant, ty), nil
	case st.Tuple != nil:
		fields, err := b.lookupAll(st.Tuple, node)
		if err != nil {
			return nil, err
		}

		return ir.NewTuple(fields...), nil
	case st.Get != nil:
		tuple, err := b.lookup(st.Get.Tuple, node)
		if err != nil {
			return nil, err
		}

		tt, ok := tuple.CheckedType().(*ir.TupleType)
		if !ok || st.Get.Index < 0 || st.Get.Index >= len(tt.Fields) {
			return nil, b.errorAt(node, "%q has no field %d", st.Get.Tuple, st.Get.Index)
		}

		return ir.NewTupleGetItem(tuple, st.Get.Index), nil
	case st.If != nil:
		parts, err := b.lookupAll([]string{st.If.Cond, st.If.Then, st.If.Else}, node)
		if err != nil {
			return nil, err
		}

		return ir.NewIf(parts[0], parts[1], parts[2]), nil
	case st.CallLowered != "":
		target, err := b.lookup(st.CallLowered, node)
		if err != nil {
			return nil, err
		}

		ft, ok := ir.AsFunc(target.CheckedType())
		if !ok {
			return nil, b.errorAt(node, "%q is not a function", st.CallLowered)
		}

		return ir.CallLowered(target, args, ft.Result), nil
	case st.Construct != "":
		ty, err := b.explicitType(st, node, nil)
		if err != nil {
			return nil, err
		}

		ctor := ir.NewConstructor(st.Construct, ir.Func(ty, typesOf(args)...))

		return ir.NewCall(ctor, args, nil, ty), nil
	default:
		return b.call(st, node, args)
	}
}

// call builds a call to a bound function value, or else to the primitive
// operator of that name.
func (b *builder) call(st *rawStatement, node *yaml.Node, args []ir.Expr) (ir.Expr, error) {
	if callee, ok := b.env[st.Call]; ok {
		ft, ok := ir.AsFunc(callee.CheckedType())
		if !ok {
			return nil, b.errorAt(node, "%q is not a function", st.Call)
		}

		if ft.Arity() != len(args) {
			return nil, b.errorAt(node, "%q expects %d argument(s), got %d", st.Call, ft.Arity(), len(args))
		}

		return ir.NewCall(callee, args, nil, ft.Result), nil
	}

	var fallback ir.Type
	if len(args) > 0 {
		fallback = args[0].CheckedType()
	}

	if st.Call == ir.OpShapeOf && len(args) == 1 {
		if tt, ok := args[0].CheckedType().(*ir.TensorType); ok {
			fallback = &ir.TensorType{DType: "int64", Shape: []int{len(tt.Shape)}}
		}
	}

	ty, err := b.explicitType(st, node, fallback)
	if err != nil {
		return nil, err
	}

	op := ir.NewOp(st.Call, ir.Func(ty, typesOf(args)...))

	return ir.NewCall(op, args, nil, ty), nil
}

func typesOf(exprs []ir.Expr) []ir.Type {
	types := make([]ir.Type, len(exprs))
	for i, e := range exprs {
		types[i] = e.CheckedType()
	}

	return types
}

func (b *builder) scope(text string, node *yaml.Node) (scope.SEScope, error) {
	s, err := scope.ParseSEScope(text)
	if err != nil {
		return scope.SEScope{}, b.errorAt(node, "%v", err)
	}

	if err := b.config.CheckScope(s); err != nil {
		msg := err.Error()

		var se *deverrors.StandardError
		if errors.As(err, &se) {
			msg = se.Message
		}

		return scope.SEScope{}, &Error{At: b.spanOf(node), Msg: msg, Err: err}
	}

	return s, nil
}

// program folds the let bindings into nested lets ending in result and wraps
// them in a function over the parameters.
func (b *builder) program(result string) (*ir.Function, error) {
	if result == "" {
		if len(b.lets) == 0 {
			return nil, &Error{Msg: "program has no body and no result"}
		}

		result = b.lets[len(b.lets)-1].v.Name
	}

	body, err := b.lookup(result, nil)
	if err != nil {
		return nil, err
	}

	for i := len(b.lets) - 1; i >= 0; i-- {
		let := ir.NewLet(b.lets[i].v, b.lets[i].value, body)
		let.SetSpan(b.lets[i].span)
		body = let
	}

	return ir.NewFunction(b.params, body), nil
}
