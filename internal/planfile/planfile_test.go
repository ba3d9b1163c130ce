package planfile

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	deverrors "github.com/orizon-lang/devplan/internal/errors"
	"github.com/orizon-lang/devplan/internal/ir"
	"github.com/orizon-lang/devplan/internal/scope"
)

const samplePlan = `version: "1.0"
config:
  host: cpu0
  default: cuda0
  targets:
    cpu: llvm
    cuda: cuda
globals:
  - {name: fused_relu, type: "fn(tensor[4]) -> tensor[4]"}
params:
  - {name: x, type: "tensor[4]"}
  - {name: c, type: "bool[]"}
body:
  - {let: y, call: add, args: [x, x]}
  - {let: p, on_device: {scope: cpu0, fixed: true}, args: [y]}
  - {let: q, device_copy: {src: cpu0, dst: cuda1}, args: [p]}
  - {let: r, call_lowered: fused_relu, args: [q]}
  - {let: s, call: vm.shape_of, args: [r]}
  - {let: t, tuple: [r, q]}
  - {let: u, get: {tuple: t, index: 1}}
  - {let: w, if: {cond: c, then: u, else: r}}
result: w
`

func TestParseSample(t *testing.T) {
	f, err := Parse("sample.yaml", []byte(samplePlan))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if f.Version.String() != "1.0.0" {
		t.Errorf("Version = %s", f.Version)
	}

	if f.Config.HostScope() != scope.ForTarget(scope.DeviceCPU, 0, "llvm") {
		t.Errorf("HostScope() = %v", f.Config.HostScope())
	}

	if f.Config.DefaultPrimaryScope() != scope.ForTarget(scope.DeviceCUDA, 0, "cuda") {
		t.Errorf("DefaultPrimaryScope() = %v", f.Config.DefaultPrimaryScope())
	}

	if len(f.Program.Params) != 2 {
		t.Fatalf("expected 2 params, got %d", len(f.Program.Params))
	}

	var names []string
	for _, b := range f.Bindings {
		names = append(names, b.Name)
	}

	if got := strings.Join(names, ","); got != "x,c,y,p,q,r,s,t,u,w" {
		t.Errorf("bindings = %s", got)
	}

	let, ok := f.Program.Body.(*ir.Let)
	if !ok {
		t.Fatalf("body is %T, want *ir.Let", f.Program.Body)
	}

	if let.Var.Name != "y" {
		t.Errorf("first let binds %s, want y", let.Var.Name)
	}

	if span := let.Span(); span.Start.Line != 14 || span.Start.Column != 5 {
		t.Errorf("first let span = %v, want line 14 column 5", span)
	}

	if span := let.Value.Span(); span.Start.Line != 14 {
		t.Errorf("value span = %v, want line 14", span)
	}

	ife := findBinding(t, f, "w")
	if _, ok := ife.(*ir.If); !ok {
		t.Errorf("w bound to %T, want *ir.If", ife)
	}

	shape := findBinding(t, f, "s")
	if shape.CheckedType().String() != "Tensor[(1), int64]" {
		t.Errorf("shape_of type = %s", shape.CheckedType())
	}

	lowered := findBinding(t, f, "r").(*ir.Call)
	if props, ok := ir.GetCallLoweredProps(lowered); !ok || len(props.Args) != 1 {
		t.Errorf("unexpected call_lowered props: %+v", props)
	}

	copied := findBinding(t, f, "q").(*ir.Call)
	if props, ok := ir.GetDeviceCopyProps(copied); !ok || props.Dst != scope.ForDevice(scope.DeviceCUDA, 1) {
		t.Errorf("unexpected device_copy props: %+v", props)
	}
}

// findBinding returns the value bound by a let statement.
func findBinding(t *testing.T, f *File, name string) ir.Expr {
	t.Helper()

	var found ir.Expr

	ir.Visit(f.Program, func(e ir.Expr) {
		if let, ok := e.(*ir.Let); ok && let.Var.Name == name {
			found = let.Value
		}
	})

	if found == nil {
		t.Fatalf("no let binding %s", name)
	}

	return found
}

func TestParseErrors(t *testing.T) {
	header := "version: \"1.0\"\nparams:\n  - {name: x, type: \"tensor[4]\"}\n"

	tests := []struct {
		name string
		src  string
		line int
		want string
	}{
		{"missing version", "params: []\n", 0, "missing version"},
		{"unsupported version", "version: \"2.1\"\n", 1, "unsupported plan version"},
		{"invalid version", "version: banana\n", 1, "invalid version"},
		{"unknown top-level key", "version: \"1.0\"\nprogram: {}\n", 1, "not found"},
		{"bad config", "version: \"1.0\"\nconfig: {host: gpu0}\n", 2, "invalid config"},
		{"undefined name", header + "body:\n  - {let: y, call: add, args: [z]}\n", 5, "undefined name"},
		{"two forms", header + "body:\n  - {let: y, call: add, tuple: [x]}\n", 5, "exactly one expression form"},
		{"unknown key", header + "body:\n  - {let: y, call: add, args: [x], colour: red}\n", 5, "unknown statement key"},
		{"duplicate", header + "body:\n  - {let: x, call: add, args: [x]}\n", 5, "already defined"},
		{"bad scope", header + "body:\n  - {let: y, on_device: {scope: \"cuda:x\"}, args: [x]}\n", 5, "invalid virtual device id"},
		{"unconfigured device", header + "body:\n  - {let: y, device_copy: {src: cpu0, dst: metal0}, args: [x]}\n", 5, "names device metal, which is not configured (known: cpu)"},
		{"bad get", header + "body:\n  - {let: y, get: {tuple: x, index: 0}}\n", 5, "has no field"},
		{"empty", header, 0, "no body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("bad.yaml", []byte(tt.src))
			if err == nil {
				t.Fatal("Parse should fail")
			}

			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}

			var perr *Error
			if !stderrors.As(err, &perr) {
				t.Fatalf("error %T is not a *Error", err)
			}

			if perr.Span().Start.Line != tt.line {
				t.Errorf("error line = %d, want %d", perr.Span().Start.Line, tt.line)
			}
		})
	}
}

func TestParseRejectsUnconfiguredDevice(t *testing.T) {
	src := "version: \"1.0\"\nconfig: {host: cpu0, default: cuda0}\nparams:\n  - {name: x, type: \"tensor[4]\"}\n" +
		"body:\n  - {let: y, on_device: {scope: cuda1, fixed: true}, args: [x]}\n  - {let: z, on_device: {scope: vulkan0}, args: [y]}\n"

	_, err := Parse("devices.yaml", []byte(src))
	if !stderrors.Is(err, deverrors.ErrUnknownDevice) {
		t.Fatalf("Parse error = %v, want an unknown device error", err)
	}

	var perr *Error
	if !stderrors.As(err, &perr) || perr.Span().Start.Line != 7 {
		t.Errorf("error should point at the vulkan0 statement, got %v", err)
	}

	if perr.Msg != "scope vulkan0 names device vulkan, which is not configured (known: cpu, cuda)" {
		t.Errorf("Msg = %q", perr.Msg)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plan.yaml")

	if err := os.WriteFile(path, []byte(samplePlan), 0o644); err != nil {
		t.Fatal(err)
	}

	f, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if f.Path != path {
		t.Errorf("Path = %s, want %s", f.Path, path)
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil || !strings.Contains(err.Error(), "reading plan") {
		t.Errorf("Load of a missing file = %v", err)
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("version: \"0.9\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err = Load(bad)

	var perr *Error
	if !stderrors.As(err, &perr) {
		t.Errorf("wrapped error should still expose *Error, got %v", err)
	}
}

func TestParseType(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"tensor[4, 4]", "Tensor[(4, 4), float32]"},
		{"int64[1]", "Tensor[(1), int64]"},
		{"tensor", "Tensor[(), float32]"},
		{"storage", "Storage[]"},
		{"(tensor[2], storage)", "(Tensor[(2), float32], Storage[])"},
		{"fn(tensor[2]) -> fn() -> List", "fn (Tensor[(2), float32]) -> fn () -> List"},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			ty, err := ParseType(tt.text)
			if err != nil {
				t.Fatalf("ParseType(%q) failed: %v", tt.text, err)
			}

			if ty.String() != tt.want {
				t.Errorf("ParseType(%q) = %s, want %s", tt.text, ty, tt.want)
			}
		})
	}

	for _, bad := range []string{"", "tensor[x]", "fn(tensor)", "(tensor", "tensor[4] extra"} {
		if _, err := ParseType(bad); err == nil {
			t.Errorf("ParseType(%q) should fail", bad)
		}
	}
}
