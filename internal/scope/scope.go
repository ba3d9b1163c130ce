// Package scope implements the storage/execution scope lattice consumed by
// the device planner.
//
// An SEScope names where data lives and where code runs: a device type, a
// virtual device id, a compilation target and a memory scope. Each field may
// be left unset, so a scope ranges from fully unconstrained (nothing known)
// to fully constrained (one concrete device).
package scope

import (
	"fmt"
	"strconv"
	"strings"
)

// DeviceType identifies a kind of execution device.
type DeviceType int

const (
	// DeviceInvalid marks an unset device type.
	DeviceInvalid DeviceType = iota
	DeviceCPU
	DeviceCUDA
	DeviceOpenCL
	DeviceVulkan
	DeviceMetal
	DeviceROCM
	DeviceHexagon
	DeviceExtDev
)

var deviceNames = map[DeviceType]string{
	DeviceCPU:     "cpu",
	DeviceCUDA:    "cuda",
	DeviceOpenCL:  "opencl",
	DeviceVulkan:  "vulkan",
	DeviceMetal:   "metal",
	DeviceROCM:    "rocm",
	DeviceHexagon: "hexagon",
	DeviceExtDev:  "ext_dev",
}

// String returns the lower-case device name.
func (dt DeviceType) String() string {
	if name, ok := deviceNames[dt]; ok {
		return name
	}

	return "?"
}

// ParseDeviceType maps a device name back to its DeviceType.
func ParseDeviceType(name string) (DeviceType, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for dt, n := range deviceNames {
		if n == name {
			return dt, nil
		}
	}

	return DeviceInvalid, fmt.Errorf("unknown device type %q", name)
}

// InvalidVirtualDeviceID marks an unset virtual device id.
const InvalidVirtualDeviceID = -1

// SEScope is a point in the scope lattice. The zero value is not fully
// unconstrained since its VirtualDeviceID is 0; use FullyUnconstrained.
//
// SEScope is comparable, so it can be used directly as a map key.
type SEScope struct {
	DeviceType      DeviceType
	VirtualDeviceID int
	Target          string
	MemoryScope     string
}

// FullyUnconstrained returns the bottom of the lattice.
func FullyUnconstrained() SEScope {
	return SEScope{DeviceType: DeviceInvalid, VirtualDeviceID: InvalidVirtualDeviceID}
}

// ForDevice returns a scope constraining only the device type and id.
func ForDevice(dt DeviceType, id int) SEScope {
	return SEScope{DeviceType: dt, VirtualDeviceID: id}
}

// ForTarget returns a scope constraining the device and its target.
func ForTarget(dt DeviceType, id int, target string) SEScope {
	return SEScope{DeviceType: dt, VirtualDeviceID: id, Target: target}
}

// WithMemoryScope returns a copy of s with the given memory scope.
func (s SEScope) WithMemoryScope(memoryScope string) SEScope {
	s.MemoryScope = memoryScope

	return s
}

// IsFullyUnconstrained reports whether no field of s is set.
func (s SEScope) IsFullyUnconstrained() bool {
	return s.DeviceType == DeviceInvalid &&
		s.VirtualDeviceID == InvalidVirtualDeviceID &&
		s.Target == "" &&
		s.MemoryScope == ""
}

// IsFullyConstrained reports whether s pins one concrete device, that is both
// its device type and virtual device id are set. Target and memory scope are
// refinements and do not affect concreteness.
func (s SEScope) IsFullyConstrained() bool {
	return s.DeviceType != DeviceInvalid && s.VirtualDeviceID != InvalidVirtualDeviceID
}

// Join returns the least scope refining both a and b. It fails when a field
// is set on both sides to different values.
func Join(a, b SEScope) (SEScope, bool) {
	var joined SEScope

	switch {
	case a.DeviceType == DeviceInvalid:
		joined.DeviceType = b.DeviceType
	case b.DeviceType == DeviceInvalid || a.DeviceType == b.DeviceType:
		joined.DeviceType = a.DeviceType
	default:
		return SEScope{}, false
	}

	switch {
	case a.VirtualDeviceID == InvalidVirtualDeviceID:
		joined.VirtualDeviceID = b.VirtualDeviceID
	case b.VirtualDeviceID == InvalidVirtualDeviceID || a.VirtualDeviceID == b.VirtualDeviceID:
		joined.VirtualDeviceID = a.VirtualDeviceID
	default:
		return SEScope{}, false
	}

	target, ok := joinString(a.Target, b.Target)
	if !ok {
		return SEScope{}, false
	}

	joined.Target = target

	memoryScope, ok := joinString(a.MemoryScope, b.MemoryScope)
	if !ok {
		return SEScope{}, false
	}

	joined.MemoryScope = memoryScope

	return joined, true
}

func joinString(a, b string) (string, bool) {
	switch {
	case a == "":
		return b, true
	case b == "" || a == b:
		return a, true
	default:
		return "", false
	}
}

// Default fills every unset field of actual from fallback. A fully
// constrained actual is returned as is.
func Default(actual, fallback SEScope) SEScope {
	if actual.IsFullyConstrained() {
		return actual
	}

	result := actual
	if result.DeviceType == DeviceInvalid {
		result.DeviceType = fallback.DeviceType
	}

	if result.VirtualDeviceID == InvalidVirtualDeviceID {
		result.VirtualDeviceID = fallback.VirtualDeviceID
	}

	if result.Target == "" {
		result.Target = fallback.Target
	}

	if result.MemoryScope == "" {
		result.MemoryScope = fallback.MemoryScope
	}

	return result
}

// String renders the scope as "<device><id>@target/memory", omitting unset parts.
// A fully unconstrained scope renders as the empty string.
func (s SEScope) String() string {
	if s.IsFullyUnconstrained() {
		return ""
	}

	var sb strings.Builder

	if s.DeviceType != DeviceInvalid {
		sb.WriteString(s.DeviceType.String())
	} else {
		sb.WriteString("?")
	}

	if s.VirtualDeviceID != InvalidVirtualDeviceID {
		sb.WriteString(strconv.Itoa(s.VirtualDeviceID))
	}

	if s.Target != "" {
		sb.WriteString("@")
		sb.WriteString(s.Target)
	}

	if s.MemoryScope != "" {
		sb.WriteString("/")
		sb.WriteString(s.MemoryScope)
	}

	return sb.String()
}

// ParseSEScope parses "device[:id][@target][/memory]"; the colon may be
// omitted, as in the rendered form "cuda0". The literal "?" or an
// empty string yields the fully unconstrained scope.
func ParseSEScope(text string) (SEScope, error) {
	s := FullyUnconstrained()

	text = strings.TrimSpace(text)
	if text == "" || text == "?" {
		return s, nil
	}

	if i := strings.Index(text, "/"); i >= 0 {
		s.MemoryScope = text[i+1:]
		text = text[:i]
	}

	if i := strings.Index(text, "@"); i >= 0 {
		s.Target = text[i+1:]
		text = text[:i]
	}

	device, idText := text, ""
	if i := strings.Index(text, ":"); i >= 0 {
		device, idText = text[:i], text[i+1:]
	} else if i := strings.IndexAny(text, "0123456789"); i > 0 {
		device, idText = text[:i], text[i:]
	}

	if idText != "" {
		id, err := strconv.Atoi(idText)
		if err != nil || id < 0 {
			return SEScope{}, fmt.Errorf("invalid virtual device id in %q", text)
		}

		s.VirtualDeviceID = id
	}

	if device != "" && device != "?" {
		dt, err := ParseDeviceType(device)
		if err != nil {
			return SEScope{}, err
		}

		s.DeviceType = dt
	}

	return s, nil
}
