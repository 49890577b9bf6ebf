// Package tagmap defines the whitelist of PLC tags the vision system may
// touch. It translates logical tag names to device-level names, tracks each
// tag's type and read/write direction, and type-checks values before they
// reach the driver. The map is loaded once at startup and never mutated.
package tagmap

// Kind is the PLC data type of a tag.
type Kind int

const (
	// Bool is a boolean tag
	Bool Kind = iota
	// Int is an integer tag
	Int
	// Real is a floating point tag
	Real
	// String is a string tag
	String
)

// String returns the string representation of Kind
func (k Kind) String() string {
	switch k {
	case Bool:
		return "bool"
	case Int:
		return "int"
	case Real:
		return "real"
	case String:
		return "string"
	default:
		return "unknown"
	}
}

// Direction describes which side may drive a tag.
type Direction int

const (
	// Read means PLC -> vision
	Read Direction = iota
	// Write means vision -> PLC
	Write
	// Both means either side may drive the tag
	Both
)

// String returns the string representation of Direction
func (d Direction) String() string {
	switch d {
	case Read:
		return "read"
	case Write:
		return "write"
	case Both:
		return "both"
	default:
		return "unknown"
	}
}

// Definition describes one whitelisted tag.
type Definition struct {
	LogicalName string
	DeviceName  string
	Kind        Kind
	Direction   Direction
	Description string
	Default     any
}

// ValidateValue type-checks a value against the definition's kind.
func (d Definition) ValidateValue(value any) bool {
	switch d.Kind {
	case Bool:
		_, ok := value.(bool)
		return ok
	case Int:
		switch value.(type) {
		case int, int8, int16, int32, int64:
			return true
		}
		return false
	case Real:
		switch value.(type) {
		case int, int8, int16, int32, int64, float32, float64:
			return true
		}
		return false
	case String:
		_, ok := value.(string)
		return ok
	}
	return true
}

// Map resolves logical tag names against the built-in whitelist plus
// operator-supplied device-name overrides.
type Map struct {
	definitions map[string]Definition
	overrides   map[string]string
}

// New creates a Map from the built-in definition table and the given
// override table (logical name -> device name). Overrides for unknown
// logical names extend the whitelist; their type and direction are
// unconstrained.
func New(overrides map[string]string) *Map {
	m := &Map{
		definitions: builtinDefinitions(),
		overrides:   make(map[string]string, len(overrides)),
	}
	for logical, device := range overrides {
		if device != "" {
			m.overrides[logical] = device
		}
	}
	return m
}

// DeviceName returns the device-level name for a logical tag. The override
// table takes precedence over the built-in definition; unknown names fall
// back to the literal logical name.
func (m *Map) DeviceName(logical string) string {
	if device, ok := m.overrides[logical]; ok {
		return device
	}
	if def, ok := m.definitions[logical]; ok {
		return def.DeviceName
	}
	return logical
}

// Definition returns the built-in definition for a logical tag, if any.
func (m *Map) Definition(logical string) (Definition, bool) {
	def, ok := m.definitions[logical]
	return def, ok
}

// IsValid reports whether the logical name is whitelisted, either as a
// built-in definition or via an override.
func (m *Map) IsValid(logical string) bool {
	if _, ok := m.definitions[logical]; ok {
		return true
	}
	_, ok := m.overrides[logical]
	return ok
}

// IsReadable reports whether the tag may be read. Override-only tags are
// treated as both readable and writable.
func (m *Map) IsReadable(logical string) bool {
	if def, ok := m.definitions[logical]; ok {
		return def.Direction == Read || def.Direction == Both
	}
	return true
}

// IsWritable reports whether the tag may be written. Override-only tags are
// treated as both readable and writable.
func (m *Map) IsWritable(logical string) bool {
	if def, ok := m.definitions[logical]; ok {
		return def.Direction == Write || def.Direction == Both
	}
	return true
}

// ValidateValue type-checks a value against the tag's kind. Tags without a
// built-in definition pass unconditionally.
func (m *Map) ValidateValue(logical string, value any) bool {
	if def, ok := m.definitions[logical]; ok {
		return def.ValidateValue(value)
	}
	return true
}

// ReadableTags returns the logical names of all built-in readable tags.
func (m *Map) ReadableTags() []string {
	names := make([]string, 0, len(m.definitions))
	for name, def := range m.definitions {
		if def.Direction == Read || def.Direction == Both {
			names = append(names, name)
		}
	}
	return names
}

// WritableTags returns the logical names of all built-in writable tags.
func (m *Map) WritableTags() []string {
	names := make([]string, 0, len(m.definitions))
	for name, def := range m.definitions {
		if def.Direction == Write || def.Direction == Both {
			names = append(names, name)
		}
	}
	return names
}
