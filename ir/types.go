package ir

// Type is the type of an SSA value.
type Type uint8

const (
	TypeInvalid Type = iota
	I8
	I16
	I32
	I64
	F32
	F64
	R32 // 32-bit reference managed by the collector
	R64 // 64-bit reference managed by the collector
)

var typeNames = [...]string{
	TypeInvalid: "invalid",
	I8:          "i8",
	I16:         "i16",
	I32:         "i32",
	I64:         "i64",
	F32:         "f32",
	F64:         "f64",
	R32:         "r32",
	R64:         "r64",
}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "invalid"
}

// ParseType looks up a type by its text name.
func ParseType(name string) (Type, bool) {
	for i, n := range typeNames {
		if i != int(TypeInvalid) && n == name {
			return Type(i), true
		}
	}
	return TypeInvalid, false
}

// IsRef reports whether values of this type are references the collector must trace.
func (t Type) IsRef() bool { return t == R32 || t == R64 }

// IsInt reports whether t is an integer type.
func (t Type) IsInt() bool { return t >= I8 && t <= I64 }

// IsFloat reports whether t is a floating point type.
func (t Type) IsFloat() bool { return t == F32 || t == F64 }

// Bytes returns the storage size of the type.
func (t Type) Bytes() int {
	switch t {
	case I8:
		return 1
	case I16:
		return 2
	case I32, F32, R32:
		return 4
	case I64, F64, R64:
		return 8
	}
	return 0
}

// Signature is a function signature.
type Signature struct {
	Params  []Type
	Returns []Type
}

// ExtFunc is a callee declared by a function.
type ExtFunc struct {
	Name string
	Sig  Signature
}
