package vm

import (
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ConversionLevel orders how trustworthy a conversion between two types is.
type ConversionLevel uint8

const (
	Ambiguous ConversionLevel = iota // lossy or one-directional, explicit Coerce only
	Coercible                        // implicit where a boolean is demanded
	Castable                         // value-preserving
	Identity                         // same type
)

func (l ConversionLevel) String() string {
	switch l {
	case Coercible:
		return "coercible"
	case Castable:
		return "castable"
	case Identity:
		return "identity"
	default:
		return "ambiguous"
	}
}

// conversion is one cell of the conversion table. convert returns Void
// when the particular value cannot be converted.
type conversion struct {
	level   ConversionLevel
	convert func(Data) Data
}

var conversionTable [TypeArray + 1][TypeArray + 1]conversion

func never(Data) Data { return Void }

func init() {
	set := func(from, to DataType, level ConversionLevel, fn func(Data) Data) {
		conversionTable[from][to] = conversion{level: level, convert: fn}
	}
	for _, t := range ConcreteTypes {
		set(t, t, Identity, func(d Data) Data { return d })
	}

	// bool
	set(TypeBool, TypeString, Castable, func(d Data) Data { return String(strconv.FormatBool(d.b)) })
	set(TypeBool, TypeInt, Castable, func(d Data) Data { return Int(boolInt(d.b)) })
	set(TypeBool, TypeDouble, Castable, func(d Data) Data { return Double(float64(boolInt(d.b))) })
	set(TypeBool, TypeBytes, Ambiguous, func(d Data) Data { return Bytes([]byte(strconv.FormatBool(d.b))) })
	set(TypeBool, TypeDictionary, Ambiguous, never)
	set(TypeBool, TypeArray, Ambiguous, never)

	// string
	set(TypeString, TypeBool, Castable, func(d Data) Data {
		if b, ok := stringBools[strings.ToLower(d.s)]; ok {
			return Bool(b)
		}
		return Void
	})
	set(TypeString, TypeInt, Castable, func(d Data) Data {
		if i, err := strconv.ParseInt(d.s, 10, 64); err == nil {
			return Int(i)
		}
		return Void
	})
	set(TypeString, TypeDouble, Castable, func(d Data) Data {
		if f, err := strconv.ParseFloat(d.s, 64); err == nil {
			return Double(f)
		}
		return Void
	})
	set(TypeString, TypeBytes, Castable, func(d Data) Data { return Bytes([]byte(d.s)) })
	set(TypeString, TypeDictionary, Ambiguous, never)
	set(TypeString, TypeArray, Ambiguous, never)

	// int
	set(TypeInt, TypeBool, Castable, func(d Data) Data {
		switch d.i {
		case 0:
			return Bool(false)
		case 1:
			return Bool(true)
		}
		return Void
	})
	set(TypeInt, TypeString, Castable, func(d Data) Data { return String(strconv.FormatInt(d.i, 10)) })
	set(TypeInt, TypeDouble, Castable, func(d Data) Data { return Double(float64(d.i)) })
	set(TypeInt, TypeBytes, Ambiguous, func(d Data) Data { return Bytes([]byte(strconv.FormatInt(d.i, 10))) })
	set(TypeInt, TypeDictionary, Ambiguous, never)
	set(TypeInt, TypeArray, Ambiguous, never)

	// double
	set(TypeDouble, TypeBool, Castable, func(d Data) Data {
		switch d.f {
		case 0:
			return Bool(false)
		case 1:
			return Bool(true)
		}
		return Void
	})
	set(TypeDouble, TypeString, Castable, func(d Data) Data { return String(formatDouble(d.f)) })
	set(TypeDouble, TypeInt, Castable, func(d Data) Data {
		if d.f != math.Trunc(d.f) || d.f < math.MinInt64 || d.f >= math.MaxInt64 {
			return Void
		}
		return Int(int64(d.f))
	})
	set(TypeDouble, TypeBytes, Ambiguous, func(d Data) Data { return Bytes([]byte(formatDouble(d.f))) })
	set(TypeDouble, TypeDictionary, Ambiguous, never)
	set(TypeDouble, TypeArray, Ambiguous, never)

	// bytes
	set(TypeBytes, TypeBool, Ambiguous, never)
	set(TypeBytes, TypeString, Castable, func(d Data) Data {
		if !utf8.Valid(d.raw) {
			return Void
		}
		return String(string(d.raw))
	})
	set(TypeBytes, TypeInt, Ambiguous, never)
	set(TypeBytes, TypeDouble, Ambiguous, never)
	set(TypeBytes, TypeDictionary, Ambiguous, never)
	set(TypeBytes, TypeArray, Ambiguous, never)

	// array
	set(TypeArray, TypeBool, Coercible, func(d Data) Data { return Bool(len(d.arr) > 0) })
	set(TypeArray, TypeString, Ambiguous, func(d Data) Data { return String(defaultFormatters.Format(d)) })
	set(TypeArray, TypeInt, Ambiguous, never)
	set(TypeArray, TypeDouble, Ambiguous, never)
	set(TypeArray, TypeBytes, Ambiguous, func(d Data) Data { return Bytes([]byte(defaultFormatters.Format(d))) })
	set(TypeArray, TypeDictionary, Ambiguous, func(d Data) Data {
		m := make(map[string]Data, len(d.arr))
		for i, v := range d.arr {
			m[strconv.Itoa(i)] = v
		}
		return Dictionary(m)
	})

	// dictionary
	set(TypeDictionary, TypeBool, Coercible, func(d Data) Data { return Bool(len(d.dict) > 0) })
	set(TypeDictionary, TypeString, Ambiguous, func(d Data) Data { return String(defaultFormatters.Format(d)) })
	set(TypeDictionary, TypeInt, Ambiguous, never)
	set(TypeDictionary, TypeDouble, Ambiguous, never)
	set(TypeDictionary, TypeBytes, Ambiguous, func(d Data) Data { return Bytes([]byte(defaultFormatters.Format(d))) })
	set(TypeDictionary, TypeArray, Ambiguous, func(d Data) Data {
		keys := sortedKeys(d.dict)
		out := make([]Data, len(keys))
		for i, k := range keys {
			out[i] = d.dict[k]
		}
		return Array(out...)
	})
}

var stringBools = map[string]bool{
	"true": true, "yes": true, "1": true,
	"false": false, "no": false, "0": false,
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// ConversionFor returns the table level between two concrete types.
// ok is false when either type is void.
func ConversionFor(from, to DataType) (ConversionLevel, bool) {
	if from == TypeVoid || to == TypeVoid || from > TypeArray || to > TypeArray {
		return Ambiguous, false
	}
	c := conversionTable[from][to]
	return c.level, c.convert != nil
}

// ---------------------------------------------------------------------------
// Conversion operations
// ---------------------------------------------------------------------------

// Convert converts d to the target type when the table allows it at
// minimum or better. Optional and lazy values are unwrapped first; errored
// values pass through unchanged; anything else that fails returns Void.
func (d Data) Convert(to DataType, minimum ConversionLevel) Data {
	v := d.Force()
	if v.Errored() {
		return v
	}
	if v.IsNil() || to == TypeVoid {
		return Void
	}
	c := conversionTable[v.BaseType()][to]
	if c.convert == nil || c.level < minimum {
		return Void
	}
	return c.convert(v)
}

// Cast converts at castable level or better.
func (d Data) Cast(to DataType) Data { return d.Convert(to, Castable) }

// Coerce converts at any level, including ambiguous.
func (d Data) Coerce(to DataType) Data { return d.Convert(to, Ambiguous) }

// IsCastable reports whether d's type converts to t at castable level.
func (d Data) IsCastable(to DataType) bool { return d.convertsAt(to, Castable) }

// IsCoercible reports whether d's type converts to t at coercible level.
func (d Data) IsCoercible(to DataType) bool { return d.convertsAt(to, Coercible) }

func (d Data) convertsAt(to DataType, minimum ConversionLevel) bool {
	from := d.BaseType()
	level, ok := ConversionFor(from, to)
	return ok && level >= minimum
}
