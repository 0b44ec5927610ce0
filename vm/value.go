package vm

import (
	"bytes"
	"fmt"
	"math"
	"reflect"
	"sort"
)

// DataType is the concrete type a Data value holds or declares.
type DataType uint8

const (
	TypeVoid DataType = iota
	TypeBool
	TypeString
	TypeInt
	TypeDouble
	TypeBytes
	TypeDictionary
	TypeArray
)

// ConcreteTypes lists every non-void type, in conversion table order.
var ConcreteTypes = []DataType{
	TypeBool, TypeString, TypeInt, TypeDouble, TypeBytes, TypeDictionary, TypeArray,
}

func (t DataType) String() string {
	switch t {
	case TypeBool:
		return "bool"
	case TypeString:
		return "string"
	case TypeInt:
		return "int"
	case TypeDouble:
		return "double"
	case TypeBytes:
		return "data"
	case TypeDictionary:
		return "dictionary"
	case TypeArray:
		return "array"
	default:
		return "void"
	}
}

// IsNumeric reports whether t is int or double.
func (t DataType) IsNumeric() bool { return t == TypeInt || t == TypeDouble }

// IsCollection reports whether t is array or dictionary.
func (t DataType) IsCollection() bool { return t == TypeArray || t == TypeDictionary }

// ---------------------------------------------------------------------------
// Data: the tagged value
// ---------------------------------------------------------------------------

type dataKind uint8

const (
	kindVoid dataKind = iota
	kindBool
	kindString
	kindInt
	kindDouble
	kindBytes
	kindDictionary
	kindArray
	kindOptional
	kindLazy
	kindError
)

// Data is a template value. The zero Data is Void ("trueNil").
//
// Variants:
//   - bool, string, int, double, bytes, array, dictionary
//   - optional: a possibly-absent value with a declared type
//   - lazy: a deferred computation with a declared type and a purity flag
//   - errored: an *EvalError carried as a value
//
// Data is immutable; collection payloads must not be modified after
// construction.
type Data struct {
	kind     dataKind
	declared DataType

	b    bool
	i    int64
	f    float64
	s    string
	raw  []byte
	arr  []Data
	dict map[string]Data

	inner *Data
	lazy  *lazyData
	err   *EvalError
}

type lazyData struct {
	fn   func() Data
	pure bool
}

// Void is the dedicated "nothing" marker.
var Void = Data{}

// Bool returns a bool value.
func Bool(b bool) Data { return Data{kind: kindBool, b: b} }

// String returns a string value.
func String(s string) Data { return Data{kind: kindString, s: s} }

// Int returns an int value.
func Int(i int64) Data { return Data{kind: kindInt, i: i} }

// Double returns a double value.
func Double(f float64) Data { return Data{kind: kindDouble, f: f} }

// Bytes returns a bytes value. p is not copied.
func Bytes(p []byte) Data { return Data{kind: kindBytes, raw: p} }

// Array returns an array value.
func Array(values ...Data) Data {
	if values == nil {
		values = []Data{}
	}
	return Data{kind: kindArray, arr: values}
}

// Dictionary returns a dictionary value.
func Dictionary(m map[string]Data) Data {
	if m == nil {
		m = map[string]Data{}
	}
	return Data{kind: kindDictionary, dict: m}
}

// Optional wraps v (nil for none) with a declared type.
func Optional(v *Data, declared DataType) Data {
	if v != nil {
		c := *v
		return Data{kind: kindOptional, declared: declared, inner: &c}
	}
	return Data{kind: kindOptional, declared: declared}
}

// None is Optional(nil, declared).
func None(declared DataType) Data { return Optional(nil, declared) }

// Lazy wraps a deferred computation. pure marks fn as repeatable without
// side effects.
func Lazy(fn func() Data, returns DataType, pure bool) Data {
	return Data{kind: kindLazy, declared: returns, lazy: &lazyData{fn: fn, pure: pure}}
}

// Errored carries err as a value.
func Errored(err *EvalError) Data {
	return Data{kind: kindError, err: err}
}

// ---------------------------------------------------------------------------
// Inspection
// ---------------------------------------------------------------------------

// BaseType returns the concrete or declared type of d.
func (d Data) BaseType() DataType {
	switch d.kind {
	case kindBool:
		return TypeBool
	case kindString:
		return TypeString
	case kindInt:
		return TypeInt
	case kindDouble:
		return TypeDouble
	case kindBytes:
		return TypeBytes
	case kindDictionary:
		return TypeDictionary
	case kindArray:
		return TypeArray
	case kindOptional, kindLazy:
		return d.declared
	default:
		return TypeVoid
	}
}

// IsNil reports whether d is Void or an empty optional.
func (d Data) IsNil() bool {
	return d.kind == kindVoid || (d.kind == kindOptional && d.inner == nil)
}

// Errored reports whether d carries an evaluation error.
func (d Data) Errored() bool { return d.kind == kindError }

// Err returns the carried error, or nil.
func (d Data) Err() *EvalError { return d.err }

// IsLazy reports whether d is an unforced lazy value.
func (d Data) IsLazy() bool { return d.kind == kindLazy }

// IsPure reports whether d can be forced repeatedly without side effects.
func (d Data) IsPure() bool {
	switch d.kind {
	case kindLazy:
		return d.lazy.pure
	case kindOptional:
		return d.inner == nil || d.inner.IsPure()
	default:
		return true
	}
}

// IsCollection reports whether d holds an array or dictionary.
func (d Data) IsCollection() bool { return d.BaseType().IsCollection() }

// IsNumeric reports whether d holds an int or double.
func (d Data) IsNumeric() bool { return d.BaseType().IsNumeric() }

// Force evaluates lazy values and unwraps present optionals. Empty
// optionals are returned unchanged.
func (d Data) Force() Data {
	for {
		switch d.kind {
		case kindLazy:
			d = d.lazy.fn()
		case kindOptional:
			if d.inner == nil {
				return d
			}
			d = *d.inner
		default:
			return d
		}
	}
}

// BoolValue returns the bool payload.
func (d Data) BoolValue() (bool, bool) {
	if d.kind != kindBool {
		return false, false
	}
	return d.b, true
}

// StringValue returns the string payload.
func (d Data) StringValue() (string, bool) {
	if d.kind != kindString {
		return "", false
	}
	return d.s, true
}

// IntValue returns the int payload.
func (d Data) IntValue() (int64, bool) {
	if d.kind != kindInt {
		return 0, false
	}
	return d.i, true
}

// DoubleValue returns the double payload.
func (d Data) DoubleValue() (float64, bool) {
	if d.kind != kindDouble {
		return 0, false
	}
	return d.f, true
}

// BytesValue returns the bytes payload.
func (d Data) BytesValue() ([]byte, bool) {
	if d.kind != kindBytes {
		return nil, false
	}
	return d.raw, true
}

// ArrayValue returns the array payload.
func (d Data) ArrayValue() ([]Data, bool) {
	if d.kind != kindArray {
		return nil, false
	}
	return d.arr, true
}

// DictionaryValue returns the dictionary payload.
func (d Data) DictionaryValue() (map[string]Data, bool) {
	if d.kind != kindDictionary {
		return nil, false
	}
	return d.dict, true
}

// number returns d as float64 for int or double values.
func (d Data) number() (float64, bool) {
	switch d.kind {
	case kindInt:
		return float64(d.i), true
	case kindDouble:
		return d.f, true
	}
	return 0, false
}

// Truthy is the boolean reading of d used by conditions: nil and errors
// are false, values coercible to bool use that value, any other present
// value is true.
func (d Data) Truthy() bool {
	v := d.Force()
	if v.IsNil() || v.Errored() {
		return false
	}
	if b, ok := v.Convert(TypeBool, Coercible).BoolValue(); ok {
		return b
	}
	return true
}

func (d Data) String() string {
	return defaultFormatters.Format(d)
}

// ---------------------------------------------------------------------------
// Equality
// ---------------------------------------------------------------------------

// Equal reports structural equality. Empty optionals equal each other and
// Void regardless of declared type. Lazy operands are only forced when
// pure; an impure lazy operand is never equal to anything.
func (d Data) Equal(o Data) bool {
	if !d.IsPure() || !o.IsPure() {
		return false
	}
	d, o = d.Force(), o.Force()
	if d.IsNil() || o.IsNil() {
		return d.IsNil() && o.IsNil()
	}
	if d.kind != o.kind {
		return false
	}
	switch d.kind {
	case kindBool:
		return d.b == o.b
	case kindString:
		return d.s == o.s
	case kindInt:
		return d.i == o.i
	case kindDouble:
		return d.f == o.f
	case kindBytes:
		return bytes.Equal(d.raw, o.raw)
	case kindArray:
		if len(d.arr) != len(o.arr) {
			return false
		}
		for i := range d.arr {
			if !d.arr[i].Equal(o.arr[i]) {
				return false
			}
		}
		return true
	case kindDictionary:
		if len(d.dict) != len(o.dict) {
			return false
		}
		for k, v := range d.dict {
			w, ok := o.dict[k]
			if !ok || !v.Equal(w) {
				return false
			}
		}
		return true
	}
	return false
}

// sortedKeys returns the keys of m in ascending order.
func sortedKeys(m map[string]Data) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ---------------------------------------------------------------------------
// Wrapping host values
// ---------------------------------------------------------------------------

// Wrap converts a Go value into Data. Supported: nil, Data, bool, string,
// signed/unsigned integers, floats, []byte, slices, arrays and maps with
// string keys, plus fmt.Stringer.
func Wrap(v any) (Data, error) {
	switch x := v.(type) {
	case nil:
		return Void, nil
	case Data:
		return x, nil
	case bool:
		return Bool(x), nil
	case string:
		return String(x), nil
	case int:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case float64:
		return Double(x), nil
	case []byte:
		return Bytes(x), nil
	case []any:
		out := make([]Data, len(x))
		for i, e := range x {
			d, err := Wrap(e)
			if err != nil {
				return Void, err
			}
			out[i] = d
		}
		return Array(out...), nil
	case map[string]any:
		out := make(map[string]Data, len(x))
		for k, e := range x {
			d, err := Wrap(e)
			if err != nil {
				return Void, err
			}
			out[k] = d
		}
		return Dictionary(out), nil
	}
	return wrapReflect(reflect.ValueOf(v))
}

func wrapReflect(rv reflect.Value) (Data, error) {
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return Void, nil
		}
		return Wrap(rv.Elem().Interface())
	case reflect.Bool:
		return Bool(rv.Bool()), nil
	case reflect.String:
		return String(rv.String()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Int(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return Void, fmt.Errorf("vm: wrap: %d overflows int", u)
		}
		return Int(int64(u)), nil
	case reflect.Float32, reflect.Float64:
		return Double(rv.Float()), nil
	case reflect.Slice, reflect.Array:
		out := make([]Data, rv.Len())
		for i := range out {
			d, err := Wrap(rv.Index(i).Interface())
			if err != nil {
				return Void, err
			}
			out[i] = d
		}
		return Array(out...), nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return Void, fmt.Errorf("vm: wrap: map key type %s is not string", rv.Type().Key())
		}
		out := make(map[string]Data, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			d, err := Wrap(iter.Value().Interface())
			if err != nil {
				return Void, err
			}
			out[iter.Key().String()] = d
		}
		return Dictionary(out), nil
	}
	if s, ok := rv.Interface().(fmt.Stringer); ok {
		return String(s.String()), nil
	}
	return Void, fmt.Errorf("vm: wrap: unsupported type %s", rv.Type())
}
