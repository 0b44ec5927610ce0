package vm

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// ---------------------------------------------------------------------------
// Built-in functions and methods
// ---------------------------------------------------------------------------

func param(types ...DataType) CallParameter { return CallParameter{Types: types} }

func labeled(label string, def Data, types ...DataType) CallParameter {
	return CallParameter{Label: label, Types: types, Optional: true, Default: def}
}

func registerBuiltinFunctions(r *Registry) {
	both := func(name string, f Function) {
		if err := r.RegisterFunction(name, f); err != nil {
			panic(err)
		}
		if err := r.RegisterMethod(name, f); err != nil {
			panic(err)
		}
	}
	fn := func(name string, f Function) {
		if err := r.RegisterFunction(name, f); err != nil {
			panic(err)
		}
	}

	both("count", NewFunction(Signature{param(TypeArray, TypeDictionary, TypeString)}, TypeInt, builtinCount))
	both("isEmpty", NewFunction(Signature{param(TypeArray, TypeDictionary, TypeString)}, TypeBool,
		func(args []Data) Data {
			n, _ := builtinCount(args).IntValue()
			return Bool(n == 0)
		}))
	both("lowercased", NewFunction(Signature{param(TypeString)}, TypeString, stringFunc(strings.ToLower)))
	both("uppercased", NewFunction(Signature{param(TypeString)}, TypeString, stringFunc(strings.ToUpper)))
	both("capitalized", NewFunction(Signature{param(TypeString)}, TypeString, stringFunc(func(s string) string {
		return cases.Title(language.Und).String(s)
	})))
	both("contains", NewFunction(Signature{param(TypeArray), param()}, TypeBool, func(args []Data) Data {
		arr, _ := args[0].ArrayValue()
		for _, v := range arr {
			if equalOperands(v.Force(), args[1]) {
				return Bool(true)
			}
		}
		return Bool(false)
	}))
	both("contains", NewFunction(Signature{param(TypeString), param(TypeString)}, TypeBool, stringPredicate(strings.Contains)))
	both("hasPrefix", NewFunction(Signature{param(TypeString), param(TypeString)}, TypeBool, stringPredicate(strings.HasPrefix)))
	both("hasSuffix", NewFunction(Signature{param(TypeString), param(TypeString)}, TypeBool, stringPredicate(strings.HasSuffix)))
	both("keys", NewFunction(Signature{param(TypeDictionary)}, TypeArray, func(args []Data) Data {
		m, _ := args[0].DictionaryValue()
		keys := sortedKeys(m)
		out := make([]Data, len(keys))
		for i, k := range keys {
			out[i] = String(k)
		}
		return Array(out...)
	}))
	both("values", NewFunction(Signature{param(TypeDictionary)}, TypeArray, func(args []Data) Data {
		m, _ := args[0].DictionaryValue()
		keys := sortedKeys(m)
		out := make([]Data, len(keys))
		for i, k := range keys {
			out[i] = m[k]
		}
		return Array(out...)
	}))
	both("join", NewFunction(Signature{param(TypeArray), labeled("separator", String(""), TypeString)}, TypeString,
		func(args []Data) Data {
			arr, _ := args[0].ArrayValue()
			sep, _ := args[1].StringValue()
			parts := make([]string, len(arr))
			for i, v := range arr {
				parts[i] = defaultFormatters.Format(v)
			}
			return String(strings.Join(parts, sep))
		}))

	conversions := map[string]DataType{"Int": TypeInt, "Double": TypeDouble, "String": TypeString, "Bool": TypeBool}
	for name, t := range conversions {
		fn(name, NewFunction(Signature{{Optional: true}}, t, func(args []Data) Data {
			return args[0].Coerce(t)
		}))
	}
	fn("type", NewFunction(Signature{{Optional: true}}, TypeString, func(args []Data) Data {
		return String(args[0].BaseType().String())
	}))
}

func builtinCount(args []Data) Data {
	v := args[0]
	if arr, ok := v.ArrayValue(); ok {
		return Int(int64(len(arr)))
	}
	if m, ok := v.DictionaryValue(); ok {
		return Int(int64(len(m)))
	}
	s, _ := v.StringValue()
	return Int(int64(utf8.RuneCountInString(s)))
}

func stringFunc(f func(string) string) func([]Data) Data {
	return func(args []Data) Data {
		s, _ := args[0].StringValue()
		return String(f(s))
	}
}

func stringPredicate(f func(s, sub string) bool) func([]Data) Data {
	return func(args []Data) Data {
		s, _ := args[0].StringValue()
		sub, _ := args[1].StringValue()
		return Bool(f(s, sub))
	}
}
