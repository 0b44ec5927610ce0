package vm

import "strings"

// VarTable maps variables to values for one scope frame.
type VarTable map[Variable]Data

// Match returns the value for key. A pathed key that is not present is
// expanded from its nearest present ancestor: each intermediate segment is
// looked up in the dictionary above it and cached as its own entry. When
// an ancestor exists but is not a dictionary, an errored value is cached
// at key and returned.
//
// A key whose path leads through a missing dictionary member is not found
// and nothing below the last existing segment is cached.
func (t VarTable) Match(key Variable) (Data, bool) {
	if v, ok := t[key]; ok {
		return v, true
	}
	if !key.IsPathed() {
		return Void, false
	}

	var chain []Variable
	var base Data
	found := false
	for cur := key; cur.IsPathed(); {
		chain = append(chain, cur)
		cur = cur.Parent()
		if v, ok := t[cur]; ok {
			base, found = v, true
			break
		}
	}
	if !found {
		return Void, false
	}

	for i := len(chain) - 1; i >= 0; i-- {
		next := chain[i]
		forced := base.Force()
		if forced.IsNil() {
			return Void, false
		}
		dict, ok := forced.DictionaryValue()
		if !ok {
			errv := Errored(evalError(KindStructural, "VarTable.Match",
				"%s is %s, not a dictionary", next.Parent(), forced.BaseType()))
			t[key] = errv
			return errv, true
		}
		child, ok := dict[next.Last()]
		if !ok {
			return Void, false
		}
		t[next] = child
		base = child
	}
	return base, true
}

// Has reports whether key is present without expanding.
func (t VarTable) Has(key Variable) bool {
	_, ok := t[key]
	return ok
}

// purge removes cached expansions below key.
func (t VarTable) purge(key Variable) {
	prefix := key.String() + "."
	for k := range t {
		if strings.HasPrefix(k.flat, prefix) {
			delete(t, k)
		}
	}
}
