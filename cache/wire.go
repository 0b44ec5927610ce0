package cache

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"

	"github.com/chazu/leafkit/vm"
)

// ---------------------------------------------------------------------------
// Wire format: CBOR-encoded, zstd-compressed ASTs
// ---------------------------------------------------------------------------

// wireVersion is bumped whenever the encoded shape changes.
const wireVersion = 1

var (
	cborEncMode cbor.EncMode
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("cache: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em

	if zstdEncoder, err = zstd.NewWriter(nil); err != nil {
		panic(fmt.Sprintf("cache: failed to create zstd encoder: %v", err))
	}
	if zstdDecoder, err = zstd.NewReader(nil); err != nil {
		panic(fmt.Sprintf("cache: failed to create zstd decoder: %v", err))
	}
}

type wireAST struct {
	Version uint8          `cbor:"1,keyasint"`
	Name    string         `cbor:"2,keyasint"`
	Scopes  [][]wireSyntax `cbor:"3,keyasint"`
	Inlines []wireInline   `cbor:"4,keyasint,omitempty"`
}

type wireSyntax struct {
	Kind  vm.SyntaxKind `cbor:"1,keyasint"`
	Raw   []byte        `cbor:"2,keyasint,omitempty"`
	Param *wireParam    `cbor:"3,keyasint,omitempty"`
	Block *wireBlock    `cbor:"4,keyasint,omitempty"`
	Scope int           `cbor:"5,keyasint,omitempty"`
}

// wireBlock names its kind; the kind itself is looked up again on decode.
type wireBlock struct {
	Name     string    `cbor:"1,keyasint"`
	Params   wireTuple `cbor:"2,keyasint"`
	Resolved bool      `cbor:"3,keyasint,omitempty"`
}

type wireInline struct {
	Name   string `cbor:"1,keyasint"`
	Raw    bool   `cbor:"2,keyasint,omitempty"`
	Table  int    `cbor:"3,keyasint"`
	Offset int    `cbor:"4,keyasint"`
}

type wireParam struct {
	Kind     vm.ParamKind `cbor:"1,keyasint"`
	Value    *wireData    `cbor:"2,keyasint,omitempty"`
	Variable string       `cbor:"3,keyasint,omitempty"`
	Operator vm.Operator  `cbor:"4,keyasint,omitempty"`
	Keyword  vm.Keyword   `cbor:"5,keyasint,omitempty"`
	Expr     *wireExpr    `cbor:"6,keyasint,omitempty"`
	Tuple    *wireTuple   `cbor:"7,keyasint,omitempty"`
	Call     *wireCall    `cbor:"8,keyasint,omitempty"`
}

type wireExpr struct {
	Form     vm.ExpressionForm `cbor:"1,keyasint"`
	Operator vm.Operator       `cbor:"2,keyasint,omitempty"`
	Keyword  vm.Keyword        `cbor:"3,keyasint,omitempty"`
	Operands []wireParam       `cbor:"4,keyasint"`
}

// wireTuple keeps Dict separately because an empty label map still makes
// the tuple a dictionary.
type wireTuple struct {
	Values     []wireParam    `cbor:"1,keyasint,omitempty"`
	Labels     map[string]int `cbor:"2,keyasint,omitempty"`
	Dict       bool           `cbor:"3,keyasint,omitempty"`
	Collection bool           `cbor:"4,keyasint,omitempty"`
}

type wireCall struct {
	Name     string     `cbor:"1,keyasint"`
	Receiver *wireParam `cbor:"2,keyasint,omitempty"`
	Args     wireTuple  `cbor:"3,keyasint"`
}

type wireData struct {
	Type   vm.DataType         `cbor:"1,keyasint"`
	Bool   bool                `cbor:"2,keyasint,omitempty"`
	Int    int64               `cbor:"3,keyasint,omitempty"`
	Double float64             `cbor:"4,keyasint,omitempty"`
	String string              `cbor:"5,keyasint,omitempty"`
	Bytes  []byte              `cbor:"6,keyasint,omitempty"`
	Array  []wireData          `cbor:"7,keyasint,omitempty"`
	Dict   map[string]wireData `cbor:"8,keyasint,omitempty"`
}

// Marshal serializes an AST to compressed CBOR bytes. The encoding is
// deterministic, so equal ASTs produce equal blobs.
func Marshal(ast *vm.AST) ([]byte, error) {
	w := wireAST{Version: wireVersion, Name: ast.Name, Scopes: make([][]wireSyntax, len(ast.Scopes))}
	for t, nodes := range ast.Scopes {
		w.Scopes[t] = make([]wireSyntax, len(nodes))
		for i, n := range nodes {
			ws := wireSyntax{Kind: n.Kind, Raw: n.Raw, Scope: n.Scope}
			switch n.Kind {
			case vm.SyntaxPassthrough:
				p, err := encodeParam(n.Param)
				if err != nil {
					return nil, fmt.Errorf("cache: marshal %s: %w", ast.Name, err)
				}
				ws.Param = &p
			case vm.SyntaxBlock:
				params, err := encodeTuple(n.Block.Params)
				if err != nil {
					return nil, fmt.Errorf("cache: marshal %s: %w", ast.Name, err)
				}
				ws.Block = &wireBlock{Name: n.Block.Name, Params: params, Resolved: n.Block.Resolved}
			}
			w.Scopes[t][i] = ws
		}
	}
	for _, ref := range ast.Inlines {
		w.Inlines = append(w.Inlines, wireInline{Name: ref.Name, Raw: ref.Raw, Table: ref.Table, Offset: ref.Offset})
	}
	data, err := cborEncMode.Marshal(&w)
	if err != nil {
		return nil, fmt.Errorf("cache: marshal %s: %w", ast.Name, err)
	}
	return zstdEncoder.EncodeAll(data, nil), nil
}

// Unmarshal decodes a blob produced by Marshal. Block kinds and functions
// are looked up in r, so the blob must have been produced against a
// registry with the same names.
func Unmarshal(data []byte, r *vm.Registry) (*vm.AST, error) {
	raw, err := zstdDecoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("cache: unmarshal: %w", err)
	}
	var w wireAST
	if err := cbor.Unmarshal(raw, &w); err != nil {
		return nil, fmt.Errorf("cache: unmarshal: %w", err)
	}
	if w.Version != wireVersion {
		return nil, fmt.Errorf("cache: unmarshal %s: wire version %d, want %d", w.Name, w.Version, wireVersion)
	}
	d := decoder{reg: r}
	ast := &vm.AST{Name: w.Name, Scopes: make([][]vm.Syntax, len(w.Scopes))}
	for t, nodes := range w.Scopes {
		ast.Scopes[t] = make([]vm.Syntax, len(nodes))
		for i, ws := range nodes {
			n := vm.Syntax{Kind: ws.Kind, Raw: ws.Raw, Scope: ws.Scope}
			switch ws.Kind {
			case vm.SyntaxPassthrough:
				if ws.Param == nil {
					return nil, fmt.Errorf("cache: unmarshal %s: passthrough at %d:%d has no parameter", w.Name, t, i)
				}
				if n.Param, err = d.param(*ws.Param); err != nil {
					return nil, fmt.Errorf("cache: unmarshal %s: %w", w.Name, err)
				}
			case vm.SyntaxBlock:
				if ws.Block == nil {
					return nil, fmt.Errorf("cache: unmarshal %s: block at %d:%d has no opener", w.Name, t, i)
				}
				if n.Block, err = d.block(*ws.Block); err != nil {
					return nil, fmt.Errorf("cache: unmarshal %s: %w", w.Name, err)
				}
			}
			ast.Scopes[t][i] = n
		}
	}
	for _, ref := range w.Inlines {
		ast.Inlines = append(ast.Inlines, vm.InlineRef{Name: ref.Name, Raw: ref.Raw, Table: ref.Table, Offset: ref.Offset})
	}
	if err := ast.Validate(); err != nil {
		return nil, fmt.Errorf("cache: unmarshal: %w", err)
	}
	return ast, nil
}

// ---------------------------------------------------------------------------
// Encoding
// ---------------------------------------------------------------------------

func encodeParam(p vm.Parameter) (wireParam, error) {
	w := wireParam{Kind: p.Kind()}
	switch p.Kind() {
	case vm.ParamValue:
		v, err := encodeData(p.Value())
		if err != nil {
			return w, err
		}
		w.Value = &v
	case vm.ParamVariable:
		w.Variable = p.Variable().String()
	case vm.ParamOperator:
		w.Operator = p.Operator()
	case vm.ParamKeyword:
		w.Keyword = p.Keyword()
	case vm.ParamExpression:
		e := p.Expression()
		we := &wireExpr{Form: e.Form(), Operator: e.Operator(), Keyword: e.Keyword()}
		a, b, c := e.Operands()
		for _, o := range []vm.Parameter{a, b, c}[:operandCount(e.Form())] {
			wo, err := encodeParam(o)
			if err != nil {
				return w, err
			}
			we.Operands = append(we.Operands, wo)
		}
		w.Expr = we
	case vm.ParamTuple:
		t, err := encodeTuple(p.Tuple())
		if err != nil {
			return w, err
		}
		w.Tuple = &t
	case vm.ParamCall:
		c := p.Call()
		args, err := encodeTuple(c.Args)
		if err != nil {
			return w, err
		}
		wc := &wireCall{Name: c.Name, Args: args}
		if c.Receiver != nil {
			recv, err := encodeParam(*c.Receiver)
			if err != nil {
				return w, err
			}
			wc.Receiver = &recv
		}
		w.Call = wc
	}
	return w, nil
}

func operandCount(f vm.ExpressionForm) int {
	switch f {
	case vm.FormUnaryPrefix, vm.FormUnaryPostfix:
		return 1
	case vm.FormTernary:
		return 3
	}
	return 2
}

func encodeTuple(t *vm.Tuple) (wireTuple, error) {
	if t == nil {
		return wireTuple{}, nil
	}
	w := wireTuple{Labels: t.Labels, Dict: t.Labels != nil, Collection: t.Collection}
	for _, v := range t.Values {
		wv, err := encodeParam(v)
		if err != nil {
			return w, err
		}
		w.Values = append(w.Values, wv)
	}
	return w, nil
}

func encodeData(d vm.Data) (wireData, error) {
	if d.Errored() || d.IsLazy() {
		return wireData{}, fmt.Errorf("cannot encode %s literal", d)
	}
	w := wireData{Type: d.BaseType()}
	switch w.Type {
	case vm.TypeVoid:
	case vm.TypeBool:
		w.Bool, _ = d.BoolValue()
	case vm.TypeInt:
		w.Int, _ = d.IntValue()
	case vm.TypeDouble:
		w.Double, _ = d.DoubleValue()
	case vm.TypeString:
		w.String, _ = d.StringValue()
	case vm.TypeBytes:
		w.Bytes, _ = d.BytesValue()
	case vm.TypeArray:
		arr, _ := d.ArrayValue()
		for _, v := range arr {
			wv, err := encodeData(v)
			if err != nil {
				return w, err
			}
			w.Array = append(w.Array, wv)
		}
	case vm.TypeDictionary:
		m, _ := d.DictionaryValue()
		w.Dict = make(map[string]wireData, len(m))
		for k, v := range m {
			wv, err := encodeData(v)
			if err != nil {
				return w, err
			}
			w.Dict[k] = wv
		}
	}
	return w, nil
}

// ---------------------------------------------------------------------------
// Decoding: everything is rebuilt through the vm constructors
// ---------------------------------------------------------------------------

type decoder struct {
	reg *vm.Registry
}

func (d decoder) block(w wireBlock) (*vm.BlockSyntax, error) {
	kind, ok := d.reg.Block(w.Name)
	if !ok {
		return nil, fmt.Errorf("unknown block %s", w.Name)
	}
	params, err := d.tuple(w.Params)
	if err != nil {
		return nil, err
	}
	if err := kind.Validate(params); err != nil {
		return nil, err
	}
	return &vm.BlockSyntax{Name: w.Name, Kind: kind, Params: params, Meta: vm.MetaOf(kind), Resolved: w.Resolved}, nil
}

func (d decoder) param(w wireParam) (vm.Parameter, error) {
	switch w.Kind {
	case vm.ParamValue:
		if w.Value == nil {
			return vm.Parameter{}, fmt.Errorf("value parameter without a value")
		}
		return vm.ValueParam(decodeData(*w.Value)), nil
	case vm.ParamVariable:
		v, err := vm.ParseVariable(w.Variable)
		if err != nil {
			return vm.Parameter{}, err
		}
		return vm.VariableParam(v), nil
	case vm.ParamOperator:
		return vm.OperatorParam(w.Operator), nil
	case vm.ParamKeyword:
		return vm.KeywordParam(w.Keyword), nil
	case vm.ParamExpression:
		if w.Expr == nil {
			return vm.Parameter{}, fmt.Errorf("expression parameter without an expression")
		}
		e, err := d.expression(*w.Expr)
		if err != nil {
			return vm.Parameter{}, err
		}
		return vm.ExpressionParam(e), nil
	case vm.ParamTuple:
		if w.Tuple == nil {
			return vm.Parameter{}, fmt.Errorf("tuple parameter without a tuple")
		}
		t, err := d.tuple(*w.Tuple)
		if err != nil {
			return vm.Parameter{}, err
		}
		return vm.TupleParam(t), nil
	case vm.ParamCall:
		if w.Call == nil {
			return vm.Parameter{}, fmt.Errorf("call parameter without a call")
		}
		c, err := d.call(*w.Call)
		if err != nil {
			return vm.Parameter{}, err
		}
		return vm.CallParam(c), nil
	}
	return vm.Parameter{}, fmt.Errorf("unknown parameter kind %d", w.Kind)
}

func (d decoder) expression(w wireExpr) (*vm.Expression, error) {
	if len(w.Operands) != operandCount(w.Form) {
		return nil, fmt.Errorf("%s expression with %d operands", w.Form, len(w.Operands))
	}
	ops := make([]vm.Parameter, len(w.Operands))
	for i, o := range w.Operands {
		p, err := d.param(o)
		if err != nil {
			return nil, err
		}
		ops[i] = p
	}
	op, kw := vm.OperatorParam(w.Operator), vm.KeywordParam(w.Keyword)
	switch w.Form {
	case vm.FormInfix, vm.FormAssignment:
		return vm.NewExpression([]vm.Parameter{ops[0], op, ops[1]})
	case vm.FormUnaryPrefix:
		return vm.NewExpression([]vm.Parameter{op, ops[0]})
	case vm.FormUnaryPostfix:
		return vm.NewExpression([]vm.Parameter{ops[0], op})
	case vm.FormTernary:
		return vm.NewTernary(ops[0], ops[1], ops[2])
	case vm.FormDeclaration:
		return vm.NewExpression([]vm.Parameter{kw, ops[0], vm.OperatorParam(vm.OpAssign), ops[1]})
	case vm.FormCustom:
		return vm.NewExpression([]vm.Parameter{ops[0], kw, ops[1]})
	}
	return nil, fmt.Errorf("unknown expression form %d", w.Form)
}

func (d decoder) tuple(w wireTuple) (*vm.Tuple, error) {
	t := &vm.Tuple{Labels: w.Labels, Collection: w.Collection}
	if w.Dict && t.Labels == nil {
		t.Labels = map[string]int{}
	}
	for _, wv := range w.Values {
		p, err := d.param(wv)
		if err != nil {
			return nil, err
		}
		t.Values = append(t.Values, p)
	}
	return t, nil
}

func (d decoder) call(w wireCall) (*vm.Call, error) {
	args, err := d.tuple(w.Args)
	if err != nil {
		return nil, err
	}
	if w.Receiver == nil {
		return vm.NewCall(d.reg, w.Name, args)
	}
	recv, err := d.param(*w.Receiver)
	if err != nil {
		return nil, err
	}
	return vm.NewMethodCall(d.reg, w.Name, recv, args)
}

func decodeData(w wireData) vm.Data {
	switch w.Type {
	case vm.TypeBool:
		return vm.Bool(w.Bool)
	case vm.TypeInt:
		return vm.Int(w.Int)
	case vm.TypeDouble:
		return vm.Double(w.Double)
	case vm.TypeString:
		return vm.String(w.String)
	case vm.TypeBytes:
		return vm.Bytes(w.Bytes)
	case vm.TypeArray:
		arr := make([]vm.Data, len(w.Array))
		for i, v := range w.Array {
			arr[i] = decodeData(v)
		}
		return vm.Array(arr...)
	case vm.TypeDictionary:
		m := make(map[string]vm.Data, len(w.Dict))
		for k, v := range w.Dict {
			m[k] = decodeData(v)
		}
		return vm.Dictionary(m)
	}
	return vm.Void
}
