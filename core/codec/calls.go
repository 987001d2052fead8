package codec

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"shardgate/core/types"
)

// ArgKind is the SCALE layout of one call or event argument.
type ArgKind uint8

const (
	ArgU8 ArgKind = iota
	ArgU16
	ArgU32
	ArgCompactU64
	ArgCompactBalance
	ArgBalance
	ArgAddress
	ArgAccountID
	ArgHash
	ArgBytes
)

// Calls the gateway inspects.
const (
	ModuleTimestamp uint8 = 0
	ModuleBalances  uint8 = 4
	ModuleRelay     uint8 = 9
	ModuleAssets    uint8 = 10

	MethodBalancesTransfer uint8 = 0
	MethodRelayTransfer    uint8 = 0
)

type argSpec struct {
	name string
	kind ArgKind
}

type callSpec struct {
	name string
	args []argSpec
}

type callID struct {
	module uint8
	method uint8
}

var callRegistry = map[callID]callSpec{
	{ModuleTimestamp, 0}: {name: "timestamp.set", args: []argSpec{{"now", ArgCompactU64}}},
	{ModuleBalances, MethodBalancesTransfer}: {name: "balances.transfer", args: []argSpec{
		{"dest", ArgAddress},
		{"value", ArgCompactBalance},
	}},
	{ModuleBalances, 1}: {name: "balances.set_balance", args: []argSpec{
		{"who", ArgAddress},
		{"free", ArgCompactBalance},
		{"reserved", ArgCompactBalance},
	}},
	{ModuleRelay, MethodRelayTransfer}: {name: "relay.transfer", args: []argSpec{
		{"relay_type", ArgU8},
		{"tx", ArgBytes},
		{"number", ArgCompactU64},
		{"hash", ArgHash},
		{"parent", ArgHash},
	}},
	{ModuleAssets, 0}: {name: "assets.issue", args: []argSpec{
		{"name", ArgBytes},
		{"total", ArgCompactBalance},
		{"decimals", ArgU16},
	}},
	{ModuleAssets, 1}: {name: "assets.transfer", args: []argSpec{
		{"shard_code", ArgBytes},
		{"id", ArgCompactU64},
		{"target", ArgAddress},
		{"amount", ArgCompactBalance},
	}},
}

// Arg is a decoded call argument. Byte-like values are hexutil.Bytes, amounts types.Balance.
type Arg struct {
	Name  string
	Value any
}

// Call is a dispatchable call. Calls missing from the registry keep their argument bytes
// under a single "data" argument.
type Call struct {
	Module uint8
	Method uint8
	Name   string
	Args   []Arg
}

// Is reports whether the call is module.method.
func (c Call) Is(module, method uint8) bool {
	return c.Module == module && c.Method == method
}

// Arg returns the named argument.
func (c Call) Arg(name string) (any, bool) {
	for _, arg := range c.Args {
		if arg.Name == name {
			return arg.Value, true
		}
	}
	return nil, false
}

// BytesArg returns a byte-valued argument.
func (c Call) BytesArg(name string) ([]byte, bool) {
	v, ok := c.Arg(name)
	if !ok {
		return nil, false
	}
	b, ok := v.(hexutil.Bytes)
	return b, ok
}

// Result renders the call for JSON consumers.
func (c Call) Result() types.ResultCall {
	params := make(map[string]any, len(c.Args))
	for _, arg := range c.Args {
		params[arg.Name] = arg.Value
	}
	return types.ResultCall{Module: c.Module, Method: c.Method, Name: c.Name, Params: params}
}

func decodeCall(r *reader) (Call, error) {
	module, err := r.readByte()
	if err != nil {
		return Call{}, fmt.Errorf("call module: %w", err)
	}
	method, err := r.readByte()
	if err != nil {
		return Call{}, fmt.Errorf("call method: %w", err)
	}
	call := Call{Module: module, Method: method}
	spec, ok := callRegistry[callID{module, method}]
	if !ok {
		call.Args = []Arg{{Name: "data", Value: hexutil.Bytes(r.rest())}}
		return call, nil
	}
	call.Name = spec.name
	call.Args = make([]Arg, 0, len(spec.args))
	for _, a := range spec.args {
		v, err := decodeArg(r, a.kind)
		if err != nil {
			return Call{}, fmt.Errorf("%s argument %s: %w", spec.name, a.name, err)
		}
		call.Args = append(call.Args, Arg{Name: a.name, Value: v})
	}
	return call, nil
}

func decodeArg(r *reader, kind ArgKind) (any, error) {
	switch kind {
	case ArgU8:
		return r.readByte()
	case ArgU16:
		return r.u16()
	case ArgU32:
		return r.u32()
	case ArgCompactU64:
		return r.compactU64()
	case ArgCompactBalance:
		v, err := r.compactU128()
		if err != nil {
			return nil, err
		}
		return types.NewBalance(v), nil
	case ArgBalance:
		b, err := r.fixed(balanceSize)
		if err != nil {
			return nil, err
		}
		return types.NewBalance(leUint(b)), nil
	case ArgAddress:
		addr, err := decodeAddress(r)
		if err != nil {
			return nil, err
		}
		return hexutil.Bytes(addr.Encoded()), nil
	case ArgAccountID, ArgHash:
		b, err := r.fixed(32)
		if err != nil {
			return nil, err
		}
		return hexutil.Bytes(b), nil
	case ArgBytes:
		b, err := r.vec()
		if err != nil {
			return nil, err
		}
		return hexutil.Bytes(b), nil
	default:
		return nil, fmt.Errorf("unknown argument kind %d", kind)
	}
}
