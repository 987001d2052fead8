package errors

import stderrors "errors"

var (
	ErrInvalidShard     = stderrors.New("gateway: invalid shard")
	ErrInvalidAddress   = stderrors.New("gateway: invalid address")
	ErrInvalidExtrinsic = stderrors.New("gateway: invalid extrinsic")
	ErrParse            = stderrors.New("gateway: parse error")
	ErrTransport        = stderrors.New("gateway: transport error")
)

// Kind is the stable machine-readable name of an error class surfaced to callers.
type Kind string

const (
	KindInvalidShard     Kind = "InvalidShard"
	KindInvalidAddress   Kind = "InvalidAddress"
	KindInvalidExtrinsic Kind = "InvalidExtrinsic"
	KindParse            Kind = "ParseError"
	KindTransport        Kind = "Transport"
	KindInternal         Kind = "Internal"
)

// JSON-RPC error codes reported for each kind.
const (
	CodeInvalidShard     = -32010
	CodeInvalidAddress   = -32011
	CodeInvalidExtrinsic = -32012
	CodeParse            = -32013
	CodeTransport        = -32014
	CodeInternal         = -32000
)

var kinds = []struct {
	err  error
	kind Kind
	code int
}{
	{ErrInvalidShard, KindInvalidShard, CodeInvalidShard},
	{ErrInvalidAddress, KindInvalidAddress, CodeInvalidAddress},
	{ErrInvalidExtrinsic, KindInvalidExtrinsic, CodeInvalidExtrinsic},
	{ErrParse, KindParse, CodeParse},
	{ErrTransport, KindTransport, CodeTransport},
}

// KindOf classifies err. Errors outside the known set map to KindInternal.
func KindOf(err error) (Kind, int) {
	for _, entry := range kinds {
		if stderrors.Is(err, entry.err) {
			return entry.kind, entry.code
		}
	}
	return KindInternal, CodeInternal
}
