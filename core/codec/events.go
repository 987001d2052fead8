package codec

import (
	"fmt"
	"strings"

	gwerrors "shardgate/core/errors"
)

// Event phases of a record.
const (
	PhaseApplyExtrinsic uint8 = 0
	PhaseFinalization   uint8 = 1
	PhaseInitialization uint8 = 2
)

const moduleSystem uint8 = 0

const (
	eventExtrinsicSuccess uint8 = 0
	eventExtrinsicFailed  uint8 = 1
)

type eventSpec struct {
	name string
	args []ArgKind
}

// eventRegistry lists event layouts by module index then variant.
var eventRegistry = map[uint8]struct {
	module   string
	variants []eventSpec
}{
	moduleSystem: {"system", []eventSpec{
		{name: "ExtrinsicSuccess"},
		{name: "ExtrinsicFailed"},
	}},
	1: {"indices", []eventSpec{
		{name: "NewAccountIndex", args: []ArgKind{ArgAccountID, ArgU32}},
	}},
	2: {"balances", []eventSpec{
		{name: "NewAccount", args: []ArgKind{ArgAccountID, ArgBalance}},
		{name: "ReapedAccount", args: []ArgKind{ArgAccountID}},
		{name: "Transfer", args: []ArgKind{ArgAccountID, ArgAccountID, ArgBalance, ArgBalance}},
	}},
	3: {"assets", []eventSpec{
		{name: "Issued", args: []ArgKind{ArgU32, ArgAccountID, ArgBalance}},
		{name: "Transferred", args: []ArgKind{ArgU32, ArgAccountID, ArgAccountID, ArgBalance}},
	}},
	4: {"relay", []eventSpec{
		{name: "Relayed", args: []ArgKind{ArgHash}},
	}},
}

// ExtrinsicResult collects what the event log says about one extrinsic.
type ExtrinsicResult struct {
	Success bool
	Events  []string
}

// DecodeEventLog decodes the raw value of the System Events storage item and groups the
// events emitted while applying extrinsics by extrinsic index. A nil log is empty.
func DecodeEventLog(raw []byte) (map[uint32]*ExtrinsicResult, error) {
	out := make(map[uint32]*ExtrinsicResult)
	if raw == nil {
		return out, nil
	}
	r := newReader(raw)
	// phase byte, module and variant is the smallest record
	n, err := r.length(3)
	if err != nil {
		return nil, fmt.Errorf("%w: event count: %v", gwerrors.ErrParse, err)
	}
	for i := 0; i < n; i++ {
		if err := decodeEventRecord(r, out); err != nil {
			return nil, fmt.Errorf("%w: event record %d: %v", gwerrors.ErrParse, i, err)
		}
	}
	if r.remaining() != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes after event log", gwerrors.ErrParse, r.remaining())
	}
	return out, nil
}

func decodeEventRecord(r *reader, out map[uint32]*ExtrinsicResult) error {
	phase, err := r.readByte()
	if err != nil {
		return err
	}
	var (
		index   uint32
		applied bool
	)
	switch phase {
	case PhaseApplyExtrinsic:
		if index, err = r.u32(); err != nil {
			return err
		}
		applied = true
	case PhaseFinalization, PhaseInitialization:
	default:
		return fmt.Errorf("unknown phase %d", phase)
	}

	module, err := r.readByte()
	if err != nil {
		return err
	}
	variant, err := r.readByte()
	if err != nil {
		return err
	}
	entry, ok := eventRegistry[module]
	if !ok || int(variant) >= len(entry.variants) {
		return fmt.Errorf("unknown event %d.%d", module, variant)
	}
	spec := entry.variants[variant]
	values := make([]string, 0, len(spec.args))
	for _, kind := range spec.args {
		v, err := decodeArg(r, kind)
		if err != nil {
			return fmt.Errorf("%s.%s: %w", entry.module, spec.name, err)
		}
		values = append(values, fmt.Sprint(v))
	}
	if !applied {
		return nil
	}

	result, ok := out[index]
	if !ok {
		result = &ExtrinsicResult{Events: []string{}}
		out[index] = result
	}
	if module == moduleSystem {
		switch variant {
		case eventExtrinsicSuccess:
			result.Success = true
			return nil
		case eventExtrinsicFailed:
			result.Success = false
			return nil
		}
	}
	result.Events = append(result.Events, fmt.Sprintf("%s.%s(%s)", entry.module, spec.name, strings.Join(values, ", ")))
	return nil
}
