package query

import (
	"bytes"
	"encoding/json"
	"fmt"

	gwerrors "shardgate/core/errors"
)

// Project converts a typed result into plain JSON values (maps, slices, strings, bools and
// json.Number) so later passes can edit it without knowing its Go type. Numbers keep their
// full precision. A nil pointer projects to nil.
func Project(v any) (any, error) {
	encoded, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: encode value: %v", gwerrors.ErrParse, err)
	}
	dec := json.NewDecoder(bytes.NewReader(encoded))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode value: %v", gwerrors.ErrParse, err)
	}
	return out, nil
}
