package errors

import (
	"context"
	"fmt"
	"testing"
)

func TestKindOfWrappedErrors(t *testing.T) {
	cases := []struct {
		err  error
		kind Kind
		code int
	}{
		{fmt.Errorf("shard 9: %w", ErrInvalidShard), KindInvalidShard, CodeInvalidShard},
		{fmt.Errorf("decode: %w", ErrInvalidAddress), KindInvalidAddress, CodeInvalidAddress},
		{fmt.Errorf("decode: %w", ErrInvalidExtrinsic), KindInvalidExtrinsic, CodeInvalidExtrinsic},
		{fmt.Errorf("nonce: %w", ErrParse), KindParse, CodeParse},
		{fmt.Errorf("%w: %w", ErrTransport, context.DeadlineExceeded), KindTransport, CodeTransport},
		{fmt.Errorf("boom"), KindInternal, CodeInternal},
	}
	for _, tc := range cases {
		kind, code := KindOf(tc.err)
		if kind != tc.kind || code != tc.code {
			t.Fatalf("KindOf(%v) = %s/%d, want %s/%d", tc.err, kind, code, tc.kind, tc.code)
		}
	}
}
