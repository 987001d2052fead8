package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"shardgate/core/codec/codectest"
	gwerrors "shardgate/core/errors"
	"shardgate/core/types"
	"shardgate/crypto"
)

func TestDecodeSignedTransfer(t *testing.T) {
	sender, dest := codectest.Key(0x11), codectest.Key(0x22)
	raw := codectest.Signed(sender, 9, codectest.Transfer(dest, 1000))

	tx, err := DecodeTransaction(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if tx.Signature == nil {
		t.Fatalf("expected signature")
	}
	if !tx.Signature.Sender.IsAccountID() || !bytes.Equal(tx.Signature.Sender.AccountID, sender) {
		t.Fatalf("unexpected sender %x", tx.Signature.Sender.Encoded())
	}
	if tx.Signature.Nonce != 9 || tx.Signature.Era != nil {
		t.Fatalf("unexpected signature fields: %+v", tx.Signature)
	}
	if !tx.Call.Is(ModuleBalances, MethodBalancesTransfer) || tx.Call.Name != "balances.transfer" {
		t.Fatalf("unexpected call %+v", tx.Call)
	}
	destArg, ok := tx.Call.BytesArg("dest")
	if !ok || !bytes.Equal(destArg, codectest.AccountID(dest)) {
		t.Fatalf("unexpected dest %x", destArg)
	}
	value, ok := tx.Call.Arg("value")
	if !ok || value.(types.Balance).String() != "1000" {
		t.Fatalf("unexpected value %v", value)
	}
}

func TestDecodeUnsignedUnknownCall(t *testing.T) {
	raw := codectest.Unsigned(codectest.Call(7, 3, []byte{0xde, 0xad}))
	tx, err := DecodeTransaction(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if tx.Signature != nil {
		t.Fatalf("unsigned extrinsic must not carry a signature")
	}
	data, ok := tx.Call.BytesArg("data")
	if !ok || !bytes.Equal(data, []byte{0xde, 0xad}) {
		t.Fatalf("unexpected opaque data %x", data)
	}
}

func TestDecodeMortalEra(t *testing.T) {
	// period 64, phase 42
	era := []byte{0xa5, 0x02}
	raw := codectest.SignedWithEra(codectest.Key(1), 0, era, codectest.TimestampSet(1_600_000_000))
	tx, err := DecodeTransaction(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if tx.Signature.Era == nil || tx.Signature.Era.Period != 64 || tx.Signature.Era.Phase != 42 {
		t.Fatalf("unexpected era %+v", tx.Signature.Era)
	}
}

func TestDecodeRelayTransferCarriesOrigin(t *testing.T) {
	origin := codectest.Signed(codectest.Key(3), 1, codectest.Transfer(codectest.Key(4), 5))
	raw := codectest.Unsigned(codectest.RelayTransfer(origin, 77, codectest.Key(5), codectest.Key(6)))
	tx, err := DecodeTransaction(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !tx.Call.Is(ModuleRelay, MethodRelayTransfer) {
		t.Fatalf("unexpected call %+v", tx.Call)
	}
	embedded, ok := tx.Call.BytesArg("tx")
	if !ok || !bytes.Equal(embedded, origin) {
		t.Fatalf("embedded tx mismatch")
	}
	number, _ := tx.Call.Arg("number")
	if number.(uint64) != 77 {
		t.Fatalf("unexpected number %v", number)
	}
}

func TestDecodeTransactionRejectsMalformed(t *testing.T) {
	valid := codectest.Signed(codectest.Key(1), 0, codectest.Transfer(codectest.Key(2), 1))
	cases := map[string][]byte{
		"nil":             nil,
		"garbage":         {0x01, 0x02, 0x03},
		"short prefix":    valid[:len(valid)-1],
		"trailing":        append(append([]byte{}, valid...), 0x00),
		"bad version":     codectest.Bytes([]byte{0x04, 0, 0}),
		"bad address":     codectest.Bytes(append([]byte{0x81, 0xf5}, make([]byte, 80)...)),
		"truncated call":  codectest.Unsigned([]byte{4, 0, 0xff, 1, 2}),
		"known call tail": codectest.Unsigned(append(codectest.TimestampSet(1), 0x00)),
	}
	for name, raw := range cases {
		if _, err := DecodeTransaction(raw); !errors.Is(err, gwerrors.ErrInvalidExtrinsic) {
			t.Fatalf("%s: expected invalid extrinsic, got %v", name, err)
		}
	}
}

func TestResultTransactionJSON(t *testing.T) {
	raw := codectest.Signed(codectest.Key(0x11), 2, codectest.Transfer(codectest.Key(0x22), 500))
	tx, err := DecodeTransaction(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	result := NewResultTransaction(raw, tx)
	if !bytes.Equal(result.Hash, crypto.Blake2b256(raw)) {
		t.Fatalf("hash must be blake2b-256 of the raw extrinsic")
	}
	encoded, err := json.Marshal(result)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded struct {
		Raw       hexutil.Bytes `json:"raw"`
		Signature struct {
			Sender hexutil.Bytes `json:"sender"`
			Nonce  uint64        `json:"nonce"`
		} `json:"signature"`
		Call struct {
			Module uint8             `json:"module"`
			Params map[string]string `json:"params"`
		} `json:"call"`
	}
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !bytes.Equal(decoded.Raw, raw) || decoded.Signature.Nonce != 2 || decoded.Call.Module != 4 {
		t.Fatalf("unexpected json %s", encoded)
	}
	if decoded.Call.Params["value"] != "500" {
		t.Fatalf("balance must serialise as a decimal string, got %q", decoded.Call.Params["value"])
	}
	if decoded.Call.Params["dest"] != hexutil.Encode(codectest.AccountID(codectest.Key(0x22))) {
		t.Fatalf("unexpected dest %q", decoded.Call.Params["dest"])
	}
}
