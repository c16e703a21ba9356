package invoice

import (
	"testing"
)

func TestBaseInitRoundTrip(t *testing.T) {
	params := baseParams()
	data, err := EncodeBaseInit(params)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeBaseInit(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded != params {
		t.Fatalf("round trip mismatch: %+v != %+v", decoded, params)
	}
}

func TestSplitInitRoundTrip(t *testing.T) {
	params := SplitInit{
		BaseInit:         baseParams(),
		ClientReceiver:   newTestAddress(0x21),
		ProviderReceiver: newTestAddress(0x22),
		DAO:              testDAO,
		DAOFee:           1_000,
	}
	data, err := EncodeSplitInit(params)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeSplitInit(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded != params {
		t.Fatalf("round trip mismatch: %+v != %+v", decoded, params)
	}
}

func TestUpdatableInitRoundTrip(t *testing.T) {
	params := UpdatableInit{
		BaseInit:         baseParams(),
		ProviderReceiver: newTestAddress(0x22),
	}
	data, err := EncodeUpdatableInit(params)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeUpdatableInit(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded != params {
		t.Fatalf("round trip mismatch: %+v != %+v", decoded, params)
	}
}

func TestDecodeRejectsTruncatedPayload(t *testing.T) {
	data, err := EncodeBaseInit(baseParams())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := DecodeBaseInit(data[:len(data)-8]); err == nil {
		t.Fatal("expected truncated payload to fail")
	}
}

func TestDecodeSplitRejectsExcessiveFee(t *testing.T) {
	params := SplitInit{BaseInit: baseParams(), DAO: testDAO, DAOFee: 10_000}
	data, err := EncodeSplitInit(params)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	// The fee word is the last 32-byte slot; rewrite it above the bps scale.
	data[len(data)-2] = 0x27
	data[len(data)-1] = 0x11 // 10_001
	if _, err := DecodeSplitInit(data); err == nil {
		t.Fatal("expected out-of-range fee to fail")
	}
}
