package qr

import (
	"bytes"
	"testing"
)

var pngMagic = []byte{0x89, 'P', 'N', 'G'}

func TestEncodeProducesPNG(t *testing.T) {
	data, err := Encode("PRD-000123")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !bytes.HasPrefix(data, pngMagic) {
		t.Fatal("expected png output")
	}
}

func TestEncodeRejectsEmptyID(t *testing.T) {
	if _, err := Encode("  "); err == nil {
		t.Fatal("expected error for empty id")
	}
}

func TestKey(t *testing.T) {
	if got := Key(" PRD-1 "); got != "qr/PRD-1.png" {
		t.Fatalf("unexpected key %q", got)
	}
}
