package domain

import "testing"

func TestCRMMessagesColumn(t *testing.T) {
	in := CRMMessages{{Sender: "me", Body: "hola", Timestamp: "2024-01-02T03:04:05Z"}}
	v, err := in.Value()
	if err != nil {
		t.Fatalf("Value() error: %v", err)
	}
	var out CRMMessages
	if err := out.Scan([]byte(v.(string))); err != nil {
		t.Fatalf("Scan() error: %v", err)
	}
	if len(out) != 1 || out[0] != in[0] {
		t.Errorf("Scan() = %+v, want %+v", out, in)
	}
}

func TestNilColumnsEncodeAsEmptyArray(t *testing.T) {
	var items StringList
	v, err := items.Value()
	if err != nil {
		t.Fatalf("Value() error: %v", err)
	}
	if v != "[]" {
		t.Errorf("Value() = %v, want []", v)
	}
	if err := items.Scan(nil); err != nil {
		t.Errorf("Scan(nil) error: %v", err)
	}
	if err := items.Scan(42); err == nil {
		t.Error("Scan(int) should fail")
	}
}

func TestQRCodeIsScanned(t *testing.T) {
	var q *WhatsAppQRCode
	if q.IsScanned() {
		t.Error("nil record reported scanned")
	}
	q = &WhatsAppQRCode{Status: QRStatusScanned}
	if !q.IsScanned() {
		t.Error("scanned record not reported scanned")
	}
}
