package uuid

import (
	"encoding/json"
	"testing"
)

func TestNew_VersionAndVariant(t *testing.T) {
	u, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if v := u[6] >> 4; v != 4 {
		t.Fatalf("expected version 4, got %d", v)
	}
	if u[8]&0xc0 != 0x80 {
		t.Fatalf("expected RFC 4122 variant, got byte %x", u[8])
	}
}

func TestParse_RoundTrip(t *testing.T) {
	u := MustNew()
	parsed, err := Parse(u.String())
	if err != nil {
		t.Fatalf("Parse(%q): %v", u.String(), err)
	}
	if parsed != u {
		t.Fatalf("round trip mismatch: %s vs %s", parsed, u)
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, s := range []string{"", "not-a-uuid", "1234", "xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx"} {
		if _, err := Parse(s); err == nil {
			t.Fatalf("Parse(%q) should fail", s)
		}
	}
}

func TestJSON_RoundTrip(t *testing.T) {
	u := MustNew()
	data, err := json.Marshal(u)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back UUID
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back != u {
		t.Fatalf("json round trip mismatch: %s vs %s", back, u)
	}
}
