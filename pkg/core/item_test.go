package core

import "testing"

func TestItemID(t *testing.T) {
	id := ItemID(KindSlot, "supervisor", "detection-engine")
	if id != "slot:supervisor:detection-engine" {
		t.Errorf("expected slot:supervisor:detection-engine, got %s", id)
	}
}

func TestParseItemID(t *testing.T) {
	tests := []struct {
		input     string
		wantKind  Kind
		wantProv  string
		wantNID   string
		wantError bool
	}{
		{"slot:supervisor:detection-engine", KindSlot, "supervisor", "detection-engine", false},
		{"process:proctable:12345", KindProcess, "proctable", "12345", false},
		{"tail:tailer:/var/log/suricata/eve.json", KindTail, "tailer", "/var/log/suricata/eve.json", false},
		{`tail:tailer:C:\Users\me\eve.json`, KindTail, "tailer", `C:\Users\me\eve.json`, false},
		{"invalid", "", "", "", true},
		{"only:two", "", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			kind, prov, nid, err := ParseItemID(tt.input)
			if tt.wantError {
				if err == nil {
					t.Errorf("expected error for %q", tt.input)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error for %q: %v", tt.input, err)
				return
			}
			if kind != tt.wantKind {
				t.Errorf("kind: got %q, want %q", kind, tt.wantKind)
			}
			if prov != tt.wantProv {
				t.Errorf("provider: got %q, want %q", prov, tt.wantProv)
			}
			if nid != tt.wantNID {
				t.Errorf("nativeID: got %q, want %q", nid, tt.wantNID)
			}
		})
	}
}

func TestParseItemIDRoundTrip(t *testing.T) {
	original := ItemID(KindSlot, "supervisor", "log-viewer")
	kind, prov, nid, err := ParseItemID(original)
	if err != nil {
		t.Fatal(err)
	}
	reconstructed := ItemID(kind, prov, nid)
	if reconstructed != original {
		t.Errorf("round-trip failed: %q != %q", reconstructed, original)
	}
}
