package xid

import "testing"

func TestNewLocalIsDetectable(t *testing.T) {
	id := NewLocal("invoice")
	if !IsLocal(id) {
		t.Fatalf("NewLocal output not recognised: %s", id)
	}
	if IsLocal(New("invoice")) {
		t.Fatalf("plain identifiers must not look local")
	}
	if IsLocal("srv_i_1") {
		t.Fatalf("server identifiers must not look local")
	}
}

func TestNewIsUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := New("product")
		if seen[id] {
			t.Fatalf("duplicate identifier %s", id)
		}
		seen[id] = true
	}
}
