package redis

import "testing"

func TestExtractKeys(t *testing.T) {
	keys := extractKeys([]interface{}{"set", "atd:lock:strategy:7", "owner", 30})
	if len(keys) != 1 || keys[0] != "atd:lock:strategy:7" {
		t.Fatalf("extractKeys() = %v", keys)
	}
	if keys := extractKeys([]interface{}{"ping"}); keys != nil {
		t.Fatalf("extractKeys(ping) = %v", keys)
	}
}

func TestSanitizeKey(t *testing.T) {
	if got := sanitizeKey("atd:identity:token:abc"); got != "atd:***" {
		t.Fatalf("sanitizeKey() = %q", got)
	}
	if got := sanitizeKey("atd:strategy:1"); got != "atd:strategy:1" {
		t.Fatalf("sanitizeKey() = %q", got)
	}
}
