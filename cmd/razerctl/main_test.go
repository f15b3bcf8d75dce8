package main

import "testing"

func TestParseOnOff(t *testing.T) {
	for _, s := range []string{"on", "ON", "true", "1"} {
		if v, err := parseOnOff(s); err != nil || !v {
			t.Errorf("parseOnOff(%q) = %v, %v", s, v, err)
		}
	}
	for _, s := range []string{"off", "false", "0"} {
		if v, err := parseOnOff(s); err != nil || v {
			t.Errorf("parseOnOff(%q) = %v, %v", s, v, err)
		}
	}
	if _, err := parseOnOff("maybe"); err == nil {
		t.Error("expected error for maybe")
	}
}

func TestParseKey(t *testing.T) {
	if k, err := parseKey("183"); err != nil || k != 183 {
		t.Errorf("parseKey(183) = %d, %v", k, err)
	}
	if _, err := parseKey("70000"); err == nil {
		t.Error("expected error for out of range key")
	}
}
