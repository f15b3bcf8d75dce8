package main

import "testing"

func TestStorePath(t *testing.T) {
	tests := []struct {
		base, serial, want string
	}{
		{"/var/lib/razerkbd/bindings.db", "PM1", "/var/lib/razerkbd/bindings-PM1.db"},
		{"/tmp/store", "XX0000000000", "/tmp/store-XX0000000000"},
	}
	for _, tt := range tests {
		if got := storePath(tt.base, tt.serial); got != tt.want {
			t.Errorf("storePath(%q, %q) = %q, want %q", tt.base, tt.serial, got, tt.want)
		}
	}
}
