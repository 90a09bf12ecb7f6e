package steamid

import "testing"

func TestTo64(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"STEAM_0:1:52245092", "76561198064755913", true},
		{"STEAM_1:1:52245092", "76561198064755913", true},
		{"76561198064755913", "76561198064755913", true},
		{"1:1:52245092", "76561198064755913", true},
		{"[U:1:104490185]", "76561198064755913", true},
		{"steamcommunity.com/profiles/76561198064755913", "76561198064755913", true},
		{"http://steamcommunity.com/profiles/76561198064755913", "76561198064755913", true},
		{"http://steamcommunity.com/profiles/76561198064755913/", "76561198064755913", true},
		{"  STEAM_0:1:52245092  ", "76561198064755913", true},
		{"", "", false},
		{"STEAM_0:2:52245092", "", false},
		{"[U:1:0]", "", false},
		{"[U:1:banana]", "", false},
		{"12345", "", false},
		{"some_vanity_name", "", false},
		{"http://steamcommunity.com/id/somebody", "", false},
	}

	for _, tt := range tests {
		got, ok := To64(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Errorf("To64(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestSteam2To64(t *testing.T) {
	got, err := Steam2To64("STEAM_0:1:52245092")
	if err != nil {
		t.Fatalf("Steam2To64: %v", err)
	}
	if got != "76561198064755913" {
		t.Errorf("got %q", got)
	}

	if _, err := Steam2To64("STEAM_0:9:1"); err == nil {
		t.Error("expected error for invalid universe digit")
	}
}

func TestSteam3To64(t *testing.T) {
	got, err := Steam3To64("[U:1:104490185]")
	if err != nil {
		t.Fatalf("Steam3To64: %v", err)
	}
	if got != "76561198064755913" {
		t.Errorf("got %q", got)
	}
}

func TestIsValid(t *testing.T) {
	if !IsValid("76561198064755913") {
		t.Error("valid steam64 rejected")
	}
	if IsValid("not-a-steamid") {
		t.Error("garbage accepted")
	}
}
