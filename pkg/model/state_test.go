package model

import (
	"encoding/json"
	"testing"
)

func TestParseKind(t *testing.T) {
	tests := []struct {
		input   string
		want    Kind
		wantErr bool
	}{
		{"local", KindLocal, false},
		{"Shared", KindShared, false},
		{" FOREIGN ", KindForeign, false},
		{"remote", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseKind(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseKind(%q) err = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseKind(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestPermission_Order(t *testing.T) {
	if !(PermNone < PermRestricted && PermRestricted < PermMinimal && PermMinimal < PermUnrestricted) {
		t.Fatal("permission tiers are not ordered")
	}
}

func TestParsePermission(t *testing.T) {
	tests := []struct {
		input   string
		want    Permission
		wantErr bool
	}{
		{"none", PermNone, false},
		{"Restricted", PermRestricted, false},
		{"minimal", PermMinimal, false},
		{"UNRESTRICTED", PermUnrestricted, false},
		{"root", PermNone, true},
	}
	for _, tt := range tests {
		got, err := ParsePermission(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParsePermission(%q) err = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParsePermission(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestPermission_JSON(t *testing.T) {
	data, err := json.Marshal(struct {
		P Permission `json:"p"`
	}{PermRestricted})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(data) != `{"p":"restricted"}` {
		t.Errorf("Marshal = %s", data)
	}

	var out struct {
		P Permission `json:"p"`
	}
	if err := json.Unmarshal([]byte(`{"p":"unrestricted"}`), &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out.P != PermUnrestricted {
		t.Errorf("P = %v, want unrestricted", out.P)
	}
	if err := json.Unmarshal([]byte(`{"p":"bogus"}`), &out); err == nil {
		t.Error("expected error for unknown tier")
	}
}

func TestPermission_StringOutOfRange(t *testing.T) {
	if got := Permission(9).String(); got != "permission(9)" {
		t.Errorf("String() = %q", got)
	}
}
