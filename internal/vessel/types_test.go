package vessel

import "testing"

func TestTypeNameFromCode(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{30, "Fishing"},
		{36, "Sailing"},
		{52, "Tug"},
		{60, "Passenger"},
		{65, "Passenger"},
		{70, "Cargo"},
		{71, "Cargo (Hazard A)"},
		{74, "Cargo (Hazard D)"},
		{75, "Cargo"},
		{80, "Tanker"},
		{83, "Tanker (Hazard C)"},
		{84, "Tanker (Hazard D)"},
		{99, "Other"},
		{110, "Unknown (110)"},
		{-3, "Unknown (-3)"},
	}

	for _, tt := range tests {
		if got := TypeNameFromCode(tt.code); got != tt.want {
			t.Errorf("TypeNameFromCode(%d) = %q, want %q", tt.code, got, tt.want)
		}
	}
}

func TestTypeNameFromNavStatus(t *testing.T) {
	tests := []struct {
		status int
		want   string
	}{
		{7, "Fishing"},
		{8, "Sailing"},
		{0, "Unknown"},
		{15, "Unknown"},
	}

	for _, tt := range tests {
		if got := TypeNameFromNavStatus(tt.status); got != tt.want {
			t.Errorf("TypeNameFromNavStatus(%d) = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestFallbackName(t *testing.T) {
	if got := FallbackName(987654321); got != "Vessel 987654321" {
		t.Errorf("FallbackName() = %q", got)
	}
}
