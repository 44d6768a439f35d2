package bridge

import "testing"

func TestKeyCode(t *testing.T) {
	tests := []struct {
		name string
		want int
		ok   bool
	}{
		{"Digit1", 2, true},
		{"1", 2, true},
		{"Enter", 28, true},
		{"KeyA", 30, true},
		{"A", 30, true},
		{"a", 30, true},
		{"z", 44, true},
		{"Space", 57, true},
		{" ", 57, true},
		{"ArrowDown", 208, true},
		{"Delete", 211, true},
		{"F12", 88, true},
		{"", 0, false},
		{"Hyper", 0, false},
		{"é", 0, false},
	}
	for _, tt := range tests {
		got, ok := KeyCode(tt.name)
		if got != tt.want || ok != tt.ok {
			t.Errorf("KeyCode(%q) = %d, %v; want %d, %v", tt.name, got, ok, tt.want, tt.ok)
		}
	}
}
