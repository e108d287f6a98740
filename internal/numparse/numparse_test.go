package numparse

import "testing"

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"1500", "1500", true},
		{"1500.5", "1500.5", true},
		{"1 500,50", "1500.5", true},
		{"1 500,50", "1500.5", true},
		{"1.234,56", "1234.56", true},
		{"1,234.56", "1234.56", true},
		{"1,234,567", "1234567", true},
		{"1.234.567", "1234567", true},
		{"300,5", "300.5", true},
		{"-300", "-300", true},
		{"(250)", "-250", true},
		{"1 500 руб.", "1500", true},
		{"₽ 2 000", "2000", true},
		{"$12.345", "12.35", true},
		{"1.5E+3", "1500", true},
		{"", "0", false},
		{"-", "0", false},
		{"нет данных", "0", false},
		{"15.06.2024", "0", false},
		{"12:30", "0", false},
		{"12abc34", "0", false},
		{"Итого: 500", "0", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseAmount(tt.in)
			if ok != tt.ok {
				t.Fatalf("ParseAmount(%q) ok = %v, want %v", tt.in, ok, tt.ok)
			}
			if ok && got.String() != tt.want {
				t.Errorf("ParseAmount(%q) = %s, want %s", tt.in, got.String(), tt.want)
			}
		})
	}
}

func TestParseInt(t *testing.T) {
	if n, ok := ParseInt("12"); !ok || n != 12 {
		t.Errorf("ParseInt(12) = %d, %v", n, ok)
	}
	if n, ok := ParseInt("1 200,0"); !ok || n != 1200 {
		t.Errorf("ParseInt(1 200,0) = %d, %v", n, ok)
	}
	if _, ok := ParseInt("2,5"); ok {
		t.Error("fractional count accepted")
	}
}

func TestIsNumeric(t *testing.T) {
	if !IsNumeric("1 000") || IsNumeric("ДОХОДЫ") {
		t.Error("IsNumeric misclassified")
	}
}
