package dbstrings

import "testing"

func TestToPascalCase(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"user", "User"},
		{"user_id", "UserId"},
		{"created_at", "CreatedAt"},
		{"id", "Id"},
		{"", ""},
		{"sale_item_total", "SaleItemTotal"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := ToPascalCase(tt.input)
			if result != tt.expected {
				t.Errorf("ToPascalCase(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestToSnakeCase(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Sale", "sale"},
		{"SaleItem", "sale_item"},
		{"createdAt", "created_at"},
		{"price", "price"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := ToSnakeCase(tt.input)
			if result != tt.expected {
				t.Errorf("ToSnakeCase(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestToPlural(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"sale", "sales"},
		{"category", "categories"},
		{"address", "addresses"},
		{"box", "boxes"},
		{"child", "children"},
		{"status", "statuses"},
		{"day", "days"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := ToPlural(tt.input)
			if result != tt.expected {
				t.Errorf("ToPlural(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestToSingular(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"sales", "sale"},
		{"categories", "category"},
		{"addresses", "address"},
		{"children", "child"},
		{"people", "person"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := ToSingular(tt.input)
			if result != tt.expected {
				t.Errorf("ToSingular(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestPluralSingularRoundTrip(t *testing.T) {
	words := []string{"sale", "customer", "product", "category", "order"}
	for _, w := range words {
		if got := ToSingular(ToPlural(w)); got != w {
			t.Errorf("round trip of %q = %q", w, got)
		}
	}
}
