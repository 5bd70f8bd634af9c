package services

import (
	"reflect"
	"testing"
)

func TestSplitSections(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  [][]string
	}{
		{"Empty", "", nil},
		{"Only separators", "--------\n--------", nil},
		{"Single section", "a\nb", [][]string{{"a", "b"}}},
		{"Trims and drops blanks", "  a  \n\n b\n--------\n\nc\n", [][]string{{"a", "b"}, {"c"}}},
		{"CRLF", "a\r\n--------\r\nb\r\n", [][]string{{"a"}, {"b"}}},
		{"Consecutive separators", "a\n--------\n--------\nb", [][]string{{"a"}, {"b"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SplitSections(tt.input); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SplitSections(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestLooksLikeItemText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"Item card", rareRingText, true},
		{"Empty", "", false},
		{"Too short", "Rarity: Rare\nFoo", false},
		{"Plain prose", "hello\nworld\nagain", false},
		{"Separator only marker", "a\n--------\nb", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := LooksLikeItemText(tt.input); got != tt.want {
				t.Errorf("LooksLikeItemText() = %v, want %v", got, tt.want)
			}
		})
	}
}
