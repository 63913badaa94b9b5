package validation

import (
	"strings"
	"testing"
)

func TestValidateName(t *testing.T) {
	testCases := []struct {
		name        string
		input       string
		expectValid bool
	}{
		{"simple", "file.txt", true},
		{"with_dash", "my-file.txt", true},
		{"with_dots", "file.v1.2.3.txt", true},
		{"double_dots_inside", "data..v2.csv", true},
		{"hidden_file", ".hidden", true},
		{"spaces", "my file.txt", true},
		{"unicode", "résultats", true},
		{"max_length", strings.Repeat("a", MaxNameLength), true},

		{"empty", "", false},
		{"dot", ".", false},
		{"dotdot", "..", false},
		{"forward_slash", "a/b", false},
		{"backslash", `a\b`, false},
		{"null_byte", "a\x00b", false},
		{"newline", "a\nb", false},
		{"too_long", strings.Repeat("a", MaxNameLength+1), false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateName(tc.input)
			if tc.expectValid && err != nil {
				t.Errorf("Expected %q to be valid, got error: %v", tc.input, err)
			}
			if !tc.expectValid && err == nil {
				t.Errorf("Expected %q to be invalid, got no error", tc.input)
			}
		})
	}
}

func TestValidateRelativePath(t *testing.T) {
	testCases := []struct {
		input       string
		expectValid bool
	}{
		{"runs", true},
		{"runs/2024/inputs", true},
		{"/runs/2024/", true},
		{"", false},
		{"/", false},
		{"runs//inputs", false},
		{"runs/../etc", false},
		{"runs/\tx", false},
	}

	for _, tc := range testCases {
		err := ValidateRelativePath(tc.input)
		if tc.expectValid && err != nil {
			t.Errorf("Expected %q to be valid, got error: %v", tc.input, err)
		}
		if !tc.expectValid && err == nil {
			t.Errorf("Expected %q to be invalid, got no error", tc.input)
		}
	}
}
