package cli

import (
	"testing"

	"github.com/spf13/cobra"
)

func TestRegisterBooleanFlagParsesValues(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name         string
		defaultValue bool
		arguments    []string
		expected     bool
		expectError  bool
	}{
		{
			name:         "defaults_to_false",
			defaultValue: false,
			arguments:    []string{},
			expected:     false,
			expectError:  false,
		},
		{
			name:         "sets_true_without_value",
			defaultValue: false,
			arguments:    []string{"--collapse"},
			expected:     true,
			expectError:  false,
		},
		{
			name:         "sets_false_with_equals",
			defaultValue: true,
			arguments:    []string{"--collapse=false"},
			expected:     false,
			expectError:  false,
		},
		{
			name:         "sets_false_with_no_literal",
			defaultValue: true,
			arguments:    []string{"--collapse", "no"},
			expected:     false,
			expectError:  false,
		},
		{
			name:         "sets_true_with_on_literal",
			defaultValue: false,
			arguments:    []string{"--collapse", "on"},
			expected:     true,
			expectError:  false,
		},
		{
			name:         "ignores_non_boolean_trailing_value",
			defaultValue: false,
			arguments:    []string{"--collapse", "maybe"},
			expected:     true,
			expectError:  false,
		},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()
			command := &cobra.Command{Use: "tree"}
			flagSet := command.Flags()
			flagValue := !testCase.defaultValue
			registerBooleanFlag(flagSet, &flagValue, "collapse", testCase.defaultValue, "merge single-child directories")
			normalizedArguments := normalizeBooleanFlagArguments(command, testCase.arguments)
			parseErr := command.ParseFlags(normalizedArguments)
			if testCase.expectError {
				if parseErr == nil {
					t.Fatalf("expected parse error for arguments %v", testCase.arguments)
				}
				return
			}
			if parseErr != nil {
				t.Fatalf("unexpected parse error: %v", parseErr)
			}
			if len(testCase.arguments) == 0 && flagValue != testCase.defaultValue {
				t.Fatalf("expected default %t, got %t", testCase.defaultValue, flagValue)
			}
			if flagValue != testCase.expected {
				t.Fatalf("expected %t, got %t", testCase.expected, flagValue)
			}
		})
	}
}

func TestBooleanOverridePrefersExplicitFlags(t *testing.T) {
	command := &cobra.Command{Use: "tree"}
	var collapse bool
	registerBooleanFlag(command.Flags(), &collapse, "collapse", true, "merge single-child directories")

	if !booleanOverride(command.Flags(), "collapse", collapse, true) {
		t.Fatalf("expected configured value when the flag is not given")
	}
	if err := command.ParseFlags([]string{"--collapse=false"}); err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if booleanOverride(command.Flags(), "collapse", collapse, true) {
		t.Fatalf("expected explicit flag to override configuration")
	}
}

func TestFormatFlagValidatesValues(t *testing.T) {
	testCases := []struct {
		name        string
		arguments   []string
		expected    string
		expectError bool
	}{
		{name: "unset", arguments: nil, expected: ""},
		{name: "json", arguments: []string{"--format", "json"}, expected: "json"},
		{name: "upper_case", arguments: []string{"--format=XML"}, expected: "xml"},
		{name: "unknown", arguments: []string{"--format", "yaml"}, expectError: true},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			command := &cobra.Command{Use: "tree"}
			var format string
			registerFormatFlag(command.Flags(), &format, "format", "output format")
			parseErr := command.ParseFlags(testCase.arguments)
			if testCase.expectError {
				if parseErr == nil {
					t.Fatalf("expected error for arguments %v", testCase.arguments)
				}
				return
			}
			if parseErr != nil {
				t.Fatalf("unexpected parse error: %v", parseErr)
			}
			if format != testCase.expected {
				t.Fatalf("expected %q, got %q", testCase.expected, format)
			}
		})
	}
}
