package cli

import (
	"strings"
	"testing"
)

func TestDefaultPrerequisites(t *testing.T) {
	prereqs := DefaultPrerequisites()

	if len(prereqs) == 0 {
		t.Error("DefaultPrerequisites should return at least one prerequisite")
	}

	var sawRR, sawLLDB bool
	for _, prereq := range prereqs {
		switch prereq.Name {
		case "rr":
			sawRR = true
			if !prereq.Required {
				t.Error("rr should be required")
			}
		case "lldb":
			sawLLDB = true
			if prereq.Required {
				t.Error("lldb should be optional, not required")
			}
		}
	}

	if !sawRR {
		t.Error("Expected prerequisite \"rr\" not found")
	}
	if !sawLLDB {
		t.Error("Expected prerequisite \"lldb\" not found")
	}
}

func TestCheck_ExistingCommand(t *testing.T) {
	// Test with a command that definitely exists on any system
	prereq := Prerequisite{
		Name:        "echo",
		Required:    true,
		Description: "Echo command",
	}

	result := Check(prereq)

	if !result.Found {
		t.Skip("echo command not found in PATH, skipping test")
	}

	if result.Path == "" {
		t.Error("Check should return path for found command")
	}

	if result.Error != nil {
		t.Errorf("Check should not return error for found command: %v", result.Error)
	}
}

func TestCheck_NonExistingCommand(t *testing.T) {
	prereq := Prerequisite{
		Name:        "definitely-not-a-real-command-12345",
		Required:    true,
		Description: "Fake command",
		InstallURL:  "http://example.com",
	}

	result := Check(prereq)

	if result.Found {
		t.Error("Check should return Found=false for non-existing command")
	}

	if result.Path != "" {
		t.Error("Check should return empty path for non-existing command")
	}

	if result.Error == nil {
		t.Error("Check should return error for non-existing command")
	}
}

func TestCheckAll(t *testing.T) {
	prereqs := []Prerequisite{
		{Name: "echo", Required: true},
		{Name: "definitely-not-a-real-command-12345", Required: false},
	}

	results := CheckAll(prereqs)

	if len(results) != len(prereqs) {
		t.Fatalf("CheckAll returned %d results, want %d", len(results), len(prereqs))
	}
	if results[1].Found {
		t.Error("fake command should not be found")
	}
}

func TestValidateRequired(t *testing.T) {
	// All-optional list always validates
	optional := []Prerequisite{
		{Name: "definitely-not-a-real-command-12345", Required: false},
	}
	if err := ValidateRequired(optional); err != nil {
		t.Errorf("ValidateRequired should pass for optional-only list: %v", err)
	}

	// Missing required tool fails with install instructions
	missing := []Prerequisite{
		{
			Name:        "definitely-not-a-real-command-12345",
			Required:    true,
			Description: "Fake tool",
			InstallURL:  "http://example.com",
		},
	}
	err := ValidateRequired(missing)
	if err == nil {
		t.Fatal("ValidateRequired should fail for missing required tool")
	}
	if !strings.Contains(err.Error(), "http://example.com") {
		t.Error("error should include install URL")
	}
}

func TestFormatCheckResults(t *testing.T) {
	results := []CheckResult{
		{
			Prerequisite: Prerequisite{Name: "rr", Required: true},
			Found:        true,
			Version:      "rr version 5.7.0",
		},
		{
			Prerequisite: Prerequisite{Name: "lldb", Required: false},
			Found:        false,
		},
	}

	out := FormatCheckResults(results)

	if !strings.Contains(out, "rr") {
		t.Error("output should mention rr")
	}
	if !strings.Contains(out, "rr version 5.7.0") {
		t.Error("output should include version for found tools")
	}
	if !strings.Contains(out, "[optional]") {
		t.Error("output should mark missing optional tools")
	}
}
