package validation

import (
	"strings"
	"testing"
)

func TestValidateNodeID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		// Valid ids
		{"generated placeholder", "textToImage-1755916800000-a1b2c3d4", false},
		{"simple", "p1", false},
		{"single char", "a", false},
		{"digits first", "42-node", false},
		{"underscores and dots", "node_v1.2", false},
		{"max length", strings.Repeat("a", 128), false},

		// Invalid ids
		{"empty", "", true},
		{"leading hyphen", "-node", true},
		{"leading dot", ".hidden", true},
		{"path traversal", "../../etc/passwd", true},
		{"space", "node 1", true},
		{"slash", "a/b", true},
		{"newline", "p1\n", true},
		{"unicode", "nøde", true},
		{"too long", strings.Repeat("a", 129), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateNodeID(tt.id)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateNodeID(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
			}
		})
	}
}

func TestValidateEdgeID(t *testing.T) {
	if err := ValidateEdgeID("e-textToImage-1755916800000-a1b2c3d4"); err != nil {
		t.Errorf("expected generated edge id to validate, got %v", err)
	}
	if err := ValidateEdgeID(""); err == nil {
		t.Error("expected error for empty edge id")
	}
	if err := ValidateEdgeID("e 1"); err == nil {
		t.Error("expected error for edge id with space")
	}
}

func TestValidateProjectName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		// Valid names
		{"simple", "My First Film", false},
		{"unicode", "Côte d'Azur reel", false},
		{"emoji", "Launch video 🎬", false},
		{"padded", "  padded  ", false},
		{"max length", strings.Repeat("n", 120), false},

		// Invalid names
		{"empty", "", true},
		{"whitespace only", "   ", true},
		{"control char", "film\x00name", true},
		{"newline", "line\nbreak", true},
		{"too long", strings.Repeat("n", 121), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateProjectName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateProjectName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"trims", "  Storyboard draft  ", "Storyboard draft", false},
		{"collapses inner runs", "Launch   video\t v2", "Launch video v2", false},
		{"already clean", "Short film", "Short film", false},
		{"whitespace only", " \t ", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SanitizeName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("SanitizeName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("SanitizeName(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
