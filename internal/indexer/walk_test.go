package indexer

import "testing"

func TestSkipName(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"notes.txt", false},
		{"contract.pdf", false},
		{"memo.docx", false},
		{"README.md", false},
		{".hidden.txt", true},
		{".git", true},
		{"~$report.docx", true},
		{"upload.tmp", true},
		{"index.lock", true},
		{"download.part", true},
		{"big.CRDOWNLOAD", true},
		{"archive.tmp.txt", false},
	}

	for _, tt := range tests {
		if got := SkipName(tt.name); got != tt.want {
			t.Errorf("SkipName(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestCategory(t *testing.T) {
	tests := []struct {
		relPath string
		want    string
	}{
		{"Contracts/notes.txt", "Contracts"},
		{"Succession/wills/s9.txt", "Succession"},
		{"toplevel.txt", "General"},
	}

	for _, tt := range tests {
		if got := Category(tt.relPath); got != tt.want {
			t.Errorf("Category(%q) = %q, want %q", tt.relPath, got, tt.want)
		}
	}
}
