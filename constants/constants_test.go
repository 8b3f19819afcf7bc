package constants

import "testing"

func TestJobStatusIsTerminal(t *testing.T) {
	tests := []struct {
		status JobStatus
		want   bool
	}{
		{JobStatusProcessing, false},
		{JobStatusCompleted, true},
		{JobStatusFailed, true},
		{JobStatus(""), false},
	}
	for _, tt := range tests {
		if got := tt.status.IsTerminal(); got != tt.want {
			t.Errorf("%q.IsTerminal() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestParseAnalysisMode(t *testing.T) {
	tests := []struct {
		in   string
		want AnalysisMode
	}{
		{"vision_first", ModeVisionFirst},
		{"vision_only", ModeVisionOnly},
		{"manual_only", ModeManualOnly},
		{"", ModeVisionFirst},
		{"garbage", ModeVisionFirst},
	}
	for _, tt := range tests {
		if got := ParseAnalysisMode(tt.in); got != tt.want {
			t.Errorf("ParseAnalysisMode(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestMapExtToFormat(t *testing.T) {
	tests := []struct {
		ext  string
		want FileFormat
	}{
		{"pdf", PDF},
		{".PDF", PDF},
		{"docx", DOCX},
		{"jpg", IMAGE},
		{".JPEG", IMAGE},
		{"png", IMAGE},
		{"tiff", IMAGE},
		{"webp", IMAGE},
		{"exe", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := MapExtToFormat(tt.ext); got != tt.want {
			t.Errorf("MapExtToFormat(%q) = %q, want %q", tt.ext, got, tt.want)
		}
	}
}

func TestMapMIMEToFormat(t *testing.T) {
	tests := []struct {
		mime string
		want FileFormat
	}{
		{"application/pdf", PDF},
		{" Application/PDF ", PDF},
		{MIMEDocx, DOCX},
		{"image/png", IMAGE},
		{"image/tiff", IMAGE},
		{"text/plain", ""},
		{"application/zip", ""},
	}
	for _, tt := range tests {
		if got := MapMIMEToFormat(tt.mime); got != tt.want {
			t.Errorf("MapMIMEToFormat(%q) = %q, want %q", tt.mime, got, tt.want)
		}
	}
}
