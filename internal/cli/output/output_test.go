package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"table", FormatTable, false},
		{"", FormatTable, false},
		{"JSON", FormatJSON, false},
		{" json ", FormatJSON, false},
		{"yaml", "", true},
		{"csv", "", true},
	}

	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseFormat(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseFormat(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPrintTable(t *testing.T) {
	var buf bytes.Buffer

	data := NewTableData("ID", "FILE", "SIZE")
	data.AddRow("main", "main.abcd1234.js", "1.2 kB")
	data.AddRow("vendor", "vendor.ef567890.js", "84 kB")

	if err := PrintTable(&buf, data); err != nil {
		t.Fatalf("PrintTable: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"ID", "main.abcd1234.js", "vendor"} {
		if !strings.Contains(out, want) {
			t.Errorf("table output missing %q:\n%s", want, out)
		}
	}
}

func TestPrinter_PrintJSONFallback(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf, FormatTable, false)

	// A plain map does not implement TableRenderer, so it renders as JSON.
	if err := p.Print(map[string]int{"chunks": 3}); err != nil {
		t.Fatalf("Print: %v", err)
	}

	var decoded map[string]int
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if decoded["chunks"] != 3 {
		t.Errorf("decoded = %v", decoded)
	}
}

func TestPrinter_ColorToggle(t *testing.T) {
	var plain, colored bytes.Buffer

	NewPrinter(&plain, FormatTable, false).Success("done")
	NewPrinter(&colored, FormatTable, true).Success("done")

	if strings.Contains(plain.String(), "\033[") {
		t.Error("plain output contains ANSI escapes")
	}
	if !strings.Contains(colored.String(), "\033[32m") {
		t.Error("colored output missing ANSI escape")
	}
}
