package output

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

type sysInfo struct {
	Family string   `json:"family" yaml:"family"`
	Arch   string   `json:"arch" yaml:"arch"`
	Args   []string `json:"args" yaml:"args"`
}

func format(t *testing.T, f Format, data any) string {
	t.Helper()
	var buf bytes.Buffer
	if err := NewFormatter(f, false).Format(&buf, data); err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	return buf.String()
}

func TestNewFormatter_Table(t *testing.T) {
	for _, f := range []Format{FormatTable, "unknown"} {
		tf, ok := NewFormatter(f, true).(*TableFormatter)
		if !ok || !tf.Wide {
			t.Errorf("NewFormatter(%q, true) = %#v, want wide table", f, tf)
		}
	}
}

func TestFormat_JSON(t *testing.T) {
	data := sysInfo{Family: "unix", Arch: "amd64", Args: []string{"-l"}}
	want := "{\n  \"family\": \"unix\",\n  \"arch\": \"amd64\",\n  \"args\": [\n    \"-l\"\n  ]\n}\n"
	if got := format(t, FormatJSON, data); got != want {
		t.Errorf("json = %q, want %q", got, want)
	}
	if got := strings.TrimSpace(format(t, FormatJSON, nil)); got != "null" {
		t.Errorf("json(nil) = %q", got)
	}
}

func TestFormat_YAML(t *testing.T) {
	data := sysInfo{Family: "unix", Arch: "arm64", Args: []string{"-l", "/tmp"}}
	want := "family: unix\narch: arm64\nargs:\n  - -l\n  - /tmp\n"
	if got := format(t, FormatYAML, data); got != want {
		t.Errorf("yaml = %q, want %q", got, want)
	}
}

func TestFormatterFunc(t *testing.T) {
	var seen any
	f := FormatterFunc(func(w io.Writer, data any) error {
		seen = data
		return nil
	})
	if err := f.Format(nil, 5); err != nil || seen != 5 {
		t.Errorf("FormatterFunc.Format() = %v, seen %v", err, seen)
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatTable, false},
		{"table", FormatTable, false},
		{"JSON", FormatJSON, false},
		{" yaml ", FormatYAML, false},
		{"xml", "", true},
	}

	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, %v; want %q, wantErr %v", tt.in, got, err, tt.want, tt.wantErr)
		}
	}
}
