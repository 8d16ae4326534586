package output

import (
	"bytes"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/yndnr/rsvpguard/internal/core/domain"
)

type guestRow struct {
	GuestID string    `json:"guest_id"`
	Name    string    `json:"name"`
	Used    bool      `json:"used"`
	Token   string    `json:"token" table:"wide"`
	Secret  string    `json:"secret" table:"-"`
	Expires time.Time `json:"expires_at"`
	private string    //nolint:unused
}

func TestTableFormatter_Format(t *testing.T) {
	expires := time.Date(2026, 6, 20, 18, 0, 0, 0, time.UTC)
	rows := []guestRow{
		{GuestID: "g-1", Name: "Ada", Used: true, Token: "TOKEN-A", Secret: "s", Expires: expires},
		{GuestID: "g-2", Name: "Grace", Token: "TOKEN-B"},
	}

	tests := []struct {
		name    string
		f       *TableFormatter
		data    any
		want    []string
		notWant []string
	}{
		{
			name:    "slice of structs",
			f:       &TableFormatter{},
			data:    rows,
			want:    []string{"GUEST_ID", "NAME", "USED", "EXPIRES_AT", "Ada", "Grace", "2026-06-20 18:00", "true"},
			notWant: []string{"TOKEN", "SECRET", "private"},
		},
		{
			name: "wide adds wide columns",
			f:    &TableFormatter{Wide: true},
			data: rows,
			want: []string{"TOKEN", "TOKEN-A"},
		},
		{
			name: "pointer slice",
			f:    &TableFormatter{},
			data: []*guestRow{&rows[0]},
			want: []string{"Ada"},
		},
		{
			name: "single struct as field table",
			f:    &TableFormatter{},
			data: rows[0],
			want: []string{"FIELD", "VALUE", "guest_id", "g-1"},
		},
		{
			name: "map",
			f:    &TableFormatter{},
			data: map[string]int{"invalid_token": 3, "rate_limit_exceeded": 1},
			want: []string{"KEY", "VALUE", "invalid_token", "3"},
		},
		{
			name:    "explicit table without headers",
			f:       &TableFormatter{NoHeaders: true},
			data:    &Table{Headers: []string{"ID"}, Rows: [][]string{{"bk-1"}}},
			want:    []string{"bk-1"},
			notWant: []string{"ID"},
		},
		{
			name: "table value",
			f:    &TableFormatter{},
			data: Table{Headers: []string{"ID"}, Rows: [][]string{{"bk-2"}}},
			want: []string{"ID", "bk-2"},
		},
		{
			name:    "empty slice",
			f:       &TableFormatter{},
			data:    []guestRow{},
			notWant: []string{"NAME"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := tt.f.Format(&buf, tt.data); err != nil {
				t.Fatalf("Format() error = %v", err)
			}
			out := buf.String()
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("output missing %q:\n%s", w, out)
				}
			}
			for _, w := range tt.notWant {
				if strings.Contains(out, w) {
					t.Errorf("output should not contain %q:\n%s", w, out)
				}
			}
		})
	}
}

func TestTableFormatter_Format_Nil(t *testing.T) {
	var buf bytes.Buffer
	if err := (&TableFormatter{}).Format(&buf, nil); err != nil {
		t.Fatalf("Format(nil) error = %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("Format(nil) = %q, want empty", buf.String())
	}
}

func TestTableFormatter_Format_MapSorted(t *testing.T) {
	var buf bytes.Buffer
	data := map[string]int{"zeta": 1, "alpha": 2, "mid": 3}
	if err := (&TableFormatter{}).Format(&buf, data); err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	out := buf.String()
	if !(strings.Index(out, "alpha") < strings.Index(out, "mid") && strings.Index(out, "mid") < strings.Index(out, "zeta")) {
		t.Errorf("map rows not sorted:\n%s", out)
	}
}

func TestTableFormatter_Format_FallbackToJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := (&TableFormatter{}).Format(&buf, 42); err != nil {
		t.Fatalf("Format() error = %v", err)
	}
	if strings.TrimSpace(buf.String()) != "42" {
		t.Errorf("Format(42) = %q, want JSON fallback", buf.String())
	}
}

func TestFormatValue(t *testing.T) {
	str := "pointer value"
	var nilPtr *string
	var iface any = "interface value"

	testCases := []struct {
		name     string
		input    reflect.Value
		expected string
	}{
		{"string", reflect.ValueOf("hello"), "hello"},
		{"empty string", reflect.ValueOf(""), "-"},
		{"int", reflect.ValueOf(42), "42"},
		{"uint", reflect.ValueOf(uint(99)), "99"},
		{"float64", reflect.ValueOf(3.14159), "3.14"},
		{"bool", reflect.ValueOf(false), "false"},
		{"empty slice", reflect.ValueOf([]int{}), "-"},
		{"slice", reflect.ValueOf([]int{1, 2, 3}), "[3 items]"},
		{"map", reflect.ValueOf(map[string]int{"a": 1}), "{1 keys}"},
		{"duration", reflect.ValueOf(90 * time.Second), "1m30s"},
		{"severity", reflect.ValueOf(domain.SeverityHigh), "high"},
		{"zero time", reflect.ValueOf(time.Time{}), "-"},
		{"pointer", reflect.ValueOf(&str), "pointer value"},
		{"nil pointer", reflect.ValueOf(nilPtr), ""},
		{"interface", reflect.ValueOf(&iface).Elem(), "interface value"},
		{"invalid", reflect.Value{}, ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := formatValue(tc.input); got != tc.expected {
				t.Errorf("formatValue() = %q, want %q", got, tc.expected)
			}
		})
	}
}

func TestTable_AddRowRender(t *testing.T) {
	table := &Table{}
	table.SetHeaders("IDENTIFIER", "REASON")
	table.AddRow("203.0.113.9", "brute_force")

	var buf bytes.Buffer
	if err := table.Render(&buf); err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("Render() lines = %d, want 2", len(lines))
	}
	if !strings.HasPrefix(lines[1], "203.0.113.9") {
		t.Errorf("row = %q", lines[1])
	}
}

func TestToSnakeCase(t *testing.T) {
	testCases := []struct {
		input    string
		expected string
	}{
		{"Name", "Name"},
		{"GuestID", "Guest_I_D"},
		{"already_snake", "already_snake"},
	}

	for _, tc := range testCases {
		if got := toSnakeCase(tc.input); got != tc.expected {
			t.Errorf("toSnakeCase(%q) = %q, want %q", tc.input, got, tc.expected)
		}
	}
}
