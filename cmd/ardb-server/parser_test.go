package main

import (
	"reflect"
	"strings"
	"testing"
)

func parseOne(t *testing.T, wire string) ([]string, error) {
	t.Helper()
	return NewParser(strings.NewReader(wire)).Parse()
}

func TestParseRESPArray(t *testing.T) {
	cases := []struct {
		wire string
		want []string
	}{
		{"*1\r\n$4\r\nPING\r\n", []string{"PING"}},
		{"*3\r\n$5\r\nPFADD\r\n$1\r\nk\r\n$5\r\nhello\r\n", []string{"PFADD", "k", "hello"}},
		{"*2\r\n$3\r\nGET\r\n$0\r\n\r\n", []string{"GET", ""}},
		{"*2\r\n$3\r\nGET\r\n$-1\r\n", []string{"GET", ""}},
		{"*0\r\n", []string{}},
		{"*-1\r\n", []string{}},
	}

	for _, c := range cases {
		got, err := parseOne(t, c.wire)
		if err != nil {
			t.Errorf("%q: unexpected error %v", c.wire, err)
			continue
		}
		if !reflect.DeepEqual(got, c.want) {
			t.Errorf("%q: got %v, want %v", c.wire, got, c.want)
		}
	}
}

func TestParseInline(t *testing.T) {
	got, err := parseOne(t, "PFADD k hello\r\n")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"PFADD", "k", "hello"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}

	// Repeated whitespace collapses.
	got, err = parseOne(t, "  PING   \r\n")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, []string{"PING"}) {
		t.Fatalf("got %v", got)
	}
}

func TestParseBinarySafety(t *testing.T) {
	// Bulk strings carry arbitrary bytes, including CR, LF and NUL.
	wire := "*2\r\n$3\r\nSET\r\n$5\r\na\r\n\x00b\r\n"
	got, err := parseOne(t, wire)
	if err != nil {
		t.Fatal(err)
	}
	if got[1] != "a\r\n\x00b" {
		t.Fatalf("binary argument mangled: %q", got[1])
	}
}

func TestParseErrors(t *testing.T) {
	cases := map[string]string{
		"missing bulk header":   "*1\r\nPING\r\n",
		"bad array count":       "*x\r\n",
		"bad bulk length":       "*1\r\n$y\r\n",
		"negative bulk length":  "*1\r\n$-2\r\n",
		"missing trailing CRLF": "*1\r\n$4\r\nPINGxx",
		"oversized array":       "*2000000\r\n",
		"oversized bulk":        "*1\r\n$999999999\r\n",
	}

	for name, wire := range cases {
		if _, err := parseOne(t, wire); err == nil {
			t.Errorf("%s: expected an error for %q", name, wire)
		}
	}
}

func TestParsePipelined(t *testing.T) {
	p := NewParser(strings.NewReader("PING\r\n*1\r\n$4\r\nPING\r\n"))

	first, err := p.Parse()
	if err != nil {
		t.Fatal(err)
	}
	if p.Buffered() == 0 {
		t.Error("second command should still be buffered")
	}

	second, err := p.Parse()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("inline %v and array %v should parse identically", first, second)
	}
}
