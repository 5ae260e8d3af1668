package command

import (
	"reflect"
	"testing"
)

func TestParse(t *testing.T) {
	cases := []struct {
		input string
		ok    bool
		want  Command
	}{
		{"play", false, Command{}},
		{"/", true, Command{}},
		{"  /Tempo 128", true, Command{Name: "tempo", Args: []string{"128"}, Raw: "Tempo 128", Remainder: "128"}},
		{"/search  warm   pads", true, Command{Name: "search", Args: []string{"warm", "pads"}, Raw: "search  warm   pads", Remainder: "warm   pads"}},
		{`/insert "/samples/my kick.wav" 0 1`, true, Command{Name: "insert", Args: []string{"/samples/my kick.wav", "0", "1"}, Raw: `insert "/samples/my kick.wav" 0 1`, Remainder: `"/samples/my kick.wav" 0 1`}},
		{"/play", true, Command{Name: "play", Args: []string{}, Raw: "play"}},
	}
	for _, tc := range cases {
		got, ok := Parse(tc.input)
		if ok != tc.ok {
			t.Fatalf("Parse(%q) ok=%v, want %v", tc.input, ok, tc.ok)
		}
		if !ok {
			continue
		}
		if got.Name != tc.want.Name || got.Raw != tc.want.Raw || got.Remainder != tc.want.Remainder {
			t.Fatalf("Parse(%q) = %+v, want %+v", tc.input, got, tc.want)
		}
		if len(got.Args) != len(tc.want.Args) || (len(got.Args) > 0 && !reflect.DeepEqual(got.Args, tc.want.Args)) {
			t.Fatalf("Parse(%q) args = %q, want %q", tc.input, got.Args, tc.want.Args)
		}
	}
}

func TestTokenize(t *testing.T) {
	cases := []struct {
		raw  string
		want []string
	}{
		{`insert 'my kick.wav' 0`, []string{"insert", "my kick.wav", "0"}},
		{`insert my\ kick.wav 0`, []string{"insert", "my kick.wav", "0"}},
		{`search "warm pads"`, []string{"search", "warm pads"}},
		{`search "warm pads`, []string{"search", `"warm`, "pads"}},
	}
	for _, tc := range cases {
		if got := tokenize(tc.raw); !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("tokenize(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}
