package discord

import "testing"

func TestTruncate(t *testing.T) {
	cases := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is far too long", 7, "this is…"},
	}
	for _, c := range cases {
		if got := truncate(c.in, c.max); got != c.want {
			t.Fatalf("truncate(%q, %d) = %q, want %q", c.in, c.max, got, c.want)
		}
	}
}

func TestCapitalize(t *testing.T) {
	cases := map[string]string{
		"":       "",
		"claude": "Claude",
		"gpt":    "Gpt",
		"Other":  "Other",
	}
	for in, want := range cases {
		if got := capitalize(in); got != want {
			t.Fatalf("capitalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestOwnerMention(t *testing.T) {
	if got := ownerMention(""); got != "" {
		t.Fatalf("ownerMention(\"\") = %q, want empty", got)
	}
	if got, want := ownerMention("123"), "<@123>"; got != want {
		t.Fatalf("ownerMention(123) = %q, want %q", got, want)
	}
}
