package httpapi

import "testing"

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"+972541112222", "+972541112222"},
		{"0541112222", "+972541112222"},
		{"054-111-2222", "+972541112222"},
		{" +972541112222 ", "+972541112222"},
	}
	for _, c := range cases {
		got, err := NormalizePhone(c.in)
		if err != nil {
			t.Fatalf("NormalizePhone(%q): %v", c.in, err)
		}
		if got != c.want {
			t.Fatalf("NormalizePhone(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestNormalizePhoneRejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "abc", "123", "+97254"} {
		if _, err := NormalizePhone(in); err == nil {
			t.Fatalf("NormalizePhone(%q): expected error", in)
		}
	}
}
