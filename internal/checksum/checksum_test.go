package checksum

import "testing"

func TestLuhnValid(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  bool
	}{
		{"visa test number", "4242 4242 4242 4242", true},
		{"visa with dashes", "4242-4242-4242-4242", true},
		{"amex test number", "378282246310005", true},
		{"off by one digit", "4242 4242 4242 4243", false},
		{"too short", "4242 4242", false},
		{"empty", "", false},
		{"letters only", "not a card", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := LuhnValid(tc.input); got != tc.want {
				t.Fatalf("LuhnValid(%q) = %v, want %v", tc.input, got, tc.want)
			}
		})
	}
}

func TestIBANValid(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  bool
	}{
		{"german iban", "DE89370400440532013000", true},
		{"with spaces", "DE89 3704 0044 0532 0130 00", true},
		{"lowercase", "de89370400440532013000", true},
		{"gb iban", "GB82WEST12345698765432", true},
		{"bad check digits", "DE00370400440532013000", false},
		{"wrong shape", "1234DE89370400", false},
		{"too short", "DE893704", false},
		{"empty", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IBANValid(tc.input); got != tc.want {
				t.Fatalf("IBANValid(%q) = %v, want %v", tc.input, got, tc.want)
			}
		})
	}
}

func TestShortHash(t *testing.T) {
	a := ShortHash("sk-abcdefghijklmnopqrst")
	b := ShortHash("sk-abcdefghijklmnopqrst")
	c := ShortHash("sk-differentdifferent1")

	if len(a) != 8 {
		t.Fatalf("ShortHash length = %d, want 8", len(a))
	}
	if a != b {
		t.Fatalf("ShortHash not deterministic: %q vs %q", a, b)
	}
	if a == c {
		t.Fatalf("distinct inputs produced the same short hash %q", a)
	}
	for _, r := range a {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			t.Fatalf("ShortHash %q contains non-hex rune %q", a, r)
		}
	}
}
