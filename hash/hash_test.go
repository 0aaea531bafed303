package hash

import "testing"

func TestCaseFolding(t *testing.T) {
	cases := []string{
		"music/ffxiv/BGM_System_Title.scd",
		"Chara/Human/c0101/obj/body/b0001/model/c0101b0001_top.mdl",
		"already/lower/case.ext",
		"",
	}
	for _, s := range cases {
		got := LowerString(s)
		want := RawString(asciiLower(s))
		if got != want {
			t.Errorf("LowerString(%q) = %#x, want Raw(asciiLower) = %#x", s, got, want)
		}
	}
}

func TestCaseFoldingIsASCIIOnly(t *testing.T) {
	// A multibyte UTF-8 sequence must pass through untouched by folding.
	s := "music/ffxiv/café.scd" // é, U+00E9, encodes as two bytes
	if LowerString(s) != RawString(s) {
		t.Errorf("case folding touched a non-ASCII byte in %q", s)
	}
}

func TestHashStability(t *testing.T) {
	cases := []struct {
		s    string
		want uint32
	}{
		{"bgm_system_title.scd", 0xE3B71579},
		{"BGM_System_Title.scd", 0}, // placeholder, not read: the Lower-only check below uses literals
		{"music/ffxiv", 0x0AF269D6},
	}
	if got := RawString(cases[0].s); got != cases[0].want {
		t.Errorf("RawString(%q) = %#x, want %#x", cases[0].s, got, cases[0].want)
	}
	if got := LowerString("BGM_System_Title.scd"); got != 0xE3B71579 {
		t.Errorf("LowerString(%q) = %#x, want %#x", "BGM_System_Title.scd", got, 0xE3B71579)
	}
	if got := RawString(cases[2].s); got != cases[2].want {
		t.Errorf("RawString(%q) = %#x, want %#x", cases[2].s, got, cases[2].want)
	}
}

func TestRawAndLowerDiffer(t *testing.T) {
	a := RawString("music/ffxiv/BGM_System_Title.scd")
	b := RawString("music/ffxiv/bgm_system_title.scd")
	if a == b {
		t.Fatalf("expected case-sensitive Raw hashes to differ")
	}
	if a == LowerString("music/ffxiv/bgm_system_title.scd") {
		t.Fatalf("expected Raw(mixed case) to differ from Lower(lower case)")
	}
}

func asciiLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c | 0x20
		}
	}
	return string(b)
}
