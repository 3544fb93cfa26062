package markup

import "testing"

func TestTranslate_KnownCodesOnly(t *testing.T) {
	got := Translate("&aGreen &Lbold &zkeep & space")
	want := "§aGreen §lbold &zkeep & space"
	if got != want {
		t.Fatalf("Translate=%q want=%q", got, want)
	}
}

func TestStrip_RemovesResolvedCodes(t *testing.T) {
	s := Translate("&9&lHello&r &7world")
	if got := Strip(s); got != "Hello world" {
		t.Fatalf("Strip=%q", got)
	}
	if Visible(s) != 11 {
		t.Fatalf("Visible=%d want=11", Visible(s))
	}
}

func TestSubstring_KeepsCodesCountsVisible(t *testing.T) {
	s := Translate("&fab&ccd&eef")
	got := Substring(s, 3)
	if got != "§fab§cc" {
		t.Fatalf("Substring=%q", got)
	}
	if Substring(s, 0) != "" {
		t.Fatalf("expected empty substring for n=0")
	}
	if Substring(s, 100) != s {
		t.Fatalf("expected full string when n exceeds visible length")
	}
}

func TestSubstring_Unicode(t *testing.T) {
	s := Translate("&aüñí")
	if got := Strip(Substring(s, 2)); got != "üñ" {
		t.Fatalf("got %q", got)
	}
}
