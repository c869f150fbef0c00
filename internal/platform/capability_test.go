package platform

import "testing"

func TestEveryPlatformHasAProfile(t *testing.T) {
	for _, p := range All() {
		prof, ok := ProfileFor(p)
		if !ok {
			t.Fatalf("no profile for %s", p)
		}
		if len(prof.Variants) == 0 {
			t.Fatalf("%s profile allows no variants", p)
		}
		if len(prof.MIMETypes) == 0 {
			t.Fatalf("%s profile allows no media types", p)
		}
		if !prof.SupportsVariant(VariantRegular) {
			t.Fatalf("%s does not support regular posts", p)
		}
	}
}

func TestThreadPlatformsDeclareAStrategy(t *testing.T) {
	for _, p := range All() {
		prof, _ := ProfileFor(p)
		if prof.SupportsVariant(VariantThread) && prof.ThreadStrategy == "" {
			t.Fatalf("%s supports threads but has no strategy", p)
		}
	}
}

func TestParse(t *testing.T) {
	p, err := Parse("tiktok")
	if err != nil || p != TikTok {
		t.Fatalf("parse tiktok: %v %v", p, err)
	}

	if _, err := Parse("myspace"); err == nil {
		t.Fatal("expected an error for an unknown platform")
	}
}

func TestProfileChecks(t *testing.T) {
	prof, _ := ProfileFor(X)
	if prof.SupportsVariant(VariantStory) {
		t.Fatal("x must not support stories")
	}
	if !prof.AllowsMIME("image/png") {
		t.Fatal("x must allow png")
	}
	if prof.AllowsMIME("image/tiff") {
		t.Fatal("x must not allow tiff")
	}
}
