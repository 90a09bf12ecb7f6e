package assets

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func writeTestPNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: 200, A: 255})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encoding png: %v", err)
	}
}

func TestLoadLogos(t *testing.T) {
	dir := t.TempDir()
	writeTestPNG(t, filepath.Join(dir, "navi.png"), 64, 64)
	writeTestPNG(t, filepath.Join(dir, "fnatic.png"), 64, 64)
	os.WriteFile(filepath.Join(dir, "readme.txt"), []byte("x"), 0o644)

	reg, err := LoadLogos(dir)
	if err != nil {
		t.Fatalf("LoadLogos: %v", err)
	}

	tags := reg.Tags()
	if len(tags) != 2 || tags[0] != "fnatic" || tags[1] != "navi" {
		t.Errorf("tags = %v", tags)
	}
	if !reg.Has("navi") || reg.Has("readme") {
		t.Error("Has misclassified a tag")
	}
	if !reg.Has("") {
		t.Error("empty tag should always be valid")
	}
}

func TestLoadLogosMissingDir(t *testing.T) {
	reg, err := LoadLogos(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("missing dir should not error: %v", err)
	}
	if len(reg.Tags()) != 0 {
		t.Errorf("tags = %v, want empty", reg.Tags())
	}
}

func TestImportLogoResizes(t *testing.T) {
	srcDir := t.TempDir()
	logoDir := t.TempDir()
	src := filepath.Join(srcDir, "big.png")
	writeTestPNG(t, src, 300, 200)

	if err := ImportLogo(logoDir, "team", src); err != nil {
		t.Fatalf("ImportLogo: %v", err)
	}

	f, err := os.Open(filepath.Join(logoDir, "team.png"))
	if err != nil {
		t.Fatalf("opening imported logo: %v", err)
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		t.Fatalf("decoding imported logo: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 64 || b.Dy() != 64 {
		t.Errorf("bounds = %v, want 64x64", b)
	}
}

func TestImportLogoRejectsBadTag(t *testing.T) {
	for _, tag := range []string{"", "a/b", "a.b", "a b"} {
		if err := ImportLogo(t.TempDir(), tag, "whatever.png"); err == nil {
			t.Errorf("tag %q accepted", tag)
		}
	}
}
