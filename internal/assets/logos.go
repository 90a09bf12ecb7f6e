// Package assets manages the team logo registry. The set of logos is
// fixed at startup from the logo directory; teams reference a logo by
// its file stem and the panel never mutates the set at runtime.
package assets

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/image/draw"

	_ "image/gif"
	_ "image/jpeg"
)

// logoSize is the edge length logos are normalized to on import.
const logoSize = 64

// LogoRegistry is the immutable set of logo tags known at startup.
type LogoRegistry struct {
	dir  string
	tags map[string]string
}

// LoadLogos scans dir for PNG files and builds the registry. A missing
// or empty directory yields an empty registry, not an error.
func LoadLogos(dir string) (*LogoRegistry, error) {
	reg := &LogoRegistry{dir: dir, tags: make(map[string]string)}
	if dir == "" {
		return reg, nil
	}

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return reg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading logo dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".png") {
			continue
		}
		tag := strings.TrimSuffix(entry.Name(), ".png")
		reg.tags[tag] = filepath.Join(dir, entry.Name())
	}
	return reg, nil
}

// Has reports whether tag names a known logo. The empty tag is always
// valid and means no logo.
func (r *LogoRegistry) Has(tag string) bool {
	if tag == "" {
		return true
	}
	_, ok := r.tags[tag]
	return ok
}

// Path returns the file path for a logo tag.
func (r *LogoRegistry) Path(tag string) (string, bool) {
	p, ok := r.tags[tag]
	return p, ok
}

// Tags returns all known logo tags, sorted.
func (r *LogoRegistry) Tags() []string {
	tags := make([]string, 0, len(r.tags))
	for tag := range r.tags {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// ImportLogo decodes an image file, scales it to the standard logo
// size, and writes it into dir as <tag>.png. Used by the CLI; the
// running server only ever reads the directory.
func ImportLogo(dir, tag, srcPath string) error {
	if tag == "" {
		return fmt.Errorf("logo tag must not be empty")
	}
	if strings.ContainsAny(tag, "/\\. ") {
		return fmt.Errorf("invalid logo tag %q", tag)
	}

	f, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("opening %s: %w", srcPath, err)
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return fmt.Errorf("decoding %s: %w", srcPath, err)
	}

	dst := image.NewRGBA(image.Rect(0, 0, logoSize, logoSize))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating logo dir: %w", err)
	}
	out, err := os.Create(filepath.Join(dir, tag+".png"))
	if err != nil {
		return fmt.Errorf("creating logo file: %w", err)
	}
	defer out.Close()

	if err := png.Encode(out, dst); err != nil {
		return fmt.Errorf("encoding logo: %w", err)
	}
	return nil
}
