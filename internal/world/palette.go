package world

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RGB is a color triple serialized as a 3-element array.
type RGB [3]uint8

// Palette maps terrain glyphs to display colors. Immutable after room
// creation; the whole table is pushed to each client on join.
type Palette map[string]RGB

// DefaultPalette returns the built-in glyph color table.
func DefaultPalette() Palette {
	return Palette{
		string(GlyphWall):  {110, 110, 120},
		string(GlyphFloor): {70, 60, 50},
		string(GlyphDoor):  {160, 110, 40},
		string(GlyphStair): {200, 200, 80},
	}
}

// paletteFile is the YAML document shape for palette overrides.
type paletteFile struct {
	Colors map[string][3]uint8 `yaml:"colors"`
}

// LoadPalette reads a YAML palette file and merges it over the defaults.
// Unknown glyphs are accepted; the table is open-ended on purpose.
func LoadPalette(path string) (Palette, error) {
	p := DefaultPalette()
	if path == "" {
		return p, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read palette: %w", err)
	}
	var f paletteFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse palette: %w", err)
	}
	for glyph, rgb := range f.Colors {
		p[glyph] = RGB(rgb)
	}
	return p, nil
}
