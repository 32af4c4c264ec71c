// Package world holds the terrain model: the character grid, the glyph
// palette, and the dungeon generator. Everything here is pure data; entity
// occupancy lives with the room.
package world

import "strings"

// Terrain glyphs. Anything not listed as walkable blocks movement.
const (
	GlyphWall  = '#'
	GlyphFloor = '.'
	GlyphDoor  = '+'
	GlyphStair = '>'
)

// Grid is an immutable grid-of-characters map parsed from a map string.
// Rows are newline-separated; shorter rows are treated as wall-padded.
type Grid struct {
	rows   []string
	width  int
	height int
}

// ParseGrid builds a Grid from a newline-separated map string.
func ParseGrid(mapStr string) *Grid {
	rows := strings.Split(strings.TrimRight(mapStr, "\n"), "\n")
	width := 0
	for _, row := range rows {
		if len(row) > width {
			width = len(row)
		}
	}
	return &Grid{rows: rows, width: width, height: len(rows)}
}

// Width returns the widest row length.
func (g *Grid) Width() int { return g.width }

// Height returns the number of rows.
func (g *Grid) Height() int { return g.height }

// CharAt returns the glyph at (x, y), or GlyphWall for out-of-bounds cells.
func (g *Grid) CharAt(x, y int) byte {
	if y < 0 || y >= len(g.rows) {
		return GlyphWall
	}
	row := g.rows[y]
	if x < 0 || x >= len(row) {
		return GlyphWall
	}
	return row[x]
}

// Walkable answers "is this cell terrain-walkable". This is the collision
// oracle consulted on every move; it knows nothing about entities.
func (g *Grid) Walkable(x, y int) bool {
	switch g.CharAt(x, y) {
	case GlyphFloor, GlyphDoor, GlyphStair:
		return true
	}
	return false
}

// String returns the map string the grid was parsed from.
func (g *Grid) String() string {
	return strings.Join(g.rows, "\n")
}

// FirstWalkable scans row-major for the first walkable cell. Used as a spawn
// fallback when the generator's spawn hint is occupied.
func (g *Grid) FirstWalkable() (x, y int, ok bool) {
	for y := 0; y < g.height; y++ {
		for x := 0; x < g.width; x++ {
			if g.Walkable(x, y) {
				return x, y, true
			}
		}
	}
	return 0, 0, false
}
