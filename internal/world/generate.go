package world

import "math/rand"

// GenerateOptions configures the dungeon generator.
type GenerateOptions struct {
	Width  int
	Height int
	Seed   int64
	Rooms  int // 0 picks a count from the map area
}

// Generate produces a dungeon map string: rectangular rooms joined by
// L-shaped corridors. Deterministic per seed.
func Generate(opts GenerateOptions) string {
	if opts.Width < 16 {
		opts.Width = 16
	}
	if opts.Height < 8 {
		opts.Height = 8
	}
	rooms := opts.Rooms
	if rooms <= 0 {
		rooms = opts.Width * opts.Height / 180
		if rooms < 3 {
			rooms = 3
		}
	}

	rng := rand.New(rand.NewSource(opts.Seed))

	cells := make([][]byte, opts.Height)
	for y := range cells {
		cells[y] = make([]byte, opts.Width)
		for x := range cells[y] {
			cells[y][x] = GlyphWall
		}
	}

	type rect struct{ x, y, w, h int }
	var placed []rect

	carve := func(r rect) {
		for y := r.y; y < r.y+r.h; y++ {
			for x := r.x; x < r.x+r.w; x++ {
				cells[y][x] = GlyphFloor
			}
		}
	}

	for i := 0; i < rooms; i++ {
		w := 4 + rng.Intn(6)
		h := 3 + rng.Intn(4)
		if w > opts.Width-2 {
			w = opts.Width - 2
		}
		if h > opts.Height-2 {
			h = opts.Height - 2
		}
		r := rect{
			x: 1 + rng.Intn(opts.Width-w-1),
			y: 1 + rng.Intn(opts.Height-h-1),
			w: w,
			h: h,
		}
		carve(r)
		placed = append(placed, r)
	}

	// Corridors connect each room to the previous one.
	for i := 1; i < len(placed); i++ {
		ax, ay := placed[i-1].x+placed[i-1].w/2, placed[i-1].y+placed[i-1].h/2
		bx, by := placed[i].x+placed[i].w/2, placed[i].y+placed[i].h/2
		for x := min(ax, bx); x <= max(ax, bx); x++ {
			cells[ay][x] = GlyphFloor
		}
		for y := min(ay, by); y <= max(ay, by); y++ {
			cells[y][bx] = GlyphFloor
		}
	}

	// A stair in the last room marks the level exit.
	if len(placed) > 0 {
		last := placed[len(placed)-1]
		cells[last.y+last.h/2][last.x+last.w/2] = GlyphStair
	}

	out := make([]byte, 0, (opts.Width+1)*opts.Height)
	for y, row := range cells {
		out = append(out, row...)
		if y < len(cells)-1 {
			out = append(out, '\n')
		}
	}
	return string(out)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
