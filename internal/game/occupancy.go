package game

// cell keys one grid position within a level.
type cell struct{ x, y int }

// Occupancy is the per-level spatial index from coordinate to occupying
// participant id. Owned by a room and mutated only from its timeline.
// Invariant: at most one occupant per cell; every online movement-blocking
// participant has exactly one entry matching its current location.
type Occupancy struct {
	levels map[int]map[cell]string
}

// NewOccupancy creates an empty index. Levels are created lazily.
func NewOccupancy() *Occupancy {
	return &Occupancy{levels: make(map[int]map[cell]string)}
}

func (o *Occupancy) level(n int) map[cell]string {
	l, ok := o.levels[n]
	if !ok {
		l = make(map[cell]string)
		o.levels[n] = l
	}
	return l
}

// Add records id at loc. First placement has no prior key to remove.
func (o *Occupancy) Add(id string, loc Location) {
	o.level(loc.Level)[cell{loc.X, loc.Y}] = id
}

// Remove deletes the entry at loc if it belongs to id.
func (o *Occupancy) Remove(id string, loc Location) {
	l, ok := o.levels[loc.Level]
	if !ok {
		return
	}
	k := cell{loc.X, loc.Y}
	if l[k] == id {
		delete(l, k)
	}
}

// Move relocates id. The from key is deleted before the to key is inserted
// so the entity never occupies two cells at once.
func (o *Occupancy) Move(id string, from, to Location) {
	o.Remove(id, from)
	o.Add(id, to)
}

// OccupantAt returns the id occupying (level, x, y), if any.
func (o *Occupancy) OccupantAt(level, x, y int) (string, bool) {
	l, ok := o.levels[level]
	if !ok {
		return "", false
	}
	id, ok := l[cell{x, y}]
	return id, ok
}

// Count returns the number of entries on a level. Test helper.
func (o *Occupancy) Count(level int) int {
	return len(o.levels[level])
}
