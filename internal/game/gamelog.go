package game

// roomLog is the append-only, bounded human-readable event log. Only the
// trailing window survives; old lines fall off the front.
type roomLog struct {
	lines []string
	limit int
}

func newRoomLog(limit int) *roomLog {
	if limit <= 0 {
		limit = 200
	}
	return &roomLog{limit: limit}
}

// Append adds a line, trimming the front past the retention limit.
func (l *roomLog) Append(line string) {
	l.lines = append(l.lines, line)
	if len(l.lines) > l.limit {
		l.lines = l.lines[len(l.lines)-l.limit:]
	}
}

// Tail returns a copy of up to n trailing lines.
func (l *roomLog) Tail(n int) []string {
	if n > len(l.lines) {
		n = len(l.lines)
	}
	out := make([]string, n)
	copy(out, l.lines[len(l.lines)-n:])
	return out
}

// Replace swaps in restored lines, re-applying the retention bound.
func (l *roomLog) Replace(lines []string) {
	l.lines = append([]string(nil), lines...)
	if len(l.lines) > l.limit {
		l.lines = l.lines[len(l.lines)-l.limit:]
	}
}
