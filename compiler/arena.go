package compiler

// arena hands out scratch cells directly above the stack top. Every
// instruction returns the cells it borrowed to zero before it finishes, so
// no allocation survives an instruction and the arena only remembers how
// far up the tape it has reached.
type arena struct {
	high int // one past the highest depth ever touched
}

// take returns n scratch offsets relative to a pointer sitting at depth cur.
func (a *arena) take(cur, n int) []int {
	cells := make([]int, n)
	for i := range cells {
		cells[i] = i
	}
	a.reach(cur + n)
	return cells
}

// reach records that depth d-1 has been used.
func (a *arena) reach(d int) {
	if d > a.high {
		a.high = d
	}
}
