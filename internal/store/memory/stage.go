package memory

// guard remembers what a committed row looked like when a unit of work first
// wrote over it. Commit refuses the unit of work if the row moved since.
type guard struct {
	present bool
	mark    string
}

// stage is the per-unit-of-work overlay of one table.
type stage[K comparable, V any] struct {
	rows     map[K]V
	guards   map[K]guard
	mark     func(V) string
	conflict error
}

func newStage[K comparable, V any](mark func(V) string, conflict error) *stage[K, V] {
	return &stage[K, V]{
		rows:     map[K]V{},
		guards:   map[K]guard{},
		mark:     mark,
		conflict: conflict,
	}
}

// get reads through the overlay into the committed rows.
func (s *stage[K, V]) get(base map[K]V, key K) (V, bool) {
	if v, ok := s.rows[key]; ok {
		return v, true
	}
	v, ok := base[key]
	return v, ok
}

// put stages value and records a guard on the first touch of key.
func (s *stage[K, V]) put(base map[K]V, key K, value V) {
	if _, staged := s.rows[key]; !staged {
		if _, guarded := s.guards[key]; !guarded {
			g := guard{}
			if current, ok := base[key]; ok {
				g.present = true
				g.mark = s.mark(current)
			}
			s.guards[key] = g
		}
	}
	s.rows[key] = value
}

func (s *stage[K, V]) verify(base map[K]V) error {
	for key, g := range s.guards {
		current, ok := base[key]
		if ok != g.present {
			return s.conflict
		}
		if ok && s.mark(current) != g.mark {
			return s.conflict
		}
	}
	return nil
}

func (s *stage[K, V]) apply(base map[K]V) {
	for key, value := range s.rows {
		base[key] = value
	}
}

// merged returns the committed rows with the overlay laid on top.
func (s *stage[K, V]) merged(base map[K]V) map[K]V {
	out := make(map[K]V, len(base)+len(s.rows))
	for key, value := range base {
		out[key] = value
	}
	for key, value := range s.rows {
		out[key] = value
	}
	return out
}

func noMark[V any](V) string { return "" }
