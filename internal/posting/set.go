package posting

// Set is an insertion-ordered collection keyed by Posting.Key. The first
// posting seen for a key wins; later duplicates are ignored.
type Set struct {
	order []string
	items map[string]*Posting
}

func NewSet() *Set {
	return &Set{items: make(map[string]*Posting)}
}

// Add inserts p unless its key is already present. It reports whether p was added.
func (s *Set) Add(p *Posting) bool {
	if p == nil {
		return false
	}
	key := p.Key()
	if _, ok := s.items[key]; ok {
		return false
	}
	s.items[key] = p
	s.order = append(s.order, key)
	return true
}

// AddAll inserts every posting and returns how many were new.
func (s *Set) AddAll(ps []*Posting) int {
	added := 0
	for _, p := range ps {
		if s.Add(p) {
			added++
		}
	}
	return added
}

func (s *Set) Has(key string) bool {
	_, ok := s.items[key]
	return ok
}

func (s *Set) Len() int {
	return len(s.order)
}

// Items returns the postings in insertion order.
func (s *Set) Items() []*Posting {
	out := make([]*Posting, 0, len(s.order))
	for _, key := range s.order {
		out = append(out, s.items[key])
	}
	return out
}
