package fifo

import "sort"

// Set groups several Fifos by QoS priority for one terminal or one
// carrier's worth of traffic, providing ordered iteration from the highest
// to the lowest priority (lower qos value = higher priority, matching the
// convention of most DVB QoS schemes).
type Set struct {
	byQoS map[uint8]*Fifo
}

// NewSet builds an empty Set.
func NewSet() *Set {
	return &Set{byQoS: make(map[uint8]*Fifo)}
}

// Add registers f under its own QoS level.
func (s *Set) Add(f *Fifo) {
	s.byQoS[f.QoS()] = f
}

// Get returns the fifo for a given QoS level, if any.
func (s *Set) Get(qos uint8) (*Fifo, bool) {
	f, ok := s.byQoS[qos]
	return f, ok
}

// Ordered returns all fifos sorted by ascending QoS value (highest
// priority first).
func (s *Set) Ordered() []*Fifo {
	out := make([]*Fifo, 0, len(s.byQoS))
	for _, f := range s.byQoS {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QoS() < out[j].QoS() })
	return out
}

// TotalPkt sums CurrentPkt across all fifos in the set.
func (s *Set) TotalPkt() uint32 {
	var total uint32
	for _, f := range s.byQoS {
		total += f.CurrentPkt()
	}
	return total
}
