package vm

import (
	"math/rand"
	"time"
)

// predictableLimit is the seed below which random runs the sequential
// 1, 2, .., seed sequence instead of a seeded generator.
const predictableLimit = 1000

type randomSource struct {
	r       *rand.Rand
	limit   int // > 0 while in sequential mode
	counter int
}

func newRandomSource(seed int64) *randomSource {
	s := &randomSource{}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	s.r = rand.New(rand.NewSource(seed))
	return s
}

// next returns a value in 1..n.
func (s *randomSource) next(n uint16) uint16 {
	if s.limit > 0 {
		s.counter = s.counter%s.limit + 1
		return uint16((s.counter-1)%int(n) + 1)
	}
	return uint16(s.r.Intn(int(n)) + 1)
}

// seed switches mode: 0 reseeds unpredictably, small values select the
// sequential mode, larger values seed the generator.
func (s *randomSource) seed(v int) {
	s.counter = 0
	switch {
	case v == 0:
		s.limit = 0
		s.r = rand.New(rand.NewSource(time.Now().UnixNano()))
	case v < predictableLimit:
		s.limit = v
	default:
		s.limit = 0
		s.r = rand.New(rand.NewSource(int64(v)))
	}
}
