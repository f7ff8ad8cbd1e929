package core

import (
	"math/rand/v2"

	"github.com/dkeye/Canvas/internal/domain"
)

// SeatPool holds the indices nobody occupies. Draws come off the front,
// releases go to the back. Not safe for concurrent use.
type SeatPool struct {
	size int
	free []int
}

// NewSeatPool shuffles 0..size-1 with rng (Fisher-Yates). A nil rng uses
// the global source.
func NewSeatPool(size int, rng *rand.Rand) *SeatPool {
	free := make([]int, size)
	for i := range free {
		free[i] = i
	}
	swap := func(i, j int) { free[i], free[j] = free[j], free[i] }
	if rng != nil {
		rng.Shuffle(size, swap)
	} else {
		rand.Shuffle(size, swap)
	}
	return &SeatPool{size: size, free: free}
}

// Draw removes and returns the seat at the front of the pool.
func (p *SeatPool) Draw() (int, error) {
	if len(p.free) == 0 {
		return 0, domain.ErrNoSeatsAvailable
	}
	idx := p.free[0]
	p.free = p.free[1:]
	return idx, nil
}

// Release puts index back at the end of the pool. Releasing a seat that is
// already free, or one outside the grid, does nothing.
func (p *SeatPool) Release(index int) bool {
	if index < 0 || index >= p.size || p.Contains(index) {
		return false
	}
	p.free = append(p.free, index)
	return true
}

// Reclaim takes index out of the pool if it is still there.
func (p *SeatPool) Reclaim(index int) bool {
	for i, v := range p.free {
		if v == index {
			p.free = append(p.free[:i], p.free[i+1:]...)
			return true
		}
	}
	return false
}

func (p *SeatPool) Contains(index int) bool {
	for _, v := range p.free {
		if v == index {
			return true
		}
	}
	return false
}

func (p *SeatPool) Len() int { return len(p.free) }

// Free returns the free seats in draw order.
func (p *SeatPool) Free() []int {
	out := make([]int, len(p.free))
	copy(out, p.free)
	return out
}
