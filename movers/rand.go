package movers

import (
	"time"

	exprand "golang.org/x/exp/rand"
)

// mix64 is the splitmix64 finalizer. Keyed random streams are derived
// by folding identifying values through it, so that every (mover,
// element, step) triple gets its own reproducible stream regardless of
// the order elements are processed in.
func mix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}

func mixKeys(vals ...uint64) uint64 {
	h := uint64(0x6c62272e07bb0142)
	for _, v := range vals {
		h = mix64(h ^ v)
	}
	return h
}

// ElementSource returns a random source keyed by run seed, consumer
// salt, element identity, and model time. Safe to build concurrently
// for different elements.
func ElementSource(seed int64, salt uint64, setIndex, elemIndex int, t time.Time) exprand.Source {
	key := mixKeys(uint64(seed), salt, uint64(setIndex), uint64(elemIndex), uint64(t.Unix()))
	return exprand.NewSource(key)
}
