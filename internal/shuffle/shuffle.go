// Package shuffle provides a deterministic, seed-driven permutation used to
// randomize the presentation order of answer tokens. The same seed always
// yields the same permutation, so a session re-render reproduces the order the
// student already saw, while distinct seeds diverge with high probability.
package shuffle

// hashSeed folds a seed string into a 32-bit state with a multiply-xor mix.
// Order- and character-sensitive; the exact constants carry no meaning beyond
// distribution quality.
func hashSeed(seed string) uint32 {
	h := uint32(2166136261)
	for i := 0; i < len(seed); i++ {
		h ^= uint32(seed[i])
		h *= 16777619
		h = h<<13 | h>>19
	}
	if h == 0 {
		// xorshift state must be non-zero
		h = 0x9e3779b9
	}
	return h
}

// rng is a xorshift32 generator. Small, fast and fully reproducible; not for
// cryptographic use.
type rng struct {
	state uint32
}

func newRNG(seed string) *rng {
	return &rng{state: hashSeed(seed)}
}

func (r *rng) next() uint32 {
	x := r.state
	x ^= x << 13
	x ^= x >> 17
	x ^= x << 5
	r.state = x
	return x
}

// intn returns a value in [0, n). n must be positive.
func (r *rng) intn(n int) int {
	return int(r.next() % uint32(n))
}

// Strings returns a Fisher-Yates permutation of items driven by the seed.
// The input slice is not modified.
func Strings(items []string, seed string) []string {
	out := make([]string, len(items))
	copy(out, items)
	r := newRNG(seed)
	for i := len(out) - 1; i > 0; i-- {
		j := r.intn(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return out
}
