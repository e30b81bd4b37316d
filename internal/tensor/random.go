package tensor

import "math/rand/v2"

// Key is an immutable, splittable pseudorandom key. Keys are plain values:
// splitting is a pure function of the key, so the same key always yields the
// same children and the same random stream.
type Key struct {
	hi, lo uint64
}

const golden = 0x9e3779b97f4a7c15

func mix64(z uint64) uint64 {
	z ^= z >> 30
	z *= 0xbf58476d1ce4e5b9
	z ^= z >> 27
	z *= 0x94d049bb133111eb
	z ^= z >> 31
	return z
}

// NewKey derives a key from a seed.
func NewKey(seed uint64) Key {
	return Key{hi: mix64(seed + golden), lo: mix64(seed ^ 0x6a09e667f3bcc909)}
}

// Split returns n independent child keys.
func (k Key) Split(n int) []Key {
	keys := make([]Key, n)
	for i := range keys {
		c := uint64(i+1) * golden
		keys[i] = Key{
			hi: mix64(k.hi ^ mix64(c^k.lo)),
			lo: mix64(k.lo + mix64(c+k.hi)),
		}
	}
	return keys
}

// Split2 is Split(2) returned as a pair.
func (k Key) Split2() (Key, Key) {
	ks := k.Split(2)
	return ks[0], ks[1]
}

// SplitSequential splits off n keys one at a time, each time continuing with
// the remainder of the previous split.
func (k Key) SplitSequential(n int) []Key {
	keys := make([]Key, n)
	cur := k
	for i := range keys {
		keys[i], cur = cur.Split2()
	}
	return keys
}

// Source returns a PCG source seeded from the key.
func (k Key) Source() rand.Source {
	return rand.NewPCG(k.hi, k.lo)
}

// Rand returns a generator seeded from the key.
func (k Key) Rand() *rand.Rand {
	return rand.New(k.Source())
}

// Uint64s exposes the key words, for serialization and logging.
func (k Key) Uint64s() (uint64, uint64) {
	return k.hi, k.lo
}

// Normal draws standard normal values of the given shape.
func Normal(k Key, shape ...int) *Tensor {
	r := k.Rand()
	t := New(shape...)
	for i := range t.data {
		t.data[i] = r.NormFloat64()
	}
	return t
}

// Uniform draws values in [0, 1) of the given shape.
func Uniform(k Key, shape ...int) *Tensor {
	r := k.Rand()
	t := New(shape...)
	for i := range t.data {
		t.data[i] = r.Float64()
	}
	return t
}
