package lfht

import (
	"github.com/ValentinKolb/urcu/lib/util"
)

// Options configures a Table
type Options[K comparable] struct {
	Name string // used as metrics label

	InitialSize uint64 // initial number of buckets, rounded up to a power of two
	MinSize     uint64 // automatic shrinking stops here
	MaxSize     uint64 // automatic growing stops here

	AutoResize       bool
	GrowLoadFactor   float64 // grow when count > size * GrowLoadFactor
	ShrinkLoadFactor float64 // shrink when count < size * ShrinkLoadFactor

	// Hasher hashes a key with the seed. It is required for key types other than strings
	// and integers.
	Hasher func(key K, seed uint64) uint64
	Seed   uint64 // 0 = random seed
}

// DefaultOptions returns the default table options
func DefaultOptions[K comparable]() *Options[K] {
	return &Options[K]{
		Name:             "default",
		InitialSize:      16,
		MinSize:          1,
		MaxSize:          1 << 24,
		AutoResize:       true,
		GrowLoadFactor:   2,
		ShrinkLoadFactor: 0.25,
		Hasher:           nil,
		Seed:             0,
	}
}

// normalize fills in defaults and enforces power of two sizes
func (o *Options[K]) normalize() {
	def := DefaultOptions[K]()

	if o.Name == "" {
		o.Name = def.Name
	}
	if o.MinSize == 0 {
		o.MinSize = def.MinSize
	}
	if o.MaxSize == 0 {
		o.MaxSize = def.MaxSize
	}
	o.MinSize = util.NextPowerOfTwo(o.MinSize)
	o.MaxSize = util.NextPowerOfTwo(o.MaxSize)
	if o.MaxSize < o.MinSize {
		o.MaxSize = o.MinSize
	}

	if o.InitialSize == 0 {
		o.InitialSize = def.InitialSize
	}
	o.InitialSize = o.clamp(util.NextPowerOfTwo(o.InitialSize))

	if o.GrowLoadFactor <= 0 {
		o.GrowLoadFactor = def.GrowLoadFactor
	}
	if o.ShrinkLoadFactor < 0 || o.ShrinkLoadFactor >= o.GrowLoadFactor {
		o.ShrinkLoadFactor = def.ShrinkLoadFactor
	}
	if o.Seed == 0 {
		o.Seed = util.GenerateSeed()
	}
}

func (o *Options[K]) clamp(size uint64) uint64 {
	if size < o.MinSize {
		return o.MinSize
	}
	if size > o.MaxSize {
		return o.MaxSize
	}
	return size
}

// defaultHasher returns a hasher for strings and integer key types (nil for other types)
func defaultHasher[K comparable]() func(K, uint64) uint64 {
	var zero K
	switch any(zero).(type) {
	case string:
		return func(k K, seed uint64) uint64 { return util.HashString(any(k).(string), seed) }
	case int:
		return func(k K, seed uint64) uint64 { return util.HashUint64(uint64(any(k).(int)), seed) }
	case int8:
		return func(k K, seed uint64) uint64 { return util.HashUint64(uint64(any(k).(int8)), seed) }
	case int16:
		return func(k K, seed uint64) uint64 { return util.HashUint64(uint64(any(k).(int16)), seed) }
	case int32:
		return func(k K, seed uint64) uint64 { return util.HashUint64(uint64(any(k).(int32)), seed) }
	case int64:
		return func(k K, seed uint64) uint64 { return util.HashUint64(uint64(any(k).(int64)), seed) }
	case uint:
		return func(k K, seed uint64) uint64 { return util.HashUint64(uint64(any(k).(uint)), seed) }
	case uint8:
		return func(k K, seed uint64) uint64 { return util.HashUint64(uint64(any(k).(uint8)), seed) }
	case uint16:
		return func(k K, seed uint64) uint64 { return util.HashUint64(uint64(any(k).(uint16)), seed) }
	case uint32:
		return func(k K, seed uint64) uint64 { return util.HashUint64(uint64(any(k).(uint32)), seed) }
	case uint64:
		return func(k K, seed uint64) uint64 { return util.HashUint64(any(k).(uint64), seed) }
	case uintptr:
		return func(k K, seed uint64) uint64 { return util.HashUint64(uint64(any(k).(uintptr)), seed) }
	default:
		return nil
	}
}
