package hazard

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrCorrupt is returned when a serialized accumulator cannot be decoded.
var ErrCorrupt = errors.New("hazard: corrupt accumulator state")

const wordSize = 8

// MarshalBinary encodes the accumulator as little-endian float64 words:
// axis count, reference population, then each level.
func (a *Accumulator) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 0, wordSize*(2+len(a.levels)))
	buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(float64(len(a.levels))))
	buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(a.ref))
	for _, v := range a.levels {
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v))
	}
	return buf, nil
}

// UnmarshalBinary restores state written by MarshalBinary, replacing the
// receiver's axes and reference population.
func (a *Accumulator) UnmarshalBinary(data []byte) error {
	if len(data) < 2*wordSize || len(data)%wordSize != 0 {
		return fmt.Errorf("%w: length %d", ErrCorrupt, len(data))
	}
	word := func(i int) float64 {
		return math.Float64frombits(binary.LittleEndian.Uint64(data[i*wordSize:]))
	}

	n := word(0)
	if n < 0 || n != math.Trunc(n) || math.IsInf(n, 0) {
		return fmt.Errorf("%w: axis count %v", ErrCorrupt, n)
	}
	axes := int(n)
	if len(data) != wordSize*(2+axes) {
		return fmt.Errorf("%w: %d axes need %d bytes, got %d", ErrCorrupt, axes, wordSize*(2+axes), len(data))
	}

	levels := make([]float64, axes)
	for i := range levels {
		v := word(2 + i)
		if !(v >= 0 && v <= 1) {
			return fmt.Errorf("%w: axis %d level %v", ErrCorrupt, i, v)
		}
		levels[i] = v
	}
	a.ref = word(1)
	a.levels = levels
	return nil
}
