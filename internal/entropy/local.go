package entropy

import (
	"crypto/rand"
	"fmt"
	"io"

	"github.com/R3E-Network/dice-oracle/internal/dice"
)

// Bytes at or above this value are redrawn so that b mod 6 is uniform.
const rejectionThreshold = 256 - 256%dice.Faces

// LocalGenerator draws die faces from a cryptographically secure reader.
type LocalGenerator struct {
	reader io.Reader
}

// NewLocalGenerator creates a generator over reader. A nil reader uses the
// operating system CSPRNG.
func NewLocalGenerator(reader io.Reader) *LocalGenerator {
	if reader == nil {
		reader = rand.Reader
	}
	return &LocalGenerator{reader: reader}
}

// Roll draws an integer in [0, 6) and returns it with its die face.
func (g *LocalGenerator) Roll() (dice.Value, byte, error) {
	var buf [1]byte
	for {
		if _, err := io.ReadFull(g.reader, buf[:]); err != nil {
			return 0, 0, fmt.Errorf("read local entropy: %w", err)
		}
		if buf[0] < rejectionThreshold {
			index := buf[0] % dice.Faces
			return dice.FromByte(index), index, nil
		}
	}
}
