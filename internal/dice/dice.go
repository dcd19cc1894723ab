// Package dice defines the die value exchanged between the entropy source
// and the fulfillment submitter.
package dice

import (
	"fmt"
	"math/big"
)

// Faces is the number of faces on the die.
const Faces = 6

const (
	Min Value = 1
	Max Value = Faces
)

// Value is a die face in [1, 6].
type Value uint8

// FromByte maps a raw byte onto a die face as (b mod 6) + 1.
// No bias correction is applied.
func FromByte(b byte) Value {
	return Value(b%Faces) + 1
}

// Valid reports whether v is a die face.
func (v Value) Valid() bool {
	return v >= Min && v <= Max
}

// Big returns v as a uint256 contract argument.
func (v Value) Big() *big.Int {
	return new(big.Int).SetUint64(uint64(v))
}

func (v Value) String() string {
	return fmt.Sprintf("%d", uint8(v))
}
