package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

var codeSpace = big.NewInt(1000000)

// SixDigitCode returns a zero-padded uniform random code, e.g. "042317".
func SixDigitCode() string {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		// crypto/rand only fails when the OS entropy source is broken
		panic(fmt.Sprintf("rand: %v", err))
	}
	return fmt.Sprintf("%06d", n.Int64())
}
