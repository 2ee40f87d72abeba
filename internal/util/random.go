package util

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
)

// serialBits is the size of generated certificate serial numbers. RFC 5280
// caps serials at 20 octets; 128 bits stays well inside that.
const serialBits = 128

var maxSerial = new(big.Int).Lsh(big.NewInt(1), serialBits)

func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("generating random bytes: %w", err)
	}
	return b, nil
}

// RandomSerial draws a positive, non-zero serial number of up to 128 bits
// from r. A nil reader means crypto/rand.
func RandomSerial(r io.Reader) (*big.Int, error) {
	if r == nil {
		r = rand.Reader
	}
	for {
		n, err := rand.Int(r, maxSerial)
		if err != nil {
			return nil, fmt.Errorf("generating serial number: %w", err)
		}
		if n.Sign() > 0 {
			return n, nil
		}
	}
}
