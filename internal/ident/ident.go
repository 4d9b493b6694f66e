// Package ident generates the short unique identifiers assigned to location
// records.
package ident

import (
	"crypto/rand"
	"math/big"

	"github.com/rotisserie/eris"
)

// alphabet is the fixed 36-symbol set IDs are drawn from. Existing rows were
// written with this alphabet; changing it invalidates uniqueness assumptions.
const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// Length is the fixed identifier length.
const Length = 8

// maxAttempts bounds GenerateUnique. Five collisions in a row out of 36^8
// possibilities means something is systemically wrong, not bad luck, so the
// operation fails hard instead of retrying forever.
const maxAttempts = 5

// ErrExhausted is returned when GenerateUnique fails to find a free ID within
// the attempt budget.
var ErrExhausted = eris.New("ident: id space exhausted after retries")

// Generate returns a fresh 8-character identifier drawn uniformly from the
// alphabet using a cryptographically strong source.
func Generate() (string, error) {
	max := big.NewInt(int64(len(alphabet)))
	buf := make([]byte, Length)
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", eris.Wrap(err, "ident: read random")
		}
		buf[i] = alphabet[n.Int64()]
	}
	return string(buf), nil
}

// GenerateUnique draws IDs until exists reports one free, up to the attempt
// budget. The predicate is consulted once per draw; a predicate error aborts
// immediately.
func GenerateUnique(exists func(id string) (bool, error)) (string, error) {
	for i := 0; i < maxAttempts; i++ {
		id, err := Generate()
		if err != nil {
			return "", err
		}
		taken, err := exists(id)
		if err != nil {
			return "", eris.Wrap(err, "ident: check existence")
		}
		if !taken {
			return id, nil
		}
	}
	return "", ErrExhausted
}
