package service

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// NumericCode genera un codigo de 6 digitos decimales con ceros a la
// izquierda, uniforme sobre 000000-999999.
func NumericCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

const roomCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// ShortCodeGenerator produce codigos cortos para salas. Se inyecta para
// poder usar un generador determinista en tests.
type ShortCodeGenerator interface {
	Generate() (string, error)
}

type secureShortCodeGenerator struct {
	length   int
	alphabet string
}

// NewShortCodeGenerator crea un generador basado en crypto/rand. El codigo
// resultante no garantiza unicidad; eso lo resuelve la constraint en la
// base de datos.
func NewShortCodeGenerator(length int) ShortCodeGenerator {
	if length <= 0 {
		length = 8
	}
	return &secureShortCodeGenerator{length: length, alphabet: roomCodeAlphabet}
}

func (g *secureShortCodeGenerator) Generate() (string, error) {
	buf := make([]byte, g.length)
	max := big.NewInt(int64(len(g.alphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = g.alphabet[n.Int64()]
	}
	return string(buf), nil
}
