package game

import (
	crand "crypto/rand"
	"math/big"
	"math/rand"
)

// CodeChars leaves out characters that are easy to misread on a projector.
const CodeChars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// CodeGenerator returns a candidate room code of the given length.
type CodeGenerator func(length int) string

// NewCode creates a random room code.
func NewCode(length int) string {
	code := make([]byte, length)
	for i := range code {
		n, err := crand.Int(crand.Reader, big.NewInt(int64(len(CodeChars))))
		if err != nil {
			code[i] = CodeChars[rand.Intn(len(CodeChars))]
			continue
		}
		code[i] = CodeChars[n.Int64()]
	}
	return string(code)
}
