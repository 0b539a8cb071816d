package voting

import "crypto/rand"

// codeAlphabet omits look-alike characters (I, O, 0, 1).
const (
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	codeLength   = 6
)

// CodeGenerator issues share codes for new poll groups.
type CodeGenerator interface {
	NewCode() (GroupCode, error)
}

type randomCodeGenerator struct {
	length int
}

// NewRandomCodeGenerator constructs a CodeGenerator backed by crypto/rand.
func NewRandomCodeGenerator() CodeGenerator {
	return &randomCodeGenerator{length: codeLength}
}

func (g *randomCodeGenerator) NewCode() (GroupCode, error) {
	buffer := make([]byte, g.length)
	if _, err := rand.Read(buffer); err != nil {
		return "", err
	}
	// 256 is a multiple of the alphabet size, so the modulo is unbiased.
	for index, value := range buffer {
		buffer[index] = codeAlphabet[int(value)%len(codeAlphabet)]
	}
	return GroupCode(buffer), nil
}
