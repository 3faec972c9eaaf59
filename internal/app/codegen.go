package app

import (
	"context"
	"crypto/rand"

	"cognito-live-service/internal/domain"
)

// codeAlphabet excludes visually confusable characters (I, O, 0, 1).
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	codeLength      = 6
	maxCodeAttempts = 50
)

// ExistsFunc reports whether a candidate code is already taken.
type ExistsFunc func(ctx context.Context, code string) (bool, error)

// CodeGenerator produces short human-typeable identifiers, collision-checked
// against a live registry. Collisions are vanishingly rare at this alphabet
// and length, but the attempt ceiling keeps a broken exists-check from
// spinning forever.
type CodeGenerator struct {
	exists ExistsFunc
}

func NewCodeGenerator(exists ExistsFunc) *CodeGenerator {
	return &CodeGenerator{exists: exists}
}

// Generate returns a fresh unique code or ErrCodeSpaceExhausted.
func (g *CodeGenerator) Generate(ctx context.Context) (string, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := randomCode()
		if err != nil {
			return "", err
		}
		taken, err := g.exists(ctx, code)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
	}
	return "", domain.ErrCodeSpaceExhausted
}

func randomCode() (string, error) {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	code := make([]byte, codeLength)
	for i := range code {
		code[i] = codeAlphabet[int(buf[i])%len(codeAlphabet)]
	}
	return string(code), nil
}
