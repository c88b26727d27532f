package orders

import (
	"crypto/rand"
	"io"
	"math/big"

	"github.com/google/uuid"
)

const (
	ReceiptCodeLen  = 7
	receiptAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// IDGenerator produces the identifiers assigned to an order at placement.
// Uniqueness is enforced by the store, not by the generator.
type IDGenerator interface {
	OrderNumber() (uuid.UUID, error)
	ReceiptCode() (string, error)
}

// RandomIDs draws both identifiers from a cryptographically secure source.
// Rand defaults to crypto/rand.Reader.
type RandomIDs struct {
	Rand io.Reader
}

func (g RandomIDs) reader() io.Reader {
	if g.Rand != nil {
		return g.Rand
	}
	return rand.Reader
}

func (g RandomIDs) OrderNumber() (uuid.UUID, error) {
	return uuid.NewRandomFromReader(g.reader())
}

func (g RandomIDs) ReceiptCode() (string, error) {
	max := big.NewInt(int64(len(receiptAlphabet)))
	b := make([]byte, ReceiptCodeLen)
	for i := range b {
		n, err := rand.Int(g.reader(), max)
		if err != nil {
			return "", err
		}
		b[i] = receiptAlphabet[n.Int64()]
	}
	return string(b), nil
}

func ValidReceiptCode(s string) bool {
	if len(s) != ReceiptCodeLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= 'A' && c <= 'Z') && !(c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}
