package app

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/google/uuid"
)

func newID() string {
	return uuid.NewString()
}

const (
	transactionIDPrefix   = "PAY-"
	transactionIDLength   = 10
	transactionIDAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	maxTransactionIDTries = 5
)

// TransactionIDs issues candidate payment transaction ids. Uniqueness is
// enforced by the storage layer; a collision makes the ledger ask again.
type TransactionIDs interface {
	Next() (string, error)
}

type randomTransactionIDs struct{}

// NewTransactionIDs returns an issuer of PAY- plus 10 random base36 characters.
func NewTransactionIDs() TransactionIDs {
	return randomTransactionIDs{}
}

func (randomTransactionIDs) Next() (string, error) {
	buf := make([]byte, transactionIDLength)
	max := big.NewInt(int64(len(transactionIDAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("transaction id entropy: %w", err)
		}
		buf[i] = transactionIDAlphabet[n.Int64()]
	}
	return transactionIDPrefix + string(buf), nil
}
