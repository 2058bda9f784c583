package domain

import (
	"fmt"
	"strings"
)

// AccountBalance is the read model returned for balance queries.
type AccountBalance struct {
	AccountID string `json:"account_id"`
	Balance   Amount `json:"balance"`
}

// TransferResult describes both legs of a completed transfer.
type TransferResult struct {
	FromAccountID string `json:"from_account_id"`
	ToAccountID   string `json:"to_account_id"`
	Amount        Amount `json:"amount"`
	FromBalance   Amount `json:"from_balance"`
	ToBalance     Amount `json:"to_balance"`
}

// NormalizeAccountID trims an actor identity and rejects empty values. Identities
// are otherwise opaque and compared byte-for-byte.
func NormalizeAccountID(id string) (string, error) {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return "", fmt.Errorf("%w: identity is empty", ErrInvalidAccount)
	}
	return trimmed, nil
}
