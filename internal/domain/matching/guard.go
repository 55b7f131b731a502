package matching

import (
	"context"
	"fmt"
)

// HistoryGuard не допускает повторного создания пары, которая уже была в журнале.
// Кандидат с прошлой парой исключается полностью, а не получает пониженный балл.
type HistoryGuard struct {
	ledger Ledger
}

// NewHistoryGuard создаёт проверку по журналу пар.
func NewHistoryGuard(ledger Ledger) *HistoryGuard {
	return &HistoryGuard{ledger: ledger}
}

// HasPriorPairing проверяет пару в обоих порядках.
func (g *HistoryGuard) HasPriorPairing(ctx context.Context, userAID, userBID string) (bool, error) {
	if userAID == userBID {
		return true, nil
	}
	exists, err := g.ledger.HasPair(ctx, userAID, userBID)
	if err != nil {
		return false, fmt.Errorf("history lookup %s/%s: %w", userAID, userBID, err)
	}
	return exists, nil
}
