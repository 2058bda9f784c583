/**
 * @description
 * The Account Ledger. Balances live in memory as integer minor units and every
 * mutation is serialized per affected account. Transfers lock both accounts in
 * ascending identity order, so concurrent transfers over the same pair in opposite
 * directions cannot deadlock.
 *
 * Snapshot takes the gate exclusively while every mutation holds it shared. A
 * snapshot therefore never contains half of a transfer.
 *
 * @dependencies
 * - log/slog, sync, sync/atomic: Standard Go libraries.
 * - internal/domain: Amount arithmetic and domain errors.
 */
package app

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/transfa/economy-service/internal/domain"
)

type account struct {
	mu      sync.Mutex
	balance domain.Amount
}

// Economy is the authoritative in-process account ledger.
type Economy struct {
	gate sync.RWMutex

	idxMu    sync.Mutex
	accounts map[string]*account

	dirty  atomic.Bool
	events EventEmitter
	logger *slog.Logger
}

// NewEconomy creates an empty ledger. events may be nil.
func NewEconomy(events EventEmitter, logger *slog.Logger) *Economy {
	if events == nil {
		events = discardEmitter{}
	}
	return &Economy{
		accounts: make(map[string]*account),
		events:   events,
		logger:   logger,
	}
}

// lookup returns the account record, creating it with a zero balance when create is
// set. Creation alone leaves the dirty flag untouched: an absent account already
// loads as zero, so only balance changes need a save.
func (e *Economy) lookup(id string, create bool) *account {
	e.idxMu.Lock()
	defer e.idxMu.Unlock()
	acc, ok := e.accounts[id]
	if !ok && create {
		acc = &account{}
		e.accounts[id] = acc
	}
	return acc
}

// HasAccount reports whether the identity has ever been referenced.
func (e *Economy) HasAccount(id string) bool {
	id, err := domain.NormalizeAccountID(id)
	if err != nil {
		return false
	}
	e.gate.RLock()
	defer e.gate.RUnlock()
	return e.lookup(id, false) != nil
}

// CreateAccount registers a zero-balance account. It reports false when the account
// already existed.
func (e *Economy) CreateAccount(id string) (bool, error) {
	id, err := domain.NormalizeAccountID(id)
	if err != nil {
		return false, err
	}
	e.gate.RLock()
	defer e.gate.RUnlock()

	e.idxMu.Lock()
	defer e.idxMu.Unlock()
	if _, ok := e.accounts[id]; ok {
		return false, nil
	}
	e.accounts[id] = &account{}
	e.dirty.Store(true)
	return true, nil
}

// Balance returns the current balance. An unseen identity is created with a zero
// balance so that later queries and HasAccount agree.
func (e *Economy) Balance(id string) (domain.Amount, error) {
	id, err := domain.NormalizeAccountID(id)
	if err != nil {
		return 0, err
	}
	e.gate.RLock()
	defer e.gate.RUnlock()

	acc := e.lookup(id, true)
	acc.mu.Lock()
	defer acc.mu.Unlock()
	return acc.balance, nil
}

// Has reports whether the account holds at least amount.
func (e *Economy) Has(id string, amount domain.Amount) bool {
	balance, err := e.Balance(id)
	if err != nil {
		return false
	}
	return balance >= amount
}

// Deposit credits a positive amount and returns the new balance.
func (e *Economy) Deposit(id string, amount domain.Amount) (domain.Amount, error) {
	balance, err := e.deposit(id, amount)
	ledgerOperationsTotal.WithLabelValues("deposit", outcomeLabel(err)).Inc()
	if err != nil {
		return 0, err
	}
	e.emitBalance(id, balance)
	return balance, nil
}

func (e *Economy) deposit(id string, amount domain.Amount) (domain.Amount, error) {
	id, err := domain.NormalizeAccountID(id)
	if err != nil {
		return 0, err
	}
	if err := amount.ValidatePositive(); err != nil {
		return 0, err
	}
	e.gate.RLock()
	defer e.gate.RUnlock()

	acc := e.lookup(id, true)
	acc.mu.Lock()
	defer acc.mu.Unlock()
	if err := credit(acc, amount); err != nil {
		return 0, err
	}
	e.dirty.Store(true)
	return acc.balance, nil
}

// Withdraw debits a positive amount. The balance is left untouched when it is lower
// than amount.
func (e *Economy) Withdraw(id string, amount domain.Amount) (domain.Amount, error) {
	balance, err := e.withdraw(id, amount)
	ledgerOperationsTotal.WithLabelValues("withdraw", outcomeLabel(err)).Inc()
	if err != nil {
		return 0, err
	}
	e.emitBalance(id, balance)
	return balance, nil
}

func (e *Economy) withdraw(id string, amount domain.Amount) (domain.Amount, error) {
	id, err := domain.NormalizeAccountID(id)
	if err != nil {
		return 0, err
	}
	if err := amount.ValidatePositive(); err != nil {
		return 0, err
	}
	e.gate.RLock()
	defer e.gate.RUnlock()

	acc := e.lookup(id, true)
	acc.mu.Lock()
	defer acc.mu.Unlock()
	if err := debit(acc, amount); err != nil {
		return 0, err
	}
	e.dirty.Store(true)
	return acc.balance, nil
}

// Transfer moves amount from one account to another as a single step. Either both
// legs apply or neither does.
func (e *Economy) Transfer(fromID, toID string, amount domain.Amount) (domain.TransferResult, error) {
	result, err := e.transfer(fromID, toID, amount)
	ledgerOperationsTotal.WithLabelValues("transfer", outcomeLabel(err)).Inc()
	if err != nil {
		return domain.TransferResult{}, err
	}
	e.emitBalance(result.FromAccountID, result.FromBalance)
	e.emitBalance(result.ToAccountID, result.ToBalance)
	return result, nil
}

func (e *Economy) transfer(fromID, toID string, amount domain.Amount) (domain.TransferResult, error) {
	fromID, err := domain.NormalizeAccountID(fromID)
	if err != nil {
		return domain.TransferResult{}, err
	}
	toID, err = domain.NormalizeAccountID(toID)
	if err != nil {
		return domain.TransferResult{}, err
	}
	if fromID == toID {
		return domain.TransferResult{}, domain.ErrSameActor
	}
	if err := amount.ValidatePositive(); err != nil {
		return domain.TransferResult{}, err
	}

	e.gate.RLock()
	defer e.gate.RUnlock()

	from := e.lookup(fromID, true)
	to := e.lookup(toID, false)
	if to == nil {
		// The recipient is only created once the payer is known to cover the amount.
		from.mu.Lock()
		balance := from.balance
		from.mu.Unlock()
		if balance < amount {
			return domain.TransferResult{}, fmt.Errorf("%w: %s holds %s, needs %s", domain.ErrInsufficientFunds, fromID, balance, amount)
		}
		to = e.lookup(toID, true)
	}

	first, second := from, to
	if toID < fromID {
		first, second = to, from
	}
	first.mu.Lock()
	defer first.mu.Unlock()
	second.mu.Lock()
	defer second.mu.Unlock()

	if from.balance < amount {
		return domain.TransferResult{}, fmt.Errorf("%w: %s holds %s, needs %s", domain.ErrInsufficientFunds, fromID, from.balance, amount)
	}
	if to.balance > math.MaxInt64-amount {
		return domain.TransferResult{}, fmt.Errorf("%w: credit would overflow %s", domain.ErrInvalidAmount, toID)
	}
	from.balance -= amount
	to.balance += amount
	e.dirty.Store(true)

	return domain.TransferResult{
		FromAccountID: fromID,
		ToAccountID:   toID,
		Amount:        amount,
		FromBalance:   from.balance,
		ToBalance:     to.balance,
	}, nil
}

func credit(acc *account, amount domain.Amount) error {
	if acc.balance > math.MaxInt64-amount {
		return fmt.Errorf("%w: credit would overflow balance", domain.ErrInvalidAmount)
	}
	acc.balance += amount
	return nil
}

func debit(acc *account, amount domain.Amount) error {
	if acc.balance < amount {
		return fmt.Errorf("%w: balance %s, needs %s", domain.ErrInsufficientFunds, acc.balance, amount)
	}
	acc.balance -= amount
	return nil
}

func (e *Economy) emitBalance(id string, balance domain.Amount) {
	id, _ = domain.NormalizeAccountID(id)
	b := balance
	e.events.Emit(domain.Event{
		Type:      domain.EventBalanceChanged,
		AccountID: id,
		Balance:   &b,
	})
}

// Format renders an amount the way balances are shown to actors.
func (e *Economy) Format(amount domain.Amount) string {
	return amount.String()
}

// Accounts lists every known account with its balance, sorted by identity.
func (e *Economy) Accounts() []domain.AccountBalance {
	snapshot := e.Snapshot()
	out := make([]domain.AccountBalance, 0, len(snapshot))
	for id, balance := range snapshot {
		out = append(out, domain.AccountBalance{AccountID: id, Balance: domain.Amount(balance)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out
}

// TotalSupply is the sum of all balances.
func (e *Economy) TotalSupply() domain.Amount {
	var total domain.Amount
	for _, balance := range e.Snapshot() {
		total += domain.Amount(balance)
	}
	return total
}

// Snapshot copies every balance at a single consistent point.
func (e *Economy) Snapshot() map[string]int64 {
	e.gate.Lock()
	defer e.gate.Unlock()
	return e.copyLocked()
}

// snapshotForSave copies the balances and clears the dirty flag in the same
// critical section, so a mutation racing the save marks the ledger dirty again.
func (e *Economy) snapshotForSave() map[string]int64 {
	e.gate.Lock()
	defer e.gate.Unlock()
	e.dirty.Store(false)
	return e.copyLocked()
}

func (e *Economy) copyLocked() map[string]int64 {
	out := make(map[string]int64, len(e.accounts))
	for id, acc := range e.accounts {
		out[id] = int64(acc.balance)
	}
	return out
}

// Restore replaces the whole ledger with balances, as read from the store.
func (e *Economy) Restore(balances map[string]int64) {
	e.gate.Lock()
	defer e.gate.Unlock()
	accounts := make(map[string]*account, len(balances))
	for id, balance := range balances {
		accounts[id] = &account{balance: domain.Amount(balance)}
	}
	e.idxMu.Lock()
	e.accounts = accounts
	e.idxMu.Unlock()
	e.dirty.Store(false)
}

// Dirty reports whether balances changed since the last successful save.
func (e *Economy) Dirty() bool {
	return e.dirty.Load()
}

// MarkDirty flags the ledger for the next autosave, e.g. after a failed save.
func (e *Economy) MarkDirty() {
	e.dirty.Store(true)
}
