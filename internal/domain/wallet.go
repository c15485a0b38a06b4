package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntryType classifies a ledger entry.
type EntryType string

const (
	EntryRecharge         EntryType = "recharge"
	EntryPayment          EntryType = "payment"
	EntryEarning          EntryType = "earning"
	EntryBonus            EntryType = "bonus"
	EntryFee              EntryType = "fee"
	EntryPenalty          EntryType = "penalty"
	EntryInitialization   EntryType = "initialization"
	EntryManualAdjustment EntryType = "manual_adjustment"
	EntryWithdrawal       EntryType = "withdrawal"
)

// Valid reports whether t is a known entry type.
func (t EntryType) Valid() bool {
	switch t {
	case EntryRecharge, EntryPayment, EntryEarning, EntryBonus, EntryFee,
		EntryPenalty, EntryInitialization, EntryManualAdjustment, EntryWithdrawal:
		return true
	}
	return false
}

// RequiresFunds reports whether an entry of this type may not take the
// balance below zero. Commission, fee and penalty entries may create debt.
func (t EntryType) RequiresFunds() bool {
	return t == EntryPayment || t == EntryWithdrawal
}

// Wallet is the materialized balance of a user's ledger.
type Wallet struct {
	ID        string
	UserID    string
	Balance   decimal.Decimal
	CreatedAt time.Time
	UpdatedAt time.Time
}

// LedgerEntry is an immutable signed movement against a wallet.
type LedgerEntry struct {
	ID           string
	WalletID     string
	Amount       decimal.Decimal // positive = credit, negative = debit
	Type         EntryType
	BalanceAfter decimal.Decimal
	ReferenceID  string
	Reason       string
	CreatedAt    time.Time
}

// WithdrawalStatus represents the state of a withdrawal request.
type WithdrawalStatus string

const (
	WithdrawalPending   WithdrawalStatus = "pending"
	WithdrawalCompleted WithdrawalStatus = "completed"
	WithdrawalRejected  WithdrawalStatus = "rejected"
)

// Withdrawal is a request to move wallet funds out of the platform.
type Withdrawal struct {
	ID        string
	WalletID  string
	UserID    string
	Amount    decimal.Decimal
	Status    WithdrawalStatus
	CreatedAt time.Time
	SettledAt time.Time
}

// VerifyLedger checks the running-total chain of entries given in insertion
// order and returns the sum of their amounts. It reports the index of the
// first broken link, or -1.
func VerifyLedger(entries []LedgerEntry) (decimal.Decimal, int) {
	sum := decimal.Zero
	for i, e := range entries {
		sum = sum.Add(e.Amount)
		if !e.BalanceAfter.Equal(sum) {
			return sum, i
		}
	}
	return sum, -1
}
