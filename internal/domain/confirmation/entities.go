package confirmation

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("bank confirmation not found")

// BankConfirmation is the back-office record asserting that a bank transfer
// for a pending transaction was (or was not) received.
type BankConfirmation struct {
	ID             uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	ConfirmationID string `gorm:"column:confirmation_id;size:32;not null;uniqueIndex:ux_bank_confirmations_confirmation_id"`
	// FK to transactions.id; unique so a transfer is confirmed at most once.
	TransactionID uint64    `gorm:"column:transaction_id;not null;uniqueIndex:ux_bank_confirmations_transaction"`
	BankReference string    `gorm:"column:bank_reference;size:64"`
	Received      bool      `gorm:"column:received;not null"`
	Note          string    `gorm:"column:note;size:255"`
	ConfirmedBy   string    `gorm:"column:confirmed_by;size:32;not null"`
	ConfirmedAt   time.Time `gorm:"column:confirmed_at;not null"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (BankConfirmation) TableName() string { return "bank_confirmations" }
