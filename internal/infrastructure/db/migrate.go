package db

import (
	"p2p-lending-backend/internal/domain/confirmation"
	"p2p-lending-backend/internal/domain/investment"
	"p2p-lending-backend/internal/domain/loan"
	"p2p-lending-backend/internal/domain/notification"
	"p2p-lending-backend/internal/domain/transaction"
	"p2p-lending-backend/internal/domain/user"

	"gorm.io/gorm"
)

// AutoMigrate creates or updates every table the service owns.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&user.User{},
		&loan.Loan{},
		&investment.Investment{},
		&transaction.Transaction{},
		&transaction.Attempt{},
		&confirmation.BankConfirmation{},
		&notification.Notification{},
	)
}
