package notification

import (
	"errors"
	"time"

	"gorm.io/datatypes"
)

var ErrNotFound = errors.New("notification not found")

type Type string

const (
	TypeNewLoan               Type = "new_loan"
	TypeLoanFunded            Type = "loan_funded"
	TypePaymentDue            Type = "payment_due"
	TypePaymentReceived       Type = "payment_received"
	TypeLoanRepaid            Type = "loan_repaid"
	TypeInvestmentOpportunity Type = "investment_opportunity"
	TypeSystemMessage         Type = "system_message"
)

type Notification struct {
	ID             uint64            `gorm:"primaryKey;column:id" json:"-"`
	NotificationID string            `gorm:"size:32;uniqueIndex:ux_notifications_notification_id" json:"notification_id"`
	UserID         string            `gorm:"size:32;not null;index:idx_notifications_user" json:"user_id"`
	Type           Type              `gorm:"size:32;not null" json:"type"`
	Message        string            `gorm:"size:512;not null" json:"message"`
	Data           datatypes.JSONMap `json:"data,omitempty"`
	IsRead         bool              `gorm:"not null;default:false" json:"is_read"`
	CreatedAt      time.Time         `gorm:"autoCreateTime" json:"created_at"`
}

func (Notification) TableName() string { return "notifications" }
