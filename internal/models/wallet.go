package models

import "time"

// Wallet is a stored-value balance owned by a customer, seller, courier or the platform.
type Wallet struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	OwnerID   string    `json:"ownerId" gorm:"type:varchar(36);uniqueIndex"`
	Balance   int64     `json:"balance"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type WalletTransactionType string

const (
	WalletCredit WalletTransactionType = "credit"
	WalletDebit  WalletTransactionType = "debit"
)

// WalletTransaction records one balance change.
type WalletTransaction struct {
	ID           string                `json:"id" gorm:"primaryKey;type:varchar(36)"`
	WalletID     string                `json:"walletId" gorm:"type:varchar(36);index"`
	Type         WalletTransactionType `json:"type" gorm:"type:varchar(8)"`
	Amount       int64                 `json:"amount"`
	Reference    string                `json:"reference" gorm:"index"`
	BalanceAfter int64                 `json:"balanceAfter"`
	CreatedAt    time.Time             `json:"createdAt"`
}
