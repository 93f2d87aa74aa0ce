package gormstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Account represents the accounts table. ExternalID is the caller-facing
// identity (user id or IP-derived guest key).
type Account struct {
	AccountID  string    `gorm:"type:uuid;primaryKey"`
	ExternalID string    `gorm:"not null;index:idx_accounts_external,unique"`
	CreatedAt  time.Time `gorm:"not null"`
}

func (Account) TableName() string { return "accounts" }

func (account *Account) BeforeCreate(tx *gorm.DB) error {
	if account.AccountID == "" {
		account.AccountID = uuid.NewString()
	}
	return nil
}

// LedgerEntry mirrors the ledger_entries table. Rows are append-only.
type LedgerEntry struct {
	EntryID    string         `gorm:"type:uuid;primaryKey"`
	AccountID  string         `gorm:"type:uuid;not null;index:idx_ledger_account_created,priority:1"`
	Direction  string         `gorm:"not null"`
	Category   string         `gorm:"not null"`
	Amount     int64          `gorm:"not null"`
	Reason     string         `gorm:"not null"`
	SourceType string         `gorm:""`
	SourceID   string         `gorm:""`
	Metadata   datatypes.JSON `gorm:"not null"`
	CreatedAt  time.Time      `gorm:"not null;index:idx_ledger_account_created,priority:2"`
}

func (LedgerEntry) TableName() string { return "ledger_entries" }

func (entry *LedgerEntry) BeforeCreate(tx *gorm.DB) error {
	if entry.EntryID == "" {
		entry.EntryID = uuid.NewString()
	}
	return nil
}

// VoteUsage is one quota counter: how many votes an account has consumed
// from a bucket within one period.
type VoteUsage struct {
	AccountID string    `gorm:"type:uuid;primaryKey"`
	Bucket    string    `gorm:"primaryKey"`
	PeriodKey string    `gorm:"primaryKey"`
	Used      int       `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (VoteUsage) TableName() string { return "vote_usage" }

// VoteRecord mirrors the vote_records table.
type VoteRecord struct {
	VoteID    string    `gorm:"type:uuid;primaryKey"`
	AccountID string    `gorm:"type:uuid;not null;index:idx_votes_account_created,priority:1"`
	ItemID    string    `gorm:"not null"`
	Direction string    `gorm:"not null"`
	ScopeKind string    `gorm:"not null;index:idx_votes_scope,priority:1"`
	ScopeID   string    `gorm:"not null;index:idx_votes_scope,priority:2"`
	Method    string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null;index:idx_votes_account_created,priority:2"`
}

func (VoteRecord) TableName() string { return "vote_records" }

// SpinRecord mirrors the spin_records table.
type SpinRecord struct {
	SpinID     string    `gorm:"type:uuid;primaryKey"`
	AccountID  string    `gorm:"type:uuid;not null;index:idx_spins_account_created,priority:1"`
	WheelID    string    `gorm:"not null"`
	PrizeName  string    `gorm:"not null"`
	CoinDelta  int64     `gorm:"not null"`
	Suppressed bool      `gorm:"not null"`
	CreatedAt  time.Time `gorm:"not null;index:idx_spins_account_created,priority:2"`
}

func (SpinRecord) TableName() string { return "spin_records" }

// EquippedAvatar holds the single equipped avatar per account.
type EquippedAvatar struct {
	AccountID string    `gorm:"type:uuid;primaryKey"`
	AvatarID  string    `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (EquippedAvatar) TableName() string { return "equipped_avatars" }

// Redemption mirrors the redemptions table. The composite primary key is
// the uniqueness guarantee the redemption guard rests on.
type Redemption struct {
	PromotionID string    `gorm:"primaryKey"`
	Identity    string    `gorm:"primaryKey"`
	CreatedAt   time.Time `gorm:"not null"`
}

func (Redemption) TableName() string { return "redemptions" }
