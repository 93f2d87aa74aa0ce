package gormstore

import (
	"context"
	"errors"
	"time"

	"github.com/Sharedvaluevending/revqr-rewards/pkg/rewards"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultMetadataJSON   = "{}"
	pgUniqueViolationCode = "23505"
	sqliteConstraintCode  = 19
	errorOperationStore   = "store"
	errorSubjectAccount   = "account"
	errorSubjectBalance   = "balance"
	errorSubjectEntry     = "entry"
	errorSubjectUsage     = "usage"
	errorSubjectVote      = "vote"
	errorSubjectSpin      = "spin"
	errorSubjectAvatar    = "avatar"
	errorSubjectRedeem    = "redemption"
	errorCodeCount        = "count"
	errorCodeDuplicate    = "duplicate"
	errorCodeGet          = "get"
	errorCodeIncrement    = "increment"
	errorCodeInsert       = "insert"
	errorCodeInvalid      = "invalid"
	errorCodeList         = "list"
	errorCodeLookup       = "lookup"
	errorCodeSet          = "set"
	errorCodeSum          = "sum"
)

// Store implements rewards.Store using GORM.
type Store struct {
	db *gorm.DB
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates the schema for every table the store owns.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&Account{},
		&LedgerEntry{},
		&VoteUsage{},
		&VoteRecord{},
		&SpinRecord{},
		&EquippedAvatar{},
		&Redemption{},
	)
}

// WithTx executes fn within a transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore rewards.Store) error) error {
	return store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		return fn(ctx, &Store{db: transaction})
	})
}

func (store *Store) GetOrCreateAccountID(ctx context.Context, account rewards.AccountID) (string, error) {
	var row Account
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "external_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"external_id": clause.Expr{SQL: "excluded.external_id"},
			}),
		}).
		FirstOrCreate(&row, Account{ExternalID: account.String()}).Error
	if err != nil {
		return "", wrapStoreError(errorSubjectAccount, errorCodeLookup, err)
	}
	return row.AccountID, nil
}

func (store *Store) InsertLedgerEntry(ctx context.Context, entry rewards.LedgerEntry) error {
	row := LedgerEntry{
		EntryID:    entry.EntryID,
		AccountID:  entry.AccountID,
		Direction:  entry.Direction.String(),
		Category:   entry.Category.String(),
		Amount:     entry.Amount.Int64(),
		Reason:     entry.Reason,
		SourceType: entry.SourceType,
		SourceID:   entry.SourceID,
		Metadata:   datatypesJSON(entry.MetadataJSON),
		CreatedAt:  time.Unix(entry.CreatedUnixUTC, 0).UTC(),
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	if err := store.db.WithContext(ctx).Create(&row).Error; err != nil {
		return wrapStoreError(errorSubjectEntry, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) SumBalance(ctx context.Context, accountID string) (rewards.Coins, error) {
	var sum sqlSum
	err := store.db.WithContext(ctx).
		Model(&LedgerEntry{}).
		Select("coalesce(sum(case when direction = 'debit' then -amount else amount end),0) as total").
		Where("account_id = ?", accountID).
		Scan(&sum).Error
	if err != nil {
		return 0, wrapStoreError(errorSubjectBalance, errorCodeSum, err)
	}
	return rewards.Coins(sum.Total), nil
}

func (store *Store) ListLedgerEntries(ctx context.Context, accountID string, beforeUnixUTC int64, limit int) ([]rewards.LedgerEntry, error) {
	before := time.Unix(beforeUnixUTC, 0).UTC()
	if beforeUnixUTC == 0 {
		before = time.Now().UTC().Add(time.Second)
	}

	var rows []LedgerEntry
	err := store.db.WithContext(ctx).
		Where("account_id = ? AND created_at < ?", accountID, before).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectEntry, errorCodeList, err)
	}

	entries := make([]rewards.LedgerEntry, 0, len(rows))
	for _, row := range rows {
		entry, err := mapLedgerEntry(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectEntry, errorCodeInvalid, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (store *Store) CountVoteUsage(ctx context.Context, accountID string, bucket rewards.UsageBucket, periodKey string) (int, error) {
	var row VoteUsage
	err := store.db.WithContext(ctx).
		Where("account_id = ? AND bucket = ? AND period_key = ?", accountID, bucket.String(), periodKey).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, wrapStoreError(errorSubjectUsage, errorCodeCount, err)
	}
	return row.Used, nil
}

// IncrementVoteUsage is the atomic increment-if-under-limit the quota tiers
// rely on: the guarded UPDATE either claims a slot or affects zero rows.
func (store *Store) IncrementVoteUsage(ctx context.Context, accountID string, bucket rewards.UsageBucket, periodKey string, limit int) error {
	if err := store.ensureUsageRow(ctx, accountID, bucket, periodKey); err != nil {
		return err
	}
	result := store.db.WithContext(ctx).
		Model(&VoteUsage{}).
		Where("account_id = ? AND bucket = ? AND period_key = ? AND used < ?", accountID, bucket.String(), periodKey, limit).
		Update("used", gorm.Expr("used + 1"))
	if result.Error != nil {
		return wrapStoreError(errorSubjectUsage, errorCodeIncrement, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectUsage, errorCodeIncrement, rewards.ErrQuotaExhausted)
	}
	return nil
}

func (store *Store) ExhaustVoteUsage(ctx context.Context, accountID string, bucket rewards.UsageBucket, periodKey string, limit int) error {
	if err := store.ensureUsageRow(ctx, accountID, bucket, periodKey); err != nil {
		return err
	}
	err := store.db.WithContext(ctx).
		Model(&VoteUsage{}).
		Where("account_id = ? AND bucket = ? AND period_key = ?", accountID, bucket.String(), periodKey).
		Update("used", limit).Error
	if err != nil {
		return wrapStoreError(errorSubjectUsage, errorCodeSet, err)
	}
	return nil
}

func (store *Store) ensureUsageRow(ctx context.Context, accountID string, bucket rewards.UsageBucket, periodKey string) error {
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&VoteUsage{AccountID: accountID, Bucket: bucket.String(), PeriodKey: periodKey, Used: 0}).Error
	if err != nil && !isUniqueConflict(err) {
		return wrapStoreError(errorSubjectUsage, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) InsertVoteRecord(ctx context.Context, record rewards.VoteRecord) error {
	row := VoteRecord{
		VoteID:    record.VoteID,
		AccountID: record.AccountID,
		ItemID:    record.ItemID,
		Direction: record.Direction.String(),
		ScopeKind: string(record.ScopeKind),
		ScopeID:   record.ScopeID,
		Method:    record.Method.String(),
		CreatedAt: time.Unix(record.CreatedUnixUTC, 0).UTC(),
	}
	if err := store.db.WithContext(ctx).Create(&row).Error; err != nil {
		return wrapStoreError(errorSubjectVote, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) InsertSpinRecord(ctx context.Context, record rewards.SpinRecord) error {
	row := SpinRecord{
		SpinID:     record.SpinID,
		AccountID:  record.AccountID,
		WheelID:    record.WheelID,
		PrizeName:  record.PrizeName,
		CoinDelta:  record.CoinDelta.Int64(),
		Suppressed: record.Suppressed,
		CreatedAt:  time.Unix(record.CreatedUnixUTC, 0).UTC(),
	}
	if err := store.db.WithContext(ctx).Create(&row).Error; err != nil {
		return wrapStoreError(errorSubjectSpin, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) GetEquippedAvatarID(ctx context.Context, accountID string) (string, error) {
	var row EquippedAvatar
	err := store.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", wrapStoreError(errorSubjectAvatar, errorCodeGet, err)
	}
	return row.AvatarID, nil
}

func (store *Store) SetEquippedAvatarID(ctx context.Context, accountID string, avatarID string) error {
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"avatar_id", "updated_at"}),
		}).
		Create(&EquippedAvatar{AccountID: accountID, AvatarID: avatarID, UpdatedAt: time.Now().UTC()}).Error
	if err != nil {
		return wrapStoreError(errorSubjectAvatar, errorCodeSet, err)
	}
	return nil
}

// InsertRedemption closes the redeem race at the constraint: the composite
// primary key makes the second insert for the same (promotion, identity)
// surface as a unique violation, mapped to ErrAlreadyRedeemed.
func (store *Store) InsertRedemption(ctx context.Context, record rewards.RedemptionRecord) error {
	row := Redemption{
		PromotionID: record.PromotionID,
		Identity:    record.Identity,
		CreatedAt:   time.Unix(record.CreatedUnixUTC, 0).UTC(),
	}
	err := store.db.WithContext(ctx).Create(&row).Error
	if isUniqueConflict(err) {
		return wrapStoreError(errorSubjectRedeem, errorCodeDuplicate, rewards.ErrAlreadyRedeemed)
	}
	if err != nil {
		return wrapStoreError(errorSubjectRedeem, errorCodeInsert, err)
	}
	return nil
}

func wrapStoreError(subject string, code string, err error) error {
	return rewards.WrapError(errorOperationStore, subject, code, err)
}

type sqlSum struct {
	Total int64
}

func mapLedgerEntry(row LedgerEntry) (rewards.LedgerEntry, error) {
	direction, err := rewards.ParseEntryDirection(row.Direction)
	if err != nil {
		return rewards.LedgerEntry{}, err
	}
	category, err := rewards.ParseEntryCategory(row.Category)
	if err != nil {
		return rewards.LedgerEntry{}, err
	}
	return rewards.LedgerEntry{
		EntryID:        row.EntryID,
		AccountID:      row.AccountID,
		Direction:      direction,
		Category:       category,
		Amount:         rewards.Coins(row.Amount),
		Reason:         row.Reason,
		SourceType:     row.SourceType,
		SourceID:       row.SourceID,
		MetadataJSON:   string(row.Metadata),
		CreatedUnixUTC: row.CreatedAt.Unix(),
	}, nil
}

func datatypesJSON(raw string) datatypes.JSON {
	if raw == "" {
		return datatypes.JSON([]byte(defaultMetadataJSON))
	}
	return datatypes.JSON([]byte(raw))
}

func isUniqueConflict(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code()&0xFF == sqliteConstraintCode
	}
	return false
}
