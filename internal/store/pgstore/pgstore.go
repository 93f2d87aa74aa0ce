package pgstore

import (
	"context"
	"errors"

	"github.com/Sharedvaluevending/revqr-rewards/pkg/rewards"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgUniqueViolationCode = "23505"
	errorOperationStore   = "store"
	errorSubjectAccount   = "account"
	errorSubjectBalance   = "balance"
	errorSubjectEntry     = "entry"
	errorSubjectUsage     = "usage"
	errorSubjectVote      = "vote"
	errorSubjectSpin      = "spin"
	errorSubjectAvatar    = "avatar"
	errorSubjectRedeem    = "redemption"
	errorSubjectTx        = "transaction"
	errorCodeBegin        = "begin"
	errorCodeCommit       = "commit"
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

	sqlInsertOrGetAccount = `
		insert into accounts(account_id, external_id) values(gen_random_uuid(), $1)
		on conflict (external_id) do update set external_id = excluded.external_id
		returning account_id::text
	`

	sqlInsertEntry = `
		insert into ledger_entries(
			entry_id, account_id, direction, category, amount, reason, source_type, source_id, metadata, created_at
		)
		values(
			$1, $2, $3, $4, $5, $6, $7, $8,
			coalesce(nullif($9,''),'{}')::jsonb,
			to_timestamp($10)
		)
	`

	sqlSumBalance = `
		select coalesce(sum(case when direction = 'debit' then -amount else amount end),0)
		from ledger_entries where account_id = $1
	`

	sqlListEntriesBefore = `
		select
			entry_id::text,
			account_id::text,
			direction,
			category,
			amount,
			reason,
			coalesce(source_type,''),
			coalesce(source_id,''),
			coalesce(metadata::text,'{}'),
			extract(epoch from created_at)::bigint
		from ledger_entries
		where account_id = $1 and created_at < to_timestamp($2)
		order by created_at desc
		limit $3
	`

	sqlEnsureUsageRow = `
		insert into vote_usage(account_id, bucket, period_key, used) values($1, $2, $3, 0)
		on conflict (account_id, bucket, period_key) do nothing
	`

	sqlIncrementUsage = `
		update vote_usage set used = used + 1, updated_at = now()
		where account_id = $1 and bucket = $2 and period_key = $3 and used < $4
	`

	sqlExhaustUsage = `
		update vote_usage set used = $4, updated_at = now()
		where account_id = $1 and bucket = $2 and period_key = $3
	`

	sqlCountUsage = `
		select coalesce(max(used),0) from vote_usage
		where account_id = $1 and bucket = $2 and period_key = $3
	`

	sqlInsertVote = `
		insert into vote_records(vote_id, account_id, item_id, direction, scope_kind, scope_id, method, created_at)
		values($1, $2, $3, $4, $5, $6, $7, to_timestamp($8))
	`

	sqlInsertSpin = `
		insert into spin_records(spin_id, account_id, wheel_id, prize_name, coin_delta, suppressed, created_at)
		values($1, $2, $3, $4, $5, $6, to_timestamp($7))
	`

	sqlGetEquippedAvatar = `
		select avatar_id from equipped_avatars where account_id = $1
	`

	sqlSetEquippedAvatar = `
		insert into equipped_avatars(account_id, avatar_id) values($1, $2)
		on conflict (account_id) do update set avatar_id = excluded.avatar_id, updated_at = now()
	`

	sqlInsertRedemption = `
		insert into redemptions(promotion_id, identity, created_at)
		values($1, $2, to_timestamp($3))
	`
)

// querier is the subset of pgx shared by pools and transactions.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements rewards.Store on a pgx connection pool; transactional
// copies run the same statements against the open pgx.Tx.
type Store struct {
	pool *pgxpool.Pool
	conn querier
}

// New returns a Store backed by a pgx pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, conn: pool}
}

func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore rewards.Store) error) error {
	if store.pool == nil {
		// Already inside a transaction; reuse it.
		return fn(ctx, store)
	}
	tx, err := store.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return wrapStoreError(errorSubjectTx, errorCodeBegin, err)
	}
	if err := fn(ctx, &Store{conn: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return wrapStoreError(errorSubjectTx, errorCodeCommit, err)
	}
	return nil
}

func (store *Store) GetOrCreateAccountID(ctx context.Context, account rewards.AccountID) (string, error) {
	var accountID string
	err := store.conn.QueryRow(ctx, sqlInsertOrGetAccount, account.String()).Scan(&accountID)
	if err != nil {
		return "", wrapStoreError(errorSubjectAccount, errorCodeLookup, err)
	}
	return accountID, nil
}

func (store *Store) InsertLedgerEntry(ctx context.Context, entry rewards.LedgerEntry) error {
	_, err := store.conn.Exec(ctx, sqlInsertEntry,
		entry.EntryID,
		entry.AccountID,
		entry.Direction.String(),
		entry.Category.String(),
		entry.Amount.Int64(),
		entry.Reason,
		entry.SourceType,
		entry.SourceID,
		entry.MetadataJSON,
		entry.CreatedUnixUTC,
	)
	if err != nil {
		return wrapStoreError(errorSubjectEntry, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) SumBalance(ctx context.Context, accountID string) (rewards.Coins, error) {
	var sum int64
	if err := store.conn.QueryRow(ctx, sqlSumBalance, accountID).Scan(&sum); err != nil {
		return 0, wrapStoreError(errorSubjectBalance, errorCodeSum, err)
	}
	return rewards.Coins(sum), nil
}

func (store *Store) ListLedgerEntries(ctx context.Context, accountID string, beforeUnixUTC int64, limit int) ([]rewards.LedgerEntry, error) {
	rows, err := store.conn.Query(ctx, sqlListEntriesBefore, accountID, beforeUnixUTC, limit)
	if err != nil {
		return nil, wrapStoreError(errorSubjectEntry, errorCodeList, err)
	}
	defer rows.Close()
	entries, err := scanEntries(rows)
	if err != nil {
		return nil, wrapStoreError(errorSubjectEntry, errorCodeInvalid, err)
	}
	return entries, nil
}

func (store *Store) CountVoteUsage(ctx context.Context, accountID string, bucket rewards.UsageBucket, periodKey string) (int, error) {
	var used int
	err := store.conn.QueryRow(ctx, sqlCountUsage, accountID, bucket.String(), periodKey).Scan(&used)
	if err != nil {
		return 0, wrapStoreError(errorSubjectUsage, errorCodeCount, err)
	}
	return used, nil
}

func (store *Store) IncrementVoteUsage(ctx context.Context, accountID string, bucket rewards.UsageBucket, periodKey string, limit int) error {
	if _, err := store.conn.Exec(ctx, sqlEnsureUsageRow, accountID, bucket.String(), periodKey); err != nil {
		return wrapStoreError(errorSubjectUsage, errorCodeInsert, err)
	}
	tag, err := store.conn.Exec(ctx, sqlIncrementUsage, accountID, bucket.String(), periodKey, limit)
	if err != nil {
		return wrapStoreError(errorSubjectUsage, errorCodeIncrement, err)
	}
	if tag.RowsAffected() == 0 {
		return wrapStoreError(errorSubjectUsage, errorCodeIncrement, rewards.ErrQuotaExhausted)
	}
	return nil
}

func (store *Store) ExhaustVoteUsage(ctx context.Context, accountID string, bucket rewards.UsageBucket, periodKey string, limit int) error {
	if _, err := store.conn.Exec(ctx, sqlEnsureUsageRow, accountID, bucket.String(), periodKey); err != nil {
		return wrapStoreError(errorSubjectUsage, errorCodeInsert, err)
	}
	if _, err := store.conn.Exec(ctx, sqlExhaustUsage, accountID, bucket.String(), periodKey, limit); err != nil {
		return wrapStoreError(errorSubjectUsage, errorCodeSet, err)
	}
	return nil
}

func (store *Store) InsertVoteRecord(ctx context.Context, record rewards.VoteRecord) error {
	_, err := store.conn.Exec(ctx, sqlInsertVote,
		record.VoteID,
		record.AccountID,
		record.ItemID,
		record.Direction.String(),
		string(record.ScopeKind),
		record.ScopeID,
		record.Method.String(),
		record.CreatedUnixUTC,
	)
	if err != nil {
		return wrapStoreError(errorSubjectVote, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) InsertSpinRecord(ctx context.Context, record rewards.SpinRecord) error {
	_, err := store.conn.Exec(ctx, sqlInsertSpin,
		record.SpinID,
		record.AccountID,
		record.WheelID,
		record.PrizeName,
		record.CoinDelta.Int64(),
		record.Suppressed,
		record.CreatedUnixUTC,
	)
	if err != nil {
		return wrapStoreError(errorSubjectSpin, errorCodeInsert, err)
	}
	return nil
}

func (store *Store) GetEquippedAvatarID(ctx context.Context, accountID string) (string, error) {
	var avatarID string
	err := store.conn.QueryRow(ctx, sqlGetEquippedAvatar, accountID).Scan(&avatarID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", wrapStoreError(errorSubjectAvatar, errorCodeGet, err)
	}
	return avatarID, nil
}

func (store *Store) SetEquippedAvatarID(ctx context.Context, accountID string, avatarID string) error {
	if _, err := store.conn.Exec(ctx, sqlSetEquippedAvatar, accountID, avatarID); err != nil {
		return wrapStoreError(errorSubjectAvatar, errorCodeSet, err)
	}
	return nil
}

func (store *Store) InsertRedemption(ctx context.Context, record rewards.RedemptionRecord) error {
	_, err := store.conn.Exec(ctx, sqlInsertRedemption,
		record.PromotionID,
		record.Identity,
		record.CreatedUnixUTC,
	)
	if isUniqueViolation(err) {
		return wrapStoreError(errorSubjectRedeem, errorCodeDuplicate, rewards.ErrAlreadyRedeemed)
	}
	if err != nil {
		return wrapStoreError(errorSubjectRedeem, errorCodeInsert, err)
	}
	return nil
}

func scanEntries(rows pgx.Rows) ([]rewards.LedgerEntry, error) {
	entries := make([]rewards.LedgerEntry, 0, 32)
	for rows.Next() {
		var (
			entryIDValue   string
			accountIDValue string
			directionValue string
			categoryValue  string
			amountValue    int64
			reasonValue    string
			sourceType     string
			sourceID       string
			metadataValue  string
			createdUnixUTC int64
		)
		if err := rows.Scan(
			&entryIDValue,
			&accountIDValue,
			&directionValue,
			&categoryValue,
			&amountValue,
			&reasonValue,
			&sourceType,
			&sourceID,
			&metadataValue,
			&createdUnixUTC,
		); err != nil {
			return nil, err
		}
		direction, err := rewards.ParseEntryDirection(directionValue)
		if err != nil {
			return nil, err
		}
		category, err := rewards.ParseEntryCategory(categoryValue)
		if err != nil {
			return nil, err
		}
		entries = append(entries, rewards.LedgerEntry{
			EntryID:        entryIDValue,
			AccountID:      accountIDValue,
			Direction:      direction,
			Category:       category,
			Amount:         rewards.Coins(amountValue),
			Reason:         reasonValue,
			SourceType:     sourceType,
			SourceID:       sourceID,
			MetadataJSON:   metadataValue,
			CreatedUnixUTC: createdUnixUTC,
		})
	}
	return entries, rows.Err()
}

func wrapStoreError(subject string, code string, err error) error {
	return rewards.WrapError(errorOperationStore, subject, code, err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolationCode
	}
	return false
}
