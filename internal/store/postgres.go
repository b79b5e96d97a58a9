package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"hodlhunt/internal/game"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const fishColumns = `id, owner, name, share, created_at, last_fed_at, last_hunt_at, can_hunt_after,
	is_protected, protection_ends_at, total_hunts, total_hunt_income, received_from_hunt_value,
	marks_placed, marked_by_hunter_id, mark_placed_at, mark_expires_at, mark_cost`

// Postgres runs every Update as a SERIALIZABLE transaction and retries
// serialization failures with doubling backoff.
type Postgres struct {
	db  *pgxpool.Pool
	log *slog.Logger
}

func NewPostgres(db *pgxpool.Pool, logger *slog.Logger) *Postgres {
	if logger == nil {
		logger = slog.Default()
	}
	return &Postgres{db: db, log: logger}
}

func (p *Postgres) Update(ctx context.Context, fn func(tx game.Tx) error) error {
	const maxAttempts = 8
	retryDelay := 75 * time.Millisecond
	for attempt := 0; attempt < maxAttempts; attempt++ {
		tx, err := p.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
		if err != nil {
			return err
		}
		err = func() error {
			defer tx.Rollback(ctx)
			if err := fn(&pgTx{tx: tx}); err != nil {
				return err
			}
			return tx.Commit(ctx)
		}()
		if err == nil {
			return nil
		}
		if !isSerializationError(err) {
			return err
		}
		p.log.Debug("serialization conflict, retrying", "attempt", attempt+1, "delay", retryDelay)
		if attempt == maxAttempts-1 {
			return game.ErrTxConflict
		}
		if err := sleepWithContext(ctx, retryDelay); err != nil {
			return err
		}
		if retryDelay < 1200*time.Millisecond {
			retryDelay *= 2
		}
	}
	return game.ErrTxConflict
}

func (p *Postgres) View(ctx context.Context, fn func(tx game.Tx) error) error {
	tx, err := p.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if err := fn(&pgTx{tx: tx, readOnly: true}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type pgTx struct {
	tx       pgx.Tx
	readOnly bool
}

// lock appends FOR UPDATE in read-write transactions.
func (t *pgTx) lock(query string) string {
	if t.readOnly {
		return query
	}
	return query + " FOR UPDATE"
}

func (t *pgTx) Ocean(ctx context.Context) (game.Ocean, error) {
	var (
		o                           game.Ocean
		total, balance, count, next int64
		mode                        string
		feeding, stormProb          int32
	)
	err := t.tx.QueryRow(ctx, t.lock(`
		SELECT admin, total_shares, balance, fish_count, next_fish_id, mode,
		       feeding_bps, storm_probability_bps, cycle_start, next_mode_change, created_at
		FROM hodlhunt.ocean
		WHERE id = 1`)).Scan(&o.Admin, &total, &balance, &count, &next, &mode,
		&feeding, &stormProb, &o.CycleStart, &o.NextModeChange, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return game.Ocean{}, game.ErrOceanNotInitialized
		}
		return game.Ocean{}, err
	}
	if o.Mode, err = game.ParseMode(mode); err != nil {
		return game.Ocean{}, err
	}
	o.TotalShares = uint64(total)
	o.Balance = uint64(balance)
	o.FishCount = uint64(count)
	o.NextFishID = uint64(next)
	o.FeedingBps = uint16(feeding)
	o.StormProbabilityBps = uint16(stormProb)
	return o, nil
}

func (t *pgTx) CreateOcean(ctx context.Context, o game.Ocean) error {
	if err := fitsBigint(o.TotalShares, o.Balance, o.FishCount, o.NextFishID); err != nil {
		return err
	}
	cmd, err := t.tx.Exec(ctx, `
		INSERT INTO hodlhunt.ocean (id, admin, total_shares, balance, fish_count, next_fish_id, mode,
		                            feeding_bps, storm_probability_bps, cycle_start, next_mode_change, created_at)
		VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING
	`, o.Admin, i64(o.TotalShares), i64(o.Balance), i64(o.FishCount), i64(o.NextFishID), o.Mode.String(),
		int32(o.FeedingBps), int32(o.StormProbabilityBps), o.CycleStart, o.NextModeChange, o.CreatedAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return game.ErrOceanExists
	}
	return nil
}

func (t *pgTx) SaveOcean(ctx context.Context, o game.Ocean) error {
	if err := fitsBigint(o.TotalShares, o.Balance, o.FishCount, o.NextFishID); err != nil {
		return err
	}
	cmd, err := t.tx.Exec(ctx, `
		UPDATE hodlhunt.ocean
		SET admin = $1, total_shares = $2, balance = $3, fish_count = $4, next_fish_id = $5, mode = $6,
		    feeding_bps = $7, storm_probability_bps = $8, cycle_start = $9, next_mode_change = $10
		WHERE id = 1
	`, o.Admin, i64(o.TotalShares), i64(o.Balance), i64(o.FishCount), i64(o.NextFishID), o.Mode.String(),
		int32(o.FeedingBps), int32(o.StormProbabilityBps), o.CycleStart, o.NextModeChange)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return game.ErrOceanNotInitialized
	}
	return nil
}

func (t *pgTx) Fish(ctx context.Context, id uint64) (game.Fish, error) {
	if id > math.MaxInt64 {
		return game.Fish{}, game.ErrFishNotFound
	}
	row := t.tx.QueryRow(ctx, t.lock(`SELECT `+fishColumns+` FROM hodlhunt.fish WHERE id = $1`), i64(id))
	f, err := scanFish(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return game.Fish{}, game.ErrFishNotFound
		}
		return game.Fish{}, err
	}
	return f, nil
}

func (t *pgTx) SaveFish(ctx context.Context, f game.Fish) error {
	if err := fitsBigint(f.ID, f.Share, f.TotalHunts, f.TotalHuntIncome, f.ReceivedFromHuntValue,
		f.MarksPlaced, f.MarkedByHunterID, f.MarkCost); err != nil {
		return err
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO hodlhunt.fish (`+fishColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (id) DO UPDATE SET
			owner = EXCLUDED.owner,
			name = EXCLUDED.name,
			share = EXCLUDED.share,
			last_fed_at = EXCLUDED.last_fed_at,
			last_hunt_at = EXCLUDED.last_hunt_at,
			can_hunt_after = EXCLUDED.can_hunt_after,
			is_protected = EXCLUDED.is_protected,
			protection_ends_at = EXCLUDED.protection_ends_at,
			total_hunts = EXCLUDED.total_hunts,
			total_hunt_income = EXCLUDED.total_hunt_income,
			received_from_hunt_value = EXCLUDED.received_from_hunt_value,
			marks_placed = EXCLUDED.marks_placed,
			marked_by_hunter_id = EXCLUDED.marked_by_hunter_id,
			mark_placed_at = EXCLUDED.mark_placed_at,
			mark_expires_at = EXCLUDED.mark_expires_at,
			mark_cost = EXCLUDED.mark_cost
	`, i64(f.ID), f.Owner, f.Name, i64(f.Share), f.CreatedAt, f.LastFedAt, f.LastHuntAt, f.CanHuntAfter,
		f.IsProtected, f.ProtectionEndsAt, i64(f.TotalHunts), i64(f.TotalHuntIncome), i64(f.ReceivedFromHuntValue),
		i64(f.MarksPlaced), i64(f.MarkedByHunterID), f.MarkPlacedAt, f.MarkExpiresAt, i64(f.MarkCost))
	return err
}

func (t *pgTx) FishByOwner(ctx context.Context, owner string) ([]game.Fish, error) {
	rows, err := t.tx.Query(ctx, `SELECT `+fishColumns+` FROM hodlhunt.fish WHERE owner = $1 ORDER BY id`, owner)
	if err != nil {
		return nil, err
	}
	return collectFish(rows)
}

func (t *pgTx) LiveFish(ctx context.Context, limit int) ([]game.Fish, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+fishColumns+`
		FROM hodlhunt.fish
		WHERE share > 0
		ORDER BY share DESC, id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	return collectFish(rows)
}

func (t *pgTx) Ledger() game.Ledger      { return pgLedger{t} }
func (t *pgTx) Names() game.NameRegistry { return pgNames{t} }

func (t *pgTx) ClaimIdempotency(ctx context.Context, owner, key, action string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("idempotency key is required")
	}
	cmd, err := t.tx.Exec(ctx, `
		INSERT INTO hodlhunt.idempotency_keys (owner, key, action, created_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (owner, key) DO NOTHING
	`, owner, key, action)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return game.ErrDuplicateIdempotency
	}
	return nil
}

func (t *pgTx) AppendEvents(ctx context.Context, events []game.Event) error {
	for _, ev := range events {
		payload, err := json.Marshal(ev.Payload)
		if err != nil {
			return err
		}
		if _, err := t.tx.Exec(ctx, `
			INSERT INTO hodlhunt.events (id, kind, at, payload)
			VALUES ($1, $2, $3, $4::jsonb)
		`, ev.ID, ev.Kind, ev.At, string(payload)); err != nil {
			return err
		}
	}
	return nil
}

func (t *pgTx) CreatePlayer(ctx context.Context, p game.Player, starterBalance uint64) error {
	cmd, err := t.tx.Exec(ctx, `
		INSERT INTO hodlhunt.players (id, username, password_hash, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (username) DO NOTHING
	`, p.ID, p.Username, p.PasswordHash, p.CreatedAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return game.ErrPlayerExists
	}
	if starterBalance == 0 {
		return nil
	}
	if err := credit(ctx, t.tx, p.ID, starterBalance); err != nil {
		return err
	}
	return appendLedgerEntries(ctx, t.tx, "", p.ID, starterBalance, "starter_balance")
}

func (t *pgTx) PlayerByUsername(ctx context.Context, username string) (game.Player, error) {
	var p game.Player
	err := t.tx.QueryRow(ctx, `
		SELECT id::text, username, password_hash, created_at
		FROM hodlhunt.players
		WHERE username = $1
	`, username).Scan(&p.ID, &p.Username, &p.PasswordHash, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return game.Player{}, game.ErrInvalidCredentials
		}
		return game.Player{}, err
	}
	return p, nil
}

type pgLedger struct{ t *pgTx }

func (l pgLedger) Balance(ctx context.Context, holder string) (uint64, error) {
	var amount int64
	err := l.t.tx.QueryRow(ctx, l.t.lock(`SELECT amount FROM hodlhunt.balances WHERE holder = $1`), holder).Scan(&amount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return uint64(amount), nil
}

func (l pgLedger) Transfer(ctx context.Context, from, to string, amount uint64) error {
	if amount == 0 || from == to {
		return nil
	}
	if amount > math.MaxInt64 {
		return game.ErrMathOverflow
	}
	cmd, err := l.t.tx.Exec(ctx, `
		UPDATE hodlhunt.balances
		SET amount = amount - $2, updated_at = now()
		WHERE holder = $1 AND amount >= $2
	`, from, int64(amount))
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return game.ErrInsufficientFunds
	}
	if err := credit(ctx, l.t.tx, to, amount); err != nil {
		return err
	}
	return appendLedgerEntries(ctx, l.t.tx, from, to, amount, "transfer")
}

type pgNames struct{ t *pgTx }

func (n pgNames) Reserve(ctx context.Context, name string) error {
	cmd, err := n.t.tx.Exec(ctx, `
		INSERT INTO hodlhunt.fish_names (name) VALUES ($1)
		ON CONFLICT (name) DO NOTHING
	`, name)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return game.ErrNameAlreadyTaken
	}
	return nil
}

func (n pgNames) Release(ctx context.Context, name string) error {
	_, err := n.t.tx.Exec(ctx, `DELETE FROM hodlhunt.fish_names WHERE name = $1`, name)
	return err
}

func credit(ctx context.Context, tx pgx.Tx, holder string, amount uint64) error {
	if err := fitsBigint(amount); err != nil {
		return err
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO hodlhunt.balances (holder, amount) VALUES ($1, $2)
		ON CONFLICT (holder) DO UPDATE
		SET amount = hodlhunt.balances.amount + EXCLUDED.amount, updated_at = now()
	`, holder, i64(amount))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "22003" {
			return game.ErrMathOverflow
		}
	}
	return err
}

// appendLedgerEntries writes the debit and credit legs of one movement under
// a shared group id. An empty from records a mint with only the credit leg.
func appendLedgerEntries(ctx context.Context, tx pgx.Tx, from, to string, amount uint64, action string) error {
	txID := uuid.NewString()
	meta, _ := json.Marshal(map[string]any{"action": action})
	if from != "" {
		if _, err := tx.Exec(ctx, `
			INSERT INTO hodlhunt.ledger_entries (tx_group_id, holder, delta, metadata)
			VALUES ($1, $2, $3, $4::jsonb)
		`, txID, from, -i64(amount), string(meta)); err != nil {
			return err
		}
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO hodlhunt.ledger_entries (tx_group_id, holder, delta, metadata)
		VALUES ($1, $2, $3, $4::jsonb)
	`, txID, to, i64(amount), string(meta))
	return err
}

func scanFish(row pgx.Row) (game.Fish, error) {
	var (
		f                                game.Fish
		id, share, hunts, income, banked int64
		marks, markedBy, markCost        int64
	)
	err := row.Scan(&id, &f.Owner, &f.Name, &share, &f.CreatedAt, &f.LastFedAt, &f.LastHuntAt, &f.CanHuntAfter,
		&f.IsProtected, &f.ProtectionEndsAt, &hunts, &income, &banked,
		&marks, &markedBy, &f.MarkPlacedAt, &f.MarkExpiresAt, &markCost)
	if err != nil {
		return game.Fish{}, err
	}
	f.ID = uint64(id)
	f.Share = uint64(share)
	f.TotalHunts = uint64(hunts)
	f.TotalHuntIncome = uint64(income)
	f.ReceivedFromHuntValue = uint64(banked)
	f.MarksPlaced = uint64(marks)
	f.MarkedByHunterID = uint64(markedBy)
	f.MarkCost = uint64(markCost)
	return f, nil
}

func collectFish(rows pgx.Rows) ([]game.Fish, error) {
	defer rows.Close()
	var out []game.Fish
	for rows.Next() {
		f, err := scanFish(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// fitsBigint rejects values that a BIGINT column cannot hold. Every write
// checks its amounts here before converting them with i64.
func fitsBigint(vals ...uint64) error {
	for _, v := range vals {
		if v > math.MaxInt64 {
			return fmt.Errorf("%w: %d does not fit in BIGINT", game.ErrMathOverflow, v)
		}
	}
	return nil
}

func i64(v uint64) int64 { return int64(v) }

func isSerializationError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "40001"
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
