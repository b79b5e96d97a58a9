// Package store holds the game.Store implementations: an in-process store
// for tests and single-node runs, and a Postgres store for deployments.
package store

import (
	"cmp"
	"context"
	"errors"
	"maps"
	"math"
	"slices"
	"sync"

	"hodlhunt/internal/game"

	"github.com/google/uuid"
)

var errReadOnly = errors.New("store: write in read-only transaction")

// LedgerEntry is one leg of a transfer. Both legs of a transfer share a
// group id.
type LedgerEntry struct {
	GroupID string `json:"group_id"`
	Holder  string `json:"holder"`
	Delta   int64  `json:"delta"`
	Amount  uint64 `json:"amount"`
}

type idemKey struct {
	owner string
	key   string
}

type memState struct {
	ocean    *game.Ocean
	fish     map[uint64]game.Fish
	balances map[string]uint64
	names    map[string]struct{}
	idem     map[idemKey]string
	players  map[string]game.Player
	events   []game.Event
	entries  []LedgerEntry
}

func (s *memState) clone() *memState {
	c := &memState{
		fish:     maps.Clone(s.fish),
		balances: maps.Clone(s.balances),
		names:    maps.Clone(s.names),
		idem:     maps.Clone(s.idem),
		players:  maps.Clone(s.players),
		events:   slices.Clone(s.events),
		entries:  slices.Clone(s.entries),
	}
	if s.ocean != nil {
		o := *s.ocean
		c.ocean = &o
	}
	return c
}

// Memory keeps all state in process. Update works on a staged copy that
// replaces the live state only when fn succeeds.
type Memory struct {
	mu    sync.Mutex
	state *memState
}

func NewMemory() *Memory {
	return &Memory{state: &memState{
		fish:     map[uint64]game.Fish{},
		balances: map[string]uint64{},
		names:    map[string]struct{}{},
		idem:     map[idemKey]string{},
		players:  map[string]game.Player{},
	}}
}

func (m *Memory) Update(ctx context.Context, fn func(tx game.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	staged := m.state.clone()
	if err := fn(&memTx{st: staged}); err != nil {
		return err
	}
	m.state = staged
	return nil
}

func (m *Memory) View(ctx context.Context, fn func(tx game.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(&memTx{st: m.state, readOnly: true})
}

// Credit mints funds for holder outside the game rules. Tests and local
// runs use it to fund wallets.
func (m *Memory) Credit(holder string, amount uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.balances[holder] = satAdd(m.state.balances[holder], amount)
}

// Events returns the journal in commit order.
func (m *Memory) Events() []game.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.state.events)
}

func (m *Memory) LedgerEntries() []LedgerEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.state.entries)
}

type memTx struct {
	st       *memState
	readOnly bool
}

func (t *memTx) write() error {
	if t.readOnly {
		return errReadOnly
	}
	return nil
}

func (t *memTx) Ocean(context.Context) (game.Ocean, error) {
	if t.st.ocean == nil {
		return game.Ocean{}, game.ErrOceanNotInitialized
	}
	return *t.st.ocean, nil
}

func (t *memTx) CreateOcean(_ context.Context, o game.Ocean) error {
	if err := t.write(); err != nil {
		return err
	}
	if t.st.ocean != nil {
		return game.ErrOceanExists
	}
	t.st.ocean = &o
	return nil
}

func (t *memTx) SaveOcean(_ context.Context, o game.Ocean) error {
	if err := t.write(); err != nil {
		return err
	}
	if t.st.ocean == nil {
		return game.ErrOceanNotInitialized
	}
	t.st.ocean = &o
	return nil
}

func (t *memTx) Fish(_ context.Context, id uint64) (game.Fish, error) {
	f, ok := t.st.fish[id]
	if !ok {
		return game.Fish{}, game.ErrFishNotFound
	}
	return f, nil
}

func (t *memTx) SaveFish(_ context.Context, f game.Fish) error {
	if err := t.write(); err != nil {
		return err
	}
	t.st.fish[f.ID] = f
	return nil
}

func (t *memTx) FishByOwner(_ context.Context, owner string) ([]game.Fish, error) {
	var out []game.Fish
	for _, f := range t.st.fish {
		if f.Owner == owner {
			out = append(out, f)
		}
	}
	slices.SortFunc(out, func(a, b game.Fish) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (t *memTx) LiveFish(_ context.Context, limit int) ([]game.Fish, error) {
	var out []game.Fish
	for _, f := range t.st.fish {
		if f.Share > 0 {
			out = append(out, f)
		}
	}
	slices.SortFunc(out, func(a, b game.Fish) int {
		if c := cmp.Compare(b.Share, a.Share); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (t *memTx) Ledger() game.Ledger      { return memLedger{t} }
func (t *memTx) Names() game.NameRegistry { return memNames{t} }

func (t *memTx) ClaimIdempotency(_ context.Context, owner, key, action string) error {
	if err := t.write(); err != nil {
		return err
	}
	k := idemKey{owner: owner, key: key}
	if _, ok := t.st.idem[k]; ok {
		return game.ErrDuplicateIdempotency
	}
	t.st.idem[k] = action
	return nil
}

func (t *memTx) AppendEvents(_ context.Context, events []game.Event) error {
	if err := t.write(); err != nil {
		return err
	}
	t.st.events = append(t.st.events, events...)
	return nil
}

func (t *memTx) CreatePlayer(_ context.Context, p game.Player, starterBalance uint64) error {
	if err := t.write(); err != nil {
		return err
	}
	if _, ok := t.st.players[p.Username]; ok {
		return game.ErrPlayerExists
	}
	t.st.players[p.Username] = p
	t.st.balances[p.ID] = satAdd(t.st.balances[p.ID], starterBalance)
	return nil
}

func (t *memTx) PlayerByUsername(_ context.Context, username string) (game.Player, error) {
	p, ok := t.st.players[username]
	if !ok {
		return game.Player{}, game.ErrInvalidCredentials
	}
	return p, nil
}

type memLedger struct{ t *memTx }

func (l memLedger) Balance(_ context.Context, holder string) (uint64, error) {
	return l.t.st.balances[holder], nil
}

func (l memLedger) Transfer(_ context.Context, from, to string, amount uint64) error {
	if err := l.t.write(); err != nil {
		return err
	}
	if amount == 0 || from == to {
		return nil
	}
	b := l.t.st.balances
	if b[from] < amount {
		return game.ErrInsufficientFunds
	}
	if b[to] > math.MaxUint64-amount {
		return game.ErrMathOverflow
	}
	b[from] -= amount
	b[to] += amount

	group := uuid.NewString()
	delta := int64(min(amount, math.MaxInt64))
	l.t.st.entries = append(l.t.st.entries,
		LedgerEntry{GroupID: group, Holder: from, Delta: -delta, Amount: amount},
		LedgerEntry{GroupID: group, Holder: to, Delta: delta, Amount: amount},
	)
	return nil
}

type memNames struct{ t *memTx }

func (n memNames) Reserve(_ context.Context, name string) error {
	if err := n.t.write(); err != nil {
		return err
	}
	if _, ok := n.t.st.names[name]; ok {
		return game.ErrNameAlreadyTaken
	}
	n.t.st.names[name] = struct{}{}
	return nil
}

func (n memNames) Release(_ context.Context, name string) error {
	if err := n.t.write(); err != nil {
		return err
	}
	delete(n.t.st.names, name)
	return nil
}

func satAdd(a, b uint64) uint64 {
	if a > math.MaxUint64-b {
		return math.MaxUint64
	}
	return a + b
}
