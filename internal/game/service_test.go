package game_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"hodlhunt/internal/game"
	"hodlhunt/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	sol     = game.LamportsPerSol
	admin   = "operator"
	starter = 100 * sol
)

var players = []string{"alice", "bob", "carol"}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// switchEntropy returns whatever seed the test last set.
type switchEntropy struct {
	mu   sync.Mutex
	seed uint64
}

func (s *switchEntropy) Set(seed uint64) {
	s.mu.Lock()
	s.seed = seed
	s.mu.Unlock()
}

func (s *switchEntropy) Sample(game.SeedInput) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seed
}

type recordingSink struct {
	mu     sync.Mutex
	events []game.Event
}

func (r *recordingSink) Publish(_ context.Context, events []game.Event) {
	r.mu.Lock()
	r.events = append(r.events, events...)
	r.mu.Unlock()
}

func (r *recordingSink) Kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}
	return out
}

type harness struct {
	svc     *game.Service
	mem     *store.Memory
	clock   *fakeClock
	entropy *switchEntropy
	sink    *recordingSink
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		mem:     store.NewMemory(),
		clock:   &fakeClock{now: time.Unix(1_700_000_000, 0)},
		entropy: &switchEntropy{seed: 999},
		sink:    &recordingSink{},
	}
	h.svc = game.NewService(h.mem, slog.New(slog.NewTextHandler(io.Discard, nil)), game.ServiceConfig{
		Admin:   admin,
		Clock:   h.clock,
		Entropy: h.entropy,
		Sink:    h.sink,
	})
	require.NoError(t, h.svc.EnsureOcean(context.Background()))
	for _, p := range players {
		h.mem.Credit(p, starter)
	}
	return h
}

func (h *harness) wallet(t *testing.T, holder string) uint64 {
	t.Helper()
	bal, err := h.svc.Wallet(context.Background(), holder)
	require.NoError(t, err)
	return bal
}

func (h *harness) ocean(t *testing.T) game.OceanView {
	t.Helper()
	o, err := h.svc.Ocean(context.Background())
	require.NoError(t, err)
	return o
}

func (h *harness) fish(t *testing.T, id uint64) game.FishView {
	t.Helper()
	f, err := h.svc.FishInfo(context.Background(), id)
	require.NoError(t, err)
	return f
}

func (h *harness) create(t *testing.T, owner, name string, deposit uint64) game.FishCreated {
	t.Helper()
	out, err := h.svc.CreateFish(context.Background(), game.CreateFishInput{Owner: owner, Name: name, Deposit: deposit})
	require.NoError(t, err)
	return out
}

// assertBooks checks that no value was created or destroyed and that the
// vault holds exactly the pool balance.
func (h *harness) assertBooks(t *testing.T) {
	t.Helper()
	o := h.ocean(t)
	assert.Equal(t, o.Balance, o.Vault, "vault must equal pool balance")

	var total uint64
	for _, holder := range append([]string{admin, game.VaultHolder}, players...) {
		total += h.wallet(t, holder)
	}
	assert.Equal(t, uint64(len(players))*starter, total, "lamports must be conserved")
	h.assertShares(t)
}

// assertShares checks that the living fish hold exactly the ocean's shares.
func (h *harness) assertShares(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.mem.View(ctx, func(tx game.Tx) error {
		o, err := tx.Ocean(ctx)
		if err != nil {
			return err
		}
		live, err := tx.LiveFish(ctx, 0)
		if err != nil {
			return err
		}
		var sum uint64
		for _, f := range live {
			sum += f.Share
		}
		assert.Equal(t, o.TotalShares, sum, "fish shares must add up to the ocean total")
		assert.Equal(t, o.FishCount, uint64(len(live)), "fish count tracks living fish")
		return nil
	}))
}

func TestInitializeOcean(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	svc := game.NewService(mem, nil, game.ServiceConfig{Admin: admin, Entropy: game.FixedEntropy(999)})

	_, err := svc.Ocean(ctx)
	require.ErrorIs(t, err, game.ErrOceanNotInitialized)
	_, err = svc.CreateFish(ctx, game.CreateFishInput{Owner: "alice", Name: "Nemo", Deposit: sol})
	require.ErrorIs(t, err, game.ErrOceanNotInitialized)

	_, err = svc.InitializeOcean(ctx, "mallory")
	require.ErrorIs(t, err, game.ErrUnauthorizedAdmin)

	o, err := svc.InitializeOcean(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, admin, o.Admin)
	assert.Equal(t, game.ModeCalm, o.Mode)
	assert.Equal(t, uint64(1), o.NextFishID)

	_, err = svc.InitializeOcean(ctx, admin)
	require.ErrorIs(t, err, game.ErrOceanExists)
	require.NoError(t, svc.EnsureOcean(ctx))
}

func TestCreateFishChargesFeesAndMints(t *testing.T) {
	h := newHarness(t)

	first := h.create(t, "alice", "Nemo", sol)
	assert.Equal(t, uint64(1), first.FishID)
	assert.Equal(t, sol, first.Share, "first deposit mints 1:1")
	assert.Equal(t, sol/20, first.PoolFee)
	assert.Equal(t, sol/20, first.OperatorFee)

	assert.Equal(t, starter-sol-sol/10, h.wallet(t, "alice"))
	assert.Equal(t, sol/20, h.wallet(t, admin))

	o := h.ocean(t)
	assert.Equal(t, sol+sol/20, o.Balance)
	assert.Equal(t, sol, o.TotalShares)
	assert.Equal(t, uint64(1), o.FishCount)
	assert.Equal(t, uint64(2), o.NextFishID)

	// The pool fee raised the share price, so the same deposit buys less.
	second := h.create(t, "bob", "Dory", sol)
	assert.Equal(t, uint64(909_090_909), second.Share)

	f := h.fish(t, second.FishID)
	assert.True(t, f.Alive)
	assert.True(t, f.Protected)
	assert.False(t, f.CanHuntNow)
	assert.Equal(t, "bob", f.Owner)

	h.assertBooks(t)
	assert.Equal(t, []string{"ocean_initialized", "fish_created", "fish_created"}, h.sink.Kinds())
}

func TestCreateFishRejectionsLeaveStateUntouched(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.create(t, "alice", "Nemo", sol)
	before := h.ocean(t)
	aliceBefore := h.wallet(t, "alice")

	_, err := h.svc.CreateFish(ctx, game.CreateFishInput{Owner: "bob", Name: "Nemo", Deposit: sol})
	require.ErrorIs(t, err, game.ErrNameAlreadyTaken)
	_, err = h.svc.CreateFish(ctx, game.CreateFishInput{Owner: "bob", Name: "Nemo", Deposit: game.MinDeposit - 1})
	require.ErrorIs(t, err, game.ErrNameAlreadyTaken, "the name is checked before the deposit")

	_, err = h.svc.CreateFish(ctx, game.CreateFishInput{Owner: "bob", Name: "Tiny", Deposit: game.MinDeposit - 1})
	require.ErrorIs(t, err, game.ErrMinimumDeposit)

	_, err = h.svc.CreateFish(ctx, game.CreateFishInput{Owner: "bob", Name: "   ", Deposit: sol})
	require.ErrorIs(t, err, game.ErrInvalidName)

	_, err = h.svc.CreateFish(ctx, game.CreateFishInput{Owner: "dave", Name: "Broke", Deposit: sol})
	require.ErrorIs(t, err, game.ErrInsufficientFunds)

	_, err = h.svc.CreateFish(ctx, game.CreateFishInput{Owner: "bob", Name: "Whale", Deposit: starter})
	require.ErrorIs(t, err, game.ErrInsufficientFunds, "fees push the charge past the wallet")

	after := h.ocean(t)
	assert.Equal(t, before.Balance, after.Balance)
	assert.Equal(t, before.TotalShares, after.TotalShares)
	assert.Equal(t, before.FishCount, after.FishCount)
	assert.Equal(t, aliceBefore, h.wallet(t, "alice"))
	assert.Equal(t, starter, h.wallet(t, "bob"))
	h.assertBooks(t)

	// Names reserved by the failed attempts were rolled back.
	h.create(t, "bob", "Broke", sol)
	h.create(t, "bob", "Tiny", sol)
}

func TestIdempotencyKeyRejectsReplay(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	in := game.CreateFishInput{Owner: "alice", Name: "Nemo", Deposit: sol, IdempotencyKey: "k-1"}

	_, err := h.svc.CreateFish(ctx, in)
	require.NoError(t, err)
	in.Name = "Nemo Two"
	_, err = h.svc.CreateFish(ctx, in)
	require.ErrorIs(t, err, game.ErrDuplicateIdempotency)
	assert.Equal(t, uint64(1), h.ocean(t).FishCount)

	// Keys are scoped per owner.
	_, err = h.svc.CreateFish(ctx, game.CreateFishInput{Owner: "bob", Name: "Dory", Deposit: sol, IdempotencyKey: "k-1"})
	require.NoError(t, err)
}

func TestFeedFish(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.create(t, "alice", "Nemo", 10*sol)

	_, err := h.svc.FeedFish(ctx, game.FeedFishInput{Owner: "alice", FishID: c.FishID, Amount: game.MinFeed / 2})
	require.ErrorIs(t, err, game.ErrInsufficientFeeding)

	_, err = h.svc.FeedFish(ctx, game.FeedFishInput{Owner: "bob", FishID: c.FishID, Amount: sol})
	require.ErrorIs(t, err, game.ErrNotFishOwner)

	_, err = h.svc.FeedFish(ctx, game.FeedFishInput{Owner: "alice", FishID: 99, Amount: sol})
	require.ErrorIs(t, err, game.ErrFishNotFound)

	h.clock.Advance(3 * 24 * time.Hour)
	need := h.fish(t, c.FishID).MinFeeding
	require.GreaterOrEqual(t, need, game.MinFeed)

	operatorBefore := h.wallet(t, admin)
	fed, err := h.svc.FeedFish(ctx, game.FeedFishInput{Owner: "alice", FishID: c.FishID, Amount: need})
	require.NoError(t, err)
	assert.Greater(t, fed.AddedShare, uint64(0))
	assert.Equal(t, c.Share+fed.AddedShare, fed.NewShare)
	assert.Equal(t, need/10/2, fed.OperatorFee)
	assert.Equal(t, operatorBefore+fed.OperatorFee, h.wallet(t, admin))

	f := h.fish(t, c.FishID)
	now := h.clock.Now().Unix()
	assert.Equal(t, now, f.LastFedAt)
	assert.Equal(t, now+game.FeedingCooldown, f.CanHuntAfter)
	h.assertBooks(t)
}

func TestHuntSplitsBite(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	hunter := h.create(t, "alice", "Shark", 2*sol)
	prey := h.create(t, "bob", "Minnow", sol)

	in := game.HuntFishInput{Owner: "alice", HunterID: hunter.FishID, PreyID: prey.FishID, ExpectedPreyShare: prey.Share}
	_, err := h.svc.HuntFish(ctx, in)
	require.ErrorIs(t, err, game.ErrHuntingOnCooldown)

	h.clock.Advance(3 * 24 * time.Hour)
	_, err = h.svc.HuntFish(ctx, in)
	require.ErrorIs(t, err, game.ErrInvalidPrey, "prey is still protected and fed")

	h.clock.Advance(4 * 24 * time.Hour)
	_, err = h.svc.HuntFish(ctx, game.HuntFishInput{Owner: "bob", HunterID: prey.FishID, PreyID: hunter.FishID, ExpectedPreyShare: hunter.Share})
	require.ErrorIs(t, err, game.ErrPreyTooHeavy)

	slipped := in
	slipped.ExpectedPreyShare = prey.Share * 2
	_, err = h.svc.HuntFish(ctx, slipped)
	require.ErrorIs(t, err, game.ErrSlippageExceeded)

	before := h.ocean(t)
	operatorBefore := h.wallet(t, admin)
	out, err := h.svc.HuntFish(ctx, in)
	require.NoError(t, err)

	assert.Equal(t, prey.Share, out.BiteShare)
	assert.Equal(t, out.BiteShare, out.ToHunter+out.ToPool+out.ToOperator)
	assert.Equal(t, prey.Share*80/100, out.ToHunter)
	assert.Equal(t, hunter.Share+out.ToHunter, out.HunterNewShare)
	assert.Zero(t, out.PreyNewShare)

	after := h.ocean(t)
	assert.Equal(t, before.TotalShares-out.ToPool-out.ToOperator, after.TotalShares)
	assert.Equal(t, before.Balance-out.ToOperatorValue, after.Balance)
	assert.Equal(t, uint64(1), after.FishCount)
	assert.Equal(t, operatorBefore+out.ToOperatorValue, h.wallet(t, admin))

	dead := h.fish(t, prey.FishID)
	assert.False(t, dead.Alive)
	hf := h.fish(t, hunter.FishID)
	assert.Equal(t, uint64(1), hf.TotalHunts)
	assert.Equal(t, h.clock.Now().Unix()+game.PostHuntCooldown, hf.CanHuntAfter)

	// The prey's name is free again.
	h.create(t, "carol", "Minnow", sol)
	h.assertBooks(t)
}

func TestHuntingMarkExclusivity(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	shark := h.create(t, "alice", "Shark", 3*sol)
	pike := h.create(t, "carol", "Pike", 2*sol)
	prey := h.create(t, "bob", "Minnow", sol)
	hungryAt := h.fish(t, prey.FishID).HungryAt

	h.clock.Advance(time.Duration(hungryAt-h.clock.Now().Unix()-4*3600) * time.Second)
	_, err := h.svc.PlaceHuntingMark(ctx, game.PlaceMarkInput{Owner: "alice", HunterID: shark.FishID, PreyID: prey.FishID})
	require.ErrorIs(t, err, game.ErrMarkTooEarly)

	h.clock.Advance(2 * time.Hour)
	mark, err := h.svc.PlaceHuntingMark(ctx, game.PlaceMarkInput{Owner: "alice", HunterID: shark.FishID, PreyID: prey.FishID})
	require.NoError(t, err)
	assert.Equal(t, uint64(50), mark.CostPercent)
	assert.Equal(t, hungryAt+game.MarkExclusivityDuration, mark.ExpiresAt)
	assert.Equal(t, int64(2*3600), mark.TimeUntilHungry)

	_, err = h.svc.PlaceHuntingMark(ctx, game.PlaceMarkInput{Owner: "carol", HunterID: pike.FishID, PreyID: prey.FishID})
	require.ErrorIs(t, err, game.ErrMarkAlreadyActive)

	h.clock.Advance(2*time.Hour + time.Minute)
	share := h.fish(t, prey.FishID).Share
	_, err = h.svc.HuntFish(ctx, game.HuntFishInput{Owner: "carol", HunterID: pike.FishID, PreyID: prey.FishID, ExpectedPreyShare: share})
	require.ErrorIs(t, err, game.ErrMarkExclusivityActive)

	h.clock.Advance(20 * time.Minute)
	out, err := h.svc.HuntFish(ctx, game.HuntFishInput{Owner: "carol", HunterID: pike.FishID, PreyID: prey.FishID, ExpectedPreyShare: share})
	require.NoError(t, err, "an expired mark no longer protects the prey")
	assert.Equal(t, pike.FishID, out.HunterID)
	h.assertBooks(t)
}

func TestDailyUpdateAndStormExit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.create(t, "alice", "Nemo", sol)

	res, err := h.svc.UpdateOceanDaily(ctx)
	require.NoError(t, err)
	assert.False(t, res.Changed, "roll is not due before midnight")

	next := h.ocean(t).NextModeChange
	h.clock.Advance(time.Duration(next-h.clock.Now().Unix()) * time.Second)
	h.entropy.Set(10)
	res, err = h.svc.UpdateOceanDaily(ctx)
	require.NoError(t, err)
	require.True(t, res.Changed)
	assert.Equal(t, game.ModeStorm, res.Mode)
	assert.Equal(t, next+game.Day, res.NextModeChange)
	require.NotNil(t, res.Event)
	assert.Equal(t, uint64(10), res.Event.Seed)
	assert.Equal(t, game.StormFeedingBps, h.ocean(t).FeedingBps)

	again, err := h.svc.UpdateOceanDaily(ctx)
	require.NoError(t, err)
	assert.False(t, again.Changed, "a second call in the same cycle is a no-op")

	_, err = h.svc.ExitGame(ctx, game.ExitGameInput{Owner: "alice", FishID: c.FishID})
	require.ErrorIs(t, err, game.ErrExitDuringStorm)

	h.clock.Advance(24 * time.Hour)
	h.entropy.Set(999)
	res, err = h.svc.UpdateOceanDaily(ctx)
	require.NoError(t, err)
	assert.Equal(t, game.ModeCalm, res.Mode)

	out, err := h.svc.ExitGame(ctx, game.ExitGameInput{Owner: "alice", FishID: c.FishID})
	require.NoError(t, err)
	assert.Equal(t, sol+sol/20, out.Value)
	assert.Equal(t, uint64(52_500_000), out.OperatorFee)
	assert.Equal(t, uint64(945_000_000), out.ToPlayer)
	assert.Equal(t, uint64(52_500_000), out.NewBalance, "the pool keeps its half of the exit fee")

	o := h.ocean(t)
	assert.Zero(t, o.TotalShares)
	assert.Zero(t, o.FishCount)
	assert.Equal(t, starter-sol-sol/10+945_000_000, h.wallet(t, "alice"))
	h.assertBooks(t)
}

func TestResurrectFish(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.create(t, "alice", "Nemo", sol)
	other := h.create(t, "bob", "Dory", sol)

	_, err := h.svc.ResurrectFish(ctx, game.ResurrectFishInput{Owner: "alice", OldFishID: c.FishID, Name: "Phoenix", Deposit: sol})
	require.ErrorIs(t, err, game.ErrFishAlreadyDead, "a living fish cannot be resurrected")

	_, err = h.svc.ExitGame(ctx, game.ExitGameInput{Owner: "alice", FishID: c.FishID})
	require.NoError(t, err)

	_, err = h.svc.ResurrectFish(ctx, game.ResurrectFishInput{Owner: "bob", OldFishID: c.FishID, Name: "Phoenix", Deposit: sol})
	require.ErrorIs(t, err, game.ErrNotFishOwner)

	_, err = h.svc.ResurrectFish(ctx, game.ResurrectFishInput{Owner: "alice", OldFishID: c.FishID, Name: "Dory", Deposit: sol})
	require.ErrorIs(t, err, game.ErrNameAlreadyTaken)

	out, err := h.svc.ResurrectFish(ctx, game.ResurrectFishInput{Owner: "alice", OldFishID: c.FishID, Name: "Nemo", Deposit: sol})
	require.NoError(t, err, "the dead fish released its name")
	assert.Equal(t, c.FishID, out.OldFishID)
	assert.Equal(t, other.FishID+1, out.NewFishID)
	assert.Greater(t, out.Share, uint64(0))

	old := h.fish(t, c.FishID)
	assert.False(t, old.Alive, "the old record stays as history")
	assert.True(t, h.fish(t, out.NewFishID).Protected)
	h.assertBooks(t)
}

func TestTransferFish(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.create(t, "alice", "Nemo", sol)

	_, err := h.svc.TransferFish(ctx, game.TransferFishInput{Owner: "alice", FishID: c.FishID, NewOwner: "alice"})
	require.ErrorIs(t, err, game.ErrCannotTransferToSelf)
	_, err = h.svc.TransferFish(ctx, game.TransferFishInput{Owner: "alice", FishID: c.FishID, NewOwner: "  "})
	require.ErrorIs(t, err, game.ErrInvalidInput)
	_, err = h.svc.TransferFish(ctx, game.TransferFishInput{Owner: "bob", FishID: c.FishID, NewOwner: "bob"})
	require.ErrorIs(t, err, game.ErrNotFishOwner)

	out, err := h.svc.TransferFish(ctx, game.TransferFishInput{Owner: "alice", FishID: c.FishID, NewOwner: "bob"})
	require.NoError(t, err)
	assert.Equal(t, "alice", out.FromOwner)
	assert.Equal(t, "bob", out.ToOwner)
	assert.Equal(t, "bob", h.fish(t, c.FishID).Owner)

	_, err = h.svc.FeedFish(ctx, game.FeedFishInput{Owner: "alice", FishID: c.FishID, Amount: sol})
	require.ErrorIs(t, err, game.ErrNotFishOwner)

	mine, err := h.svc.ListFish(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, c.FishID, mine[0].ID)
}

func TestLeaderboardAndQuote(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	shares, err := h.svc.QuoteNewShares(ctx, sol)
	require.NoError(t, err)
	assert.Equal(t, sol, shares)
	assert.Equal(t, "1", h.ocean(t).SharePrice)

	h.create(t, "bob", "Small", sol)
	h.create(t, "alice", "Big", 5*sol)
	h.create(t, "carol", "Mid", 2*sol)

	rows, err := h.svc.Leaderboard(ctx, 2)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Big", rows[0].Name)
	assert.Equal(t, int64(1), rows[0].Rank)
	assert.Equal(t, "Mid", rows[1].Name)
	assert.Greater(t, rows[0].Value, rows[1].Value)

	value, err := h.svc.ShareValue(ctx, rows[0].FishID)
	require.NoError(t, err)
	assert.Equal(t, rows[0].Value, value)
}

func TestRegisterPlayer(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	svc := game.NewService(mem, nil, game.ServiceConfig{Admin: admin, StarterBalance: starter})

	p, err := svc.RegisterPlayer(ctx, "nemo_fan", "hash")
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)

	bal, err := svc.Wallet(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, starter, bal)

	_, err = svc.RegisterPlayer(ctx, "nemo_fan", "hash")
	require.ErrorIs(t, err, game.ErrPlayerExists)
	_, err = svc.RegisterPlayer(ctx, "x", "hash")
	require.ErrorIs(t, err, game.ErrInvalidInput)

	got, err := svc.PlayerByUsername(ctx, " nemo_fan ")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	_, err = svc.PlayerByUsername(ctx, "ghost")
	require.ErrorIs(t, err, game.ErrInvalidCredentials)

	_, err = svc.RegisterPlayer(ctx, admin, "hash")
	require.ErrorIs(t, err, game.ErrPlayerExists, "the admin id cannot be claimed by signup")
	_, err = svc.RegisterPlayer(ctx, "OPERATOR", "hash")
	require.ErrorIs(t, err, game.ErrPlayerExists)

	op, err := svc.ProvisionAdmin(ctx, "admin-hash")
	require.NoError(t, err)
	assert.Equal(t, admin, op.Username)
	again, err := svc.ProvisionAdmin(ctx, "other-hash")
	require.NoError(t, err)
	assert.Equal(t, op.ID, again.ID)
	assert.Equal(t, "admin-hash", again.PasswordHash, "an existing admin login is kept")

	bal, err = svc.Wallet(ctx, op.ID)
	require.NoError(t, err)
	assert.Zero(t, bal, "the admin gets no starter balance")
}
