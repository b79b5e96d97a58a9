package game_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"hodlhunt/internal/game"
	"hodlhunt/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedPool replaces the ocean totals and stores the given fish directly.
func (h *harness) seedPool(t *testing.T, totalShares, balance uint64, fish ...game.Fish) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.mem.Update(ctx, func(tx game.Tx) error {
		o, err := tx.Ocean(ctx)
		if err != nil {
			return err
		}
		o.TotalShares = totalShares
		o.Balance = balance
		o.FishCount = uint64(len(fish))
		o.NextFishID = uint64(len(fish)) + 1
		if err := tx.SaveOcean(ctx, o); err != nil {
			return err
		}
		for _, f := range fish {
			if err := tx.Names().Reserve(ctx, f.Name); err != nil {
				return err
			}
			if err := tx.SaveFish(ctx, f); err != nil {
				return err
			}
		}
		return nil
	}))
	h.mem.Credit(game.VaultHolder, balance)
}

func TestFeedBoundaryOnSmallPool(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	now := h.clock.Now().Unix()
	h.seedPool(t, 1000, 1000, game.Fish{ID: 1, Owner: "alice", Name: "Guppy", Share: 100, CreatedAt: now, LastFedAt: now})

	// 100 of 1000 shares is worth 100; 5% of that is far below the floor.
	require.Equal(t, game.MinFeed, h.fish(t, 1).MinFeeding)

	_, err := h.svc.FeedFish(ctx, game.FeedFishInput{Owner: "alice", FishID: 1, Amount: game.MinFeed - 1})
	require.ErrorIs(t, err, game.ErrInsufficientFeeding)
	assert.Equal(t, uint64(100), h.fish(t, 1).Share)

	fed, err := h.svc.FeedFish(ctx, game.FeedFishInput{Owner: "alice", FishID: 1, Amount: game.MinFeed})
	require.NoError(t, err)
	assert.Equal(t, uint64(100)+fed.AddedShare, fed.NewShare)
	h.assertShares(t)
}

func TestHuntSplitOnShareHundred(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	now := h.clock.Now().Unix()
	h.seedPool(t, 300, 300,
		game.Fish{ID: 1, Owner: "alice", Name: "Shark", Share: 200, CreatedAt: now - 30*game.Day, LastFedAt: now - game.Day, CanHuntAfter: now - 1},
		game.Fish{ID: 2, Owner: "bob", Name: "Minnow", Share: 100, CreatedAt: now - 30*game.Day, LastFedAt: now - 8*game.Day, ProtectionEndsAt: now - 1},
	)

	out, err := h.svc.HuntFish(ctx, game.HuntFishInput{Owner: "alice", HunterID: 1, PreyID: 2, ExpectedPreyShare: 100})
	require.NoError(t, err)
	assert.Equal(t, uint64(100), out.BiteShare)
	assert.Equal(t, uint64(80), out.ToHunter)
	assert.Equal(t, uint64(10), out.ToPool)
	assert.Equal(t, uint64(10), out.ToOperator)
	assert.Equal(t, uint64(280), out.HunterNewShare)
	assert.Zero(t, out.PreyNewShare)
	assert.Equal(t, uint64(10), out.ToOperatorValue)

	o := h.ocean(t)
	assert.Equal(t, uint64(280), o.TotalShares)
	assert.Equal(t, uint64(290), o.Balance)
	assert.False(t, h.fish(t, 2).Alive)
	h.assertShares(t)
}

// TestRandomOperationsKeepBooks drives a fixed-seed mix of every operation and
// checks both ledgers after each step, whether the step succeeded or not.
func TestRandomOperationsKeepBooks(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	rng := rand.New(rand.NewPCG(2024, 7))

	var ids []uint64
	pick := func() uint64 {
		if len(ids) == 0 {
			return 1
		}
		return ids[rng.IntN(len(ids))]
	}
	owner := func() string { return players[rng.IntN(len(players))] }
	amount := func() uint64 { return game.MinDeposit + rng.Uint64N(3*sol) }

	ok := 0
	for step := 0; step < 1500; step++ {
		var err error
		switch rng.IntN(9) {
		case 0, 1:
			var c game.FishCreated
			c, err = h.svc.CreateFish(ctx, game.CreateFishInput{Owner: owner(), Name: fmt.Sprintf("fish-%d", step), Deposit: amount()})
			if err == nil {
				ids = append(ids, c.FishID)
			}
		case 2:
			id := pick()
			f, ferr := h.svc.FishInfo(ctx, id)
			if ferr != nil {
				err = ferr
				break
			}
			_, err = h.svc.FeedFish(ctx, game.FeedFishInput{Owner: f.Owner, FishID: id, Amount: f.MinFeeding + rng.Uint64N(sol/10)})
		case 3:
			hunter, prey := pick(), pick()
			hf, herr := h.svc.FishInfo(ctx, hunter)
			pf, perr := h.svc.FishInfo(ctx, prey)
			if err = errors.Join(herr, perr); err != nil {
				break
			}
			_, err = h.svc.HuntFish(ctx, game.HuntFishInput{Owner: hf.Owner, HunterID: hunter, PreyID: prey, ExpectedPreyShare: pf.Share})
		case 4:
			hunter := pick()
			hf, herr := h.svc.FishInfo(ctx, hunter)
			if herr != nil {
				err = herr
				break
			}
			_, err = h.svc.PlaceHuntingMark(ctx, game.PlaceMarkInput{Owner: hf.Owner, HunterID: hunter, PreyID: pick()})
		case 5:
			_, err = h.svc.ExitGame(ctx, game.ExitGameInput{Owner: owner(), FishID: pick()})
		case 6:
			var r game.FishResurrected
			r, err = h.svc.ResurrectFish(ctx, game.ResurrectFishInput{Owner: owner(), OldFishID: pick(), Name: fmt.Sprintf("phoenix-%d", step), Deposit: amount()})
			if err == nil {
				ids = append(ids, r.NewFishID)
			}
		case 7:
			_, err = h.svc.TransferFish(ctx, game.TransferFishInput{Owner: owner(), FishID: pick(), NewOwner: owner()})
		case 8:
			h.entropy.Set(rng.Uint64())
			_, err = h.svc.UpdateOceanDaily(ctx)
		}
		if err != nil {
			require.NotEqual(t, "Internal", game.ErrorCode(err), "step %d: %v", step, err)
		} else {
			ok++
		}
		h.assertBooks(t)
		if t.Failed() {
			t.Fatalf("books broke at step %d", step)
		}
		h.clock.Advance(time.Duration(rng.IntN(12*3600)) * time.Second)
	}
	assert.Greater(t, ok, 300, "the mix should mostly succeed")
}

var errSerialization = errors.New("could not serialize access")

// conflictOnceStore fails the first armed transaction after running it, the
// way a serialization failure does, then moves the clock and retries.
type conflictOnceStore struct {
	*store.Memory
	clock *fakeClock
	armed bool
}

func (s *conflictOnceStore) Update(ctx context.Context, fn func(tx game.Tx) error) error {
	if !s.armed {
		return s.Memory.Update(ctx, fn)
	}
	s.armed = false
	err := s.Memory.Update(ctx, func(tx game.Tx) error {
		if err := fn(tx); err != nil {
			return err
		}
		return errSerialization
	})
	if !errors.Is(err, errSerialization) {
		return err
	}
	s.clock.Advance(time.Hour)
	return s.Memory.Update(ctx, fn)
}

func TestRetriedTransactionSeesCurrentTime(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	st := &conflictOnceStore{Memory: store.NewMemory(), clock: clock}
	svc := game.NewService(st, nil, game.ServiceConfig{Admin: admin, Clock: clock, Entropy: game.FixedEntropy(999)})
	require.NoError(t, svc.EnsureOcean(ctx))
	st.Credit("alice", starter)

	st.armed = true
	c, err := svc.CreateFish(ctx, game.CreateFishInput{Owner: "alice", Name: "Nemo", Deposit: sol, IdempotencyKey: "k-1"})
	require.NoError(t, err)

	f, err := svc.FishInfo(ctx, c.FishID)
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Unix(), f.CreatedAt, "the retry stamps the fish with the retry's time")
	assert.Equal(t, clock.Now().Unix()+game.ProtectionPeriod, f.ProtectionEndsAt)
}
