package store

import (
	"context"
	"errors"
	"testing"

	"hodlhunt/internal/game"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryUpdateRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.Credit("alice", 100)

	boom := errors.New("boom")
	err := m.Update(ctx, func(tx game.Tx) error {
		require.NoError(t, tx.CreateOcean(ctx, game.NewOcean("operator", 0)))
		require.NoError(t, tx.Ledger().Transfer(ctx, "alice", game.VaultHolder, 60))
		require.NoError(t, tx.Names().Reserve(ctx, "Nemo"))
		require.NoError(t, tx.SaveFish(ctx, game.Fish{ID: 1, Owner: "alice", Name: "Nemo", Share: 60}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	err = m.View(ctx, func(tx game.Tx) error {
		_, err := tx.Ocean(ctx)
		assert.ErrorIs(t, err, game.ErrOceanNotInitialized)
		_, err = tx.Fish(ctx, 1)
		assert.ErrorIs(t, err, game.ErrFishNotFound)
		bal, _ := tx.Ledger().Balance(ctx, "alice")
		assert.Equal(t, uint64(100), bal)
		return nil
	})
	require.NoError(t, err)
	assert.Empty(t, m.LedgerEntries())

	require.NoError(t, m.Update(ctx, func(tx game.Tx) error {
		return tx.Names().Reserve(ctx, "Nemo")
	}), "name reserved in the failed transaction must be free")
}

func TestMemoryViewIsReadOnly(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	err := m.View(ctx, func(tx game.Tx) error {
		return tx.SaveFish(ctx, game.Fish{ID: 1})
	})
	require.ErrorIs(t, err, errReadOnly)
}

func TestMemoryLedgerTransfer(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	m.Credit("alice", 100)

	err := m.Update(ctx, func(tx game.Tx) error {
		l := tx.Ledger()
		require.NoError(t, l.Transfer(ctx, "alice", "bob", 0))
		require.NoError(t, l.Transfer(ctx, "alice", "alice", 50))
		assert.ErrorIs(t, l.Transfer(ctx, "alice", "bob", 101), game.ErrInsufficientFunds)
		return l.Transfer(ctx, "alice", "bob", 40)
	})
	require.NoError(t, err)

	entries := m.LedgerEntries()
	require.Len(t, entries, 2, "no-op transfers write no entries")
	assert.Equal(t, entries[0].GroupID, entries[1].GroupID)
	assert.Equal(t, int64(-40), entries[0].Delta)
	assert.Equal(t, "bob", entries[1].Holder)
	assert.Equal(t, int64(40), entries[1].Delta)
}

func TestMemoryFishQueries(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	fish := []game.Fish{
		{ID: 1, Owner: "alice", Share: 10},
		{ID: 2, Owner: "bob", Share: 30},
		{ID: 3, Owner: "alice", Share: 0},
		{ID: 4, Owner: "carol", Share: 30},
		{ID: 5, Owner: "alice", Share: 20},
	}
	require.NoError(t, m.Update(ctx, func(tx game.Tx) error {
		for _, f := range fish {
			if err := tx.SaveFish(ctx, f); err != nil {
				return err
			}
		}
		return nil
	}))

	require.NoError(t, m.View(ctx, func(tx game.Tx) error {
		live, err := tx.LiveFish(ctx, 3)
		require.NoError(t, err)
		ids := []uint64{}
		for _, f := range live {
			ids = append(ids, f.ID)
		}
		assert.Equal(t, []uint64{2, 4, 5}, ids, "share desc, then id")

		mine, err := tx.FishByOwner(ctx, "alice")
		require.NoError(t, err)
		require.Len(t, mine, 3, "dead fish stay in the owner's history")
		assert.Equal(t, uint64(1), mine[0].ID)
		return nil
	}))
}

func TestMemoryPlayersAndIdempotency(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	p := game.Player{ID: "p-1", Username: "nemo"}

	require.NoError(t, m.Update(ctx, func(tx game.Tx) error {
		return tx.CreatePlayer(ctx, p, 500)
	}))
	err := m.Update(ctx, func(tx game.Tx) error {
		return tx.CreatePlayer(ctx, game.Player{ID: "p-2", Username: "nemo"}, 500)
	})
	require.ErrorIs(t, err, game.ErrPlayerExists)

	require.NoError(t, m.Update(ctx, func(tx game.Tx) error {
		return tx.ClaimIdempotency(ctx, "p-1", "k", "create_fish")
	}))
	err = m.Update(ctx, func(tx game.Tx) error {
		return tx.ClaimIdempotency(ctx, "p-1", "k", "feed_fish")
	})
	require.ErrorIs(t, err, game.ErrDuplicateIdempotency)

	require.NoError(t, m.View(ctx, func(tx game.Tx) error {
		got, err := tx.PlayerByUsername(ctx, "nemo")
		require.NoError(t, err)
		assert.Equal(t, "p-1", got.ID)
		bal, _ := tx.Ledger().Balance(ctx, "p-1")
		assert.Equal(t, uint64(500), bal)
		return nil
	}))
}
