package game

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

var usernameRE = regexp.MustCompile(`^[a-zA-Z0-9_]{3,24}$`)

type ServiceConfig struct {
	Admin          string
	StarterBalance uint64
	Clock          Clock
	Entropy        EntropySource
	Sink           EventSink
}

type Service struct {
	store          Store
	engine         *Engine
	clock          Clock
	sink           EventSink
	log            *slog.Logger
	admin          string
	starterBalance uint64
}

func NewService(store Store, logger *slog.Logger, cfg ServiceConfig) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = RealClock{}
	}
	return &Service{
		store:          store,
		engine:         NewEngine(cfg.Admin, cfg.Entropy),
		clock:          cfg.Clock,
		sink:           cfg.Sink,
		log:            logger,
		admin:          cfg.Admin,
		starterBalance: cfg.StarterBalance,
	}
}

func (s *Service) Admin() string { return s.admin }

func (s *Service) now() int64 { return s.clock.Now().Unix() }

// commit runs fn in one store transaction, claims the idempotency key first
// when one is given, journals the events and publishes them after commit.
func (s *Service) commit(ctx context.Context, action, owner, key string, fn func(tx Tx, now int64) ([]Event, error)) error {
	var events []Event
	err := s.store.Update(ctx, func(tx Tx) error {
		events = nil
		now := s.now()
		if key = strings.TrimSpace(key); key != "" {
			if err := tx.ClaimIdempotency(ctx, owner, key, action); err != nil {
				return err
			}
		}
		evs, err := fn(tx, now)
		if err != nil {
			return err
		}
		if err := tx.AppendEvents(ctx, evs); err != nil {
			return err
		}
		events = evs
		return nil
	})
	if err != nil {
		s.log.Debug("operation rejected", "op", action, "owner", owner, "code", ErrorCode(err), "err", err)
		return err
	}
	if s.sink != nil && len(events) > 0 {
		s.sink.Publish(ctx, events)
	}
	return nil
}

func (s *Service) InitializeOcean(ctx context.Context, caller string) (Ocean, error) {
	var out Ocean
	err := s.commit(ctx, "init_ocean", caller, "", func(tx Tx, now int64) ([]Event, error) {
		o, evs, err := s.engine.InitializeOcean(ctx, tx, now, caller)
		out = o
		return evs, err
	})
	if err != nil {
		return Ocean{}, err
	}
	s.log.Info("ocean initialized", "admin", out.Admin, "next_mode_change", out.NextModeChange)
	return out, nil
}

// EnsureOcean initializes the ocean under the configured admin when it does
// not exist yet.
func (s *Service) EnsureOcean(ctx context.Context) error {
	_, err := s.InitializeOcean(ctx, s.admin)
	if errors.Is(err, ErrOceanExists) {
		return nil
	}
	return err
}

func (s *Service) CreateFish(ctx context.Context, in CreateFishInput) (FishCreated, error) {
	var out FishCreated
	err := s.commit(ctx, "create_fish", in.Owner, in.IdempotencyKey, func(tx Tx, now int64) ([]Event, error) {
		ev, evs, err := s.engine.CreateFish(ctx, tx, now, in)
		out = ev
		return evs, err
	})
	if err != nil {
		return FishCreated{}, err
	}
	s.log.Info("fish created", "op", "create_fish", "fish_id", out.FishID, "owner", out.Owner, "deposit", out.Deposit, "share", out.Share)
	return out, nil
}

func (s *Service) FeedFish(ctx context.Context, in FeedFishInput) (FishFed, error) {
	var out FishFed
	err := s.commit(ctx, "feed_fish", in.Owner, in.IdempotencyKey, func(tx Tx, now int64) ([]Event, error) {
		ev, evs, err := s.engine.FeedFish(ctx, tx, now, in)
		out = ev
		return evs, err
	})
	if err != nil {
		return FishFed{}, err
	}
	s.log.Info("fish fed", "op", "feed_fish", "fish_id", out.FishID, "owner", out.Owner, "amount", out.BaseCost, "added_share", out.AddedShare)
	return out, nil
}

func (s *Service) HuntFish(ctx context.Context, in HuntFishInput) (FishHunted, error) {
	var out FishHunted
	err := s.commit(ctx, "hunt_fish", in.Owner, in.IdempotencyKey, func(tx Tx, now int64) ([]Event, error) {
		ev, evs, err := s.engine.HuntFish(ctx, tx, now, in)
		out = ev
		return evs, err
	})
	if err != nil {
		return FishHunted{}, err
	}
	s.log.Info("fish hunted", "op", "hunt_fish", "hunter_id", out.HunterID, "prey_id", out.PreyID, "owner", out.HunterOwner, "bite", out.BiteShare, "reward", out.ReceivedFromHuntValue)
	return out, nil
}

func (s *Service) PlaceHuntingMark(ctx context.Context, in PlaceMarkInput) (HuntingMarkPlaced, error) {
	var out HuntingMarkPlaced
	err := s.commit(ctx, "place_mark", in.Owner, in.IdempotencyKey, func(tx Tx, now int64) ([]Event, error) {
		ev, evs, err := s.engine.PlaceHuntingMark(ctx, tx, now, in)
		out = ev
		return evs, err
	})
	if err != nil {
		return HuntingMarkPlaced{}, err
	}
	s.log.Info("hunting mark placed", "op", "place_mark", "hunter_id", out.HunterID, "prey_id", out.PreyID, "owner", out.HunterOwner, "cost", out.Cost)
	return out, nil
}

func (s *Service) ExitGame(ctx context.Context, in ExitGameInput) (FishExited, error) {
	var out FishExited
	err := s.commit(ctx, "exit_game", in.Owner, in.IdempotencyKey, func(tx Tx, now int64) ([]Event, error) {
		ev, evs, err := s.engine.ExitGame(ctx, tx, now, in)
		out = ev
		return evs, err
	})
	if err != nil {
		return FishExited{}, err
	}
	s.log.Info("fish exited", "op", "exit_game", "fish_id", out.FishID, "owner", out.Owner, "value", out.Value, "payout", out.ToPlayer)
	return out, nil
}

func (s *Service) ResurrectFish(ctx context.Context, in ResurrectFishInput) (FishResurrected, error) {
	var out FishResurrected
	err := s.commit(ctx, "resurrect_fish", in.Owner, in.IdempotencyKey, func(tx Tx, now int64) ([]Event, error) {
		ev, evs, err := s.engine.ResurrectFish(ctx, tx, now, in)
		out = ev
		return evs, err
	})
	if err != nil {
		return FishResurrected{}, err
	}
	s.log.Info("fish resurrected", "op", "resurrect_fish", "old_fish_id", out.OldFishID, "fish_id", out.NewFishID, "owner", out.Owner, "deposit", out.Deposit)
	return out, nil
}

func (s *Service) TransferFish(ctx context.Context, in TransferFishInput) (FishTransferred, error) {
	var out FishTransferred
	err := s.commit(ctx, "transfer_fish", in.Owner, in.IdempotencyKey, func(tx Tx, now int64) ([]Event, error) {
		ev, evs, err := s.engine.TransferFish(ctx, tx, now, in)
		out = ev
		return evs, err
	})
	if err != nil {
		return FishTransferred{}, err
	}
	s.log.Info("fish transferred", "op", "transfer_fish", "fish_id", out.FishID, "from", out.FromOwner, "to", out.ToOwner)
	return out, nil
}

func (s *Service) UpdateOceanDaily(ctx context.Context) (DailyResult, error) {
	var out DailyResult
	err := s.commit(ctx, "update_daily", "", "", func(tx Tx, now int64) ([]Event, error) {
		res, evs, err := s.engine.UpdateOceanDaily(ctx, tx, now)
		out = res
		return evs, err
	})
	if err != nil {
		return DailyResult{}, err
	}
	if out.Changed {
		s.log.Info("ocean mode changed", "op", "update_daily", "mode", out.Mode.String(), "next_mode_change", out.NextModeChange)
	}
	return out, nil
}

func (s *Service) Ocean(ctx context.Context) (OceanView, error) {
	var out OceanView
	err := s.store.View(ctx, func(tx Tx) error {
		o, err := tx.Ocean(ctx)
		if err != nil {
			return err
		}
		vault, err := tx.Ledger().Balance(ctx, VaultHolder)
		if err != nil {
			return err
		}
		out = OceanView{Ocean: o, Vault: vault, SharePrice: SharePrice(&o), Now: s.now()}
		return nil
	})
	return out, err
}

// SharePrice is Balance/TotalShares as a decimal string, "1" for an empty
// ocean where the next deposit mints 1:1.
func SharePrice(o *Ocean) string {
	if o.TotalShares == 0 {
		return "1"
	}
	r := new(big.Rat).SetFrac(new(big.Int).SetUint64(o.Balance), new(big.Int).SetUint64(o.TotalShares))
	return r.FloatString(9)
}

func (s *Service) FishInfo(ctx context.Context, id uint64) (FishView, error) {
	var out FishView
	err := s.store.View(ctx, func(tx Tx) error {
		o, err := tx.Ocean(ctx)
		if err != nil {
			return err
		}
		f, err := tx.Fish(ctx, id)
		if err != nil {
			return err
		}
		out = NewFishView(&o, f, s.now())
		return nil
	})
	return out, err
}

func (s *Service) ShareValue(ctx context.Context, id uint64) (uint64, error) {
	v, err := s.FishInfo(ctx, id)
	if err != nil {
		return 0, err
	}
	return v.Value, nil
}

func (s *Service) QuoteNewShares(ctx context.Context, value uint64) (uint64, error) {
	var out uint64
	err := s.store.View(ctx, func(tx Tx) error {
		o, err := tx.Ocean(ctx)
		if err != nil {
			return err
		}
		out = QuoteNewShares(o, value)
		return nil
	})
	return out, err
}

func (s *Service) ListFish(ctx context.Context, owner string) ([]FishView, error) {
	var out []FishView
	err := s.store.View(ctx, func(tx Tx) error {
		o, err := tx.Ocean(ctx)
		if err != nil {
			return err
		}
		fish, err := tx.FishByOwner(ctx, owner)
		if err != nil {
			return err
		}
		now := s.now()
		out = make([]FishView, 0, len(fish))
		for _, f := range fish {
			out = append(out, NewFishView(&o, f, now))
		}
		return nil
	})
	return out, err
}

// Leaderboard ranks living fish by share, which orders them by value.
func (s *Service) Leaderboard(ctx context.Context, limit int) ([]LeaderboardRow, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var out []LeaderboardRow
	err := s.store.View(ctx, func(tx Tx) error {
		o, err := tx.Ocean(ctx)
		if err != nil {
			return err
		}
		fish, err := tx.LiveFish(ctx, limit)
		if err != nil {
			return err
		}
		var rank int64 = 1
		for _, f := range fish {
			out = append(out, LeaderboardRow{
				Rank:   rank,
				FishID: f.ID,
				Name:   f.Name,
				Owner:  f.Owner,
				Share:  f.Share,
				Value:  ShareToValue(&o, f.Share),
			})
			rank++
		}
		return nil
	})
	return out, err
}

func (s *Service) Wallet(ctx context.Context, holder string) (uint64, error) {
	var out uint64
	err := s.store.View(ctx, func(tx Tx) error {
		bal, err := tx.Ledger().Balance(ctx, holder)
		out = bal
		return err
	})
	return out, err
}

// RegisterPlayer creates a player and credits the starter balance. The
// password must already be hashed.
func (s *Service) RegisterPlayer(ctx context.Context, username, passwordHash string) (Player, error) {
	username = strings.TrimSpace(username)
	if !usernameRE.MatchString(username) {
		return Player{}, fmt.Errorf("%w: username must be 3-24 letters, digits or underscores", ErrInvalidInput)
	}
	if s.admin != "" && strings.EqualFold(username, s.admin) {
		return Player{}, fmt.Errorf("%w: username %q is reserved", ErrPlayerExists, username)
	}
	return s.createPlayer(ctx, username, passwordHash, s.starterBalance)
}

// ProvisionAdmin creates the login for the configured admin id. It is the
// only way to obtain a player with that username and is a no-op when the
// player already exists.
func (s *Service) ProvisionAdmin(ctx context.Context, passwordHash string) (Player, error) {
	if s.admin == "" || !usernameRE.MatchString(s.admin) {
		return Player{}, fmt.Errorf("%w: admin id %q cannot be used as a username", ErrInvalidInput, s.admin)
	}
	p, err := s.createPlayer(ctx, s.admin, passwordHash, 0)
	if errors.Is(err, ErrPlayerExists) {
		return s.PlayerByUsername(ctx, s.admin)
	}
	return p, err
}

func (s *Service) createPlayer(ctx context.Context, username, passwordHash string, starter uint64) (Player, error) {
	p := Player{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	err := s.store.Update(ctx, func(tx Tx) error {
		return tx.CreatePlayer(ctx, p, starter)
	})
	if err != nil {
		return Player{}, err
	}
	s.log.Info("player registered", "player_id", p.ID, "username", p.Username, "starter_balance", starter)
	return p, nil
}

func (s *Service) PlayerByUsername(ctx context.Context, username string) (Player, error) {
	var out Player
	err := s.store.View(ctx, func(tx Tx) error {
		p, err := tx.PlayerByUsername(ctx, strings.TrimSpace(username))
		out = p
		return err
	})
	return out, err
}
