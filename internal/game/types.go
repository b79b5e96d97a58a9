package game

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Ledger moves value between named holders: VaultHolder, the ocean admin,
// and player ids.
type Ledger interface {
	Balance(ctx context.Context, holder string) (uint64, error)
	Transfer(ctx context.Context, from, to string, amount uint64) error
}

// NameRegistry keeps fish names unique among living fish.
type NameRegistry interface {
	Reserve(ctx context.Context, name string) error
	Release(ctx context.Context, name string) error
}

type EntropySource interface {
	Sample(in SeedInput) uint64
}

type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// EventSink receives committed events. It must not block for long.
type EventSink interface {
	Publish(ctx context.Context, events []Event)
}

// Store runs game transactions. Update is read-write and all-or-nothing;
// View is read-only.
type Store interface {
	Update(ctx context.Context, fn func(tx Tx) error) error
	View(ctx context.Context, fn func(tx Tx) error) error
}

type Tx interface {
	Ocean(ctx context.Context) (Ocean, error)
	CreateOcean(ctx context.Context, o Ocean) error
	SaveOcean(ctx context.Context, o Ocean) error

	Fish(ctx context.Context, id uint64) (Fish, error)
	SaveFish(ctx context.Context, f Fish) error
	FishByOwner(ctx context.Context, owner string) ([]Fish, error)
	LiveFish(ctx context.Context, limit int) ([]Fish, error)

	Ledger() Ledger
	Names() NameRegistry

	ClaimIdempotency(ctx context.Context, owner, key, action string) error
	AppendEvents(ctx context.Context, events []Event) error

	CreatePlayer(ctx context.Context, p Player, starterBalance uint64) error
	PlayerByUsername(ctx context.Context, username string) (Player, error)
}

type Player struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

type CreateFishInput struct {
	Owner          string
	Name           string
	Deposit        uint64
	IdempotencyKey string
}

type FeedFishInput struct {
	Owner          string
	FishID         uint64
	Amount         uint64
	IdempotencyKey string
}

type HuntFishInput struct {
	Owner             string
	HunterID          uint64
	PreyID            uint64
	ExpectedPreyShare uint64
	IdempotencyKey    string
}

type PlaceMarkInput struct {
	Owner          string
	HunterID       uint64
	PreyID         uint64
	IdempotencyKey string
}

type ExitGameInput struct {
	Owner          string
	FishID         uint64
	IdempotencyKey string
}

type ResurrectFishInput struct {
	Owner          string
	OldFishID      uint64
	Name           string
	Deposit        uint64
	IdempotencyKey string
}

type TransferFishInput struct {
	Owner          string
	FishID         uint64
	NewOwner       string
	IdempotencyKey string
}

// FishView is a fish plus its current value and derived flags.
type FishView struct {
	Fish
	Value          uint64 `json:"value"`
	Alive          bool   `json:"alive"`
	Protected      bool   `json:"protected"`
	Huntable       bool   `json:"huntable"`
	CanHuntNow     bool   `json:"can_hunt_now"`
	MinFeeding     uint64 `json:"min_feeding"`
	HungryAt       int64  `json:"hungry_at"`
	MarkActive     bool   `json:"mark_active"`
	MarkWindowOpen bool   `json:"mark_window_open"`
}

func NewFishView(o *Ocean, f Fish, now int64) FishView {
	_, windowOpen := MarkWindow(&f, now)
	v := FishView{
		Fish:           f,
		Value:          ShareToValue(o, f.Share),
		Alive:          f.IsAlive(),
		Protected:      f.IsProtectedAt(now),
		Huntable:       f.IsValidPrey(now),
		CanHuntNow:     f.CanHunt(now),
		HungryAt:       f.HungryAt(),
		MarkActive:     f.HasMark() && !f.IsMarkExpired(now),
		MarkWindowOpen: f.IsAlive() && windowOpen,
	}
	if f.IsAlive() {
		v.MinFeeding = MinFeedingAmount(o, &f)
	}
	return v
}

type OceanView struct {
	Ocean
	Vault      uint64 `json:"vault"`
	SharePrice string `json:"share_price"`
	Now        int64  `json:"now"`
}

type LeaderboardRow struct {
	Rank   int64  `json:"rank"`
	FishID uint64 `json:"fish_id"`
	Name   string `json:"name"`
	Owner  string `json:"owner"`
	Share  uint64 `json:"share"`
	Value  uint64 `json:"value"`
}

// Event is the envelope published for every committed state change.
type Event struct {
	ID      string  `json:"id"`
	Kind    string  `json:"kind"`
	At      int64   `json:"at"`
	Payload Payload `json:"payload"`
}

type Payload interface {
	EventKind() string
}

func newEvent(p Payload, now int64) Event {
	return Event{ID: uuid.NewString(), Kind: p.EventKind(), At: now, Payload: p}
}

type OceanInitialized struct {
	Admin          string `json:"admin"`
	CycleStart     int64  `json:"cycle_start"`
	NextModeChange int64  `json:"next_mode_change"`
}

type FishCreated struct {
	FishID      uint64 `json:"fish_id"`
	Owner       string `json:"owner"`
	Name        string `json:"name"`
	Share       uint64 `json:"share"`
	Deposit     uint64 `json:"deposit"`
	OperatorFee uint64 `json:"operator_fee"`
	PoolFee     uint64 `json:"pool_fee"`
}

type FishFed struct {
	FishID      uint64 `json:"fish_id"`
	Owner       string `json:"owner"`
	AddedShare  uint64 `json:"added_share"`
	BaseCost    uint64 `json:"base_cost"`
	OperatorFee uint64 `json:"operator_fee"`
	PoolFee     uint64 `json:"pool_fee"`
	NewShare    uint64 `json:"new_share"`
	NewValue    uint64 `json:"new_value"`
}

type FishHunted struct {
	HunterID              uint64 `json:"hunter_id"`
	PreyID                uint64 `json:"prey_id"`
	HunterOwner           string `json:"hunter_owner"`
	PreyOwner             string `json:"prey_owner"`
	BiteShare             uint64 `json:"bite_share"`
	ToHunter              uint64 `json:"to_hunter"`
	ToPool                uint64 `json:"to_pool"`
	ToOperator            uint64 `json:"to_operator"`
	HunterNewShare        uint64 `json:"hunter_new_share"`
	PreyNewShare          uint64 `json:"prey_new_share"`
	ReceivedFromHuntValue uint64 `json:"received_from_hunt_value"`
	ToOperatorValue       uint64 `json:"to_operator_value"`
	ToPoolValue           uint64 `json:"to_pool_value"`
	HunterFed             bool   `json:"hunter_fed"`
}

type FishExited struct {
	FishID      uint64 `json:"fish_id"`
	Owner       string `json:"owner"`
	ExitedShare uint64 `json:"exited_share"`
	Value       uint64 `json:"value"`
	OperatorFee uint64 `json:"operator_fee"`
	PoolFee     uint64 `json:"pool_fee"`
	ToPlayer    uint64 `json:"to_player"`
	NewBalance  uint64 `json:"new_balance"`
}

type FishTransferred struct {
	FishID    uint64 `json:"fish_id"`
	FromOwner string `json:"from_owner"`
	ToOwner   string `json:"to_owner"`
}

type FishResurrected struct {
	OldFishID   uint64 `json:"old_fish_id"`
	NewFishID   uint64 `json:"new_fish_id"`
	Owner       string `json:"owner"`
	Name        string `json:"name"`
	Share       uint64 `json:"share"`
	Deposit     uint64 `json:"deposit"`
	OperatorFee uint64 `json:"operator_fee"`
	PoolFee     uint64 `json:"pool_fee"`
}

type HuntingMarkPlaced struct {
	HunterID        uint64 `json:"hunter_id"`
	PreyID          uint64 `json:"prey_id"`
	HunterOwner     string `json:"hunter_owner"`
	Cost            uint64 `json:"cost"`
	ExpiresAt       int64  `json:"expires_at"`
	TimeUntilHungry int64  `json:"time_until_hungry"`
	CostPercent     uint64 `json:"cost_percent"`
}

type OceanModeChanged struct {
	OldMode             Mode   `json:"old_mode"`
	NewMode             Mode   `json:"new_mode"`
	OldFeedingBps       uint16 `json:"old_feeding_bps"`
	NewFeedingBps       uint16 `json:"new_feeding_bps"`
	StormProbabilityBps uint16 `json:"storm_probability_bps"`
	CycleStart          int64  `json:"cycle_start"`
	NextChange          int64  `json:"next_change"`
	Reason              string `json:"reason"`
	Timestamp           int64  `json:"timestamp"`
	Seed                uint64 `json:"seed"`
}

// DailyResult reports a scheduler call. Changed is false when the call came
// before the scheduled time.
type DailyResult struct {
	Changed        bool              `json:"changed"`
	Mode           Mode              `json:"mode"`
	NextModeChange int64             `json:"next_mode_change"`
	Event          *OceanModeChanged `json:"event,omitempty"`
}

func (OceanInitialized) EventKind() string  { return "ocean_initialized" }
func (FishCreated) EventKind() string       { return "fish_created" }
func (FishFed) EventKind() string           { return "fish_fed" }
func (FishHunted) EventKind() string        { return "fish_hunted" }
func (FishExited) EventKind() string        { return "fish_exited" }
func (FishTransferred) EventKind() string   { return "fish_transferred" }
func (FishResurrected) EventKind() string   { return "fish_resurrected" }
func (HuntingMarkPlaced) EventKind() string { return "hunting_mark_placed" }
func (OceanModeChanged) EventKind() string  { return "ocean_mode_changed" }
