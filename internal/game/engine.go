package game

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Engine applies game operations inside a store transaction. Every operation
// validates against the loaded state before it moves funds or saves records,
// so a returned error leaves nothing for the caller to undo beyond rolling
// the transaction back.
type Engine struct {
	Admin   string
	Entropy EntropySource
}

func NewEngine(admin string, entropy EntropySource) *Engine {
	if entropy == nil {
		entropy = KeccakEntropy{Beacon: &RandomBeacon{}}
	}
	return &Engine{Admin: admin, Entropy: entropy}
}

func (e *Engine) InitializeOcean(ctx context.Context, tx Tx, now int64, caller string) (Ocean, []Event, error) {
	if e.Admin == "" || caller != e.Admin {
		return Ocean{}, nil, ErrUnauthorizedAdmin
	}
	if _, err := tx.Ocean(ctx); err == nil {
		return Ocean{}, nil, ErrOceanExists
	} else if !errors.Is(err, ErrOceanNotInitialized) {
		return Ocean{}, nil, err
	}

	o := NewOcean(caller, now)
	if err := tx.CreateOcean(ctx, o); err != nil {
		return Ocean{}, nil, err
	}
	ev := OceanInitialized{Admin: o.Admin, CycleStart: o.CycleStart, NextModeChange: o.NextModeChange}
	return o, []Event{newEvent(ev, now)}, nil
}

func (e *Engine) CreateFish(ctx context.Context, tx Tx, now int64, in CreateFishInput) (FishCreated, []Event, error) {
	o, err := tx.Ocean(ctx)
	if err != nil {
		return FishCreated{}, nil, err
	}
	f, split, err := e.spawn(ctx, tx, &o, now, in.Owner, in.Name, in.Deposit)
	if err != nil {
		return FishCreated{}, nil, err
	}
	if err := tx.SaveOcean(ctx, o); err != nil {
		return FishCreated{}, nil, err
	}

	ev := FishCreated{
		FishID:      f.ID,
		Owner:       f.Owner,
		Name:        f.Name,
		Share:       f.Share,
		Deposit:     split.Deposit,
		OperatorFee: split.OperatorFee,
		PoolFee:     split.PoolFee,
	}
	return ev, []Event{newEvent(ev, now)}, nil
}

// spawn is the shared create path: validate, charge the payer, mint shares
// and save the new fish. The caller saves the ocean.
func (e *Engine) spawn(ctx context.Context, tx Tx, o *Ocean, now int64, owner, rawName string, deposit uint64) (Fish, DepositSplit, error) {
	name, err := NormalizeName(rawName)
	if err != nil {
		return Fish{}, DepositSplit{}, err
	}
	// The name is claimed before the deposit is looked at; a rejected
	// operation rolls the reservation back with the rest of the tx.
	if err := tx.Names().Reserve(ctx, name); err != nil {
		return Fish{}, DepositSplit{}, err
	}
	split, err := SplitDeposit(deposit)
	if err != nil {
		return Fish{}, DepositSplit{}, err
	}
	ledger := tx.Ledger()
	if err := requireFunds(ctx, ledger, owner, split.Total()); err != nil {
		return Fish{}, DepositSplit{}, err
	}

	// Preview the mint so a deposit worth less than one share is refused
	// before anything moves.
	preview := *o
	preview.Balance = satAdd(preview.Balance, split.PoolFee)
	if QuoteNewShares(preview, split.Deposit) == 0 {
		return Fish{}, DepositSplit{}, fmt.Errorf("%w: deposit buys no shares at the current price", ErrMinimumDeposit)
	}

	if err := ledger.Transfer(ctx, owner, VaultHolder, split.Deposit+split.PoolFee); err != nil {
		return Fish{}, DepositSplit{}, err
	}
	if err := ledger.Transfer(ctx, owner, o.Admin, split.OperatorFee); err != nil {
		return Fish{}, DepositSplit{}, err
	}

	o.Balance = satAdd(o.Balance, split.PoolFee)
	o.Balance = satAdd(o.Balance, split.Deposit)
	share := NewShares(o, split.Deposit)
	if o.TotalShares, err = checkedAdd(o.TotalShares, share); err != nil {
		return Fish{}, DepositSplit{}, err
	}

	f := newFish(o.NextFishID, owner, name, now)
	f.Share = share
	o.NextFishID = satAdd(o.NextFishID, 1)
	o.FishCount = satAdd(o.FishCount, 1)
	if err := tx.SaveFish(ctx, f); err != nil {
		return Fish{}, DepositSplit{}, err
	}
	return f, split, nil
}

func (e *Engine) FeedFish(ctx context.Context, tx Tx, now int64, in FeedFishInput) (FishFed, []Event, error) {
	o, err := tx.Ocean(ctx)
	if err != nil {
		return FishFed{}, nil, err
	}
	f, err := tx.Fish(ctx, in.FishID)
	if err != nil {
		return FishFed{}, nil, err
	}
	if err := f.EnsureAlive(); err != nil {
		return FishFed{}, nil, err
	}
	if err := f.EnsureOwnedBy(in.Owner); err != nil {
		return FishFed{}, nil, err
	}
	if need := MinFeedingAmount(&o, &f); in.Amount < need {
		return FishFed{}, nil, fmt.Errorf("%w: need at least %d", ErrInsufficientFeeding, need)
	}

	split := SplitFeed(in.Amount)
	ledger := tx.Ledger()
	if err := requireFunds(ctx, ledger, in.Owner, split.Total()); err != nil {
		return FishFed{}, nil, err
	}
	if err := ledger.Transfer(ctx, in.Owner, VaultHolder, split.Amount+split.PoolFee); err != nil {
		return FishFed{}, nil, err
	}
	if err := ledger.Transfer(ctx, in.Owner, o.Admin, split.OperatorFee); err != nil {
		return FishFed{}, nil, err
	}

	o.Balance = satAdd(o.Balance, split.Amount+split.PoolFee)
	added := NewShares(&o, split.Amount)
	if f.Share, err = checkedAdd(f.Share, added); err != nil {
		return FishFed{}, nil, err
	}
	if o.TotalShares, err = checkedAdd(o.TotalShares, added); err != nil {
		return FishFed{}, nil, err
	}
	f.markFed(now)

	if err := tx.SaveFish(ctx, f); err != nil {
		return FishFed{}, nil, err
	}
	if err := tx.SaveOcean(ctx, o); err != nil {
		return FishFed{}, nil, err
	}

	ev := FishFed{
		FishID:      f.ID,
		Owner:       f.Owner,
		AddedShare:  added,
		BaseCost:    split.Amount,
		OperatorFee: split.OperatorFee,
		PoolFee:     split.PoolFee,
		NewShare:    f.Share,
		NewValue:    ShareToValue(&o, f.Share),
	}
	return ev, []Event{newEvent(ev, now)}, nil
}

func (e *Engine) HuntFish(ctx context.Context, tx Tx, now int64, in HuntFishInput) (FishHunted, []Event, error) {
	o, err := tx.Ocean(ctx)
	if err != nil {
		return FishHunted{}, nil, err
	}
	hunter, prey, err := loadPair(ctx, tx, in.HunterID, in.PreyID)
	if err != nil {
		return FishHunted{}, nil, err
	}
	if err := checkPair(&hunter, &prey, in.Owner); err != nil {
		return FishHunted{}, nil, err
	}
	if !hunter.CanHunt(now) {
		return FishHunted{}, nil, ErrHuntingOnCooldown
	}
	if !prey.IsValidPrey(now) {
		return FishHunted{}, nil, ErrInvalidPrey
	}
	if err := CheckMarkExclusivity(&prey, hunter.ID, now); err != nil {
		return FishHunted{}, nil, err
	}
	lo, hi := SlippageBand(in.ExpectedPreyShare)
	if prey.Share < lo || prey.Share > hi {
		return FishHunted{}, nil, fmt.Errorf("%w: expected %d, got %d", ErrSlippageExceeded, in.ExpectedPreyShare, prey.Share)
	}

	split := SplitBite(prey.Share)
	operatorValue := ShareToValue(&o, split.ToOperator)
	poolValue := ShareToValue(&o, split.ToPool)
	ledger := tx.Ledger()
	vault, err := ledger.Balance(ctx, VaultHolder)
	if err != nil {
		return FishHunted{}, nil, err
	}
	if vault < operatorValue {
		return FishHunted{}, nil, ErrInsufficientVault
	}

	prey.Share = 0
	if hunter.Share, err = checkedAdd(hunter.Share, split.ToHunter); err != nil {
		return FishHunted{}, nil, err
	}
	if o.TotalShares, err = checkedSub(o.TotalShares, split.ToOperator+split.ToPool); err != nil {
		return FishHunted{}, nil, err
	}
	if o.Balance, err = checkedSub(o.Balance, operatorValue); err != nil {
		return FishHunted{}, nil, err
	}
	if err := ledger.Transfer(ctx, VaultHolder, o.Admin, operatorValue); err != nil {
		return FishHunted{}, nil, err
	}

	// The threshold is taken after the bite so the reward is measured against
	// the hunter's new size.
	threshold := max(BaseFeedingRequirement(&o, hunter.Share), MinFeed)
	reward := ShareToValue(&o, split.ToHunter)
	hunter.LastHuntAt = now
	hunter.CanHuntAfter = now + PostHuntCooldown
	fed := reward >= threshold
	if fed {
		hunter.LastFedAt = now
		hunter.ReceivedFromHuntValue = 0
	} else {
		hunter.ReceivedFromHuntValue = reward
	}
	hunter.TotalHunts = satAdd(hunter.TotalHunts, 1)
	hunter.TotalHuntIncome = satAdd(hunter.TotalHuntIncome, reward)

	if err := tx.Names().Release(ctx, prey.Name); err != nil {
		return FishHunted{}, nil, err
	}
	if o.FishCount, err = checkedSub(o.FishCount, 1); err != nil {
		return FishHunted{}, nil, err
	}

	if err := tx.SaveFish(ctx, hunter); err != nil {
		return FishHunted{}, nil, err
	}
	if err := tx.SaveFish(ctx, prey); err != nil {
		return FishHunted{}, nil, err
	}
	if err := tx.SaveOcean(ctx, o); err != nil {
		return FishHunted{}, nil, err
	}

	ev := FishHunted{
		HunterID:              hunter.ID,
		PreyID:                prey.ID,
		HunterOwner:           hunter.Owner,
		PreyOwner:             prey.Owner,
		BiteShare:             split.Bite,
		ToHunter:              split.ToHunter,
		ToPool:                split.ToPool,
		ToOperator:            split.ToOperator,
		HunterNewShare:        hunter.Share,
		PreyNewShare:          prey.Share,
		ReceivedFromHuntValue: reward,
		ToOperatorValue:       operatorValue,
		ToPoolValue:           poolValue,
		HunterFed:             fed,
	}
	return ev, []Event{newEvent(ev, now)}, nil
}

// SlippageBand is the inclusive range of prey shares a hunt accepts for the
// share the hunter observed.
func SlippageBand(expected uint64) (uint64, uint64) {
	return mulDivFloor(expected, 95, 100), mulDivFloor(expected, 105, 100)
}

func (e *Engine) PlaceHuntingMark(ctx context.Context, tx Tx, now int64, in PlaceMarkInput) (HuntingMarkPlaced, []Event, error) {
	o, err := tx.Ocean(ctx)
	if err != nil {
		return HuntingMarkPlaced{}, nil, err
	}
	hunter, prey, err := loadPair(ctx, tx, in.HunterID, in.PreyID)
	if err != nil {
		return HuntingMarkPlaced{}, nil, err
	}
	if err := checkPair(&hunter, &prey, in.Owner); err != nil {
		return HuntingMarkPlaced{}, nil, err
	}
	until, open := MarkWindow(&prey, now)
	if !open {
		return HuntingMarkPlaced{}, nil, ErrMarkTooEarly
	}
	prey.ClearExpiredMark(now)
	if prey.HasMark() {
		return HuntingMarkPlaced{}, nil, ErrMarkAlreadyActive
	}

	split := SplitMark(ShareToValue(&o, prey.Share), until)
	ledger := tx.Ledger()
	if err := requireFunds(ctx, ledger, in.Owner, split.Cost); err != nil {
		return HuntingMarkPlaced{}, nil, err
	}
	if err := ledger.Transfer(ctx, in.Owner, VaultHolder, split.PoolFee); err != nil {
		return HuntingMarkPlaced{}, nil, err
	}
	if err := ledger.Transfer(ctx, in.Owner, o.Admin, split.OperatorFee); err != nil {
		return HuntingMarkPlaced{}, nil, err
	}
	if o.Balance, err = checkedAdd(o.Balance, split.PoolFee); err != nil {
		return HuntingMarkPlaced{}, nil, err
	}

	prey.placeMark(hunter.ID, split.Cost, now)
	hunter.MarksPlaced = satAdd(hunter.MarksPlaced, 1)

	if err := tx.SaveFish(ctx, prey); err != nil {
		return HuntingMarkPlaced{}, nil, err
	}
	if err := tx.SaveFish(ctx, hunter); err != nil {
		return HuntingMarkPlaced{}, nil, err
	}
	if err := tx.SaveOcean(ctx, o); err != nil {
		return HuntingMarkPlaced{}, nil, err
	}

	ev := HuntingMarkPlaced{
		HunterID:        hunter.ID,
		PreyID:          prey.ID,
		HunterOwner:     hunter.Owner,
		Cost:            split.Cost,
		ExpiresAt:       prey.MarkExpiresAt,
		TimeUntilHungry: until,
		CostPercent:     split.CostPercent,
	}
	return ev, []Event{newEvent(ev, now)}, nil
}

func (e *Engine) ExitGame(ctx context.Context, tx Tx, now int64, in ExitGameInput) (FishExited, []Event, error) {
	o, err := tx.Ocean(ctx)
	if err != nil {
		return FishExited{}, nil, err
	}
	f, err := tx.Fish(ctx, in.FishID)
	if err != nil {
		return FishExited{}, nil, err
	}
	if err := f.EnsureAlive(); err != nil {
		return FishExited{}, nil, err
	}
	if err := f.EnsureOwnedBy(in.Owner); err != nil {
		return FishExited{}, nil, err
	}
	if o.IsStorm() {
		return FishExited{}, nil, ErrExitDuringStorm
	}

	split := SplitExit(ShareToValue(&o, f.Share))
	ledger := tx.Ledger()
	vault, err := ledger.Balance(ctx, VaultHolder)
	if err != nil {
		return FishExited{}, nil, err
	}
	if vault < satAdd(split.Payout, split.OperatorFee) {
		return FishExited{}, nil, ErrInsufficientVault
	}

	exited := f.Share
	if o.TotalShares, err = checkedSub(o.TotalShares, exited); err != nil {
		return FishExited{}, nil, err
	}
	if o.Balance, err = checkedSub(o.Balance, split.Payout); err != nil {
		return FishExited{}, nil, err
	}
	if o.Balance, err = checkedSub(o.Balance, split.OperatorFee); err != nil {
		return FishExited{}, nil, err
	}
	if o.FishCount, err = checkedSub(o.FishCount, 1); err != nil {
		return FishExited{}, nil, err
	}
	if err := ledger.Transfer(ctx, VaultHolder, f.Owner, split.Payout); err != nil {
		return FishExited{}, nil, err
	}
	if err := ledger.Transfer(ctx, VaultHolder, o.Admin, split.OperatorFee); err != nil {
		return FishExited{}, nil, err
	}

	f.Share = 0
	if err := tx.Names().Release(ctx, f.Name); err != nil {
		return FishExited{}, nil, err
	}
	if err := tx.SaveFish(ctx, f); err != nil {
		return FishExited{}, nil, err
	}
	if err := tx.SaveOcean(ctx, o); err != nil {
		return FishExited{}, nil, err
	}

	ev := FishExited{
		FishID:      f.ID,
		Owner:       f.Owner,
		ExitedShare: exited,
		Value:       split.Value,
		OperatorFee: split.OperatorFee,
		PoolFee:     split.PoolFee,
		ToPlayer:    split.Payout,
		NewBalance:  o.Balance,
	}
	return ev, []Event{newEvent(ev, now)}, nil
}

func (e *Engine) ResurrectFish(ctx context.Context, tx Tx, now int64, in ResurrectFishInput) (FishResurrected, []Event, error) {
	o, err := tx.Ocean(ctx)
	if err != nil {
		return FishResurrected{}, nil, err
	}
	old, err := tx.Fish(ctx, in.OldFishID)
	if err != nil {
		return FishResurrected{}, nil, err
	}
	if err := old.EnsureOwnedBy(in.Owner); err != nil {
		return FishResurrected{}, nil, err
	}
	if err := old.EnsureDead(); err != nil {
		return FishResurrected{}, nil, err
	}

	f, split, err := e.spawn(ctx, tx, &o, now, in.Owner, in.Name, in.Deposit)
	if err != nil {
		return FishResurrected{}, nil, err
	}
	if err := tx.SaveOcean(ctx, o); err != nil {
		return FishResurrected{}, nil, err
	}

	ev := FishResurrected{
		OldFishID:   old.ID,
		NewFishID:   f.ID,
		Owner:       f.Owner,
		Name:        f.Name,
		Share:       f.Share,
		Deposit:     split.Deposit,
		OperatorFee: split.OperatorFee,
		PoolFee:     split.PoolFee,
	}
	return ev, []Event{newEvent(ev, now)}, nil
}

func (e *Engine) TransferFish(ctx context.Context, tx Tx, now int64, in TransferFishInput) (FishTransferred, []Event, error) {
	newOwner := strings.TrimSpace(in.NewOwner)
	if newOwner == "" {
		return FishTransferred{}, nil, fmt.Errorf("%w: new owner is required", ErrInvalidInput)
	}
	f, err := tx.Fish(ctx, in.FishID)
	if err != nil {
		return FishTransferred{}, nil, err
	}
	if err := f.EnsureOwnedBy(in.Owner); err != nil {
		return FishTransferred{}, nil, err
	}
	if newOwner == in.Owner {
		return FishTransferred{}, nil, ErrCannotTransferToSelf
	}
	if err := f.EnsureAlive(); err != nil {
		return FishTransferred{}, nil, err
	}

	f.Owner = newOwner
	if err := tx.SaveFish(ctx, f); err != nil {
		return FishTransferred{}, nil, err
	}
	ev := FishTransferred{FishID: f.ID, FromOwner: in.Owner, ToOwner: newOwner}
	return ev, []Event{newEvent(ev, now)}, nil
}

// UpdateOceanDaily rolls the next mode once the scheduled change time has
// passed. Earlier calls are a no-op and return Changed=false.
func (e *Engine) UpdateOceanDaily(ctx context.Context, tx Tx, now int64) (DailyResult, []Event, error) {
	o, err := tx.Ocean(ctx)
	if err != nil {
		return DailyResult{}, nil, err
	}
	if !o.ShouldChangeMode(now) {
		return DailyResult{Mode: o.Mode, NextModeChange: o.NextModeChange}, nil, nil
	}

	seed := e.Entropy.Sample(SeedInput{Now: now, CycleStart: o.CycleStart})
	next := DetermineNextMode(seed)
	ev := o.ApplyModeChange(next, now, fmt.Sprintf("daily_roll_%dbps", StormProbabilityBps))
	ev.Seed = seed
	if err := tx.SaveOcean(ctx, o); err != nil {
		return DailyResult{}, nil, err
	}
	return DailyResult{
		Changed:        true,
		Mode:           o.Mode,
		NextModeChange: o.NextModeChange,
		Event:          &ev,
	}, []Event{newEvent(ev, now)}, nil
}

func requireFunds(ctx context.Context, ledger Ledger, holder string, amount uint64) error {
	bal, err := ledger.Balance(ctx, holder)
	if err != nil {
		return err
	}
	if bal < amount {
		return fmt.Errorf("%w: have %d, need %d", ErrInsufficientFunds, bal, amount)
	}
	return nil
}

// loadPair reads hunter and prey. When both ids match the same record is
// returned twice and checkPair rejects it.
func loadPair(ctx context.Context, tx Tx, hunterID, preyID uint64) (Fish, Fish, error) {
	hunter, err := tx.Fish(ctx, hunterID)
	if err != nil {
		return Fish{}, Fish{}, err
	}
	if hunterID == preyID {
		return hunter, hunter, nil
	}
	prey, err := tx.Fish(ctx, preyID)
	if err != nil {
		return Fish{}, Fish{}, err
	}
	return hunter, prey, nil
}

// checkPair holds the checks shared by hunting and marking.
func checkPair(hunter, prey *Fish, owner string) error {
	if err := hunter.EnsureAlive(); err != nil {
		return err
	}
	if err := prey.EnsureAlive(); err != nil {
		return err
	}
	if err := hunter.EnsureOwnedBy(owner); err != nil {
		return err
	}
	if hunter.ID == prey.ID || hunter.Owner == prey.Owner {
		return ErrInvalidPrey
	}
	if hunter.Share <= prey.Share {
		return ErrPreyTooHeavy
	}
	return nil
}
