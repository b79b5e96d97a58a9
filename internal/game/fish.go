package game

// Fish is a player's stake in the ocean. A fish with zero share is dead and
// keeps its record as history.
type Fish struct {
	ID                    uint64 `json:"id"`
	Owner                 string `json:"owner"`
	Name                  string `json:"name"`
	Share                 uint64 `json:"share"`
	CreatedAt             int64  `json:"created_at"`
	LastFedAt             int64  `json:"last_fed_at"`
	LastHuntAt            int64  `json:"last_hunt_at"`
	CanHuntAfter          int64  `json:"can_hunt_after"`
	IsProtected           bool   `json:"is_protected"`
	ProtectionEndsAt      int64  `json:"protection_ends_at"`
	TotalHunts            uint64 `json:"total_hunts"`
	TotalHuntIncome       uint64 `json:"total_hunt_income"`
	ReceivedFromHuntValue uint64 `json:"received_from_hunt_value"`
	MarksPlaced           uint64 `json:"marks_placed"`
	MarkedByHunterID      uint64 `json:"marked_by_hunter_id"`
	MarkPlacedAt          int64  `json:"mark_placed_at"`
	MarkExpiresAt         int64  `json:"mark_expires_at"`
	MarkCost              uint64 `json:"mark_cost"`
}

// newFish initializes a freshly minted fish: protected, on creation cooldown,
// fed at now.
func newFish(id uint64, owner, name string, now int64) Fish {
	return Fish{
		ID:               id,
		Owner:            owner,
		Name:             name,
		CreatedAt:        now,
		LastFedAt:        now,
		LastHuntAt:       now,
		CanHuntAfter:     now + CreationHuntingCooldown,
		IsProtected:      true,
		ProtectionEndsAt: now + ProtectionPeriod,
	}
}

func (f *Fish) IsAlive() bool { return f.Share > 0 }

func (f *Fish) IsProtectedAt(now int64) bool {
	return f.IsProtected && now < f.ProtectionEndsAt
}

func (f *Fish) CanHunt(now int64) bool {
	return now >= f.CanHuntAfter && f.Share > 0
}

func (f *Fish) IsValidPrey(now int64) bool {
	if f.Share == 0 || f.IsProtectedAt(now) {
		return false
	}
	return now-f.LastFedAt >= PreyCooldown
}

// HungryAt is when the fish becomes legal prey, protection aside.
func (f *Fish) HungryAt() int64 {
	return f.LastFedAt + PreyCooldown
}

func (f *Fish) EnsureAlive() error {
	if f.Share == 0 {
		return ErrFishAlreadyDead
	}
	return nil
}

func (f *Fish) EnsureDead() error {
	if f.Share != 0 {
		return ErrFishAlreadyDead
	}
	return nil
}

func (f *Fish) EnsureOwnedBy(owner string) error {
	if f.Owner != owner {
		return ErrNotFishOwner
	}
	return nil
}

// markFed records a feeding: resets the prey clock, drops any mark on the
// fish and clears banked hunt credit.
func (f *Fish) markFed(now int64) {
	f.LastFedAt = now
	f.clearMark()
	f.CanHuntAfter = now + FeedingCooldown
	f.ReceivedFromHuntValue = 0
}
