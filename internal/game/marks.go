package game

// A hunting mark lives on the prey: MarkedByHunterID names the hunter holding
// exclusive rights until MarkExpiresAt.

func (f *Fish) HasMark() bool { return f.MarkedByHunterID > 0 }

func (f *Fish) IsMarkExpired(now int64) bool {
	return f.MarkedByHunterID > 0 && now > f.MarkExpiresAt
}

func (f *Fish) ClearExpiredMark(now int64) {
	if f.IsMarkExpired(now) {
		f.clearMark()
	}
}

func (f *Fish) clearMark() {
	f.MarkedByHunterID = 0
	f.MarkPlacedAt = 0
	f.MarkExpiresAt = 0
	f.MarkCost = 0
}

// CheckMarkExclusivity lazily drops an expired mark and then rejects hunters
// other than the mark holder while the mark is live.
func CheckMarkExclusivity(prey *Fish, hunterID uint64, now int64) error {
	prey.ClearExpiredMark(now)
	if prey.MarkedByHunterID == 0 || prey.MarkPlacedAt == 0 {
		return nil
	}
	if prey.MarkedByHunterID == hunterID || now > prey.MarkExpiresAt {
		return nil
	}
	return ErrMarkExclusivityActive
}

// MarkWindow returns the seconds until prey becomes huntable and whether a
// mark may be placed now (0 < until <= 3h).
func MarkWindow(prey *Fish, now int64) (int64, bool) {
	until := prey.HungryAt() - now
	return until, until > 0 && until <= MarkPlacementWindow
}

func (f *Fish) placeMark(hunterID uint64, cost uint64, now int64) {
	f.MarkedByHunterID = hunterID
	f.MarkPlacedAt = now
	f.MarkExpiresAt = f.HungryAt() + MarkExclusivityDuration
	f.MarkCost = cost
}
