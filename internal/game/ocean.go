package game

import (
	"fmt"
	"strings"
)

// Mode is the ocean's daily state.
type Mode int

const (
	ModeCalm Mode = iota
	ModeStorm
)

func (m Mode) String() string {
	if m == ModeStorm {
		return "storm"
	}
	return "calm"
}

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "calm":
		return ModeCalm, nil
	case "storm":
		return ModeStorm, nil
	default:
		return ModeCalm, fmt.Errorf("unknown ocean mode %q", s)
	}
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Mode) UnmarshalText(b []byte) error {
	v, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

func feedingBpsFor(m Mode) uint16 {
	if m == ModeStorm {
		return StormFeedingBps
	}
	return CalmFeedingBps
}

// Ocean is the singleton pool. Balance is the pool value in lamports.
type Ocean struct {
	Admin               string `json:"admin"`
	TotalShares         uint64 `json:"total_shares"`
	Balance             uint64 `json:"balance"`
	FishCount           uint64 `json:"fish_count"`
	NextFishID          uint64 `json:"next_fish_id"`
	Mode                Mode   `json:"mode"`
	FeedingBps          uint16 `json:"feeding_bps"`
	StormProbabilityBps uint16 `json:"storm_probability_bps"`
	CycleStart          int64  `json:"cycle_start"`
	NextModeChange      int64  `json:"next_mode_change"`
	CreatedAt           int64  `json:"created_at"`
}

// NewOcean returns the genesis state, calm, with the first mode change at the
// next midnight after now.
func NewOcean(admin string, now int64) Ocean {
	return Ocean{
		Admin:               admin,
		NextFishID:          1,
		Mode:                ModeCalm,
		FeedingBps:          CalmFeedingBps,
		StormProbabilityBps: StormProbabilityBps,
		CycleStart:          DayStart(now),
		NextModeChange:      NextMidnight(now),
		CreatedAt:           now,
	}
}

func (o *Ocean) IsStorm() bool { return o.Mode == ModeStorm }

func (o *Ocean) ShouldChangeMode(now int64) bool {
	return now >= o.NextModeChange
}

// DetermineNextMode rolls the seed against the storm chance out of 1000.
func DetermineNextMode(seed uint64) Mode {
	if seed%1000 < uint64(StormProbabilityBps) {
		return ModeStorm
	}
	return ModeCalm
}

// ApplyModeChange switches the mode and reschedules the next change.
func (o *Ocean) ApplyModeChange(next Mode, now int64, reason string) OceanModeChanged {
	ev := OceanModeChanged{
		OldMode:             o.Mode,
		NewMode:             next,
		OldFeedingBps:       o.FeedingBps,
		StormProbabilityBps: StormProbabilityBps,
		Reason:              reason,
		Timestamp:           now,
	}
	o.Mode = next
	o.FeedingBps = feedingBpsFor(next)
	o.StormProbabilityBps = StormProbabilityBps
	o.CycleStart = DayStart(now)
	o.NextModeChange = NextMidnight(now)

	ev.NewFeedingBps = o.FeedingBps
	ev.CycleStart = o.CycleStart
	ev.NextChange = o.NextModeChange
	return ev
}

// DayStart is the midnight at or before ts.
func DayStart(ts int64) int64 {
	return ts - remEuclid(ts, Day)
}

// NextMidnight is the first midnight strictly after ts.
func NextMidnight(ts int64) int64 {
	return DayStart(ts) + Day
}

func remEuclid(a, b int64) int64 {
	r := a % b
	if r < 0 {
		r += b
	}
	return r
}
