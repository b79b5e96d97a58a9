package game

import (
	"errors"
	"testing"
)

func TestSplitDeposit(t *testing.T) {
	d, err := SplitDeposit(sol)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.PoolFee != sol/20 || d.OperatorFee != sol/20 {
		t.Fatalf("fees got pool=%d operator=%d", d.PoolFee, d.OperatorFee)
	}
	if d.Total() != sol+sol/10 {
		t.Fatalf("total got %d want %d", d.Total(), sol+sol/10)
	}
	if _, err := SplitDeposit(MinDeposit - 1); !errors.Is(err, ErrMinimumDeposit) {
		t.Fatalf("expected minimum deposit error, got %v", err)
	}
	if _, err := SplitDeposit(MinDeposit); err != nil {
		t.Fatalf("minimum deposit should pass: %v", err)
	}
}

func TestSplitFeed(t *testing.T) {
	f := SplitFeed(sol)
	if f.Commission != sol/10 || f.OperatorFee != sol/20 || f.PoolFee != sol/20 {
		t.Fatalf("unexpected split %+v", f)
	}
	if f.Total() != sol+sol/10 {
		t.Fatalf("total got %d", f.Total())
	}

	// An odd commission leaves the extra lamport with the pool.
	odd := SplitFeed(15)
	if odd.Commission != 1 || odd.OperatorFee != 0 || odd.PoolFee != 1 {
		t.Fatalf("unexpected odd split %+v", odd)
	}
}

func TestSplitBite(t *testing.T) {
	b := SplitBite(100)
	if b.ToHunter != 80 || b.ToOperator != 10 || b.ToPool != 10 {
		t.Fatalf("unexpected split %+v", b)
	}

	for _, bite := range []uint64{0, 1, 7, 99, 1_234_567_891} {
		s := SplitBite(bite)
		if s.ToHunter+s.ToOperator+s.ToPool != bite {
			t.Fatalf("bite=%d parts do not sum: %+v", bite, s)
		}
	}

	dust := SplitBite(7)
	if dust.ToHunter != 5 || dust.ToOperator != 0 || dust.ToPool != 2 {
		t.Fatalf("rounding dust should land in the pool: %+v", dust)
	}
}

func TestSplitExit(t *testing.T) {
	e := SplitExit(100 * sol)
	if e.PoolFee != 5*sol || e.OperatorFee != 5*sol || e.Payout != 90*sol {
		t.Fatalf("unexpected split %+v", e)
	}
	if z := SplitExit(0); z.Payout != 0 || z.PoolFee != 0 {
		t.Fatalf("zero value split %+v", z)
	}
}

func TestSplitMark(t *testing.T) {
	early := SplitMark(10*sol, 2*60*60)
	if early.CostPercent != 50 || early.Cost != sol/2 {
		t.Fatalf("early mark %+v", early)
	}
	if early.PoolFee+early.OperatorFee != early.Cost {
		t.Fatalf("mark split does not sum: %+v", early)
	}

	late := SplitMark(10*sol, MarkHighRateThreshold)
	if late.CostPercent != 100 || late.Cost != sol {
		t.Fatalf("late mark %+v", late)
	}

	tiny := SplitMark(sol/20, 60*60)
	if tiny.Cost != MinMarkCost {
		t.Fatalf("tiny mark should cost the minimum, got %d", tiny.Cost)
	}
}

func TestSlippageBand(t *testing.T) {
	lo, hi := SlippageBand(1000)
	if lo != 950 || hi != 1050 {
		t.Fatalf("band got [%d,%d]", lo, hi)
	}
	lo, hi = SlippageBand(0)
	if lo != 0 || hi != 0 {
		t.Fatalf("zero band got [%d,%d]", lo, hi)
	}
}
