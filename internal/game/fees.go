package game

// DepositSplit is the fee breakdown for create and resurrect.
type DepositSplit struct {
	Deposit     uint64
	PoolFee     uint64
	OperatorFee uint64
}

// Total is what the payer is charged.
func (d DepositSplit) Total() uint64 {
	return satAdd(satAdd(d.Deposit, d.PoolFee), d.OperatorFee)
}

func SplitDeposit(deposit uint64) (DepositSplit, error) {
	if deposit < MinDeposit {
		return DepositSplit{}, ErrMinimumDeposit
	}
	fee := deposit / CreationFeeDivisor
	return DepositSplit{Deposit: deposit, PoolFee: fee, OperatorFee: fee}, nil
}

// FeedSplit is the commission breakdown for feeding. Only Amount buys shares.
type FeedSplit struct {
	Amount      uint64
	Commission  uint64
	PoolFee     uint64
	OperatorFee uint64
}

func (f FeedSplit) Total() uint64 {
	return satAdd(f.Amount, f.Commission)
}

func SplitFeed(amount uint64) FeedSplit {
	commission := amount / FeedCommissionDivisor
	operatorFee := commission / FeeSplitDivisor
	return FeedSplit{
		Amount:      amount,
		Commission:  commission,
		PoolFee:     commission - operatorFee,
		OperatorFee: operatorFee,
	}
}

// BiteSplit divides a consumed prey share. ToPool takes whatever the 80/10
// floors leave behind so the three parts always sum to Bite.
type BiteSplit struct {
	Bite       uint64
	ToHunter   uint64
	ToPool     uint64
	ToOperator uint64
}

func SplitBite(bite uint64) BiteSplit {
	toHunter := mulDivFloor(bite, 80, 100)
	toOperator := mulDivFloor(bite, 10, 100)
	return BiteSplit{
		Bite:       bite,
		ToHunter:   toHunter,
		ToPool:     bite - toHunter - toOperator,
		ToOperator: toOperator,
	}
}

// ExitSplit is the payout breakdown when a fish leaves. The 5% fee component
// is charged once to the pool and once to the operator.
type ExitSplit struct {
	Value       uint64
	PoolFee     uint64
	OperatorFee uint64
	Payout      uint64
}

func SplitExit(value uint64) ExitSplit {
	fee := satMul(value, ExitFeeBps) / BasisPoints
	return ExitSplit{
		Value:       value,
		PoolFee:     fee,
		OperatorFee: fee,
		Payout:      satSub(satSub(value, fee), fee),
	}
}

// MarkSplit is the price of a hunting mark and its 50/50 split.
type MarkSplit struct {
	Cost        uint64
	CostPercent uint64 // tenths of a percent: 100 = 10%, 50 = 5%
	PoolFee     uint64
	OperatorFee uint64
}

func SplitMark(preyValue uint64, untilHungry int64) MarkSplit {
	pct := uint64(50)
	if untilHungry <= MarkHighRateThreshold {
		pct = 100
	}
	cost := max(satMul(preyValue, pct)/1000, MinMarkCost)
	toPool := cost / FeeSplitDivisor
	return MarkSplit{
		Cost:        cost,
		CostPercent: pct,
		PoolFee:     toPool,
		OperatorFee: cost - toPool,
	}
}

func mulDivFloor(a, b, denom uint64) uint64 {
	if a <= ^uint64(0)/b {
		return a * b / denom
	}
	return a / denom * b
}
