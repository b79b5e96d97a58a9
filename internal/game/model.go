package game

import (
	"errors"
	"strings"
	"unicode"
)

const (
	LamportsPerSol = uint64(1_000_000_000)

	MinDeposit  = LamportsPerSol / 100 // 0.01
	MinFeed     = LamportsPerSol / 100
	MinMarkCost = LamportsPerSol / 100

	FeedCommissionDivisor = uint64(10) // 10%
	FeeSplitDivisor       = uint64(2)
	CreationFeeDivisor    = uint64(20) // 5% of the deposit, charged twice
	BasisPoints           = uint64(10_000)
	ExitFeeBps            = uint64(500)

	MaxNameLen = 32
)

const (
	Day = int64(24 * 60 * 60)

	CalmFeedingBps      = uint16(500)
	StormFeedingBps     = uint16(1000)
	StormProbabilityBps = uint16(250) // rolled against seed % 1000

	ProtectionPeriod        = 7 * Day
	CreationHuntingCooldown = 2 * Day
	PostHuntCooldown        = 2 * Day
	PreyCooldown            = 7 * Day
	FeedingCooldown         = 2 * Day

	MarkPlacementWindow     = int64(3 * 60 * 60)
	MarkHighRateThreshold   = int64(30 * 60)
	MarkExclusivityDuration = int64(20 * 60)
)

// VaultHolder is the ledger holder that custodies the ocean's value.
const VaultHolder = "vault"

var (
	ErrMinimumDeposit        = errors.New("minimum deposit is 0.01")
	ErrNameTooLong           = errors.New("name too long: maximum 32 characters")
	ErrInvalidName           = errors.New("invalid fish name")
	ErrNameAlreadyTaken      = errors.New("fish name is already taken")
	ErrUnauthorizedAdmin     = errors.New("unauthorized admin action")
	ErrNotFishOwner          = errors.New("caller is not the fish owner")
	ErrFishAlreadyDead       = errors.New("fish is already dead")
	ErrCannotTransferToSelf  = errors.New("cannot transfer fish to yourself")
	ErrInsufficientFeeding   = errors.New("insufficient feeding amount")
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrInsufficientVault     = errors.New("vault has insufficient balance")
	ErrMathOverflow          = errors.New("math overflow/underflow")
	ErrPreyTooHeavy          = errors.New("prey is too heavy")
	ErrHuntingOnCooldown     = errors.New("hunter is on hunting cooldown")
	ErrInvalidPrey           = errors.New("invalid prey")
	ErrSlippageExceeded      = errors.New("slippage exceeded: prey weight changed more than 5%")
	ErrMarkTooEarly          = errors.New("too early to place hunting mark (must be within 3 hours of hunger)")
	ErrMarkAlreadyActive     = errors.New("an active mark already exists for this prey")
	ErrMarkExclusivityActive = errors.New("mark exclusivity period active - only mark owner can hunt")
	ErrExitDuringStorm       = errors.New("cannot exit during storm")
	ErrFishNotFound          = errors.New("fish not found")
	ErrOceanNotInitialized   = errors.New("ocean is not initialized")
	ErrOceanExists           = errors.New("ocean already initialized")
	ErrDuplicateIdempotency  = errors.New("duplicate idempotency key")
	ErrTxConflict            = errors.New("transaction conflict, retry later")
	ErrPlayerExists          = errors.New("player already exists")
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrInvalidInput          = errors.New("invalid input")
)

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrMinimumDeposit, "MinimumDeposit"},
	{ErrNameTooLong, "NameTooLong"},
	{ErrInvalidName, "InvalidName"},
	{ErrNameAlreadyTaken, "NameAlreadyTaken"},
	{ErrUnauthorizedAdmin, "UnauthorizedAdmin"},
	{ErrNotFishOwner, "NotFishOwner"},
	{ErrFishAlreadyDead, "FishAlreadyDead"},
	{ErrCannotTransferToSelf, "CannotTransferToSelf"},
	{ErrInsufficientFeeding, "InsufficientFeedingAmount"},
	{ErrInsufficientFunds, "InsufficientFunds"},
	{ErrInsufficientVault, "InsufficientVaultBalance"},
	{ErrMathOverflow, "MathOverflow"},
	{ErrPreyTooHeavy, "PreyTooHeavy"},
	{ErrHuntingOnCooldown, "HuntingOnCooldown"},
	{ErrInvalidPrey, "InvalidPrey"},
	{ErrSlippageExceeded, "SlippageExceeded"},
	{ErrMarkTooEarly, "MarkTooEarly"},
	{ErrMarkAlreadyActive, "MarkAlreadyActive"},
	{ErrMarkExclusivityActive, "MarkExclusivityActive"},
	{ErrExitDuringStorm, "ExitDuringStorm"},
	{ErrFishNotFound, "FishNotFound"},
	{ErrOceanNotInitialized, "OceanNotInitialized"},
	{ErrOceanExists, "OceanExists"},
	{ErrDuplicateIdempotency, "DuplicateIdempotency"},
	{ErrTxConflict, "TxConflict"},
	{ErrPlayerExists, "PlayerExists"},
	{ErrInvalidCredentials, "InvalidCredentials"},
	{ErrInvalidInput, "InvalidInput"},
}

// ErrorCode returns the stable name of a game error, or "Internal" for anything else.
func ErrorCode(err error) string {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return "Internal"
}

// NormalizeName trims the name and checks it against the registry rules.
func NormalizeName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", ErrInvalidName
	}
	if len(trimmed) > MaxNameLen {
		return "", ErrNameTooLong
	}
	for _, r := range trimmed {
		if r > unicode.MaxASCII || unicode.IsControl(r) {
			return "", ErrInvalidName
		}
	}
	return trimmed, nil
}
