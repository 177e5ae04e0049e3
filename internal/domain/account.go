package domain

import "time"

// AccountStatus enumerates the lifecycle states of a staking account.
type AccountStatus string

// Account status values.
const (
	AccountCreated   AccountStatus = "Created"
	AccountInStake   AccountStatus = "InStake"
	AccountReleased  AccountStatus = "Released"
	AccountDissolved AccountStatus = "Dissolved"
)

// Valid reports whether the status is one of the known account states.
func (s AccountStatus) Valid() bool {
	switch s {
	case AccountCreated, AccountInStake, AccountReleased, AccountDissolved:
		return true
	default:
		return false
	}
}

// RecoverableErrorKind names the exact resume point a failed multi-call flow
// left behind. Exactly one kind is active on an account at a time; the
// payload fields relevant to that kind are the only ones populated.
type RecoverableErrorKind string

// Recoverable error kinds, one per resumable sub-call failure in the
// lifecycle orchestrator.
const (
	ErrKindNone                             RecoverableErrorKind = ""
	ErrKindStakeTransferToPoolFailed        RecoverableErrorKind = "StakeTransferToPoolFailed"
	ErrKindDissolvePayCenterFailed          RecoverableErrorKind = "DissolvePayCenterFailed"
	ErrKindEarlyUnstakePenaltyOnChainFailed RecoverableErrorKind = "EarlyUnstakePenaltyOnChainFailed"
	ErrKindEarlyUnstakePenaltyPayCenterFailed RecoverableErrorKind = "EarlyUnstakePenaltyPayCenterFailed"
)

// RecoverableError pins an account to recovery until the recovery
// orchestrator resolves the named resume point. Only the fields relevant to
// Kind are meaningful; see §4.6 of the design for the resume semantics of
// each kind.
type RecoverableError struct {
	Kind              RecoverableErrorKind
	StakePCOnchainTx  uint64
	StakePCTx         string
	DissolveTx        uint64
	ReleaseTx         uint64
	PenaltyOnchainTx  uint64
	OccurredAt        time.Time
	Penalty           int64
}

// Valid reports whether the error carries a recognised kind.
func (e RecoverableError) Valid() bool {
	switch e.Kind {
	case ErrKindNone, ErrKindStakeTransferToPoolFailed, ErrKindDissolvePayCenterFailed,
		ErrKindEarlyUnstakePenaltyOnChainFailed, ErrKindEarlyUnstakePenaltyPayCenterFailed:
		return true
	default:
		return false
	}
}

// IsSet reports whether the account actually carries a pinned error.
func (e RecoverableError) IsSet() bool { return e.Kind != ErrKindNone }

// TxIDs bundles the correlation ids an account accumulates as it moves
// through the money-movement protocol. Zero/empty values mean "not yet
// recorded".
type TxIDs struct {
	StakePCOnchainTx  uint64
	StakePCTx         string
	StakeToPoolOnchain uint64
	ReleaseOnchain    uint64
	DissolveOnchain   uint64
	DissolvePCTx      string
	PenaltyOnchain    uint64
	PenaltyPCTx       string
}

// Account is the staking account aggregate: a user's position in a pool,
// its own state machine, and the recoverable-error slot that the recovery
// orchestrator resumes from.
type Account struct {
	ID                   uint64
	PoolID               uint64
	Owner                string
	Address              string
	StakedAmount         int64
	ReleasedAmount       int64
	PenaltyAmount        int64
	AccumulatedRewards   int64
	Status               AccountStatus
	RewardConfig         RewardConfig
	Tx                   TxIDs
	TotalStakingDays     int64
	MinEarlyUnstakeDays  int64
	StakeTime            time.Time
	StakeDeadline        time.Time
	CanEarlyUnstakeTime  time.Time
	ReleaseTime          time.Time
	DissolveTime         time.Time
	LastRewardTime       time.Time
	RecoverableErr       RecoverableError
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	clone := *a
	return &clone
}
