package domain

import "time"

// LedgerEntryKind tags the business meaning of a pool-ledger record. The
// payload fields relevant to a kind are the only ones populated; unused
// fields are left at their zero value.
type LedgerEntryKind string

// Pool-ledger entry kinds.
const (
	LedgerFee                 LedgerEntryKind = "Fee"
	LedgerPrepaidFee          LedgerEntryKind = "PrepaidFee"
	LedgerStaking             LedgerEntryKind = "Staking"
	LedgerUnstaking           LedgerEntryKind = "Unstaking"
	LedgerEarlyUnstakePenalty LedgerEntryKind = "EarlyUnstakePenalty"
	LedgerNNSNeuronStake      LedgerEntryKind = "NNSNeuronStake"
	LedgerNNSNeuronUnstake    LedgerEntryKind = "NNSNeuronUnstake"
	LedgerJackpot             LedgerEntryKind = "Jackpot"
)

// PoolLedgerEntry is one append-only record in a pool's chronological
// transaction ledger. Seq is monotonic and dense per pool; RunningBalance is
// the cumulative sum of SignedAmount up to and including this record.
type PoolLedgerEntry struct {
	Seq            uint64
	PoolID         uint64
	SignedAmount   int64
	RunningBalance int64
	Kind           LedgerEntryKind
	AccountID      uint64
	NeuronID       string
	BlockIndex     uint64
	CreatedAt      time.Time
}

// EventType enumerates the lifecycle/sub-call outcomes recorded in the
// append-only audit event log. Every sub-call start and every committed
// lifecycle step has a distinct value here; separate ok/err outcome values
// exist only for the stake flow's sub-calls.
type EventType string

// Event type values, grouped by the flow that emits them.
const (
	EventCreateStakingAccount       EventType = "CreateStakingAccount"
	EventStakePayCenterTransferStart EventType = "StakePayCenterTransferStart"
	EventStakePayCenterTransferOk   EventType = "StakePayCenterTransferOk"
	EventStakePayCenterTransferErr  EventType = "StakePayCenterTransferErr"
	EventStakeTransferStart         EventType = "StakeTransferStart"
	EventStakeTransferErr           EventType = "StakeTransferErr"
	EventStake                      EventType = "Stake"

	EventUnstakeTransferStart        EventType = "UnstakeTransferStart"
	EventUnstakePenaltyTransferStart EventType = "UnstakePenaltyTransferStart"
	EventUnstakePenaltyPayCenterStart EventType = "UnstakePenaltyPayCenterStart"
	EventUnstake                     EventType = "Unstake"

	EventDissolvePayCenterTransferStart EventType = "DissolvePayCenterTransferStart"
	EventDissolvePayCenterReceiveStart  EventType = "DissolvePayCenterReceiveStart"
	EventDissolve                       EventType = "Dissolve"

	EventDistributeReward EventType = "DistributeReward"
	EventRewardReceived   EventType = "RewardReceived"
)

// Event is one append-only audit log row.
type Event struct {
	ID        uint64
	Principal string
	Type      EventType
	Payload   map[string]string
	EventTime time.Time
}
