// Package reward implements the daily reward engine (component I): exact
// rational-arithmetic computation of a staking account's daily reward,
// at-most-once per (account, day) distribution, and the payment-center
// bonus credit call that settles it.
package reward

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"stakingengine/internal/domain"
	"stakingengine/internal/guard"
	"stakingengine/internal/paycenter"
	"stakingengine/internal/store"
)

const e8sDenominator = 100_000_000

// rewardBonusReason is the bonus-credit reason string external
// reconciliation keys on; it must match verbatim.
const rewardBonusReason = "Staking Rewards"

// Compute derives the reward amount owed for one day of staking, using
// exact rational arithmetic before truncating to an integer amount, the
// same two-step shape as the epoch-reward engine this package is modeled
// on: build a big.Rat weight, multiply, then floor.
func Compute(stakedAmount, dailyRateE8s int64) int64 {
	if stakedAmount <= 0 || dailyRateE8s <= 0 {
		return 0
	}
	rate := new(big.Rat).SetFrac(big.NewInt(dailyRateE8s), big.NewInt(e8sDenominator))
	product := new(big.Rat).Mul(rate, new(big.Rat).SetInt64(stakedAmount))
	quotient := new(big.Int).Div(product.Num(), product.Denom())
	if quotient.Sign() < 0 {
		return 0
	}
	return quotient.Int64()
}

// Engine drives the daily reward distribution flow for one account: compute
// the day's amount, record a Reward row guarded by the per-day idempotence
// index, then settle it through the payment center and mark it Received.
type Engine struct {
	store      store.Store
	guard      *guard.Set
	paycenter  paycenter.Gateway
	rewardTag  uint8
	now        func() time.Time
}

// NewEngine constructs a reward engine. rewardTag is the payment-center
// transaction-id tag used when synthesizing the bonus-credit call's
// correlation id.
func NewEngine(s store.Store, guardSet *guard.Set, pc paycenter.Gateway, rewardTag uint8) *Engine {
	return &Engine{store: s, guard: guardSet, paycenter: pc, rewardTag: rewardTag, now: time.Now}
}

// DistributeForAccount computes and settles at most one reward for account
// on the given day. It is a no-op, not an error, if a Received reward for
// that (account, day) pair already exists; an existing Created reward is
// settled through SettlePending instead of being recomputed — the
// idempotence the spec requires for a scheduler that may retry a tick.
func (e *Engine) DistributeForAccount(ctx context.Context, account *domain.Account, pool *domain.Pool, day string) (*domain.Reward, error) {
	if account.Status != domain.AccountInStake {
		return nil, nil
	}
	if day == domain.YMD(account.StakeTime) {
		return nil, nil
	}
	if day > domain.YMD(account.StakeDeadline) {
		return nil, nil
	}

	handle, err := e.guard.Acquire(guard.Key("reward", fmt.Sprintf("%d", account.ID)))
	if err != nil {
		return nil, err
	}
	defer handle.Release()

	if existingID, ok, err := e.store.RewardIDForDay(ctx, account.ID, day); err != nil {
		return nil, err
	} else if ok {
		existing, err := e.store.GetReward(ctx, existingID)
		if err != nil {
			return nil, err
		}
		if existing.Status == domain.RewardReceived {
			return nil, nil
		}
		if err := e.SettlePending(ctx, existing, account.Owner); err != nil {
			return existing, err
		}
		account.AccumulatedRewards += existing.RewardAmount
		account.LastRewardTime = existing.CreatedAt
		return existing, e.store.PutAccount(ctx, account)
	}

	amount := Compute(account.StakedAmount, account.RewardConfig.DailyRate)
	if amount <= 0 {
		return nil, nil
	}

	rewardID, err := e.store.NextRewardID(ctx)
	if err != nil {
		return nil, err
	}
	localTxID, err := paycenter.TxIDSynthesize(e.rewardTag, rewardID)
	if err != nil {
		return nil, err
	}

	reward := &domain.Reward{
		ID:           rewardID,
		PoolID:       account.PoolID,
		AccountID:    account.ID,
		TxID:         localTxID,
		Owner:        account.Owner,
		RewardCrypto: account.RewardConfig.RewardCrypto,
		RewardAmount: amount,
		Day:          day,
		Status:       domain.RewardCreated,
		CreatedAt:    e.now().UTC(),
	}
	if err := e.store.PutReward(ctx, reward); err != nil {
		return nil, err
	}
	if err := e.store.StampRewardDay(ctx, account.ID, day, rewardID); err != nil {
		return nil, err
	}

	distributeEvent := &domain.Event{
		Principal: account.Owner,
		Type:      domain.EventDistributeReward,
		Payload: map[string]string{
			"accountId": fmt.Sprintf("%d", account.ID),
			"rewardId":  fmt.Sprintf("%d", rewardID),
			"amount":    fmt.Sprintf("%d", amount),
		},
	}
	_ = e.store.AppendEvent(ctx, distributeEvent)

	pcTxID, err := e.paycenter.UpdateAccountBonus(ctx, account.Owner, amount, localTxID, rewardBonusReason, account.ID, rewardID)
	if err != nil {
		// The reward row is already persisted and stamped for the day; the
		// next call for the same day finds it still Created and re-attempts
		// the settlement call without recomputing the amount.
		return reward, err
	}

	reward.Status = domain.RewardReceived
	reward.PCTxID = pcTxID
	if err := e.store.PutReward(ctx, reward); err != nil {
		return reward, err
	}

	account.AccumulatedRewards += amount
	account.LastRewardTime = reward.CreatedAt
	if err := e.store.PutAccount(ctx, account); err != nil {
		return reward, err
	}

	event := &domain.Event{
		Principal: account.Owner,
		Type:      domain.EventRewardReceived,
		Payload: map[string]string{
			"accountId": fmt.Sprintf("%d", account.ID),
			"rewardId":  fmt.Sprintf("%d", rewardID),
			"amount":    fmt.Sprintf("%d", amount),
		},
	}
	_ = e.store.AppendEvent(ctx, event)

	return reward, nil
}

// SettlePending retries the payment-center settlement of a reward that was
// persisted as Created but never reached Received, e.g. because the process
// crashed between the two store writes in DistributeForAccount.
func (e *Engine) SettlePending(ctx context.Context, reward *domain.Reward, owner string) error {
	if reward.Status == domain.RewardReceived {
		return nil
	}
	pcTxID, err := e.paycenter.UpdateAccountBonus(ctx, owner, reward.RewardAmount, reward.TxID, rewardBonusReason, reward.AccountID, reward.ID)
	if err != nil {
		return err
	}
	reward.Status = domain.RewardReceived
	reward.PCTxID = pcTxID
	return e.store.PutReward(ctx, reward)
}
