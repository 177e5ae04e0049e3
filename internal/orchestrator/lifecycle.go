package orchestrator

import (
	"context"
	"strconv"
	"time"

	"stakingengine/internal/domain"
	"stakingengine/internal/guard"
	"stakingengine/internal/ledger"
)

const (
	penaltyLongTermThreshold = 180 * 24 * time.Hour
	penaltyFloorThreshold    = 10_000
)

// computePenalty implements §4.5.2 step 4's penalty formula.
func computePenalty(account *domain.Account, now time.Time) (penalty, released int64) {
	r := account.AccumulatedRewards
	s := account.StakedAmount
	if now.Before(account.StakeTime.Add(penaltyLongTermThreshold)) {
		penalty = r * 8 / 10
	} else {
		penalty = r * 5 / 10
	}
	if penalty <= penaltyFloorThreshold {
		penalty = 0
	}
	released = s - penalty
	if released < 0 {
		released = 0
	}
	return penalty, released
}

// PreCheckResult is the read-only mirror of early_unstake's first four
// steps, returned by EarlyUnstakePreCheck.
type PreCheckResult struct {
	PoolID             uint64
	StakedAmount       int64
	PenaltyAmount      int64
	ReleasedAmount     int64
	AccumulatedRewards int64
}

// EarlyUnstakePreCheck implements §4.5.5: a read-only mirror of
// early_unstake's validation and penalty computation, without mutating any
// state.
func (o *Orchestrator) EarlyUnstakePreCheck(ctx context.Context, caller string, accountID uint64) (*PreCheckResult, error) {
	if caller == "" {
		return nil, ErrAnonymousCaller
	}
	account, err := o.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, ErrNotFound
	}
	if account.Owner != caller {
		return nil, ErrPermissionDenied
	}
	if account.Status != domain.AccountInStake {
		return nil, ErrInvalidStatus
	}
	now := o.now().UTC()
	if now.Before(account.CanEarlyUnstakeTime) {
		return nil, ErrTooEarly
	}
	penalty, released := computePenalty(account, now)
	return &PreCheckResult{
		PoolID:             account.PoolID,
		StakedAmount:       account.StakedAmount,
		PenaltyAmount:      penalty,
		ReleasedAmount:     released,
		AccumulatedRewards: account.AccumulatedRewards,
	}, nil
}

// EarlyUnstake implements §4.5.2.
func (o *Orchestrator) EarlyUnstake(ctx context.Context, caller string, accountID uint64) (*domain.Account, error) {
	if caller == "" {
		return nil, ErrAnonymousCaller
	}
	handle, err := o.guard.Acquire(guard.Key("unstake", strconv.FormatUint(accountID, 10)))
	if err != nil {
		return nil, err
	}
	defer handle.Release()

	account, err := o.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, ErrNotFound
	}
	if account.Owner != caller {
		return nil, ErrPermissionDenied
	}
	if account.Status != domain.AccountInStake {
		return nil, ErrInvalidStatus
	}

	if account.RecoverableErr.Kind == domain.ErrKindEarlyUnstakePenaltyOnChainFailed ||
		account.RecoverableErr.Kind == domain.ErrKindEarlyUnstakePenaltyPayCenterFailed {
		return o.resume(ctx, account)
	}

	now := o.now().UTC()
	if now.Before(account.CanEarlyUnstakeTime) {
		return nil, ErrTooEarly
	}
	penalty, released := computePenalty(account, now)
	return o.runUnstake(ctx, account, now, penalty, released, false)
}

// MaturityUnstake implements §4.5.3: an unconditional unstake of a matured
// account, invoked by the scheduler's maturity sweep.
func (o *Orchestrator) MaturityUnstake(ctx context.Context, accountID uint64) (*domain.Account, error) {
	handle, err := o.guard.Acquire(guard.Key("unstake", strconv.FormatUint(accountID, 10)))
	if err != nil {
		return nil, err
	}
	defer handle.Release()

	account, err := o.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, ErrNotFound
	}
	if account.Status != domain.AccountInStake {
		return nil, ErrInvalidStatus
	}
	now := o.now().UTC()
	if now.Before(account.StakeDeadline) {
		return nil, ErrTooEarly
	}
	return o.runUnstake(ctx, account, now, 0, account.StakedAmount, true)
}

// runUnstake drives steps 5-9 of §4.5.2 (shared by early_unstake and the
// unconditional maturity_unstake variant): the released-funds transfer,
// then (for early_unstake only) the two penalty sub-calls, then the commit.
func (o *Orchestrator) runUnstake(ctx context.Context, account *domain.Account, releaseTime time.Time, penalty, released int64, maturity bool) (*domain.Account, error) {
	var releaseBlock ledger.BlockIndex
	if released > 0 {
		o.appendEvent(ctx, account.Owner, domain.EventUnstakeTransferStart, idPayload(account.ID))
		block, err := o.ledger.Transfer(ctx, ledger.TransferRequest{
			FromSubAccount: o.poolSubaccountHex(account.PoolID),
			ToAccount:      o.stakingAccountIdentifier(account.ID),
			Amount:         released + ledger.FeeUnit,
			Memo:           ledger.MemoUnstake,
		})
		if err != nil {
			return nil, ErrSystem
		}
		releaseBlock = block
	}

	if !maturity && penalty > 0 {
		o.appendEvent(ctx, account.Owner, domain.EventUnstakePenaltyTransferStart, idPayload(account.ID))
		penaltyBlock, err := o.attemptPenaltyOnchainTransfer(ctx, account.PoolID, penalty)
		if err != nil {
			account.RecoverableErr = domain.RecoverableError{
				Kind:             domain.ErrKindEarlyUnstakePenaltyOnChainFailed,
				ReleaseTx:        uint64(releaseBlock),
				OccurredAt:       releaseTime,
				Penalty:          penalty,
			}
			_ = o.store.PutAccount(ctx, account)
			_ = o.store.AddToRecoverableErrorIndex(ctx, account.PoolID, account.ID)
			return nil, ErrSystem
		}

		o.appendEvent(ctx, account.Owner, domain.EventUnstakePenaltyPayCenterStart, idPayload(account.ID))
		pcTxID, err := o.attemptPenaltyPayCenter(ctx, account, penalty, uint64(penaltyBlock))
		if err != nil {
			account.RecoverableErr = domain.RecoverableError{
				Kind:             domain.ErrKindEarlyUnstakePenaltyPayCenterFailed,
				ReleaseTx:        uint64(releaseBlock),
				PenaltyOnchainTx: uint64(penaltyBlock),
				OccurredAt:       releaseTime,
				Penalty:          penalty,
			}
			_ = o.store.PutAccount(ctx, account)
			_ = o.store.AddToRecoverableErrorIndex(ctx, account.PoolID, account.ID)
			return nil, ErrSystem
		}
		account.Tx.PenaltyOnchain = uint64(penaltyBlock)
		account.Tx.PenaltyPCTx = pcTxID
	}

	account.Tx.ReleaseOnchain = uint64(releaseBlock)
	return o.completeUnstake(ctx, account, releaseTime, penalty, released)
}

func (o *Orchestrator) attemptPenaltyOnchainTransfer(ctx context.Context, poolID uint64, penalty int64) (ledger.BlockIndex, error) {
	return o.ledger.Transfer(ctx, ledger.TransferRequest{
		FromSubAccount: o.poolSubaccountHex(poolID),
		ToAccount:      o.payCenterAccount,
		Amount:         penalty - ledger.FeeUnit,
		Memo:           ledger.MemoUnstakePenalty,
	})
}

func (o *Orchestrator) attemptPenaltyPayCenter(ctx context.Context, account *domain.Account, penalty int64, penaltyBlock uint64) (string, error) {
	return o.paycenter.ReceiveEarlyUnstakePenalty(ctx, account.Owner, penalty, account.PoolID, account.ID, penaltyBlock)
}

// completeUnstake commits step 8-9 of §4.5.2: the InStake→Released
// transition, the pool's staked_amount/staker_count update, the async badge
// revoke, the Unstake event, and the pool-ledger records.
func (o *Orchestrator) completeUnstake(ctx context.Context, account *domain.Account, releaseTime time.Time, penalty, released int64) (*domain.Account, error) {
	pool, err := o.store.GetPool(ctx, account.PoolID)
	if err != nil {
		return nil, err
	}
	stakedAmount := account.StakedAmount

	account.Status = domain.AccountReleased
	account.ReleaseTime = releaseTime
	account.ReleasedAmount = released
	account.PenaltyAmount = penalty
	account.RecoverableErr = domain.RecoverableError{}
	account.UpdatedAt = o.now().UTC()
	if err := o.store.PutAccount(ctx, account); err != nil {
		return nil, err
	}
	_ = o.store.RemoveFromDeadlineIndex(ctx, domain.YMD(account.StakeDeadline), account.ID)
	_ = o.store.RemoveFromRecoverableErrorIndex(ctx, account.PoolID, account.ID)

	pool.StakedAmount -= stakedAmount
	remainingLive, err := o.countLiveAccounts(ctx, account.Owner, account.PoolID, account.ID)
	if err != nil {
		return nil, err
	}
	revokeBadge := remainingLive == 0
	if revokeBadge {
		pool.StakerCount--
	}
	if err := o.store.PutPool(ctx, pool); err != nil {
		return nil, err
	}
	if revokeBadge && o.badges != nil {
		o.badges.Revoke(account.Owner, "staker", map[string]string{"poolId": strconv.FormatUint(pool.ID, 10)})
	}

	o.appendEvent(ctx, account.Owner, domain.EventUnstake, idPayload(account.ID))

	if err := o.appendPoolLedger(ctx, account.PoolID, -released, domain.LedgerUnstaking, account.ID, account.Tx.ReleaseOnchain); err != nil {
		return nil, err
	}
	if released > 0 {
		if err := o.appendPoolLedger(ctx, account.PoolID, -ledger.FeeUnit, domain.LedgerFee, account.ID, account.Tx.ReleaseOnchain); err != nil {
			return nil, err
		}
	}
	if penalty > 0 {
		if err := o.appendPoolLedger(ctx, account.PoolID, -penalty, domain.LedgerEarlyUnstakePenalty, account.ID, account.Tx.PenaltyOnchain); err != nil {
			return nil, err
		}
	}
	return account, nil
}

// Dissolve implements §4.5.4.
func (o *Orchestrator) Dissolve(ctx context.Context, caller string, accountID uint64) (*domain.Account, error) {
	if caller == "" {
		return nil, ErrAnonymousCaller
	}
	handle, err := o.guard.Acquire(guard.Key("dissolve", strconv.FormatUint(accountID, 10)))
	if err != nil {
		return nil, err
	}
	defer handle.Release()

	account, err := o.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, ErrNotFound
	}
	if account.Owner != caller {
		return nil, ErrPermissionDenied
	}
	if account.Status != domain.AccountReleased {
		return nil, ErrInvalidStatus
	}
	if account.RecoverableErr.Kind == domain.ErrKindDissolvePayCenterFailed {
		return o.resume(ctx, account)
	}

	now := o.now().UTC()
	if account.ReleasedAmount == 0 {
		return o.completeDissolve(ctx, account, now, 0, "")
	}

	o.appendEvent(ctx, caller, domain.EventDissolvePayCenterTransferStart, idPayload(accountID))
	dissolveBlock, err := o.ledger.Transfer(ctx, ledger.TransferRequest{
		FromSubAccount: o.stakingAccountIdentifier(accountID),
		ToAccount:      o.payCenterAccount,
		Amount:         account.ReleasedAmount,
		Memo:           ledger.MemoPayCenter,
	})
	if err != nil {
		return nil, ErrSystem
	}

	o.appendEvent(ctx, caller, domain.EventDissolvePayCenterReceiveStart, idPayload(accountID))
	pcTxID, err := o.paycenter.Dissolve(ctx, caller, account.ReleasedAmount, uint64(dissolveBlock), account.Address, accountID)
	if err != nil {
		account.RecoverableErr = domain.RecoverableError{
			Kind:       domain.ErrKindDissolvePayCenterFailed,
			DissolveTx: uint64(dissolveBlock),
			OccurredAt: now,
		}
		_ = o.store.PutAccount(ctx, account)
		_ = o.store.AddToRecoverableErrorIndex(ctx, account.PoolID, accountID)
		return nil, ErrSystem
	}

	return o.completeDissolve(ctx, account, now, uint64(dissolveBlock), pcTxID)
}

// completeDissolve commits step 5 of §4.5.4: the Released→Dissolved
// transition and the Dissolve event. Shared by the initial flow and the
// DissolvePayCenterFailed resume path.
func (o *Orchestrator) completeDissolve(ctx context.Context, account *domain.Account, dissolveTime time.Time, dissolveBlock uint64, pcTxID string) (*domain.Account, error) {
	account.Status = domain.AccountDissolved
	account.Tx.DissolveOnchain = dissolveBlock
	account.Tx.DissolvePCTx = pcTxID
	account.DissolveTime = dissolveTime
	account.RecoverableErr = domain.RecoverableError{}
	account.UpdatedAt = o.now().UTC()
	if err := o.store.PutAccount(ctx, account); err != nil {
		return nil, err
	}
	_ = o.store.RemoveFromRecoverableErrorIndex(ctx, account.PoolID, account.ID)
	o.appendEvent(ctx, account.Owner, domain.EventDissolve, idPayload(account.ID))
	return account, nil
}
