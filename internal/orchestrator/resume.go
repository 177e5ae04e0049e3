package orchestrator

import (
	"context"
	"strconv"

	"stakingengine/internal/domain"
	"stakingengine/internal/guard"
)

// Resume dispatches accountID to the resume path named by its persisted
// recoverable_error, implementing §4.6. It is exported so the recovery
// sweep (component H) can drive it directly; EarlyUnstake and Dissolve also
// call into it when a user retries a subject still pinned to error
// recovery.
func (o *Orchestrator) Resume(ctx context.Context, accountID uint64) (*domain.Account, error) {
	account, err := o.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, ErrNotFound
	}
	if !account.RecoverableErr.IsSet() {
		return account, nil
	}
	return o.resume(ctx, account)
}

func (o *Orchestrator) resume(ctx context.Context, account *domain.Account) (*domain.Account, error) {
	switch account.RecoverableErr.Kind {
	case domain.ErrKindStakeTransferToPoolFailed:
		return o.resumeStakeTransferToPoolFailed(ctx, account)
	case domain.ErrKindDissolvePayCenterFailed:
		return o.resumeDissolvePayCenterFailed(ctx, account)
	case domain.ErrKindEarlyUnstakePenaltyOnChainFailed:
		return o.resumeEarlyUnstakePenaltyOnChainFailed(ctx, account)
	case domain.ErrKindEarlyUnstakePenaltyPayCenterFailed:
		return o.resumeEarlyUnstakePenaltyPayCenterFailed(ctx, account)
	default:
		return account, nil
	}
}

func (o *Orchestrator) resumeStakeTransferToPoolFailed(ctx context.Context, account *domain.Account) (*domain.Account, error) {
	handle, err := o.guard.Acquire(guard.Key("recovery_stake", strconv.FormatUint(account.ID, 10)))
	if err != nil {
		return nil, err
	}
	defer handle.Release()

	pool, err := o.store.GetPool(ctx, account.PoolID)
	if err != nil {
		return nil, err
	}
	existingLive, err := o.countLiveAccounts(ctx, account.Owner, account.PoolID, account.ID)
	if err != nil {
		return nil, err
	}

	blockIndex, err := o.attemptStakeToPool(ctx, account.ID, account.PoolID, account.StakedAmount)
	if err != nil {
		return nil, ErrSystem
	}
	if err := o.completeStake(ctx, account, pool, uint64(blockIndex), existingLive); err != nil {
		return nil, err
	}
	return account, nil
}

func (o *Orchestrator) resumeDissolvePayCenterFailed(ctx context.Context, account *domain.Account) (*domain.Account, error) {
	handle, err := o.guard.Acquire(guard.Key("recovery_dissolve", strconv.FormatUint(account.ID, 10)))
	if err != nil {
		return nil, err
	}
	defer handle.Release()

	dissolveBlock := account.RecoverableErr.DissolveTx
	occurredAt := account.RecoverableErr.OccurredAt
	pcTxID, err := o.paycenter.Dissolve(ctx, account.Owner, account.ReleasedAmount, dissolveBlock, account.Address, account.ID)
	if err != nil {
		return nil, ErrSystem
	}
	return o.completeDissolve(ctx, account, occurredAt, dissolveBlock, pcTxID)
}

func (o *Orchestrator) resumeEarlyUnstakePenaltyOnChainFailed(ctx context.Context, account *domain.Account) (*domain.Account, error) {
	handle, err := o.guard.Acquire(guard.Key("recovery_unstake_penalty", strconv.FormatUint(account.ID, 10)))
	if err != nil {
		return nil, err
	}
	defer handle.Release()

	penalty := account.RecoverableErr.Penalty
	occurredAt := account.RecoverableErr.OccurredAt
	releaseBlock := account.RecoverableErr.ReleaseTx

	penaltyBlock, err := o.attemptPenaltyOnchainTransfer(ctx, account.PoolID, penalty)
	if err != nil {
		return nil, ErrSystem
	}

	pcTxID, err := o.attemptPenaltyPayCenter(ctx, account, penalty, uint64(penaltyBlock))
	if err != nil {
		// Escalate: the on-chain penalty transfer is now done, so a second
		// resume attempt must not re-issue it.
		account.RecoverableErr = domain.RecoverableError{
			Kind:             domain.ErrKindEarlyUnstakePenaltyPayCenterFailed,
			ReleaseTx:        releaseBlock,
			PenaltyOnchainTx: uint64(penaltyBlock),
			OccurredAt:       occurredAt,
			Penalty:          penalty,
		}
		if err := o.store.PutAccount(ctx, account); err != nil {
			return nil, err
		}
		return nil, ErrSystem
	}
	account.Tx.PenaltyOnchain = uint64(penaltyBlock)
	account.Tx.PenaltyPCTx = pcTxID
	account.Tx.ReleaseOnchain = releaseBlock
	released := account.StakedAmount - penalty
	if released < 0 {
		released = 0
	}
	return o.completeUnstake(ctx, account, occurredAt, penalty, released)
}

func (o *Orchestrator) resumeEarlyUnstakePenaltyPayCenterFailed(ctx context.Context, account *domain.Account) (*domain.Account, error) {
	handle, err := o.guard.Acquire(guard.Key("recovery_unstake_penalty", strconv.FormatUint(account.ID, 10)))
	if err != nil {
		return nil, err
	}
	defer handle.Release()

	penalty := account.RecoverableErr.Penalty
	occurredAt := account.RecoverableErr.OccurredAt
	releaseBlock := account.RecoverableErr.ReleaseTx
	penaltyBlock := account.RecoverableErr.PenaltyOnchainTx

	pcTxID, err := o.attemptPenaltyPayCenter(ctx, account, penalty, penaltyBlock)
	if err != nil {
		return nil, ErrSystem
	}
	account.Tx.PenaltyOnchain = penaltyBlock
	account.Tx.PenaltyPCTx = pcTxID
	account.Tx.ReleaseOnchain = releaseBlock
	released := account.StakedAmount - penalty
	if released < 0 {
		released = 0
	}
	return o.completeUnstake(ctx, account, occurredAt, penalty, released)
}
