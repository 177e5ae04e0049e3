// Package orchestrator implements the staking lifecycle orchestrator
// (component G) and the recovery resume logic it shares with component H:
// stake, early_unstake, maturity_unstake, dissolve, and the idempotent
// resume of each flow's recoverable-error resume points. A generic flow
// acquires a scoped, process-wide entry guard keyed by its subject before
// touching any state, and releases it on every exit path.
package orchestrator

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"stakingengine/internal/address"
	"stakingengine/internal/badge"
	"stakingengine/internal/domain"
	"stakingengine/internal/guard"
	"stakingengine/internal/ledger"
	"stakingengine/internal/paycenter"
	"stakingengine/internal/store"
)

// Orchestrator coordinates the stake account lifecycle, pool capacity
// accounting, and the money-movement protocol between pool, account,
// ledger, and payment center.
type Orchestrator struct {
	store     store.Store
	guard     *guard.Set
	ledger    ledger.Gateway
	paycenter paycenter.Gateway
	badges    *badge.Queue

	canister        []byte
	payCenterAccount string

	now func() time.Time
}

// New constructs an Orchestrator. canister is this engine's own on-chain
// identity, used to derive pool and account sub-accounts; payCenterAccount
// is the external payment center's on-chain account identifier, the
// destination of every pay-center-memo ledger transfer.
func New(s store.Store, guardSet *guard.Set, ledgerGateway ledger.Gateway, payCenterGateway paycenter.Gateway, badges *badge.Queue, canister []byte, payCenterAccount string) *Orchestrator {
	return &Orchestrator{
		store:            s,
		guard:            guardSet,
		ledger:           ledgerGateway,
		paycenter:        payCenterGateway,
		badges:           badges,
		canister:         canister,
		payCenterAccount: payCenterAccount,
		now:              time.Now,
	}
}

func (o *Orchestrator) accountSubaccountHex(accountID uint64) string {
	sub := address.DeriveSubAccount(address.AccountKind(accountID))
	return hex.EncodeToString(sub[:])
}

func (o *Orchestrator) poolSubaccountHex(poolID uint64) string {
	sub := address.DeriveSubAccount(address.PoolKind(poolID))
	return hex.EncodeToString(sub[:])
}

func (o *Orchestrator) poolAccountIdentifier(poolID uint64) string {
	return address.PoolAccount(o.canister, poolID).String()
}

func (o *Orchestrator) stakingAccountIdentifier(accountID uint64) string {
	return address.StakingAccount(o.canister, accountID).String()
}

func (o *Orchestrator) appendEvent(ctx context.Context, principal string, eventType domain.EventType, payload map[string]string) {
	_ = o.store.AppendEvent(ctx, &domain.Event{Principal: principal, Type: eventType, Payload: payload, EventTime: o.now().UTC()})
}

func (o *Orchestrator) appendPoolLedger(ctx context.Context, poolID uint64, signedAmount int64, kind domain.LedgerEntryKind, accountID uint64, blockIndex uint64) error {
	return o.store.AppendPoolLedgerEntry(ctx, &domain.PoolLedgerEntry{
		PoolID:       poolID,
		SignedAmount: signedAmount,
		Kind:         kind,
		AccountID:    accountID,
		BlockIndex:   blockIndex,
		CreatedAt:    o.now().UTC(),
	})
}

func idPayload(accountID uint64) map[string]string {
	return map[string]string{"accountId": strconv.FormatUint(accountID, 10)}
}

// countLiveAccounts returns the number of InStake accounts owned by owner in
// poolID, excluding excludeAccountID (used to decide the first/last live
// account at stake/unstake boundaries).
func (o *Orchestrator) countLiveAccounts(ctx context.Context, owner string, poolID, excludeAccountID uint64) (int, error) {
	accounts, err := o.store.ListAccountsByUser(ctx, owner)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, a := range accounts {
		if a.ID == excludeAccountID || a.PoolID != poolID {
			continue
		}
		if a.Status == domain.AccountInStake {
			count++
		}
	}
	return count, nil
}

// Stake implements §4.5.1. It creates a new staking account, reserves pool
// capacity, and drives the two sub-calls (payment center then ledger) that
// move funds into the pool. A payment-center failure rolls back the
// reservation and deletes the account; a ledger failure pins a
// recoverable_error; full success commits InStake.
func (o *Orchestrator) Stake(ctx context.Context, user string, poolID uint64, amount, days int64) (*domain.Account, error) {
	if user == "" {
		return nil, ErrAnonymousCaller
	}
	handle, err := o.guard.Acquire(guard.Key("stake", user))
	if err != nil {
		return nil, err
	}
	defer handle.Release()

	pool, err := o.store.GetPool(ctx, poolID)
	if err != nil {
		return nil, ErrNotFound
	}
	if days < pool.Term.MinTermDays || days > pool.Term.MaxTermDays {
		return nil, fmt.Errorf("%w: term %d days outside [%d,%d]", ErrValidation, days, pool.Term.MinTermDays, pool.Term.MaxTermDays)
	}
	if amount < pool.Limit.MinPerUser || amount > pool.Limit.MaxPerUser {
		return nil, fmt.Errorf("%w: amount %d outside [%d,%d]", ErrValidation, amount, pool.Limit.MinPerUser, pool.Limit.MaxPerUser)
	}
	if pool.Limit.Step > 0 && (amount-pool.Limit.MinPerUser)%pool.Limit.Step != 0 {
		return nil, fmt.Errorf("%w: amount %d does not align to step %d", ErrValidation, amount, pool.Limit.Step)
	}
	rewardConfig, ok := pool.RewardConfigFor(days)
	if !ok {
		return nil, fmt.Errorf("%w: no reward schedule covers %d days", ErrValidation, days)
	}

	existing, err := o.countLiveAccounts(ctx, user, poolID, 0)
	if err != nil {
		return nil, err
	}
	userTotal, err := o.userStakedTotal(ctx, user, poolID)
	if err != nil {
		return nil, err
	}
	if userTotal+amount > pool.Limit.MaxPerUser {
		return nil, fmt.Errorf("%w: user total %d plus %d exceeds max_per_user %d", ErrValidation, userTotal, amount, pool.Limit.MaxPerUser)
	}

	if !pool.HasCapacity(amount) {
		return nil, ErrCapacityInsufficient
	}
	pool.LockedSize += amount
	if err := o.store.PutPool(ctx, pool); err != nil {
		return nil, err
	}

	accountID, err := o.store.NextAccountID(ctx)
	if err != nil {
		return nil, err
	}
	account := &domain.Account{
		ID:                  accountID,
		PoolID:              poolID,
		Owner:               user,
		Address:             o.stakingAccountIdentifier(accountID),
		StakedAmount:        amount,
		Status:              domain.AccountCreated,
		RewardConfig:        rewardConfig,
		TotalStakingDays:    days,
		MinEarlyUnstakeDays: pool.Term.MinEarlyUnstakeDays,
		CreatedAt:           o.now().UTC(),
		UpdatedAt:           o.now().UTC(),
	}
	if err := o.store.PutAccount(ctx, account); err != nil {
		return nil, err
	}
	o.appendEvent(ctx, user, domain.EventCreateStakingAccount, idPayload(accountID))

	o.appendEvent(ctx, user, domain.EventStakePayCenterTransferStart, idPayload(accountID))
	pcResult, err := o.paycenter.Stake(ctx, user, amount, account.Address, poolID, accountID)
	if err != nil {
		// Pre-commit failure: no money has moved. Fully roll back the
		// reservation and the just-created account.
		pool.LockedSize -= amount
		_ = o.store.PutPool(ctx, pool)
		_ = o.store.DeleteAccount(ctx, accountID)
		o.appendEvent(ctx, user, domain.EventStakePayCenterTransferErr, idPayload(accountID))
		return nil, ErrSystem
	}
	account.Tx.StakePCOnchainTx = pcResult.OnchainTxID
	account.Tx.StakePCTx = pcResult.PCTxID
	o.appendEvent(ctx, user, domain.EventStakePayCenterTransferOk, idPayload(accountID))

	o.appendEvent(ctx, user, domain.EventStakeTransferStart, idPayload(accountID))
	blockIndex, err := o.attemptStakeToPool(ctx, accountID, poolID, amount)
	if err != nil {
		account.RecoverableErr = domain.RecoverableError{
			Kind:             domain.ErrKindStakeTransferToPoolFailed,
			StakePCOnchainTx: pcResult.OnchainTxID,
			StakePCTx:        pcResult.PCTxID,
			OccurredAt:       o.now().UTC(),
		}
		if err := o.store.PutAccount(ctx, account); err != nil {
			return nil, err
		}
		_ = o.store.AddToRecoverableErrorIndex(ctx, poolID, accountID)
		o.appendEvent(ctx, user, domain.EventStakeTransferErr, idPayload(accountID))
		return nil, ErrSystem
	}

	if err := o.completeStake(ctx, account, pool, uint64(blockIndex), existing); err != nil {
		return nil, err
	}
	return account, nil
}

// userStakedTotal sums staked_amount across a user's live (Created or
// InStake) accounts in a pool, used for the max_per_user validation.
func (o *Orchestrator) userStakedTotal(ctx context.Context, owner string, poolID uint64) (int64, error) {
	accounts, err := o.store.ListAccountsByUser(ctx, owner)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, a := range accounts {
		if a.PoolID != poolID {
			continue
		}
		if a.Status == domain.AccountCreated || a.Status == domain.AccountInStake {
			total += a.StakedAmount
		}
	}
	return total, nil
}

// attemptStakeToPool re-attempts only the account→pool ledger transfer. It
// is safe to call repeatedly: the ledger gateway never retries internally,
// and the caller (Stake, or the recovery resume path) is the one deciding
// whether to re-attempt.
func (o *Orchestrator) attemptStakeToPool(ctx context.Context, accountID, poolID uint64, amount int64) (ledger.BlockIndex, error) {
	return o.ledger.Transfer(ctx, ledger.TransferRequest{
		FromSubAccount: o.accountSubaccountHex(accountID),
		ToAccount:      o.poolAccountIdentifier(poolID),
		Amount:         amount + 2*ledger.FeeUnit,
		Memo:           ledger.MemoStake,
	})
}

// completeStake commits steps 8-11 of §4.5.1: the Created→InStake
// transition, the pool's staked_amount/locked_size/staker_count update, the
// async badge grant, the Stake event, and the two pool-ledger records. It is
// shared between the initial flow and the StakeTransferToPoolFailed resume
// path, so recovery never re-derives this logic.
func (o *Orchestrator) completeStake(ctx context.Context, account *domain.Account, pool *domain.Pool, blockIndex uint64, existingLiveAccounts int) error {
	now := o.now().UTC()
	account.Status = domain.AccountInStake
	account.Tx.StakeToPoolOnchain = blockIndex
	account.StakeTime = now
	account.StakeDeadline = now.AddDate(0, 0, int(account.TotalStakingDays))
	account.CanEarlyUnstakeTime = now.AddDate(0, 0, int(account.MinEarlyUnstakeDays))
	account.RecoverableErr = domain.RecoverableError{}
	account.UpdatedAt = now
	if err := o.store.PutAccount(ctx, account); err != nil {
		return err
	}
	if err := o.store.AddToDeadlineIndex(ctx, domain.YMD(account.StakeDeadline), account.ID); err != nil {
		return err
	}
	_ = o.store.RemoveFromRecoverableErrorIndex(ctx, pool.ID, account.ID)

	pool.StakedAmount += account.StakedAmount
	pool.LockedSize -= account.StakedAmount
	grantBadge := existingLiveAccounts == 0
	if grantBadge {
		pool.StakerCount++
	}
	if err := o.store.PutPool(ctx, pool); err != nil {
		return err
	}
	if grantBadge && o.badges != nil {
		o.badges.Grant(account.Owner, "staker", map[string]string{"poolId": strconv.FormatUint(pool.ID, 10)})
	}

	o.appendEvent(ctx, account.Owner, domain.EventStake, idPayload(account.ID))

	if err := o.appendPoolLedger(ctx, pool.ID, account.StakedAmount, domain.LedgerStaking, account.ID, blockIndex); err != nil {
		return err
	}
	return o.appendPoolLedger(ctx, pool.ID, 20_000, domain.LedgerPrepaidFee, account.ID, blockIndex)
}
