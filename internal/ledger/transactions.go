package ledger

import (
	"context"

	"github.com/google/uuid"

	"github.com/pixelmint/pixelmint/internal/models"
)

// OpenTransaction records a purchase request in pending state. The UTR is a
// user-asserted bank transfer reference and is stored unvalidated.
func (b *Book) OpenTransaction(ctx context.Context, accountID, planID, utr string) (models.Transaction, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if accountID == "" || b.accountIndex(accountID) < 0 {
		return models.Transaction{}, ErrNotAuthenticated
	}
	plan, ok := b.planByIDLocked(planID)
	if !ok || !plan.IsActive {
		return models.Transaction{}, ErrPlanNotFound
	}

	txn := models.Transaction{
		ID:        "txn_" + uuid.NewString(),
		UserID:    accountID,
		PlanID:    plan.ID,
		Status:    models.StatusPending,
		UTR:       utr,
		AmountINR: plan.PriceINR,
		CreatedAt: now(),
	}
	b.transactions = append(b.transactions, txn)
	b.saveCollection(ctx, keyTransactions, b.transactions)
	return txn, nil
}

// DecideTransaction settles a pending transaction exactly once. A decision on
// an already-decided transaction is a no-op so duplicate admin clicks are
// harmless. Approval credits the owning account by the plan grant; if the
// plan or account is no longer resolvable the decision still lands and the
// gap is logged as a data-integrity concern.
func (b *Book) DecideTransaction(ctx context.Context, adminID, txnID string, decision models.TransactionStatus) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	adminIdx := b.accountIndex(adminID)
	if adminIdx < 0 || b.accounts[adminIdx].Role != models.RoleAdmin {
		return ErrUnauthorized
	}
	if decision != models.StatusApproved && decision != models.StatusRejected {
		return ErrInvalidDecision
	}

	var txn *models.Transaction
	for i := range b.transactions {
		if b.transactions[i].ID == txnID {
			txn = &b.transactions[i]
			break
		}
	}
	if txn == nil {
		return ErrTransactionNotFound
	}
	if txn.Status.Terminal() {
		return nil
	}

	if decision == models.StatusApproved {
		plan, planOK := b.planByIDLocked(txn.PlanID)
		ownerIdx := b.accountIndex(txn.UserID)
		if !planOK || ownerIdx < 0 {
			b.log.Error("approved transaction references missing data",
				"txn", txn.ID, "plan", txn.PlanID, "account", txn.UserID)
		} else {
			b.applyBalance(ownerIdx, plan.Credits)
		}
	}

	processed := now()
	txn.Status = decision
	txn.ProcessedAt = &processed
	txn.ProcessedByAdminID = adminID

	b.saveCollection(ctx, keyAccounts, b.accounts)
	b.saveCollection(ctx, keyTransactions, b.transactions)
	return nil
}

// TransactionsFor returns one account's transactions in creation order.
func (b *Book) TransactionsFor(accountID string) []models.Transaction {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []models.Transaction
	for _, t := range b.transactions {
		if t.UserID == accountID {
			out = append(out, t)
		}
	}
	return out
}

// Transactions returns every transaction in creation order.
func (b *Book) Transactions() []models.Transaction {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]models.Transaction, len(b.transactions))
	copy(out, b.transactions)
	return out
}

// PendingTransactions returns the admin review queue in creation order.
func (b *Book) PendingTransactions() []models.Transaction {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []models.Transaction
	for _, t := range b.transactions {
		if t.Status == models.StatusPending {
			out = append(out, t)
		}
	}
	return out
}
