package ledger

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/pixelmint/pixelmint/internal/models"
)

// adminAccountID is fixed so repeated bootstraps on restored stores stay
// recognizable across deployments.
const adminAccountID = "admin_user"

// Bootstrap seeds the built-in admin account and the plan catalog on first
// run. Idempotent: a store with any accounts or any plans is left alone.
func (b *Book) Bootstrap(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.accounts) == 0 {
		admin := models.Account{
			ID:        adminAccountID,
			Email:     b.cfg.AdminEmail,
			Password:  b.cfg.AdminPassword,
			Role:      models.RoleAdmin,
			Credits:   math.MaxInt64,
			CreatedAt: now(),
		}
		b.accounts = append(b.accounts, admin)
		raw, err := marshalJSON(b.accounts)
		if err != nil {
			return err
		}
		if err := b.store.Set(ctx, keyAccounts, raw); err != nil {
			return fmt.Errorf("persist admin account: %w", err)
		}
	}

	if len(b.plans) == 0 && len(b.cfg.SeedPlans) > 0 {
		b.plans = append(b.plans, b.cfg.SeedPlans...)
		raw, err := marshalJSON(b.plans)
		if err != nil {
			return err
		}
		if err := b.store.Set(ctx, keyPlans, raw); err != nil {
			return fmt.Errorf("persist seed plans: %w", err)
		}
	}

	return nil
}

// Authenticate does a linear scan for an exact email and password match.
// Passwords are compared in the clear; hardening is out of scope here.
func (b *Book) Authenticate(ctx context.Context, email, password string) (models.Account, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, a := range b.accounts {
		if a.Email == email && a.Password == password {
			b.SaveSession(ctx, a)
			return a, nil
		}
	}
	return models.Account{}, ErrInvalidCredentials
}

// Register creates a user-role account with the configured starting balance.
// Email uniqueness is case-sensitive, matching the stored format.
func (b *Book) Register(ctx context.Context, email, password string) (models.Account, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, a := range b.accounts {
		if a.Email == email {
			return models.Account{}, ErrDuplicateEmail
		}
	}

	account := models.Account{
		ID:        "user_" + uuid.NewString(),
		Email:     email,
		Password:  password,
		Role:      models.RoleUser,
		Credits:   b.cfg.StartingCredits,
		CreatedAt: now(),
	}
	b.accounts = append(b.accounts, account)
	b.saveCollection(ctx, keyAccounts, b.accounts)
	b.SaveSession(ctx, account)
	return account, nil
}

// AdjustBalance applies a signed credit change, floored at zero. Admin
// balances are treated as unbounded and never decremented. Unknown accounts
// are an error rather than a silent no-op.
func (b *Book) AdjustBalance(ctx context.Context, accountID string, delta int64) (models.Account, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	idx := b.accountIndex(accountID)
	if idx < 0 {
		return models.Account{}, ErrAccountNotFound
	}
	b.applyBalance(idx, delta)
	b.saveCollection(ctx, keyAccounts, b.accounts)
	return b.accounts[idx], nil
}

// applyBalance mutates one account's credits in place. Caller holds the lock.
// The admin balance is a constant: it seeds at MaxInt64 and any delta would
// either decrement it or overflow it, so admin accounts are left untouched.
func (b *Book) applyBalance(idx int, delta int64) {
	account := &b.accounts[idx]
	if account.Role == models.RoleAdmin {
		return
	}
	next := account.Credits + delta
	if next < 0 {
		next = 0
	}
	account.Credits = next
}

func (b *Book) accountIndex(accountID string) int {
	for i := range b.accounts {
		if b.accounts[i].ID == accountID {
			return i
		}
	}
	return -1
}

func (b *Book) AccountByID(accountID string) (models.Account, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	idx := b.accountIndex(accountID)
	if idx < 0 {
		return models.Account{}, ErrAccountNotFound
	}
	return b.accounts[idx], nil
}

// Accounts returns a copy of the collection in creation order.
func (b *Book) Accounts() []models.Account {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]models.Account, len(b.accounts))
	copy(out, b.accounts)
	return out
}
