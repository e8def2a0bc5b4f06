// Package ledger keeps the account, plan, transaction and image collections
// consistent between memory and the persistent store. All mutating
// operations run under one mutex; each rewrites the collections it touched
// before returning, accounts first, so a crash can lose a whole mutation but
// never land half of one.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pixelmint/pixelmint/internal/models"
	"github.com/pixelmint/pixelmint/internal/storage"
	"github.com/pixelmint/pixelmint/internal/store"
)

// Persisted key layout. Image payloads live under image_data_<id> via the
// payload store; everything else is a whole-collection JSON value.
const (
	keyAccounts     = "users"
	keyPlans        = "plans"
	keyTransactions = "transactions"
	keySession      = "session"
	keyImageIndex   = "image_meta"
)

// Config carries the fixed constants the ledger seeds and charges with.
type Config struct {
	AdminEmail      string
	AdminPassword   string
	StartingCredits int64
	SeedPlans       []models.Plan
}

// Book is the single owner of the in-memory collections for the lifetime of
// the process.
type Book struct {
	cfg      Config
	store    store.Store
	payloads storage.PayloadStore
	log      *slog.Logger

	mu           sync.Mutex
	closed       bool
	accounts     []models.Account
	plans        []models.Plan
	transactions []models.Transaction
	imageMeta    []models.ImageMeta

	writes  chan payloadJob
	writeWG sync.WaitGroup
	done    chan struct{}
}

func New(s store.Store, payloads storage.PayloadStore, log *slog.Logger, cfg Config) *Book {
	b := &Book{
		cfg:      cfg,
		store:    s,
		payloads: payloads,
		log:      log,
		writes:   make(chan payloadJob, 16),
		done:     make(chan struct{}),
	}
	go b.payloadWriter()
	return b
}

// Load reads every collection from the store. Absent keys mean empty
// collections; malformed values are an error because continuing would
// overwrite data on the next save.
func (b *Book) Load(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.loadCollection(ctx, keyAccounts, &b.accounts); err != nil {
		return err
	}
	if err := b.loadCollection(ctx, keyPlans, &b.plans); err != nil {
		return err
	}
	if err := b.loadCollection(ctx, keyTransactions, &b.transactions); err != nil {
		return err
	}
	if err := b.loadCollection(ctx, keyImageIndex, &b.imageMeta); err != nil {
		return err
	}
	return nil
}

func (b *Book) loadCollection(ctx context.Context, key string, dst any) error {
	raw, ok, err := b.store.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("load %s: %w", key, err)
	}
	if !ok || raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// saveCollection serializes and writes one collection. Failures are logged
// and swallowed: a persistence hiccup must not abort the operation that
// already succeeded in memory.
func (b *Book) saveCollection(ctx context.Context, key string, src any) {
	raw, err := json.Marshal(src)
	if err != nil {
		b.log.Error("encode collection", "key", key, "err", err)
		return
	}
	if err := b.store.Set(ctx, key, string(raw)); err != nil {
		b.log.Error("persist collection", "key", key, "err", err)
	}
}

// SaveSession mirrors the active account under the session key.
func (b *Book) SaveSession(ctx context.Context, account models.Account) {
	raw, err := json.Marshal(account)
	if err != nil {
		b.log.Error("encode session", "err", err)
		return
	}
	if err := b.store.Set(ctx, keySession, string(raw)); err != nil {
		b.log.Error("persist session", "err", err)
	}
}

func (b *Book) ClearSession(ctx context.Context) {
	if err := b.store.Remove(ctx, keySession); err != nil {
		b.log.Error("clear session", "err", err)
	}
}

// LoadSession resolves the persisted session against the live account
// collection. A stale session (deleted account) reports not authenticated.
func (b *Book) LoadSession(ctx context.Context) (models.Account, error) {
	raw, ok, err := b.store.Get(ctx, keySession)
	if err != nil {
		return models.Account{}, fmt.Errorf("load session: %w", err)
	}
	if !ok || raw == "" {
		return models.Account{}, ErrNotAuthenticated
	}
	var stored models.Account
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return models.Account{}, fmt.Errorf("decode session: %w", err)
	}
	account, err := b.AccountByID(stored.ID)
	if err != nil {
		return models.Account{}, ErrNotAuthenticated
	}
	return account, nil
}

// Flush blocks until every queued payload write has been attempted.
func (b *Book) Flush() {
	b.writeWG.Wait()
}

// Close drains the payload queue and stops the writer. The closed flag is
// flipped under the book mutex, the same lock RecordGeneration enqueues
// under, so no job can be added to the queue after the drain begins; late
// recordings fall back to writing synchronously.
func (b *Book) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()

	b.writeWG.Wait()
	close(b.writes)
	<-b.done
}

func marshalJSON(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode: %w", err)
	}
	return string(raw), nil
}

func now() time.Time {
	return time.Now().UTC()
}
