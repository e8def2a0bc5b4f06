// Package storage persists image payloads keyed by image id, apart from the
// metadata index. Payloads are base64 data URLs and can be large, which is
// the reason they never travel through the collection keys.
package storage

import (
	"context"
	"fmt"

	"github.com/pixelmint/pixelmint/internal/store"
)

type PayloadStore interface {
	Save(ctx context.Context, imageID, payload string) error
	Load(ctx context.Context, imageID string) (string, error)
}

const payloadKeyPrefix = "image_data_"

// KV keeps payloads in the same key-value store as the ledgers, one key per
// image. This is the layout the original deployment wrote.
type KV struct {
	store store.Store
}

func NewKV(s store.Store) *KV {
	return &KV{store: s}
}

func (k *KV) Save(ctx context.Context, imageID, payload string) error {
	if err := k.store.Set(ctx, payloadKeyPrefix+imageID, payload); err != nil {
		return fmt.Errorf("save payload %s: %w", imageID, err)
	}
	return nil
}

func (k *KV) Load(ctx context.Context, imageID string) (string, error) {
	payload, ok, err := k.store.Get(ctx, payloadKeyPrefix+imageID)
	if err != nil {
		return "", fmt.Errorf("load payload %s: %w", imageID, err)
	}
	if !ok {
		return "", nil
	}
	return payload, nil
}
