package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/pixelmint/pixelmint/internal/models"
)

// GenerationEntry is one produced image to be recorded.
type GenerationEntry struct {
	Prompt  string
	Payload string
}

type payloadJob struct {
	payloads map[string]string
	index    []models.ImageMeta
}

// RecordGeneration debits the account and appends one image record per
// entry. The in-memory state and the collection rewrite are synchronous so
// the caller sees the result immediately; the payload writes and index
// rewrite are queued to keep large values off the request path. Queued
// writes are acknowledged by the writer goroutine and failures are logged,
// not dropped silently.
func (b *Book) RecordGeneration(ctx context.Context, accountID string, cost int64, batch []GenerationEntry) ([]models.GeneratedImage, error) {
	b.mu.Lock()

	idx := b.accountIndex(accountID)
	if idx < 0 {
		b.mu.Unlock()
		return nil, ErrAccountNotFound
	}

	b.applyBalance(idx, -cost)
	b.saveCollection(ctx, keyAccounts, b.accounts)

	createdAt := now()
	images := make([]models.GeneratedImage, 0, len(batch))
	payloads := make(map[string]string, len(batch))
	for _, entry := range batch {
		meta := models.ImageMeta{
			ID:        "img_" + uuid.NewString(),
			UserID:    accountID,
			Prompt:    entry.Prompt,
			CreatedAt: createdAt,
		}
		b.imageMeta = append(b.imageMeta, meta)
		payloads[meta.ID] = entry.Payload
		images = append(images, models.GeneratedImage{ImageMeta: meta, Payload: entry.Payload})
	}

	index := make([]models.ImageMeta, len(b.imageMeta))
	copy(index, b.imageMeta)
	job := payloadJob{payloads: payloads, index: index}
	closed := b.closed
	if !closed {
		b.writeWG.Add(1)
	}
	b.mu.Unlock()

	if closed {
		// Shutdown has begun and the queue is draining; write in the
		// caller instead of racing the close.
		b.writeJob(job)
	} else {
		b.writes <- job
	}

	return images, nil
}

// payloadWriter is the single consumer of queued image writes. Jobs carry an
// index snapshot taken at enqueue time; the queue preserves order, so the
// last snapshot written is always the complete one.
func (b *Book) payloadWriter() {
	defer close(b.done)
	for job := range b.writes {
		b.writeJob(job)
		b.writeWG.Done()
	}
}

func (b *Book) writeJob(job payloadJob) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	for id, payload := range job.payloads {
		if err := b.payloads.Save(ctx, id, payload); err != nil {
			b.log.Error("image payload not durable", "image", id, "err", err)
		}
	}
	raw, err := marshalJSON(job.index)
	if err != nil {
		b.log.Error("encode image index", "err", err)
	} else if err := b.store.Set(ctx, keyImageIndex, raw); err != nil {
		b.log.Error("persist image index", "err", err)
	}
}

// ImagesFor returns one account's images, most recent first. Payloads that
// cannot be loaded come back empty rather than failing the whole listing.
func (b *Book) ImagesFor(ctx context.Context, accountID string) []models.GeneratedImage {
	b.mu.Lock()
	var metas []models.ImageMeta
	for i := len(b.imageMeta) - 1; i >= 0; i-- {
		if b.imageMeta[i].UserID == accountID {
			metas = append(metas, b.imageMeta[i])
		}
	}
	b.mu.Unlock()

	images := make([]models.GeneratedImage, 0, len(metas))
	for _, meta := range metas {
		payload, err := b.payloads.Load(ctx, meta.ID)
		if err != nil {
			b.log.Error("load image payload", "image", meta.ID, "err", err)
			payload = ""
		}
		images = append(images, models.GeneratedImage{ImageMeta: meta, Payload: payload})
	}
	return images
}

// ImageByID loads a single image with its payload.
func (b *Book) ImageByID(ctx context.Context, imageID string) (models.GeneratedImage, error) {
	b.mu.Lock()
	var meta *models.ImageMeta
	for i := range b.imageMeta {
		if b.imageMeta[i].ID == imageID {
			m := b.imageMeta[i]
			meta = &m
			break
		}
	}
	b.mu.Unlock()

	if meta == nil {
		return models.GeneratedImage{}, ErrImageNotFound
	}
	payload, err := b.payloads.Load(ctx, meta.ID)
	if err != nil {
		b.log.Error("load image payload", "image", meta.ID, "err", err)
		payload = ""
	}
	return models.GeneratedImage{ImageMeta: *meta, Payload: payload}, nil
}
