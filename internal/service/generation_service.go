package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pixelmint/pixelmint/internal/config"
	"github.com/pixelmint/pixelmint/internal/generation"
	"github.com/pixelmint/pixelmint/internal/ledger"
	"github.com/pixelmint/pixelmint/internal/models"
)

// ErrProvider marks failures coming back from the generation collaborator so
// the transport layer can distinguish them from ledger errors.
var ErrProvider = errors.New("generation provider failure")

// Generator is the seam to the external image API.
type Generator interface {
	Generate(ctx context.Context, prompt string, count int) ([]generation.Image, error)
}

type GenerationService struct {
	cfg  config.Config
	log  *slog.Logger
	book *ledger.Book
	gen  Generator
}

func NewGenerationService(cfg config.Config, log *slog.Logger, book *ledger.Book, gen Generator) *GenerationService {
	return &GenerationService{
		cfg:  cfg,
		log:  log,
		book: book,
		gen:  gen,
	}
}

// Generate validates the request, checks the balance before spending the
// external call, invokes the provider, then debits and records the batch.
// Admin accounts are never charged.
func (s *GenerationService) Generate(ctx context.Context, account models.Account, prompt string, count int) ([]models.GeneratedImage, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, fmt.Errorf("prompt cannot be empty")
	}
	if count < 1 {
		count = 1
	}
	if count > s.cfg.MaxImagesPerRequest {
		return nil, fmt.Errorf("at most %d images per request", s.cfg.MaxImagesPerRequest)
	}

	cost := s.cfg.GenerationCost * int64(count)
	if account.Role != models.RoleAdmin && account.Credits < cost {
		return nil, ledger.ErrInsufficientCredits
	}

	results, err := s.gen.Generate(ctx, prompt, count)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("%w: provider returned no images", ErrProvider)
	}

	// Charge for what actually arrived, not for what was asked.
	cost = s.cfg.GenerationCost * int64(len(results))

	batch := make([]ledger.GenerationEntry, 0, len(results))
	for _, img := range results {
		batch = append(batch, ledger.GenerationEntry{
			Prompt:  prompt,
			Payload: img.Payload,
		})
	}

	images, err := s.book.RecordGeneration(ctx, account.ID, cost, batch)
	if err != nil {
		return nil, fmt.Errorf("record generation: %w", err)
	}

	s.log.Info("generation recorded",
		"account", account.ID, "count", len(images), "cost", cost)
	return images, nil
}
