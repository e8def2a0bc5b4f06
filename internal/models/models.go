package models

import "time"

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

type TransactionStatus string

const (
	StatusPending  TransactionStatus = "pending"
	StatusApproved TransactionStatus = "approved"
	StatusRejected TransactionStatus = "rejected"
)

// Terminal reports whether a transaction in this status can no longer change.
func (s TransactionStatus) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// JSON tags below are the persisted key-value layout; values written by this
// program and by earlier deployments must stay interchangeable.

type Account struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Password  string    `json:"passwordHash"` // stored in the clear, a known weakness of this design
	Role      Role      `json:"role"`
	Credits   int64     `json:"credits"`
	CreatedAt time.Time `json:"createdAt"`
}

type Plan struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Credits     int64  `json:"credits"`
	PriceINR    int64  `json:"priceINR"`
	Description string `json:"description"`
	IsActive    bool   `json:"isActive"`
}

type Transaction struct {
	ID                 string            `json:"id"`
	UserID             string            `json:"userId"`
	PlanID             string            `json:"planId"`
	Status             TransactionStatus `json:"status"`
	UTR                string            `json:"utr"`
	AmountINR          int64             `json:"amountINR"`
	CreatedAt          time.Time         `json:"createdAt"`
	ProcessedAt        *time.Time        `json:"processedAt,omitempty"`
	ProcessedByAdminID string            `json:"processedByAdminId,omitempty"`
}

// ImageMeta is the indexed part of a generated image. The payload lives under
// its own key so the index stays small enough to rewrite on every append.
type ImageMeta struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Prompt    string    `json:"prompt"`
	CreatedAt time.Time `json:"createdAt"`
}

// GeneratedImage joins metadata with its payload for read paths.
type GeneratedImage struct {
	ImageMeta
	Payload string `json:"imageUrl"`
}
