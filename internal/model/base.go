package model

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// Base contains common fields for all models
type Base struct {
	ID        int64     `json:"id" db:"id"`
	PublicID  uuid.UUID `json:"public_id" db:"public_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Touch fills the public id and timestamps of a record about to be inserted.
func (b *Base) Touch(now time.Time) {
	if b.PublicID == uuid.Nil {
		b.PublicID = uuid.New()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now
}

// Pagination represents common pagination parameters
type Pagination struct {
	Page     int `json:"page" form:"page"`
	PageSize int `json:"page_size" form:"page_size"`
}

// Limit returns the page size, capped at 200 and defaulting to 50.
func (p Pagination) Limit() int {
	switch {
	case p.PageSize <= 0:
		return 50
	case p.PageSize > 200:
		return 200
	}
	return p.PageSize
}

func (p Pagination) Offset() int {
	if p.Page <= 1 {
		return 0
	}
	return (p.Page - 1) * p.Limit()
}

// JSONMap represents a generic JSON object
type JSONMap map[string]interface{}

// ToCents converts a two-decimal amount into integer cents.
func ToCents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// FromCents converts integer cents back into a two-decimal amount.
func FromCents(cents int64) float64 {
	return float64(cents) / 100
}

// Today truncates t to midnight UTC.
func Today(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func StringPtr(s string) *string { return &s }

func IntPtr(i int) *int { return &i }

func Float64Ptr(f float64) *float64 { return &f }

func Int64Ptr(i int64) *int64 { return &i }
