package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"mail-chain-analyzer/internal/models"
)

// ErrNotFound is returned when a record does not exist
var ErrNotFound = errors.New("record not found")

// Filter narrows queries. Empty fields are not applied.
type Filter struct {
	Subject string
	ESP     string
}

type Repository struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create persists one record; CreatedAt is assigned on insert
func (r *Repository) Create(ctx context.Context, email *models.Email) error {
	if err := r.db.WithContext(ctx).Create(email).Error; err != nil {
		return fmt.Errorf("failed to create email: %w", err)
	}
	return nil
}

// Find returns a page of records, newest first
func (r *Repository) Find(ctx context.Context, filter Filter, skip, limit int) ([]models.Email, error) {
	emails := []models.Email{}
	result := r.scoped(ctx, filter).
		Order("created_at DESC").
		Order("id DESC").
		Offset(skip).
		Limit(limit).
		Find(&emails)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to find emails: %w", result.Error)
	}
	return emails, nil
}

// Count returns the number of records matching filter
func (r *Repository) Count(ctx context.Context, filter Filter) (int64, error) {
	var total int64
	if err := r.scoped(ctx, filter).Model(&models.Email{}).Count(&total).Error; err != nil {
		return 0, fmt.Errorf("failed to count emails: %w", err)
	}
	return total, nil
}

// FindByID returns a single record or ErrNotFound
func (r *Repository) FindByID(ctx context.Context, id uint) (*models.Email, error) {
	var email models.Email
	result := r.db.WithContext(ctx).First(&email, id)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if result.Error != nil {
		return nil, fmt.Errorf("database error: %w", result.Error)
	}
	return &email, nil
}

// CountByESP groups matching records by provider, largest group first
func (r *Repository) CountByESP(ctx context.Context, filter Filter) ([]models.ESPCount, error) {
	counts := []models.ESPCount{}
	result := r.scoped(ctx, filter).
		Model(&models.Email{}).
		Select("esp, COUNT(*) AS count").
		Group("esp").
		Order("count DESC").
		Order("esp ASC").
		Scan(&counts)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to count emails by esp: %w", result.Error)
	}
	return counts, nil
}

// Ping checks the database connection
func (r *Repository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying SQL DB: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

func (r *Repository) scoped(ctx context.Context, filter Filter) *gorm.DB {
	q := r.db.WithContext(ctx)
	if filter.Subject != "" {
		q = q.Where("subject = ?", filter.Subject)
	}
	if filter.ESP != "" {
		q = q.Where("esp = ?", filter.ESP)
	}
	return q
}
