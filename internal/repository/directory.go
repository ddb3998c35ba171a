package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"medicare-scheduler/internal/apperr"
	"medicare-scheduler/internal/models"
)

// Directory reads users and clinics. Both are managed outside this service.
type Directory struct{ db *gorm.DB }

func NewDirectory(db *gorm.DB) *Directory {
	return &Directory{db: db}
}

// User returns the user with id.
func (d *Directory) User(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	err := d.db.WithContext(ctx).First(&u, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("user %s not found", id)
	}
	if err != nil {
		return nil, apperr.Store(err, "load user")
	}
	return &u, nil
}

// Clinic returns the clinic with id.
func (d *Directory) Clinic(ctx context.Context, id string) (*models.Clinic, error) {
	var c models.Clinic
	err := d.db.WithContext(ctx).First(&c, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("clinic %s not found", id)
	}
	if err != nil {
		return nil, apperr.Store(err, "load clinic")
	}
	return &c, nil
}
