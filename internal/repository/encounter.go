package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/vairify/vaicheck-server-go/internal/database"
	"github.com/vairify/vaicheck-server-go/internal/model"
)

type EncounterRepository interface {
	FindByID(ctx context.Context, id string) (*model.Encounter, error)
	FindBySessionID(ctx context.Context, sessionID string) (*model.Encounter, error)
}

type encounterRepo struct {
	db database.DBTX
}

func NewEncounterRepository(db *sqlx.DB) EncounterRepository {
	return &encounterRepo{db: db}
}

func (r *encounterRepo) FindByID(ctx context.Context, id string) (*model.Encounter, error) {
	var enc model.Encounter
	err := r.db.GetContext(ctx, &enc, `
		SELECT * FROM encounters WHERE id = $1
	`, id)
	return HandleNotFound(&enc, err)
}

func (r *encounterRepo) FindBySessionID(ctx context.Context, sessionID string) (*model.Encounter, error) {
	var enc model.Encounter
	err := r.db.GetContext(ctx, &enc, `
		SELECT * FROM encounters WHERE session_id = $1
	`, sessionID)
	return HandleNotFound(&enc, err)
}
