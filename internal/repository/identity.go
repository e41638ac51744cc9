package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/vairify/vaicheck-server-go/internal/database"
	"github.com/vairify/vaicheck-server-go/internal/model"
)

// IdentityRepository reads enrolments from the identity registry.
type IdentityRepository interface {
	FindByUserID(ctx context.Context, userID string) (*model.Identity, error)
}

type identityRepo struct {
	db database.DBTX
}

func NewIdentityRepository(db *sqlx.DB) IdentityRepository {
	return &identityRepo{db: db}
}

func (r *identityRepo) FindByUserID(ctx context.Context, userID string) (*model.Identity, error) {
	var id model.Identity
	err := r.db.GetContext(ctx, &id, `
		SELECT user_id, vai_number, biometric_photo_url
		FROM vai_verifications
		WHERE user_id = $1
	`, userID)
	return HandleNotFound(&id, err)
}
