package policy

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/diewo77/studio-console/gate"
	"github.com/diewo77/studio-console/internal/metrics"
	"github.com/diewo77/studio-console/internal/models"
)

// DBProfileResolver fetches profiles from the database.
// It implements gate.ProfileResolver for string user ids.
type DBProfileResolver struct {
	DB      *gorm.DB
	Metrics *metrics.Metrics
}

// NewDBProfileResolver creates a new database-backed profile resolver.
func NewDBProfileResolver(db *gorm.DB, m *metrics.Metrics) *DBProfileResolver {
	return &DBProfileResolver{DB: db, Metrics: m}
}

// Resolve returns (nil, nil) when the user has no profile row.
func (r *DBProfileResolver) Resolve(ctx context.Context, userID string) (gate.Profile, error) {
	var profile models.Profile
	err := r.DB.WithContext(ctx).First(&profile, "id = ?", userID).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		r.Metrics.RecordLookup("missing")
		return nil, nil
	case err != nil:
		r.Metrics.RecordLookup("error")
		return nil, err
	}
	r.Metrics.RecordLookup("found")
	return gate.NewMember(profile.ID, profile.DisplayName, gate.ParseRole(profile.Role)), nil
}
