package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/AnshRaj112/neighbourwatch-backend/internal/models"
)

func (m *Mongo) CreatePanicAlert(ctx context.Context, a *models.PanicAlert) error {
	a.ID = uuid.NewString()
	a.CreatedAt = m.timestamp()
	if _, err := m.col(panicAlertsCollection).InsertOne(ctx, a); err != nil {
		return fmt.Errorf("create panic alert: %w", err)
	}
	return nil
}

// ListRecentPanicAlerts returns the user's alerts from the last hours, newest first.
func (m *Mongo) ListRecentPanicAlerts(ctx context.Context, userID string, hours int) ([]models.PanicAlert, error) {
	since := m.timestamp().Add(-time.Duration(hours) * time.Hour)
	filter := bson.M{"userId": userID, "createdAt": bson.M{"$gt": since}}
	alerts, err := findMany[models.PanicAlert](ctx, m.col(panicAlertsCollection), filter, newestFirst(0))
	if err != nil {
		return nil, fmt.Errorf("list panic alerts: %w", err)
	}
	return alerts, nil
}
