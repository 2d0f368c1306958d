package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/AnshRaj112/neighbourwatch-backend/internal/apperrors"
	"github.com/AnshRaj112/neighbourwatch-backend/internal/models"
	"github.com/AnshRaj112/neighbourwatch-backend/internal/repository"
	"github.com/AnshRaj112/neighbourwatch-backend/internal/services"
	"github.com/AnshRaj112/neighbourwatch-backend/internal/validation"
	"github.com/AnshRaj112/neighbourwatch-backend/pkg/geo"
)

// Store is the persistence surface the handlers use. *repository.Mongo
// implements it.
type Store interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	CreateUser(ctx context.Context, u *models.User) error
	UpdateUser(ctx context.Context, id string, update models.UserUpdate) error
	AddUserToGroup(ctx context.Context, userID, groupID string) error
	ListUsersByGroup(ctx context.Context, groupID string) ([]models.User, error)
	ListUsersByNotificationCategory(ctx context.Context, suburb, category string) ([]models.User, error)
	ListUsersByEmails(ctx context.Context, emails []string) ([]models.User, error)

	CreateGroupWithOwner(ctx context.Context, g *models.Group) error
	GetGroup(ctx context.Context, id string) (*models.Group, error)
	ListGroupsBySuburb(ctx context.Context, suburb string) ([]models.Group, error)

	CreatePost(ctx context.Context, p *models.Post) error
	ListPosts(ctx context.Context, q repository.PostQuery) ([]models.Post, error)
	ListPostsByLocation(ctx context.Context, lat, lon, radiusKm float64, category string) ([]models.Post, error)
	ListGroupPosts(ctx context.Context, groupID string) ([]models.Post, error)

	CreatePanicAlert(ctx context.Context, a *models.PanicAlert) error
	ListRecentPanicAlerts(ctx context.Context, userID string, hours int) ([]models.PanicAlert, error)

	CreateLocationShare(ctx context.Context, s *models.LocationShare) error
	GetLocationShare(ctx context.Context, id string) (*models.LocationShare, error)
	UpdateLocationSharePosition(ctx context.Context, id string, p geo.Point) error
}

// Notifications is implemented by *services.Notifier.
type Notifications interface {
	NotifyPost(ctx context.Context, post *models.Post, group *models.Group, targets []models.User) bool
	NotifyPanic(ctx context.Context, alert *models.PanicAlert, user *models.User, contacts []models.User) bool
	NotifyLocationShare(ctx context.Context, share *models.LocationShare, user *models.User, contacts []models.User) bool
}

// Sweeper is implemented by *services.Sweeper.
type Sweeper interface {
	Sweep(ctx context.Context) (int64, error)
}

// Deps are the collaborators a Handler is built from.
type Deps struct {
	Store     Store
	Identity  services.IdentityGateway
	Notifier  Notifications
	Media     services.MediaUploader // nil disables uploads
	Live      *services.LocationHub
	Sweeper   Sweeper
	Reference *validation.Reference
	Logger    logrus.FieldLogger

	// Timeout bounds the store and gateway calls of one request.
	Timeout    time.Duration
	SweepToken string
	Now        func() time.Time
}

// Handler serves every API endpoint.
type Handler struct {
	store      Store
	identity   services.IdentityGateway
	notifier   Notifications
	media      services.MediaUploader
	live       *services.LocationHub
	sweeper    Sweeper
	ref        *validation.Reference
	log        logrus.FieldLogger
	timeout    time.Duration
	sweepToken string
	now        func() time.Time
}

// New builds a Handler, defaulting the reference lists, logger, timeout,
// clock and live location hub when they are not supplied.
func New(d Deps) *Handler {
	h := &Handler{
		store:      d.Store,
		identity:   d.Identity,
		notifier:   d.Notifier,
		media:      d.Media,
		live:       d.Live,
		sweeper:    d.Sweeper,
		ref:        d.Reference,
		log:        d.Logger,
		timeout:    d.Timeout,
		sweepToken: d.SweepToken,
		now:        d.Now,
	}
	if h.ref == nil {
		h.ref = validation.Default()
	}
	if h.log == nil {
		h.log = logrus.StandardLogger()
	}
	if h.timeout <= 0 {
		h.timeout = 10 * time.Second
	}
	if h.now == nil {
		h.now = time.Now
	}
	if h.live == nil {
		h.live = services.NewLocationHub(nil, h.log)
	}
	return h
}

func (h *Handler) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, h.timeout)
}

// loadUser fetches the caller's profile, mapping a missing document to 404.
func (h *Handler) loadUser(ctx context.Context, id string) (*models.User, error) {
	user, err := h.store.GetUser(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound("User not found")
	}
	if err != nil {
		return nil, apperrors.Upstream("load user", err)
	}
	return user, nil
}
