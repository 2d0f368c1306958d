package services

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/AnshRaj112/neighbourwatch-backend/internal/metrics"
	"github.com/AnshRaj112/neighbourwatch-backend/internal/models"
	"github.com/AnshRaj112/neighbourwatch-backend/pkg/geo"
)

const (
	NotificationTypePost          = "post"
	NotificationTypePanic         = "panic"
	NotificationTypeLocationShare = "location_share"

	cleanupTimeout = 10 * time.Second
)

// TokenCleaner removes rejected device tokens from user profiles.
type TokenCleaner interface {
	ClearDeviceTokens(ctx context.Context, tokens []string) (int64, error)
}

// Notifier fans notifications out through a PushGateway and prunes device
// tokens the gateway rejects. Delivery failures never reach the caller.
type Notifier struct {
	gateway PushGateway
	cleaner TokenCleaner
	log     logrus.FieldLogger

	wg sync.WaitGroup
}

func NewNotifier(gateway PushGateway, cleaner TokenCleaner, log logrus.FieldLogger) *Notifier {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Notifier{gateway: gateway, cleaner: cleaner, log: log.WithField("component", "notifier")}
}

// Notify sends msg to every token in batches of MaxMulticastTokens and
// reports whether at least one delivery succeeded. Tokens reported invalid
// are cleared from profiles in the background.
func (n *Notifier) Notify(ctx context.Context, tokens []string, msg PushMessage) bool {
	if len(tokens) == 0 {
		return false
	}

	success := 0
	var invalid []string
	for start := 0; start < len(tokens); start += MaxMulticastTokens {
		end := min(start+MaxMulticastTokens, len(tokens))
		batch := tokens[start:end]

		res, err := n.gateway.SendMulticast(ctx, batch, msg)
		if err != nil {
			metrics.NotificationsSent.WithLabelValues("error").Add(float64(len(batch)))
			n.log.WithError(err).WithField("tokens", len(batch)).Warn("push batch failed")
			continue
		}

		success += res.SuccessCount
		metrics.NotificationsSent.WithLabelValues("success").Add(float64(res.SuccessCount))
		metrics.NotificationsSent.WithLabelValues("failure").Add(float64(res.FailureCount))
		for _, r := range res.Responses {
			if r.Invalid {
				invalid = append(invalid, r.Token)
			}
		}
	}

	if len(invalid) > 0 {
		n.pruneAsync(invalid)
	}

	n.log.WithFields(logrus.Fields{
		"title":   msg.Title,
		"tokens":  len(tokens),
		"success": success,
		"invalid": len(invalid),
	}).Debug("notification sent")

	return success > 0
}

// Wait blocks until all background token cleanups have finished.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

func (n *Notifier) pruneAsync(tokens []string) {
	if n.cleaner == nil {
		return
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
		defer cancel()

		cleared, err := n.cleaner.ClearDeviceTokens(ctx, tokens)
		if err != nil {
			n.log.WithError(err).WithField("tokens", len(tokens)).Error("failed to clear invalid device tokens")
			return
		}
		metrics.TokensPruned.Add(float64(cleared))
		n.log.WithField("cleared", cleared).Info("cleared invalid device tokens")
	}()
}

// NotifyPost alerts targets about a new post. The title names the group when
// the post belongs to one, otherwise the suburb.
func (n *Notifier) NotifyPost(ctx context.Context, post *models.Post, group *models.Group, targets []models.User) bool {
	place := post.Suburb
	if group != nil {
		place = group.Name
	}
	data := map[string]string{
		"type":      NotificationTypePost,
		"postId":    post.ID,
		"category":  post.Category,
		"suburb":    post.Suburb,
		"timestamp": formatTimestamp(post.CreatedAt),
	}
	if post.GroupID != "" {
		data["groupId"] = post.GroupID
	}
	return n.Notify(ctx, DeviceTokens(targets), PushMessage{
		Title: "New Alert in " + place,
		Body:  post.Title,
		Data:  data,
	})
}

func (n *Notifier) NotifyPanic(ctx context.Context, alert *models.PanicAlert, user *models.User, contacts []models.User) bool {
	body := alert.Message
	data := map[string]string{
		"type":      NotificationTypePanic,
		"panicId":   alert.ID,
		"userId":    user.ID,
		"userEmail": user.Email,
		"timestamp": formatTimestamp(alert.CreatedAt),
	}
	if alert.Location != nil {
		body += " at " + formatPoint(*alert.Location)
		addCoordinates(data, *alert.Location)
	}
	return n.Notify(ctx, DeviceTokens(contacts), PushMessage{
		Title: "SOS Alert from " + user.Email,
		Body:  body,
		Data:  data,
	})
}

func (n *Notifier) NotifyLocationShare(ctx context.Context, share *models.LocationShare, user *models.User, contacts []models.User) bool {
	data := map[string]string{
		"type":      NotificationTypeLocationShare,
		"shareId":   share.ID,
		"userId":    user.ID,
		"userEmail": user.Email,
		"duration":  strconv.Itoa(share.Duration),
		"timestamp": formatTimestamp(share.CreatedAt),
	}
	addCoordinates(data, share.Location)
	return n.Notify(ctx, DeviceTokens(contacts), PushMessage{
		Title: "Location Shared by " + user.Email,
		Body:  fmt.Sprintf("Location shared for %d minutes at %s", share.Duration, formatPoint(share.Location)),
		Data:  data,
	})
}

// DeviceTokens collects the distinct non-empty device tokens of users.
func DeviceTokens(users []models.User) []string {
	seen := make(map[string]struct{}, len(users))
	tokens := make([]string, 0, len(users))
	for _, u := range users {
		if u.DeviceToken == "" {
			continue
		}
		if _, ok := seen[u.DeviceToken]; ok {
			continue
		}
		seen[u.DeviceToken] = struct{}{}
		tokens = append(tokens, u.DeviceToken)
	}
	return tokens
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func formatPoint(p geo.Point) string {
	return fmt.Sprintf("[%.4f, %.4f]", p.Latitude, p.Longitude)
}

func addCoordinates(data map[string]string, p geo.Point) {
	data["latitude"] = strconv.FormatFloat(p.Latitude, 'f', -1, 64)
	data["longitude"] = strconv.FormatFloat(p.Longitude, 'f', -1, 64)
}
