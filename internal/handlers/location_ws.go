package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AnshRaj112/neighbourwatch-backend/internal/models"
	"github.com/AnshRaj112/neighbourwatch-backend/internal/repository"
	"github.com/AnshRaj112/neighbourwatch-backend/internal/services"
	"github.com/AnshRaj112/neighbourwatch-backend/internal/validation"
	"github.com/AnshRaj112/neighbourwatch-backend/pkg/geo"
)

const (
	wsReadLimit  = 4096
	wsPongWait   = 60 * time.Second
	wsPingPeriod = wsPongWait * 9 / 10
	wsWriteWait  = 10 * time.Second
)

var locationUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origins are enforced by the CORS layer; the token is what authorizes.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// LiveClientMessage is a frame sent by the client:
// "subscribe", "unsubscribe", "update" or "ping".
type LiveClientMessage struct {
	Type      string  `json:"type"`
	ShareID   string  `json:"share_id"`
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
}

// LiveServerMessage acknowledges client frames.
type LiveServerMessage struct {
	Type    string `json:"type"`
	ShareID string `json:"share_id,omitempty"`
	Message string `json:"message,omitempty"`
}

// LocationWebSocket streams live positions of location shares. Contacts of a
// share subscribe to it; the owner pushes position updates.
func (h *Handler) LocationWebSocket(w http.ResponseWriter, r *http.Request) {
	id, err := caller(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	conn, err := locationUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	client := h.live.Register(id.UID, conn)
	defer h.live.Unregister(client)

	conn.SetReadLimit(wsReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(wsPingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
					return
				}
			}
		}
	}()

	for {
		var msg LiveClientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))

		reply := h.handleLiveMessage(r.Context(), id, client, msg)
		if err := client.Send(reply); err != nil {
			return
		}
	}
}

func (h *Handler) handleLiveMessage(ctx context.Context, id services.Identity, client *services.LiveClient, msg LiveClientMessage) LiveServerMessage {
	ctx, cancel := h.withTimeout(ctx)
	defer cancel()

	switch msg.Type {
	case "ping":
		return LiveServerMessage{Type: "pong"}

	case "subscribe":
		share, errMsg := h.liveShare(ctx, msg.ShareID)
		if errMsg != "" {
			return liveError(msg.ShareID, errMsg)
		}
		if share.UserID != id.UID && !share.Visible(id.Email) {
			return liveError(msg.ShareID, "not allowed to follow this share")
		}
		h.live.Subscribe(client, share.ID)
		return LiveServerMessage{Type: "subscribed", ShareID: share.ID}

	case "unsubscribe":
		h.live.Unsubscribe(client, msg.ShareID)
		return LiveServerMessage{Type: "unsubscribed", ShareID: msg.ShareID}

	case "update":
		if !validation.IsValidLatitude(msg.Latitude) || !validation.IsValidLongitude(msg.Longitude) {
			return liveError(msg.ShareID, "invalid coordinates")
		}
		share, errMsg := h.liveShare(ctx, msg.ShareID)
		if errMsg != "" {
			return liveError(msg.ShareID, errMsg)
		}
		if share.UserID != id.UID {
			return liveError(msg.ShareID, "only the owner can update this share")
		}
		point := geo.Point{Latitude: msg.Latitude, Longitude: msg.Longitude}
		if err := h.store.UpdateLocationSharePosition(ctx, share.ID, point); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return liveError(msg.ShareID, "share has expired")
			}
			h.log.WithError(err).WithField("share", share.ID).Error("failed to update share position")
			return liveError(msg.ShareID, "could not update position")
		}
		event := services.LocationEvent{
			Type:      services.LocationEventUpdate,
			ShareID:   share.ID,
			UserID:    id.UID,
			Latitude:  point.Latitude,
			Longitude: point.Longitude,
			Timestamp: h.now().UTC(),
		}
		if err := h.live.Publish(ctx, event); err != nil {
			h.log.WithError(err).WithField("share", share.ID).Warn("failed to publish position")
		}
		return LiveServerMessage{Type: "updated", ShareID: share.ID}
	}

	return liveError(msg.ShareID, "unknown message type")
}

// liveShare loads an unexpired share, returning a client-facing message on failure.
func (h *Handler) liveShare(ctx context.Context, shareID string) (*models.LocationShare, string) {
	if shareID == "" {
		return nil, "share_id is required"
	}
	share, err := h.store.GetLocationShare(ctx, shareID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, "share not found"
	}
	if err != nil {
		h.log.WithError(err).WithField("share", shareID).Error("failed to load share")
		return nil, "could not load share"
	}
	if share.Expired(h.now()) {
		return nil, "share has expired"
	}
	return share, ""
}

func liveError(shareID, msg string) LiveServerMessage {
	return LiveServerMessage{Type: "error", ShareID: shareID, Message: msg}
}
