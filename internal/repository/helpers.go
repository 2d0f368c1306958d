package repository

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/AnshRaj112/neighbourwatch-backend/internal/models"
)

func chunk(items []string, size int) [][]string {
	var out [][]string
	for size < len(items) {
		items, out = items[size:], append(out, items[:size:size])
	}
	if len(items) > 0 {
		out = append(out, items)
	}
	return out
}

func dedupe(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it == "" {
			continue
		}
		if _, ok := seen[it]; ok {
			continue
		}
		seen[it] = struct{}{}
		out = append(out, it)
	}
	return out
}

func userUpdateDocument(u models.UserUpdate, now time.Time) bson.M {
	set := bson.M{"updatedAt": now}
	if u.Suburb != nil {
		set["suburb"] = *u.Suburb
	}
	if u.NotificationCategories != nil {
		set["notificationCategories"] = *u.NotificationCategories
	}
	if u.DarkMode != nil {
		set["darkMode"] = *u.DarkMode
	}
	if u.AnonymousMode != nil {
		set["anonymousMode"] = *u.AnonymousMode
	}
	if u.TrustedContacts != nil {
		set["trustedContacts"] = *u.TrustedContacts
	}
	if u.LocationSharingDuration != nil {
		set["locationSharingDuration"] = *u.LocationSharingDuration
	}
	if u.DeviceToken != nil {
		set["deviceToken"] = *u.DeviceToken
	}

	doc := bson.M{"$set": set}
	if u.ClearDeviceToken && u.DeviceToken == nil {
		doc["$unset"] = bson.M{"deviceToken": ""}
	}
	return doc
}
