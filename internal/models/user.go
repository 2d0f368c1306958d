package models

import "time"

// User is the profile document stored alongside the identity provider's
// account. The document id equals the provider's uid.
type User struct {
	ID        string    `bson:"_id" json:"id"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`

	Email                   string   `bson:"email" json:"email"`
	Suburb                  string   `bson:"suburb" json:"suburb"`
	TrustedContacts         []string `bson:"trustedContacts" json:"trustedContacts"`
	NotificationCategories  []string `bson:"notificationCategories" json:"notificationCategories"`
	DarkMode                bool     `bson:"darkMode" json:"darkMode"`
	AnonymousMode           bool     `bson:"anonymousMode" json:"anonymousMode"`
	Groups                  []string `bson:"groups" json:"groups"`
	LocationSharingDuration int      `bson:"locationSharingDuration" json:"locationSharingDuration"`
	DeviceToken             string   `bson:"deviceToken,omitempty" json:"-"`
}

// IsMember reports whether the user belongs to the given group.
func (u *User) IsMember(groupID string) bool {
	for _, g := range u.Groups {
		if g == groupID {
			return true
		}
	}
	return false
}

// SubscribesTo reports whether the user receives alerts of the given category.
func (u *User) SubscribesTo(category string) bool {
	for _, c := range u.NotificationCategories {
		if c == category {
			return true
		}
	}
	return false
}

// UserUpdate is the closed set of profile fields a settings update may touch.
// A nil field is left unchanged. ClearDeviceToken removes the stored token.
type UserUpdate struct {
	Suburb                  *string
	NotificationCategories  *[]string
	DarkMode                *bool
	AnonymousMode           *bool
	TrustedContacts         *[]string
	LocationSharingDuration *int
	DeviceToken             *string
	ClearDeviceToken        bool
}

// Fields returns the JSON names of the staged fields, in a stable order.
func (u UserUpdate) Fields() []string {
	var fields []string
	if u.Suburb != nil {
		fields = append(fields, "suburb")
	}
	if u.NotificationCategories != nil {
		fields = append(fields, "notificationCategories")
	}
	if u.DarkMode != nil {
		fields = append(fields, "darkMode")
	}
	if u.AnonymousMode != nil {
		fields = append(fields, "anonymousMode")
	}
	if u.TrustedContacts != nil {
		fields = append(fields, "trustedContacts")
	}
	if u.LocationSharingDuration != nil {
		fields = append(fields, "locationSharingDuration")
	}
	if u.DeviceToken != nil || u.ClearDeviceToken {
		fields = append(fields, "deviceToken")
	}
	return fields
}

func (u UserUpdate) Empty() bool {
	return len(u.Fields()) == 0
}

// Apply copies the staged fields onto user. UpdatedAt is the caller's concern.
func (u UserUpdate) Apply(user *User) {
	if u.Suburb != nil {
		user.Suburb = *u.Suburb
	}
	if u.NotificationCategories != nil {
		user.NotificationCategories = append([]string(nil), (*u.NotificationCategories)...)
	}
	if u.DarkMode != nil {
		user.DarkMode = *u.DarkMode
	}
	if u.AnonymousMode != nil {
		user.AnonymousMode = *u.AnonymousMode
	}
	if u.TrustedContacts != nil {
		user.TrustedContacts = append([]string(nil), (*u.TrustedContacts)...)
	}
	if u.LocationSharingDuration != nil {
		user.LocationSharingDuration = *u.LocationSharingDuration
	}
	if u.DeviceToken != nil {
		user.DeviceToken = *u.DeviceToken
	}
	if u.ClearDeviceToken {
		user.DeviceToken = ""
	}
}
