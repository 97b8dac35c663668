package controllers

import (
	"log/slog"

	"openplm/plmapp/schema"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Notifier receives change notifications for the users holding the notified
// role on an object. Delivery is best effort and happens after the mutation
// has committed; implementations must not block.
type Notifier interface {
	Notify(object schema.PlmObject, action string, userIds []uuid.UUID)
}

// LogNotifier writes notifications to the default slog logger.
type LogNotifier struct{}

func (LogNotifier) Notify(object schema.PlmObject, action string, userIds []uuid.UUID) {
	slog.Info("notification",
		"object_id", object.Id,
		"reference", object.Reference,
		"revision", object.Revision,
		"action", action,
		"users", len(userIds))
}

// NoopNotifier drops all notifications.
type NoopNotifier struct{}

func (NoopNotifier) Notify(schema.PlmObject, string, []uuid.UUID) {}

var notifier Notifier = LogNotifier{}

// SetNotifier replaces the process-wide notifier.
func SetNotifier(n Notifier) {
	notifier = n
}

func notifyWatchers(db *gorm.DB, object schema.PlmObject, action string) {
	users, err := schema.RoleHolders(db, object.Id, schema.RoleNotified)
	if err != nil {
		slog.Error("could not load notified users", "object_id", object.Id, "error", err)
		return
	}
	if len(users) == 0 {
		return
	}
	notifier.Notify(object, action, users)
}
