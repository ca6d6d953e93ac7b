// Package transport holds the notification API wire types.
package transport

import (
	"time"

	"github.com/google/uuid"

	"adops_backend/internal/notification/repository"
)

type NotificationResponse struct {
	ID        uuid.UUID `json:"id"`
	Kind      string    `json:"kind"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"createdAt"`
}

type NotificationListResponse struct {
	Notifications []NotificationResponse `json:"notifications"`
	UnreadCount   int                    `json:"unreadCount"`
}

func FromNotification(n repository.Notification) NotificationResponse {
	return NotificationResponse{
		ID:        n.ID,
		Kind:      n.Kind,
		Title:     n.Title,
		Body:      n.Body,
		Read:      n.ReadAt != nil,
		CreatedAt: n.CreatedAt,
	}
}

func FromNotifications(items []repository.Notification, unread int) NotificationListResponse {
	out := NotificationListResponse{
		Notifications: make([]NotificationResponse, 0, len(items)),
		UnreadCount:   unread,
	}
	for _, n := range items {
		out.Notifications = append(out.Notifications, FromNotification(n))
	}
	return out
}
