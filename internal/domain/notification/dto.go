package notification

import (
	"time"

	"github.com/cmlabs-hris/training-center-backend-go/internal/pkg/validator"
)

// Draft is a notification before it is persisted.
type Draft struct {
	RecipientID string
	SenderID    *string
	RequestID   *string
	Type        Type
	Title       string
	Message     string
	Data        map[string]interface{}
}

// ToNotification stamps a draft; the repository assigns the id.
func (d Draft) ToNotification(now time.Time) *Notification {
	return &Notification{
		RecipientID: d.RecipientID,
		SenderID:    d.SenderID,
		RequestID:   d.RequestID,
		Type:        d.Type,
		Title:       d.Title,
		Message:     d.Message,
		Data:        d.Data,
		CreatedAt:   now,
	}
}

type ListRequest struct {
	Type       string `json:"type" validate:"omitempty,max=50"`
	RequestID  string `json:"request_id" validate:"omitempty,max=64"`
	UnreadOnly bool   `json:"unread_only"`
	Page       int    `json:"page"`
	PageSize   int    `json:"page_size"`
}

func (r *ListRequest) Validate() error {
	if err := validator.Struct(r); err != nil {
		return err
	}
	if r.Type != "" && !Type(r.Type).IsValid() {
		return validator.ValidationErrors{{Field: "type", Message: "type is not a known notification type"}}
	}
	return nil
}

func (r *ListRequest) ToFilter(recipientID string) Filter {
	f := Filter{
		RecipientID: recipientID,
		UnreadOnly:  r.UnreadOnly,
		Type:        Type(r.Type),
		RequestID:   r.RequestID,
		Page:        r.Page,
		PageSize:    r.PageSize,
	}
	f.Normalize()
	return f
}

// MarkReadRequest marks the listed entries; an empty list marks everything.
type MarkReadRequest struct {
	NotificationIDs []string `json:"notification_ids" validate:"omitempty,max=100,dive,required,max=64"`
}

func (r *MarkReadRequest) Validate() error {
	return validator.Struct(r)
}

type UpdatePreferenceRequest struct {
	Type         Type `json:"notification_type" validate:"required"`
	EmailEnabled bool `json:"email_enabled"`
	PushEnabled  bool `json:"push_enabled"`
}

func (r *UpdatePreferenceRequest) Validate() error {
	if err := validator.Struct(r); err != nil {
		return err
	}
	if !r.Type.IsValid() {
		return validator.ValidationErrors{{Field: "notification_type", Message: "notification_type is not a known type"}}
	}
	return nil
}

// ============= Response DTOs =============

type NotificationResponse struct {
	ID        string                 `json:"id"`
	Type      Type                   `json:"type"`
	RequestID *string                `json:"request_id,omitempty"`
	SenderID  *string                `json:"sender_id,omitempty"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data,omitempty"`
	IsRead    bool                   `json:"is_read"`
	ReadAt    *time.Time             `json:"read_at,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

func NewNotificationResponse(n Notification) NotificationResponse {
	return NotificationResponse{
		ID:        n.ID,
		Type:      n.Type,
		RequestID: n.RequestID,
		SenderID:  n.SenderID,
		Title:     n.Title,
		Message:   n.Message,
		Data:      n.Data,
		IsRead:    n.IsRead(),
		ReadAt:    n.ReadAt,
		CreatedAt: n.CreatedAt,
	}
}

type InboxResponse struct {
	Notifications []NotificationResponse `json:"notifications"`
	Total         int                    `json:"total"`
	UnreadCount   int                    `json:"unread_count"`
	Page          int                    `json:"page"`
	PageSize      int                    `json:"page_size"`
}

type PreferenceResponse struct {
	Type         Type `json:"notification_type"`
	EmailEnabled bool `json:"email_enabled"`
	PushEnabled  bool `json:"push_enabled"`
}

type UnreadCountResponse struct {
	UnreadCount int `json:"unread_count"`
}

type MarkReadResponse struct {
	Updated int `json:"updated"`
}

type SSETokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
}

// StreamEvent is one frame pushed to a live subscriber.
type StreamEvent struct {
	Event string               `json:"event"`
	Data  NotificationResponse `json:"data"`
}
