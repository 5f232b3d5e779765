package domain

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/donara/pkg/db/pagination"
)

const (
	ActionAdminLogin        = "admin.login"
	ActionAdminSetup        = "admin.setup"
	ActionOrphanageCreate   = "orphanage.create"
	ActionOrphanageUpdate   = "orphanage.update"
	ActionOrphanageDelete   = "orphanage.delete"
	ActionOrphanageVerify   = "orphanage.verify"
	ActionDonationRequery   = "donation.requery"
	ActionNotificationsView = "provider_notification.view"
)

// Entry describes an action to record. Actor fields fall back to the actor on
// the context, then to system.
type Entry struct {
	ActorType  string
	ActorID    string
	Action     string
	TargetType string
	TargetID   string
	Metadata   map[string]any
	IPAddress  string
	UserAgent  string
}

type ListAuditLogRequest struct {
	pagination.Pagination
	Action     string
	TargetType string
	TargetID   string
	ActorType  string
	StartAt    *time.Time
	EndAt      *time.Time
}

type ListAuditLogResponse struct {
	pagination.PageInfo
	AuditLogs []AuditLog `json:"audit_logs"`
}

type Service interface {
	Record(ctx context.Context, entry Entry) error
	List(ctx context.Context, req ListAuditLogRequest) (ListAuditLogResponse, error)
}

var (
	ErrInvalidPageToken = errors.New("invalid_page_token")
	ErrInvalidTimeRange = errors.New("invalid_time_range")
	ErrInvalidAction    = errors.New("invalid_action")
)
