package stamp

import (
	"time"

	"gorm.io/datatypes"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusConverted Status = "converted"
	StatusExpired   Status = "expired"
)

const MethodManualTerminal = "manual_terminal"

// activeSlot is stored only while a collection is active. The unique index over
// (user_id, merchant_id, active_slot) allows a single active row per pair since
// NULLs are distinct.
const activeSlot = "active"

type Collection struct {
	ID           string     `gorm:"column:id;primaryKey;type:varchar(32)" json:"id"`
	UserID       string     `gorm:"column:user_id;type:varchar(64);not null;index:idx_stamp_collections_owner,priority:1;uniqueIndex:idx_stamp_collections_active,priority:1" json:"user_id"`
	MerchantID   string     `gorm:"column:merchant_id;type:varchar(64);not null;index:idx_stamp_collections_owner,priority:2;uniqueIndex:idx_stamp_collections_active,priority:2" json:"merchant_id"`
	Round        int        `gorm:"column:round;not null" json:"round"`
	GoalCount    int        `gorm:"column:goal_count;not null" json:"goal_count"`
	CurrentCount int        `gorm:"column:current_count;not null;default:0" json:"current_count"`
	Status       Status     `gorm:"column:status;type:varchar(16);not null;index" json:"status"`
	ActiveSlot   *string    `gorm:"column:active_slot;type:varchar(8);uniqueIndex:idx_stamp_collections_active,priority:3" json:"-"`
	StartedAt    time.Time  `gorm:"column:started_at" json:"started_at"`
	ExpiresAt    *time.Time `gorm:"column:expires_at;index" json:"expires_at,omitempty"`
	CompletedAt  *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`
	ConvertedAt  *time.Time `gorm:"column:converted_at" json:"converted_at,omitempty"`
	ExtendedAt   *time.Time `gorm:"column:extended_at" json:"extended_at,omitempty"`
	CreatedAt    time.Time  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"column:updated_at" json:"updated_at"`
}

func (Collection) TableName() string {
	return "stamp_collections"
}

func (c *Collection) IsCompleted() bool {
	return c.Status == StatusCompleted
}

func (c *Collection) IsConverted() bool {
	return c.Status == StatusConverted
}

// IsLapsed reports whether an active collection ran past its expiry at now.
func (c *Collection) IsLapsed(now time.Time) bool {
	return c.Status == StatusActive && c.ExpiresAt != nil && !c.ExpiresAt.After(now)
}

// NewCollection opens an active cycle for the pair using the program's goal and validity.
func NewCollection(id, userID, merchantID string, round int, program *Program, now time.Time) *Collection {
	slot := activeSlot
	c := &Collection{
		ID:           id,
		UserID:       userID,
		MerchantID:   merchantID,
		Round:        round,
		GoalCount:    program.GoalCount,
		CurrentCount: 0,
		Status:       StatusActive,
		ActiveSlot:   &slot,
		StartedAt:    now,
	}
	if program.ValidDays > 0 {
		expiresAt := now.AddDate(0, 0, program.ValidDays)
		c.ExpiresAt = &expiresAt
	}
	return c
}

type Event struct {
	ID           string         `gorm:"column:id;primaryKey;type:varchar(32)" json:"id"`
	CollectionID string         `gorm:"column:collection_id;type:varchar(32);not null;index" json:"collection_id"`
	UserID       string         `gorm:"column:user_id;type:varchar(64);not null" json:"user_id"`
	MerchantID   string         `gorm:"column:merchant_id;type:varchar(64);not null" json:"merchant_id"`
	Method       string         `gorm:"column:method;type:varchar(32)" json:"method"`
	Note         string         `gorm:"column:note" json:"note,omitempty"`
	Metadata     datatypes.JSON `gorm:"column:metadata" json:"metadata,omitempty"`
	TokenID      *string        `gorm:"column:token_id;type:varchar(64);uniqueIndex" json:"token_id,omitempty"`
	CreatedAt    time.Time      `gorm:"column:created_at" json:"created_at"`
}

func (Event) TableName() string {
	return "stamp_events"
}

// Program is a merchant's stamp card configuration. Zero fields fall back to defaults.
type Program struct {
	MerchantID    string    `gorm:"column:merchant_id;primaryKey;type:varchar(64)" json:"merchant_id"`
	GoalCount     int       `gorm:"column:goal_count" json:"goal_count"`
	ValidDays     int       `gorm:"column:valid_days" json:"valid_days"`
	ExtensionDays int       `gorm:"column:extension_days" json:"extension_days"`
	CreatedAt     time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt     time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (Program) TableName() string {
	return "stamp_programs"
}

type AddStampParams struct {
	UserID     string
	MerchantID string
	Method     string
	Note       string
	Metadata   map[string]any
	TokenID    string
}

type AddStampResult struct {
	CollectionID string            `json:"collection_id"`
	CurrentCount int               `json:"current_count"`
	GoalCount    int               `json:"goal_count"`
	IsCompleted  bool              `json:"is_completed"`
	Round        int               `json:"round"`
	Reward       *CompletionResult `json:"reward,omitempty"`
}

// CompletionResult describes what a completion produced: the issued coupon and
// the collection opened for the next cycle.
type CompletionResult struct {
	CouponID         string     `json:"coupon_id"`
	CouponCode       string     `json:"coupon_code"`
	TemplateID       string     `json:"template_id"`
	CouponExpiredAt  *time.Time `json:"coupon_expired_at,omitempty"`
	NextCollectionID string     `json:"next_collection_id"`
}
