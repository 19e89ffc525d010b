package notification

import (
	"time"

	"gorm.io/datatypes"
)

type RewardIssuedPayload struct {
	UserID       string            `json:"user_id"`
	MerchantID   string            `json:"merchant_id"`
	CollectionID string            `json:"collection_id"`
	CouponID     string            `json:"coupon_id"`
	CouponCode   string            `json:"coupon_code"`
	ExpiredAt    *time.Time        `json:"expired_at,omitempty"`
	Metadata     datatypes.JSONMap `json:"metadata,omitempty"`
	TraceID      string            `json:"trace_id,omitempty"`
}

type MilestoneGrantedPayload struct {
	UserID         string            `json:"user_id"`
	ChallengeID    string            `json:"challenge_id"`
	CompletedCount int64             `json:"completed_count"`
	Points         int64             `json:"points"`
	CouponID       string            `json:"coupon_id,omitempty"`
	Metadata       datatypes.JSONMap `json:"metadata,omitempty"`
	TraceID        string            `json:"trace_id,omitempty"`
}
