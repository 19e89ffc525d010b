package challenge

import "time"

type ParticipationStatus string

const (
	StatusInProgress ParticipationStatus = "in_progress"
	StatusCompleted  ParticipationStatus = "completed"
)

type Challenge struct {
	ID         string     `gorm:"column:id;primaryKey;type:varchar(32)" json:"id"`
	MerchantID string     `gorm:"column:merchant_id;type:varchar(64);index" json:"merchant_id"`
	Title      string     `gorm:"column:title" json:"title"`
	GoalCount  int        `gorm:"column:goal_count;not null" json:"goal_count"`
	StartAt    time.Time  `gorm:"column:start_at" json:"start_at"`
	EndAt      *time.Time `gorm:"column:end_at" json:"end_at,omitempty"`
	IsActive   bool       `gorm:"column:is_active;not null" json:"is_active"`
	CreatedAt  time.Time  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"column:updated_at" json:"updated_at"`
}

func (Challenge) TableName() string {
	return "challenges"
}

// Running reports whether now falls inside the challenge window.
func (c *Challenge) Running(now time.Time) bool {
	if !c.IsActive || now.Before(c.StartAt) {
		return false
	}
	return c.EndAt == nil || now.Before(*c.EndAt)
}

type Participation struct {
	ID           string              `gorm:"column:id;primaryKey;type:varchar(32)" json:"id"`
	UserID       string              `gorm:"column:user_id;type:varchar(64);not null;uniqueIndex:idx_challenge_participations_user,priority:1" json:"user_id"`
	ChallengeID  string              `gorm:"column:challenge_id;type:varchar(32);not null;uniqueIndex:idx_challenge_participations_user,priority:2" json:"challenge_id"`
	JoinedCafeID string              `gorm:"column:joined_cafe_id;type:varchar(64)" json:"joined_cafe_id,omitempty"`
	JoinedAt     time.Time           `gorm:"column:joined_at" json:"joined_at"`
	CurrentCount int                 `gorm:"column:current_count;not null;default:0" json:"current_count"`
	Status       ParticipationStatus `gorm:"column:status;type:varchar(16);not null" json:"status"`
	CompletedAt  *time.Time          `gorm:"column:completed_at" json:"completed_at,omitempty"`
	CreatedAt    time.Time           `gorm:"column:created_at" json:"created_at"`
	UpdatedAt    time.Time           `gorm:"column:updated_at" json:"updated_at"`
}

func (Participation) TableName() string {
	return "challenge_participations"
}

// Stats holds the lifetime completion counter per user. It only grows.
type Stats struct {
	UserID             string     `gorm:"column:user_id;primaryKey;type:varchar(64)" json:"user_id"`
	CompletedCount     int64      `gorm:"column:completed_count;not null;default:0" json:"completed_count"`
	MilestoneGrantedAt *time.Time `gorm:"column:milestone_granted_at" json:"milestone_granted_at,omitempty"`
	UpdatedAt          time.Time  `gorm:"column:updated_at" json:"updated_at"`
}

func (Stats) TableName() string {
	return "challenge_stats"
}

type CompleteResult struct {
	ChallengeID       string    `json:"challenge_id"`
	CompletedAt       time.Time `json:"completed_at"`
	CompletedCount    int64     `json:"completed_count"`
	MilestoneGranted  bool      `json:"milestone_granted"`
	MilestonePoints   int64     `json:"milestone_points,omitempty"`
	MilestoneEntryID  string    `json:"milestone_entry_id,omitempty"`
	MilestoneCouponID string    `json:"milestone_coupon_id,omitempty"`
}
