package expiry

import "time"

type RunStatus string

const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunFailed  RunStatus = "failed"
)

// Run is the job record of one sweep.
type Run struct {
	ID                 string     `gorm:"column:id;primaryKey;type:varchar(32)" json:"id"`
	Status             RunStatus  `gorm:"column:status;type:varchar(16);not null" json:"status"`
	ExpiredCoupons     int64      `gorm:"column:expired_coupons" json:"expired_coupons"`
	ExpiredCollections int64      `gorm:"column:expired_collections" json:"expired_collections"`
	PurgedTokens       int64      `gorm:"column:purged_tokens" json:"purged_tokens"`
	Failures           int        `gorm:"column:failures" json:"failures"`
	ErrorMsg           string     `gorm:"column:error_msg;type:text" json:"error_msg,omitempty"`
	StartedAt          time.Time  `gorm:"column:started_at" json:"started_at"`
	CompletedAt        *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`
	CreatedAt          time.Time  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt          time.Time  `gorm:"column:updated_at" json:"updated_at"`
}

func (Run) TableName() string {
	return "expiry_runs"
}

type Result struct {
	RunID              string `json:"run_id"`
	ExpiredCount       int64  `json:"expired_count"`
	ExpiredCollections int64  `json:"expired_collections"`
	PurgedTokens       int64  `json:"purged_tokens"`
	Failures           int      `json:"failures"`
	FailedPhases       []string `json:"failed_phases,omitempty"`
}

type taskPayload struct {
	RunDate string `json:"run_date"`
}
