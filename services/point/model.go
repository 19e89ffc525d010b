package point

import (
	"time"

	"smallbiznis-rewards/pkg/db/pagination"

	"github.com/bwmarrin/snowflake"
)

type EntryType string

const (
	EntryEarned EntryType = "earned"
	EntryUsed   EntryType = "used"
)

// Entry is an append-only point movement. A user's balance is the sum of Point.
type Entry struct {
	ID            string    `gorm:"column:id;primaryKey;type:varchar(32)" json:"id"`
	UserID        string    `gorm:"column:user_id;type:varchar(64);not null;index:idx_point_entries_user,priority:1" json:"user_id"`
	MerchantID    string    `gorm:"column:merchant_id;type:varchar(64)" json:"merchant_id,omitempty"`
	Point         int64     `gorm:"column:point;not null" json:"point"`
	Type          EntryType `gorm:"column:type;type:varchar(16);not null" json:"type"`
	CollectionID  *string   `gorm:"column:collection_id;type:varchar(32);index" json:"collection_id,omitempty"`
	TransactionID string    `gorm:"column:transaction_id;type:varchar(32);uniqueIndex" json:"transaction_id"`
	Description   string    `gorm:"column:description" json:"description,omitempty"`
	CreatedAt     time.Time `gorm:"column:created_at;index:idx_point_entries_user,priority:2" json:"created_at"`
}

func (Entry) TableName() string {
	return "point_entries"
}

type ConvertResult struct {
	CollectionID string `json:"collection_id"`
	EntryID      string `json:"entry_id"`
	StampCount   int64  `json:"stamp_count"`
	PointAmount  int64  `json:"point_amount"`
}

type CreditParams struct {
	UserID       string
	MerchantID   string
	Point        int64
	CollectionID *string
	Description  string
}

type ListEntriesParams struct {
	UserID     string
	Pagination pagination.Pagination
}

// newTransactionID renders PT-{snowflake}. The node embeds time and sequence
// so ids stay unique however many entries share a day.
func newTransactionID(node *snowflake.Node) string {
	return "PT-" + node.Generate().String()
}
