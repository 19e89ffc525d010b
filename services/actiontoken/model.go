package actiontoken

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type Purpose string

const (
	PurposeAddStamp Purpose = "add_stamp"
)

// Claims is the signed payload of an action token. Subject is the customer and
// ID is the jti recorded in the consumption ledger.
type Claims struct {
	MerchantID string  `json:"mid"`
	Purpose    Purpose `json:"pur"`
	jwt.RegisteredClaims
}

type IssueParams struct {
	Subject    string
	MerchantID string
	Purpose    Purpose
	TTL        time.Duration
}

type IssuedToken struct {
	Token     string    `json:"token"`
	JTI       string    `json:"jti"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ConsumedToken is the database form of the consumption ledger.
type ConsumedToken struct {
	JTI       string    `gorm:"column:jti;primaryKey;type:varchar(64)"`
	ExpiresAt time.Time `gorm:"column:expires_at;index;not null"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (ConsumedToken) TableName() string {
	return "consumed_tokens"
}
