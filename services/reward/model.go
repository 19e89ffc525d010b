package reward

import "time"

type Purpose string

const (
	PurposeStamp     Purpose = "stamp"
	PurposePromotion Purpose = "promotion"
	PurposeChallenge Purpose = "challenge"
)

type Acquisition string

const (
	AcquisitionPromotion Acquisition = "promotion"
	AcquisitionStamp     Acquisition = "stamp"
	AcquisitionChallenge Acquisition = "challenge"
)

type CouponStatus string

const (
	CouponActive  CouponStatus = "active"
	CouponUsed    CouponStatus = "used"
	CouponExpired CouponStatus = "expired"
)

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
	DiscountFreeItem   DiscountType = "free_item"
)

// CouponTemplate is maintained by merchants; the engine only reads it.
type CouponTemplate struct {
	ID            string       `gorm:"column:id;primaryKey;type:varchar(32)" json:"id"`
	MerchantID    string       `gorm:"column:merchant_id;type:varchar(64);not null;index" json:"merchant_id"`
	Name          string       `gorm:"column:name" json:"name"`
	Purpose       Purpose      `gorm:"column:purpose;type:varchar(16);not null" json:"purpose"`
	DiscountType  DiscountType `gorm:"column:discount_type;type:varchar(16)" json:"discount_type"`
	DiscountValue int64        `gorm:"column:discount_value" json:"discount_value"`
	Target        string       `gorm:"column:target" json:"target,omitempty"`
	ValidDays     int          `gorm:"column:valid_days" json:"valid_days"`
	ExpiredAt     *time.Time   `gorm:"column:expired_at;index" json:"expired_at,omitempty"`
	Eligibility   string       `gorm:"column:eligibility;type:text" json:"eligibility,omitempty"`
	IsActive      bool         `gorm:"column:is_active;not null" json:"is_active"`
	CreatedAt     time.Time    `gorm:"column:created_at" json:"created_at"`
	UpdatedAt     time.Time    `gorm:"column:updated_at" json:"updated_at"`
}

func (CouponTemplate) TableName() string {
	return "coupon_templates"
}

// HasEnded reports whether the template's absolute end date passed at now.
func (t *CouponTemplate) HasEnded(now time.Time) bool {
	return t.ExpiredAt != nil && !t.ExpiredAt.After(now)
}

// couponExpiry caps now+ValidDays at the template's end date.
func (t *CouponTemplate) couponExpiry(now time.Time) *time.Time {
	var out *time.Time
	if t.ValidDays > 0 {
		exp := now.AddDate(0, 0, t.ValidDays)
		out = &exp
	}
	if t.ExpiredAt != nil && (out == nil || t.ExpiredAt.Before(*out)) {
		exp := *t.ExpiredAt
		out = &exp
	}
	return out
}

type UserCoupon struct {
	ID                 string       `gorm:"column:id;primaryKey;type:varchar(32)" json:"id"`
	UserID             string       `gorm:"column:user_id;type:varchar(64);not null;index" json:"user_id"`
	TemplateID         string       `gorm:"column:template_id;type:varchar(32);not null;index" json:"template_id"`
	MerchantID         string       `gorm:"column:merchant_id;type:varchar(64);not null" json:"merchant_id"`
	Code               string       `gorm:"column:code;type:varchar(64);uniqueIndex" json:"code"`
	AcquisitionType    Acquisition  `gorm:"column:acquisition_type;type:varchar(16);not null" json:"acquisition_type"`
	Status             CouponStatus `gorm:"column:status;type:varchar(16);not null;index" json:"status"`
	SourceCollectionID *string      `gorm:"column:source_collection_id;type:varchar(32)" json:"source_collection_id,omitempty"`
	IssuedAt           time.Time    `gorm:"column:issued_at" json:"issued_at"`
	UsedAt             *time.Time   `gorm:"column:used_at" json:"used_at,omitempty"`
	ExpiredAt          *time.Time   `gorm:"column:expired_at;index" json:"expired_at,omitempty"`
	CreatedAt          time.Time    `gorm:"column:created_at" json:"created_at"`
	UpdatedAt          time.Time    `gorm:"column:updated_at" json:"updated_at"`
}

func (UserCoupon) TableName() string {
	return "user_coupons"
}

type IssueParams struct {
	UserID      string
	TemplateID  string
	Acquisition Acquisition
}
