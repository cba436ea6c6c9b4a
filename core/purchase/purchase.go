package purchase

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	Pending    Status = "pending"
	Processing Status = "processing"
	Completed  Status = "completed"
	Failed     Status = "failed"
	Refunded   Status = "refunded"
)

const (
	ProviderStripe = "stripe"
	ProviderPaypal = "paypal"
	ProviderDirect = "direct"
	ProviderBypass = "bypass"
)

// transitions lists, for every status, the statuses it may move to.
var transitions = map[Status][]Status{
	Pending:    {Processing, Completed, Failed},
	Processing: {Completed, Failed},
}

// CanTransition reports whether a purchase in status s may move to next.
func (s Status) CanTransition(next Status) bool {
	for _, st := range transitions[s] {
		if st == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible from s.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// sources returns the statuses allowed to move to next.
func sources(next Status) []string {
	var out []string
	for from, tos := range transitions {
		for _, to := range tos {
			if to == next {
				out = append(out, string(from))
			}
		}
	}
	return out
}

type Purchase struct {
	ID             string              `json:"id" db:"purchase_id"`
	UserID         string              `json:"userId" db:"user_id"`
	CourseID       string              `json:"courseId" db:"course_id"`
	Amount         decimal.Decimal     `json:"amount" db:"amount"`
	OriginalAmount decimal.NullDecimal `json:"originalAmount" db:"original_amount"`
	PriceAdjusted  bool                `json:"priceAdjusted" db:"price_adjusted"`
	Currency       string              `json:"currency" db:"currency"`
	Status         Status              `json:"status" db:"status"`
	Provider       string              `json:"provider" db:"provider"`
	ProviderRef    string              `json:"-" db:"provider_ref"`
	CompletedAt    *time.Time          `json:"completedAt,omitempty" db:"completed_at"`
	CreatedAt      time.Time           `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time           `json:"updatedAt" db:"updated_at"`
}

// New builds a purchase of course for user priced by q.
func New(id, userID, courseID string, q Quote, status Status, provider string, now time.Time) Purchase {
	p := Purchase{
		ID:             id,
		UserID:         userID,
		CourseID:       courseID,
		Amount:         q.Amount,
		OriginalAmount: q.Original,
		PriceAdjusted:  q.Adjusted,
		Currency:       q.Currency,
		Status:         status,
		Provider:       provider,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if status == Completed {
		p.CompletedAt = &now
	}
	return p
}

// Sale is a completed purchase of one of an educator's courses.
type Sale struct {
	PurchaseID  string          `json:"purchaseId" db:"purchase_id"`
	CourseID    string          `json:"courseId" db:"course_id"`
	CourseTitle string          `json:"courseTitle" db:"course_title"`
	StudentID   string          `json:"studentId" db:"student_id"`
	StudentName string          `json:"studentName" db:"student_name"`
	StudentImg  string          `json:"studentImageUrl" db:"student_image_url"`
	Amount      decimal.Decimal `json:"amount" db:"amount"`
	PurchasedAt time.Time       `json:"purchaseDate" db:"purchased_at"`
}
