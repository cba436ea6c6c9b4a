package course

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Course struct {
	ID               string          `json:"id" db:"course_id"`
	Title            string          `json:"courseTitle" db:"title"`
	Description      string          `json:"courseDescription" db:"description"`
	Price            decimal.Decimal `json:"coursePrice" db:"price"`
	Discount         int             `json:"discount" db:"discount"`
	Thumbnail        string          `json:"courseThumbnail" db:"thumbnail_url"`
	ThumbnailKey     string          `json:"-" db:"thumbnail_key"`
	Published        bool            `json:"isPublished" db:"published"`
	EducatorID       string          `json:"educatorId" db:"educator_id"`
	Educator         *Educator       `json:"educator,omitempty" db:"-"`
	Content          Content         `json:"courseContent" db:"content"`
	EnrolledStudents []string        `json:"enrolledStudents" db:"-"`
	Ratings          Ratings         `json:"courseRatings" db:"ratings"`
	CreatedAt        time.Time       `json:"createdAt" db:"created_at"`
	UpdatedAt        time.Time       `json:"updatedAt" db:"updated_at"`
}

// Educator holds the display fields of a course owner.
type Educator struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ImageURL string `json:"imageUrl"`
}

type Chapter struct {
	ID       string    `json:"chapterId" validate:"required"`
	Order    int       `json:"chapterOrder" validate:"gte=0"`
	Title    string    `json:"chapterTitle" validate:"required"`
	Lectures []Lecture `json:"chapterContent" validate:"dive"`
}

type Lecture struct {
	ID          string  `json:"lectureId" validate:"required"`
	Title       string  `json:"lectureTitle" validate:"required"`
	Duration    float64 `json:"lectureDuration" validate:"gte=0"`
	URL         string  `json:"lectureUrl" validate:"required,url"`
	PreviewFree bool    `json:"isPreviewFree"`
	Order       int     `json:"lectureOrder" validate:"gte=0"`
}

type Rating struct {
	UserID string `json:"userId"`
	Rating int    `json:"rating"`
}

// Content is the ordered chapter list, stored as a JSON document.
type Content []Chapter

func (c Content) Value() (driver.Value, error) {
	if c == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(c)
}

func (c *Content) Scan(src any) error {
	return scanJSON(src, c)
}

type Ratings []Rating

func (r Ratings) Value() (driver.Value, error) {
	if r == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(r)
}

func (r *Ratings) Scan(src any) error {
	return scanJSON(src, r)
}

func scanJSON(src any, dst any) error {
	var b []byte
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("unsupported json column type %T", src)
	}
	return json.Unmarshal(b, dst)
}

// Upsert replaces the rating left by userID, or appends a new one.
func (r Ratings) Upsert(userID string, rating int) Ratings {
	out := make(Ratings, 0, len(r)+1)
	for _, v := range r {
		if v.UserID != userID {
			out = append(out, v)
		}
	}
	return append(out, Rating{UserID: userID, Rating: rating})
}

// Average is the mean rating, zero when there are none.
func (r Ratings) Average() float64 {
	if len(r) == 0 {
		return 0
	}
	var sum int
	for _, v := range r {
		sum += v.Rating
	}
	return float64(sum) / float64(len(r))
}

// HasLecture reports whether lectureID exists in any chapter.
func (c Content) HasLecture(lectureID string) bool {
	for _, ch := range c {
		for _, l := range ch.Lectures {
			if l.ID == lectureID {
				return true
			}
		}
	}
	return false
}

// WithoutLectureURLs returns a copy of the content with every lecture URL removed.
func (c Content) WithoutLectureURLs() Content {
	return c.mapLectures(func(l Lecture) Lecture {
		l.URL = ""
		return l
	})
}

// WithPreviewsOnly returns a copy keeping lecture URLs only for free previews.
func (c Content) WithPreviewsOnly() Content {
	return c.mapLectures(func(l Lecture) Lecture {
		if !l.PreviewFree {
			l.URL = ""
		}
		return l
	})
}

func (c Content) mapLectures(f func(Lecture) Lecture) Content {
	out := make(Content, len(c))
	for i, ch := range c {
		lectures := make([]Lecture, len(ch.Lectures))
		for j, l := range ch.Lectures {
			lectures[j] = f(l)
		}
		ch.Lectures = lectures
		out[i] = ch
	}
	return out
}

var ErrInvalidDiscount = errors.New("discount must be between 0 and 100")

// NetPrice is the price after the percentage discount, rounded to cents.
func NetPrice(price decimal.Decimal, discount int) (decimal.Decimal, error) {
	if discount < 0 || discount > 100 {
		return decimal.Zero, ErrInvalidDiscount
	}
	if price.IsNegative() {
		return decimal.Zero, errors.New("price must not be negative")
	}
	off := price.Mul(decimal.NewFromInt(int64(discount))).Div(decimal.NewFromInt(100))
	return price.Sub(off).Round(2), nil
}

// Amount is the amount charged for c before any provider adjustment.
func (c Course) Amount() (decimal.Decimal, error) {
	return NetPrice(c.Price, c.Discount)
}

type CourseNew struct {
	Title       string          `json:"courseTitle" validate:"required"`
	Description string          `json:"courseDescription"`
	Price       decimal.Decimal `json:"coursePrice"`
	Discount    int             `json:"discount" validate:"gte=0,lte=100"`
	Published   *bool           `json:"isPublished"`
	Content     Content         `json:"courseContent" validate:"required,min=1,dive"`
}
