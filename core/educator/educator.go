package educator

import (
	"github.com/irsalhamdi/edemy/core/user"
	"github.com/shopspring/decimal"
)

type Dashboard struct {
	TotalEarnings decimal.Decimal   `json:"totalEarnings"`
	TotalCourses  int               `json:"totalCourses"`
	Enrolled      []EnrolledStudent `json:"enrolledStudentsData"`
}

// EnrolledStudent pairs a course with one of its students.
type EnrolledStudent struct {
	CourseID    string       `json:"courseId"`
	CourseTitle string       `json:"courseTitle"`
	Student     user.Summary `json:"student"`
}
