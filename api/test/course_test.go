package test

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/irsalhamdi/edemy/core/course"
	"github.com/shopspring/decimal"
)

func content() course.Content {
	return course.Content{{
		ID:    "ch-1",
		Order: 1,
		Title: "Getting started",
		Lectures: []course.Lecture{
			{ID: "lec-1", Title: "Welcome", Duration: 3, URL: "https://youtu.be/welcome", PreviewFree: true, Order: 1},
			{ID: "lec-2", Title: "Setup", Duration: 12, URL: "https://youtu.be/setup", Order: 2},
		},
	}}
}

func newCourse(title, price string, discount int) course.CourseNew {
	return course.CourseNew{
		Title:       title,
		Description: "<p>" + title + "</p>",
		Price:       decimal.RequireFromString(price),
		Discount:    discount,
		Content:     content(),
	}
}

// createCourse publishes nc through the educator endpoint.
func (env *TestEnv) createCourse(t *testing.T, token string, nc course.CourseNew) course.Course {
	t.Helper()

	w := env.upload(t, token, nc, "thumb.png")

	var c course.Course
	Expect(t, w, http.StatusCreated, &c)
	return c
}

func (env *TestEnv) upload(t *testing.T, token string, nc any, filename string) *http.Response {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	data, err := json.Marshal(nc)
	if err != nil {
		t.Fatal(err)
	}
	if err := mw.WriteField("courseData", string(data)); err != nil {
		t.Fatal(err)
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("image", filename)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write([]byte("\x89PNG\r\n\x1a\nthumbnail"))
	}
	mw.Close()

	r, err := http.NewRequest(http.MethodPost, env.URL+"/api/educator/add-course", &body)
	if err != nil {
		t.Fatal(err)
	}
	r.Header.Set("Content-Type", mw.FormDataContentType())
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}

	w, err := env.Client().Do(r)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { w.Body.Close() })
	return w
}

func TestCourseCatalog(t *testing.T) {
	env, err := NewTestEnv(t, "course_catalog")
	if err != nil {
		t.Fatal(err)
	}

	edu := env.Token(t, "user_educator", "educator")
	student := env.Token(t, "user_student", "")

	t.Run("students cannot publish", func(t *testing.T) {
		w := env.upload(t, student, newCourse("Go", "10", 0), "thumb.png")
		Expect(t, w, http.StatusForbidden, nil)
	})

	t.Run("anonymous cannot publish", func(t *testing.T) {
		w := env.upload(t, "", newCourse("Go", "10", 0), "thumb.png")
		Expect(t, w, http.StatusUnauthorized, nil)
	})

	t.Run("thumbnail is required", func(t *testing.T) {
		w := env.upload(t, edu, newCourse("Go", "10", 0), "")
		Expect(t, w, http.StatusBadRequest, nil)
	})

	t.Run("discount out of range", func(t *testing.T) {
		w := env.upload(t, edu, newCourse("Go", "10", 101), "thumb.png")
		Expect(t, w, http.StatusBadRequest, nil)
	})

	t.Run("thumbnail must be an image", func(t *testing.T) {
		w := env.upload(t, edu, newCourse("Go", "10", 0), "notes.txt")
		Expect(t, w, http.StatusBadRequest, nil)
	})

	published := env.createCourse(t, edu, newCourse("Concurrency in Go", "49.99", 10))
	if published.EducatorID != "user_educator" || !published.Published {
		t.Fatalf("unexpected course: %+v", published)
	}
	if !env.Media.has(published.Thumbnail) {
		t.Fatalf("thumbnail %q was not uploaded", published.Thumbnail)
	}

	draft := newCourse("Unreleased", "20", 0)
	draft.Published = new(bool)
	hidden := env.createCourse(t, edu, draft)

	t.Run("list shows only published courses", func(t *testing.T) {
		var got []course.Course
		Expect(t, env.Do(t, http.MethodGet, "/api/courses", "", nil), http.StatusOK, &got)

		if len(got) != 1 || got[0].ID != published.ID {
			t.Fatalf("expected only %s, got %+v", published.ID, got)
		}
		for _, ch := range got[0].Content {
			for _, l := range ch.Lectures {
				if l.URL != "" {
					t.Errorf("lecture %s exposes its url in the catalog", l.ID)
				}
			}
		}
		if got[0].Educator == nil || got[0].Educator.Name != "Name of user_educator" {
			t.Errorf("expected educator summary, got %+v", got[0].Educator)
		}
	})

	t.Run("show hides paid lectures", func(t *testing.T) {
		var got course.Course
		Expect(t, env.Do(t, http.MethodGet, "/api/courses/"+published.ID, "", nil), http.StatusOK, &got)

		urls := map[string]string{}
		for _, l := range got.Content[0].Lectures {
			urls[l.ID] = l.URL
		}
		exp := map[string]string{"lec-1": "https://youtu.be/welcome", "lec-2": ""}
		if diff := cmp.Diff(exp, urls); diff != "" {
			t.Errorf("lecture urls mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("show unpublished", func(t *testing.T) {
		Expect(t, env.Do(t, http.MethodGet, "/api/courses/"+hidden.ID, "", nil), http.StatusNotFound, nil)
	})

	t.Run("show malformed id", func(t *testing.T) {
		Expect(t, env.Do(t, http.MethodGet, "/api/courses/not-an-id", "", nil), http.StatusNotFound, nil)
	})

	t.Run("educator sees drafts", func(t *testing.T) {
		var got []course.Course
		Expect(t, env.Do(t, http.MethodGet, "/api/educator/courses", edu, nil), http.StatusOK, &got)
		if len(got) != 2 {
			t.Fatalf("expected 2 owned courses, got %d", len(got))
		}
	})

	t.Run("only the owner deletes", func(t *testing.T) {
		other := env.Token(t, "user_other_educator", "educator")
		Expect(t, env.Do(t, http.MethodDelete, "/api/educator/courses/"+hidden.ID, other, nil), http.StatusForbidden, nil)
	})

	t.Run("delete", func(t *testing.T) {
		Expect(t, env.Do(t, http.MethodDelete, "/api/educator/courses/"+hidden.ID, edu, nil), http.StatusNoContent, nil)
		Expect(t, env.Do(t, http.MethodDelete, "/api/educator/courses/"+hidden.ID, edu, nil), http.StatusNotFound, nil)
		if env.Media.has(hidden.Thumbnail) {
			t.Errorf("thumbnail of deleted course still stored")
		}
	})
}

func TestHealth(t *testing.T) {
	env, err := NewTestEnv(t, "health")
	if err != nil {
		t.Fatal(err)
	}

	var st struct {
		Status  string `json:"status"`
		Courses int    `json:"courses"`
	}
	Expect(t, env.Do(t, http.MethodGet, "/api/test-db", "", nil), http.StatusOK, &st)
	if st.Status != "ok" || st.Courses != 0 {
		t.Errorf("unexpected health report %+v", st)
	}
}
