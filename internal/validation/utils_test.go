package validation

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/deppfellow/cluster-reviewer/internal/errs"
	"github.com/google/go-cmp/cmp"
	"github.com/labstack/echo/v4"
)

type moveRequest struct {
	Cluster string   `json:"cluster" validate:"required,clustername"`
	Items   []string `json:"items" validate:"required,min=1,dive,pathsegment"`
}

func (r *moveRequest) Validate() error {
	return Validator().Struct(r)
}

func bind(t *testing.T, body string, payload Validatable) error {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return BindAndValidate(e.NewContext(req, httptest.NewRecorder()), payload)
}

func TestBindAndValidate(t *testing.T) {
	var req moveRequest
	if err := bind(t, `{"cluster":"cluster_3","items":["a.jpg","grp_1"]}`, &req); err != nil {
		t.Fatalf("valid request rejected: %v", err)
	}
	if diff := cmp.Diff([]string{"a.jpg", "grp_1"}, req.Items); diff != "" {
		t.Fatalf("items mismatch (-want +got):\n%s", diff)
	}
}

func TestBindAndValidateFieldErrors(t *testing.T) {
	var req moveRequest
	err := bind(t, `{"cluster":"undefined","items":["../x"]}`, &req)

	var httpErr *errs.HTTPError
	if !errors.As(err, &httpErr) || httpErr.Status != http.StatusBadRequest {
		t.Fatalf("want 400, got %v", err)
	}

	want := []errs.FieldError{
		{Field: "cluster", Error: "must be a cluster name like cluster_12"},
		{Field: "items[0]", Error: "must be a plain file or folder name"},
	}
	if diff := cmp.Diff(want, httpErr.Errors); diff != "" {
		t.Fatalf("field errors mismatch (-want +got):\n%s", diff)
	}
}

func TestBindAndValidateMalformedJSON(t *testing.T) {
	var req moveRequest
	err := bind(t, `{"cluster":`, &req)

	var httpErr *errs.HTTPError
	if !errors.As(err, &httpErr) || httpErr.Status != http.StatusBadRequest || httpErr.Message == "" {
		t.Fatalf("want 400 with a message, got %v", err)
	}
}

func TestIsPathSegment(t *testing.T) {
	for name, want := range map[string]bool{
		"img.jpg":   true,
		"group_01":  true,
		"":          false,
		"..":        false,
		"a/b":       false,
		`a\b`:       false,
		"cluster_9": true,
	} {
		if got := IsPathSegment(name); got != want {
			t.Errorf("IsPathSegment(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestAsHTTPError(t *testing.T) {
	err := AsHTTPError(CustomValidationErrors{{Field: "base_folder", Message: "must be a folder below the root directory"}})

	var he *errs.HTTPError
	if !errors.As(err, &he) || he.Status != http.StatusBadRequest {
		t.Fatalf("AsHTTPError() = %v", err)
	}
	want := []errs.FieldError{{Field: "base_folder", Error: "must be a folder below the root directory"}}
	if diff := cmp.Diff(want, he.Errors); diff != "" {
		t.Errorf("field errors mismatch (-want +got):\n%s", diff)
	}

	plain := errors.New("disk full")
	if got := AsHTTPError(plain); got != plain {
		t.Errorf("plain error changed: %v", got)
	}
}
