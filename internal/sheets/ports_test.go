package sheets

import (
	"context"
	"errors"
	"testing"
)

func TestFetchErrorMessage(t *testing.T) {
	cases := []struct {
		err  *FetchError
		want string
	}{
		{Fail("export", "http 500", nil), "export: http 500"},
		{&FetchError{Op: "render chart", Timeout: true, Err: context.DeadlineExceeded}, "render chart (timeout): context deadline exceeded"},
		{NotFound("open surface", `surface "Home"`), `open surface: surface "Home" not found: not found`},
	}
	for _, tc := range cases {
		if got := tc.err.Error(); got != tc.want {
			t.Errorf("Error() = %q, want %q", got, tc.want)
		}
	}
}

func TestFetchErrorMatching(t *testing.T) {
	var err error = NotFound("open surface", "surface")
	if !IsNotFound(err) {
		t.Fatal("expected not found")
	}
	var fe *FetchError
	if !errors.As(err, &fe) || fe.Op != "open surface" {
		t.Fatalf("expected FetchError, got %#v", err)
	}
	if IsNotFound(Fail("export", "boom", errors.New("x"))) {
		t.Fatal("generic failure must not match ErrNotFound")
	}
}

func TestFormatContentType(t *testing.T) {
	if FormatImage.ContentType() != "image/png" || FormatDocument.ContentType() != "application/pdf" || FormatTabular.ContentType() != "text/csv" {
		t.Fatal("unexpected content types")
	}
}
