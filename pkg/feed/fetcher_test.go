package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestFetch_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s; want GET", r.Method)
		}
		w.Header().Set("Content-Type", "application/xml")
		w.Write([]byte("<eventList/>"))
	}))
	defer srv.Close()

	body, err := NewFetcher(srv.URL, time.Second).Fetch(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(body) != "<eventList/>" {
		t.Errorf("body = %q", body)
	}
}

func TestFetch_HTTPStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewFetcher(srv.URL, time.Second).Fetch(context.Background())
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v; want *FetchError", err)
	}
	if fe.Kind != KindHTTPStatus || fe.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("got kind %s code %d", fe.Kind, fe.StatusCode)
	}
}

func TestFetch_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	_, err := NewFetcher(srv.URL, 50*time.Millisecond).Fetch(context.Background())
	var fe *FetchError
	if !errors.As(err, &fe) || fe.Kind != KindTransport {
		t.Fatalf("err = %v; want transport FetchError", err)
	}
}

func TestFetch_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewFetcher(url, time.Second).Fetch(context.Background())
	var fe *FetchError
	if !errors.As(err, &fe) || fe.Kind != KindTransport {
		t.Fatalf("err = %v; want transport FetchError", err)
	}
	if fe.Unwrap() == nil {
		t.Error("transport error should wrap its cause")
	}
}
