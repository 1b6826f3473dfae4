package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"bookchain/pkg/domain"
)

const testRID = "5DBF34DAE13460D581771389CD1080B513A9674FDDB4D2CA8451E512871CAA1B"

func TestHTTPClientQuerySendsTypeAndArgs(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/query/"+testRID {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`[{"rating":5,"review":"Great book","reviewer_name":"alice"}]`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL+"/", testRID, time.Second)
	reviews, err := Reviews{Client: c}.ForBook(context.Background(), "ISBN1")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if got["type"] != QueryReviewsForBook || got["isbn"] != "ISBN1" {
		t.Fatalf("unexpected payload: %v", got)
	}
	want := domain.Review{Rating: 5, Review: "Great book", ReviewerName: "alice"}
	if len(reviews) != 1 || reviews[0] != want {
		t.Fatalf("unexpected reviews: %+v", reviews)
	}
}

func TestHTTPClientQueryMalformedResponseIsDecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, testRID, time.Second)
	_, err := c.Query(context.Background(), QueryAllBooks, nil)
	var qerr *QueryError
	if !errors.As(err, &qerr) {
		t.Fatalf("expected QueryError, got %v", err)
	}
	if qerr.Kind != KindDecode {
		t.Fatalf("kind = %s, want %s", qerr.Kind, KindDecode)
	}
}

func TestHTTPClientQueryNodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"node down"}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, testRID, time.Second)
	_, err := c.Query(context.Background(), QueryAllBooks, nil)
	var qerr *QueryError
	if !errors.As(err, &qerr) {
		t.Fatalf("expected QueryError, got %v", err)
	}
	if qerr.Kind != KindNode || qerr.Status != http.StatusInternalServerError || !qerr.Temporary() {
		t.Fatalf("unexpected query error: %+v", qerr)
	}
}

func TestHTTPClientQueryTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	c := NewHTTPClient(srv.URL, testRID, 50*time.Millisecond)
	_, err := c.Query(context.Background(), QueryAllBooks, nil)
	var qerr *QueryError
	if !errors.As(err, &qerr) || qerr.Kind != KindTimeout {
		t.Fatalf("expected timeout QueryError, got %v", err)
	}
}

func TestHTTPClientSubmitIncludesSignerAndOrderedArgs(t *testing.T) {
	var got txRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tx/"+testRID {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"txRid":"abc","status":"waiting"}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, testRID, time.Second)
	ctx := WithSigner(context.Background(), "0a0b")
	ack, err := Reviews{Client: c}.Create(ctx, "ISBN1", domain.Review{Rating: 5, Review: "Great book", ReviewerName: "alice"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if ack.TxRID != "abc" {
		t.Fatalf("unexpected ack: %+v", ack)
	}
	if got.Operation != OpCreateReview || got.Signer != "0a0b" {
		t.Fatalf("unexpected tx: %+v", got)
	}
	if len(got.Args) != 4 || got.Args[0] != "ISBN1" || got.Args[1] != "alice" || got.Args[2] != "Great book" || got.Args[3] != float64(5) {
		t.Fatalf("unexpected args: %v", got.Args)
	}
}

func TestHTTPClientSubmitRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"duplicate isbn"}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, testRID, time.Second)
	_, err := c.Submit(context.Background(), OpCreateBook, []any{"x", "t", "a"})
	var serr *SubmitError
	if !errors.As(err, &serr) {
		t.Fatalf("expected SubmitError, got %v", err)
	}
	if serr.Kind != KindRejected || serr.Err.Error() != "duplicate isbn" {
		t.Fatalf("unexpected submit error: %+v", serr)
	}
}
