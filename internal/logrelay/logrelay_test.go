package logrelay

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

type sheet struct {
	mu     sync.Mutex
	status int
	posts  []map[string]string
	rows   map[string]string
}

func (s *sheet) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch r.Method {
	case http.MethodPost:
		r.ParseForm()
		row := map[string]string{}
		for k := range r.PostForm {
			row[k] = r.PostForm.Get(k)
		}
		s.posts = append(s.posts, row)
		if s.status != 0 {
			w.WriteHeader(s.status)
			return
		}
		w.Header().Set("Location", "/echo")
		w.WriteHeader(http.StatusFound)
	case http.MethodGet:
		w.Write([]byte(s.rows[r.URL.Query().Get("kind")]))
	}
}

func TestDirectAttendanceIsFireAndForget(t *testing.T) {
	sh := &sheet{status: http.StatusInternalServerError}
	srv := httptest.NewServer(sh)
	defer srv.Close()

	e := AttendanceEvent{EmployeeID: "E1", EmployeeName: "Alice", Status: "CHECK_IN", Note: "Wi-Fi/IP only", IP: "1.2.3.4"}
	if err := NewDirect(srv.URL, false).Write(context.Background(), e); err != nil {
		t.Fatalf("fire-and-forget write should not inspect status: %v", err)
	}
	if err := NewDirect(srv.URL, true).Write(context.Background(), e); err == nil {
		t.Fatal("confirming write should report the 500")
	}
	if len(sh.posts) != 2 {
		t.Fatalf("posts = %d", len(sh.posts))
	}
	got := sh.posts[0]
	if got["kind"] != "attendance" || got["employeeId"] != "E1" || got["note"] != "Wi-Fi/IP only" || got["ip"] != "1.2.3.4" {
		t.Errorf("form = %v", got)
	}
}

func TestDirectRedirectCountsAsDelivered(t *testing.T) {
	sh := &sheet{}
	srv := httptest.NewServer(sh)
	defer srv.Close()

	if err := NewDirect(srv.URL, true).Write(context.Background(), AttendanceEvent{EmployeeID: "E1"}); err != nil {
		t.Fatal(err)
	}
	if err := NewDirect(srv.URL, false).Write(context.Background(), FeedbackEvent{Rating: 5, Scope: "GENERAL"}); err != nil {
		t.Fatal(err)
	}
	if len(sh.posts) != 2 {
		t.Fatalf("redirect should not be followed, posts = %d", len(sh.posts))
	}
	if sh.posts[1]["source"] != "QR" || sh.posts[1]["rating"] != "5" {
		t.Errorf("feedback form = %v", sh.posts[1])
	}
}

func TestDirectFeedbackChecksStatus(t *testing.T) {
	srv := httptest.NewServer(&sheet{status: http.StatusBadRequest})
	defer srv.Close()

	if err := NewDirect(srv.URL, false).Write(context.Background(), FeedbackEvent{Rating: 3}); err == nil {
		t.Fatal("feedback write should report the 400")
	}
}

func TestDirectUnreachable(t *testing.T) {
	gone := httptest.NewServer(http.NotFoundHandler())
	gone.Close()
	if err := NewDirect(gone.URL, false).Write(context.Background(), AttendanceEvent{}); err == nil {
		t.Fatal("transport failure must be reported even without confirmation")
	}
	if err := NewDirect("", false).Write(context.Background(), AttendanceEvent{}); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("err = %v", err)
	}
}

func TestRelayWriter(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/log" {
			http.NotFound(w, r)
			return
		}
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"result":"ok"}`))
	}))
	defer srv.Close()

	relay := NewRelay(srv.URL)
	if !relay.Probe(context.Background()) {
		t.Fatal("probe should find relay")
	}
	if err := relay.Write(context.Background(), FeedbackEvent{Rating: 4, Scope: "EMPLOYEE", EmployeeID: "E2"}); err != nil {
		t.Fatal(err)
	}
	if got["kind"] != "feedback" || got["rating"] != "4" || got["employeeId"] != "E2" {
		t.Errorf("body = %v", got)
	}
}

func TestSelectWriter(t *testing.T) {
	missing := httptest.NewServer(http.NotFoundHandler())
	defer missing.Close()

	direct := NewDirect("http://sheet.invalid", false)
	if w := SelectWriter(context.Background(), NewRelay(missing.URL), direct); w != Writer(direct) {
		t.Error("404 relay should fall back to direct")
	}
	if w := SelectWriter(context.Background(), nil, direct); w != Writer(direct) {
		t.Error("nil relay should fall back to direct")
	}
	if err := NewRelay(missing.URL).Write(context.Background(), AttendanceEvent{}); !errors.Is(err, ErrRelayUnavailable) {
		t.Errorf("err = %v", err)
	}
}

func TestClientFetch(t *testing.T) {
	sh := &sheet{rows: map[string]string{
		"attendance": `[{"timestamp":"2025-01-02T03:04:05Z","employeeId":101,"employeeName":"Alice","status":"CHECK_IN","note":"Wi-Fi/IP only","ip":"1.2.3.4"}]`,
		"feedback":   `[{"rating":"5","scope":"EMPLOYEE","employeeId":"E1"},{"rating":"n/a","employeeId":"E1"},{"rating":3,"comment":null}]`,
	}}
	srv := httptest.NewServer(sh)
	defer srv.Close()

	c := NewClient(NewDirect(srv.URL+"?deployment=x", false), srv.URL+"?deployment=x")
	att, err := c.FetchAllAttendance(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(att) != 1 || att[0].EmployeeID != "101" || att[0].Note != "Wi-Fi/IP only" {
		t.Errorf("attendance = %+v", att)
	}

	fb, err := c.FetchAllFeedback(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(fb) != 3 || fb[0].Rating != 5 || fb[1].Rating != 0 || fb[2].Rating != 3 || fb[2].Comment != "" {
		t.Errorf("feedback = %+v", fb)
	}
}

func TestClientUnconfigured(t *testing.T) {
	c := NewClient(nil, "")
	if err := c.SendAttendance(context.Background(), AttendanceEvent{}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("err = %v", err)
	}
	if err := c.SendFeedback(context.Background(), FeedbackEvent{}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("err = %v", err)
	}
	rows, err := c.FetchAllAttendance(context.Background())
	if err != nil || rows == nil || len(rows) != 0 {
		t.Errorf("rows = %v, err = %v", rows, err)
	}
}

func TestClientRelayOnly(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/api/log" {
			json.NewDecoder(r.Body).Decode(&got)
		}
		w.Write([]byte(`{"result":"success"}`))
	}))
	defer srv.Close()

	c := NewClient(NewRelay(srv.URL), "")
	if err := c.SendFeedback(context.Background(), FeedbackEvent{Rating: 4}); err != nil {
		t.Fatalf("relay-only send: %v", err)
	}
	if got["kind"] != "feedback" || got["rating"] != "4" {
		t.Errorf("relay body = %v", got)
	}

	if err := NewClient(NewDirect("", true), "").SendFeedback(context.Background(), FeedbackEvent{Rating: 4}); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("no endpoint: err = %v", err)
	}
}

func TestFormEncoding(t *testing.T) {
	enc := Form(FeedbackEvent{Rating: 2, Comment: "quá chậm & ồn"}).Encode()
	if !strings.Contains(enc, "kind=feedback") || !strings.Contains(enc, "rating=2") {
		t.Errorf("encoded = %s", enc)
	}
}
