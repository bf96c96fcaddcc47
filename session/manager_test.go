package session_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/bluescreen10/sessionx/memstore"
	"github.com/bluescreen10/sessionx/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
)

type mockstore struct {
	get    func(string) ([]byte, bool, error)
	set    func(string, []byte, time.Time) error
	delete func(string) error
}

func (s *mockstore) Get(token string) ([]byte, bool, error) {
	return s.get(token)
}

func (s *mockstore) Set(token string, data []byte, expiresAt time.Time) error {
	return s.set(token, data, expiresAt)
}

func (s *mockstore) Delete(token string) error {
	return s.delete(token)
}

var _ session.Store = &mockstore{}

type collectingStore struct {
	mockstore
	collected chan struct{}
}

func (s *collectingStore) DeleteExpired() error {
	s.collected <- struct{}{}
	return nil
}

var _ session.Collector = &collectingStore{}

func TestCreateSession(t *testing.T) {
	store := &mockstore{}
	sm := session.NewManager(store)

	expectedId := 123
	store.get = func(string) ([]byte, bool, error) {
		return []byte{}, false, nil
	}

	var storedData []byte
	store.set = func(token string, data []byte, _ time.Time) error {
		storedData = data
		return nil
	}

	h1 := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := sm.Get(r)
		sess.PutData("user_id", expectedId)
	})

	r1 := httptest.NewRequest("POST", "/", &bytes.Buffer{})
	w1 := httptest.NewRecorder()

	h := sm.Handler(h1)
	h.ServeHTTP(w1, r1)

	store.get = func(string) ([]byte, bool, error) {
		return storedData, true, nil
	}

	h2 := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := sm.Get(r)
		if id := sess.GetInt("user_id"); id != expectedId {
			t.Fatalf("expected value '%d' got '%d'", expectedId, id)
		}
	})

	cookies := w1.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected '1' cookie got '%d'", len(cookies))
	}

	r2 := httptest.NewRequest("GET", "/", &bytes.Buffer{})
	w2 := httptest.NewRecorder()
	r2.AddCookie(cookies[0])

	h = sm.Handler(h2)
	h.ServeHTTP(w2, r2)
}

func TestCreateSessionWithUnknownCookie(t *testing.T) {
	store := &mockstore{}
	sm := session.NewManager(store)

	expectedId := 123
	store.get = func(string) ([]byte, bool, error) {
		return []byte{}, false, nil
	}

	var storedData []byte
	store.set = func(token string, data []byte, _ time.Time) error {
		storedData = data
		return nil
	}

	h1 := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := sm.Get(r)
		if u := sess.GetInt("user_id"); u != 0 {
			t.Fatalf("expected '0' session but got '%d'", u)
		}
		if id := sess.GetID(); id == "abc123" {
			t.Fatal("expected a fresh session id for an unknown token")
		}
		sess.PutData("user_id", expectedId)
	})

	cookie := "SESSID=abc123;"
	r1 := httptest.NewRequest("POST", "/", &bytes.Buffer{})
	r1.Header.Set("Cookie", cookie)
	w1 := httptest.NewRecorder()

	h := sm.Handler(h1)
	h.ServeHTTP(w1, r1)

	store.get = func(string) ([]byte, bool, error) {
		return storedData, true, nil
	}

	h2 := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := sm.Get(r)
		if id := sess.GetInt("user_id"); id != expectedId {
			t.Fatalf("expected value '%d' got '%d'", expectedId, id)
		}
	})

	r2 := httptest.NewRequest("GET", "/", &bytes.Buffer{})
	w2 := httptest.NewRecorder()
	r2.AddCookie(w1.Result().Cookies()[0])

	h = sm.Handler(h2)
	h.ServeHTTP(w2, r2)
}

func TestErrorLoadingSession(t *testing.T) {
	store := &mockstore{}
	sm := session.NewManager(store)

	store.get = func(string) ([]byte, bool, error) {
		return []byte{}, false, errors.New("test")
	}

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello world"))
	})

	cookie := "SESSID=abc123;"
	r := httptest.NewRequest("POST", "/", &bytes.Buffer{})
	r.Header.Set("Cookie", cookie)
	w := httptest.NewRecorder()

	h1 := sm.Handler(h)
	h1.ServeHTTP(w, r)

	if status := w.Result().StatusCode; status != http.StatusInternalServerError {
		t.Fatalf("expected status '500' got '%d'", status)
	}
}

func TestErrorSaveSession(t *testing.T) {
	store := &mockstore{}
	sm := session.NewManager(store)

	store.get = func(string) ([]byte, bool, error) {
		return []byte{}, false, nil
	}

	store.set = func(string, []byte, time.Time) error {
		return errors.New("test")
	}

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := sm.Get(r)
		sess.PutData("hello", "world")
		w.Write([]byte("hello world"))
	})

	cookie := "SESSID=abc123;"
	r := httptest.NewRequest("POST", "/", &bytes.Buffer{})
	r.Header.Set("Cookie", cookie)
	w := httptest.NewRecorder()

	h1 := sm.Handler(h)
	h1.ServeHTTP(w, r)

	if cookie := w.Result().Header.Get("Set-Cookie"); cookie != "" {
		t.Fatal("expected no cookie but got one")
	}
}

func TestErrorDeleteSession(t *testing.T) {
	store := &mockstore{}
	sm := session.NewManager(store)

	store.get = func(string) ([]byte, bool, error) {
		return []byte{}, false, nil
	}

	store.set = func(string, []byte, time.Time) error {
		t.Fatal("unexpected call to store set")
		return nil
	}

	store.delete = func(string) error {
		return errors.New("test")
	}

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := sm.Get(r)
		sess.Destroy("logout")
		w.Write([]byte("hello world"))
	})

	cookie := "SESSID=abc123;"
	r := httptest.NewRequest("POST", "/", &bytes.Buffer{})
	r.Header.Set("Cookie", cookie)
	w := httptest.NewRecorder()

	h1 := sm.Handler(h)
	h1.ServeHTTP(w, r)

	if cookie := w.Result().Header.Get("Set-Cookie"); cookie != "" {
		t.Fatal("expected no cookie but got one")
	}
}

func TestDestroySession(t *testing.T) {
	store := &mockstore{}
	output := &bytes.Buffer{}
	sm := session.NewManager(store, session.WithLogger(zerolog.New(output)))

	store.get = func(string) ([]byte, bool, error) {
		return []byte{}, false, nil
	}

	store.set = func(string, []byte, time.Time) error {
		t.Fatal("set called")
		return nil
	}

	var called bool
	store.delete = func(string) error {
		called = true
		return nil
	}

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := sm.Get(r)
		sess.PutData("user_id", 1)
		sess.Destroy("user logged out")
		if sess.HasKey("user_id") {
			t.Fatal("expected data to be removed")
		}
		w.Write([]byte("hello world"))
	})

	r := httptest.NewRequest("POST", "/", &bytes.Buffer{})
	w := httptest.NewRecorder()

	h1 := sm.Handler(h)
	h1.ServeHTTP(w, r)

	if !called {
		t.Fatal("expected delete to be called")
	}

	cookies := w.Result().Cookies()
	if len(cookies) != 1 || cookies[0].MaxAge != -1 {
		t.Fatalf("expected an expired cookie got '%v'", cookies)
	}

	if log := output.String(); !strings.Contains(log, "user logged out") {
		t.Fatalf("expected destroy reason in log got '%s'", log)
	}
}

func TestUnstartedSessionIsNotSaved(t *testing.T) {
	store := &mockstore{}
	sm := session.NewManager(store)

	store.set = func(string, []byte, time.Time) error {
		t.Fatal("set called")
		return nil
	}

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if sm.Get(r).IsStarted() {
			t.Fatal("expected session not to be started")
		}
		w.WriteHeader(http.StatusOK)
	})

	r := httptest.NewRequest("GET", "/", &bytes.Buffer{})
	w := httptest.NewRecorder()
	sm.Handler(h).ServeHTTP(w, r)

	if cookie := w.Result().Header.Get("Set-Cookie"); cookie != "" {
		t.Fatal("expected no cookie but got one")
	}
	if vary := w.Result().Header.Get("Vary"); vary != "Cookie" {
		t.Fatalf("expected Vary 'Cookie' got '%s'", vary)
	}
}

func TestSessionInactivityTimeout(t *testing.T) {
	store := &mockstore{}
	now := time.Now()
	sm := session.NewManager(store,
		session.WithInactivityTimeout(30*time.Minute),
		session.WithClock(func() time.Time { return now }),
	)

	data, err := session.GobCodec{}.Encode(session.Record{
		Name:         "SESSID",
		CreatedAt:    now.Add(-3 * time.Hour),
		LastActivity: now.Add(-2 * time.Hour),
		Values:       map[string]any{"user_id": 1},
	})
	if err != nil {
		t.Fatal(err)
	}

	store.get = func(string) ([]byte, bool, error) {
		return data, true, nil
	}

	var deleted string
	store.delete = func(token string) error {
		deleted = token
		return nil
	}

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := sm.Get(r)
		if sess.HasKey("user_id") {
			t.Fatal("expected an expired session not to be resumed")
		}
		if sess.GetID() == "abc123" {
			t.Fatal("expected a fresh session id")
		}
	})

	r := httptest.NewRequest("GET", "/", &bytes.Buffer{})
	r.Header.Set("Cookie", "SESSID=abc123;")
	w := httptest.NewRecorder()
	sm.Handler(h).ServeHTTP(w, r)

	if deleted != "abc123" {
		t.Fatalf("expected expired session 'abc123' to be deleted got '%s'", deleted)
	}
}

func TestSessionLifetimeExceeded(t *testing.T) {
	testExpiredSession(t, "lifetime exceeded", func(now time.Time) session.Record {
		return session.Record{
			Name:         "SESSID",
			CreatedAt:    now.Add(-time.Hour),
			LastActivity: now.Add(-time.Minute),
			Lifetime:     now.Add(-time.Second),
			Values:       map[string]any{"user_id": 1},
		}
	})
}

func TestSessionMaximumAgeExceeded(t *testing.T) {
	testExpiredSession(t, "maximum age exceeded", func(now time.Time) session.Record {
		return session.Record{
			Name:         "SESSID",
			CreatedAt:    now.Add(-2 * time.Hour),
			LastActivity: now.Add(-time.Minute),
			MaximumAge:   time.Hour,
			Values:       map[string]any{"user_id": 1},
		}
	})
}

func testExpiredSession(t *testing.T, reason string, record func(time.Time) session.Record) {
	t.Helper()

	store := &mockstore{}
	now := time.Now()
	reg := prometheus.NewRegistry()
	output := &bytes.Buffer{}
	sm := session.NewManager(store,
		session.WithInactivityTimeout(time.Hour),
		session.WithClock(func() time.Time { return now }),
		session.WithRegisterer(reg),
		session.WithLogger(zerolog.New(output)),
	)

	data, err := session.GobCodec{}.Encode(record(now))
	if err != nil {
		t.Fatal(err)
	}

	store.get = func(string) ([]byte, bool, error) {
		return data, true, nil
	}

	var deleted string
	store.delete = func(token string) error {
		deleted = token
		return nil
	}

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := sm.Get(r)
		if sess.HasKey("user_id") {
			t.Fatal("expected an expired session not to be resumed")
		}
		if sess.GetID() == "abc123" {
			t.Fatal("expected a fresh session id")
		}
	})

	r := httptest.NewRequest("GET", "/", &bytes.Buffer{})
	r.Header.Set("Cookie", "SESSID=abc123;")
	sm.Handler(h).ServeHTTP(httptest.NewRecorder(), r)

	if deleted != "abc123" {
		t.Fatalf("expected expired session 'abc123' to be deleted got '%s'", deleted)
	}
	if log := output.String(); !strings.Contains(log, reason) {
		t.Fatalf("expected reason '%s' in log got '%s'", reason, log)
	}

	expected := `
# HELP sessionx_sessions_expired_total Sessions found expired and deleted.
# TYPE sessionx_sessions_expired_total counter
sessionx_sessions_expired_total 1
`
	err = testutil.GatherAndCompare(reg, strings.NewReader(expected), "sessionx_sessions_expired_total")
	if err != nil {
		t.Fatal(err)
	}
}

func TestResume(t *testing.T) {
	now := time.Now()
	store := memstore.New()
	sm := session.NewManager(store, session.WithClock(func() time.Time { return now }))

	r := httptest.NewRequest("GET", "/", &bytes.Buffer{})
	sess := sm.Get(r)
	sess.PutData("name", "alice")
	if err := sm.Save(sess); err != nil {
		t.Fatal(err)
	}

	now = now.Add(5 * time.Minute)

	resumed := sm.Get(r)
	resumed.SetID(sess.GetID())

	ok, err := resumed.CanBeResumed()
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected session to be resumable")
	}

	inactivity, err := resumed.Resume()
	if err != nil {
		t.Fatal(err)
	}
	if inactivity != 5*time.Minute {
		t.Fatalf("expected inactivity '%s' got '%s'", 5*time.Minute, inactivity)
	}
	if v := resumed.GetString("name"); v != "alice" {
		t.Fatalf("expected 'alice' got '%s'", v)
	}
	if !resumed.IsStarted() {
		t.Fatal("expected resumed session to be started")
	}
	if c1, c2 := sess.Checksum(), resumed.Checksum(); c1 != c2 {
		t.Fatalf("expected checksum '%s' got '%s'", c1, c2)
	}
}

func TestUnchangedSessionIsNotRewritten(t *testing.T) {
	store := memstore.New()
	var sets int
	counting := &mockstore{
		get: store.Get,
		set: func(token string, data []byte, expiresAt time.Time) error {
			sets++
			return store.Set(token, data, expiresAt)
		},
		delete: store.Delete,
	}
	sm := session.NewManager(counting, session.WithTouchInterval(time.Hour))

	prefs := []string{"light"}
	serve := func(h http.HandlerFunc, cookies []*http.Cookie) *httptest.ResponseRecorder {
		r := httptest.NewRequest("GET", "/", &bytes.Buffer{})
		for _, c := range cookies {
			r.AddCookie(c)
		}
		w := httptest.NewRecorder()
		sm.Handler(h).ServeHTTP(w, r)
		return w
	}

	w := serve(func(w http.ResponseWriter, r *http.Request) {
		sm.Get(r).PutData("prefs", prefs)
	}, nil)
	cookies := w.Result().Cookies()

	serve(func(w http.ResponseWriter, r *http.Request) {
		if !sm.Get(r).HasKey("prefs") {
			t.Fatal("expected session to be resumed")
		}
	}, cookies)

	if sets != 1 {
		t.Fatalf("expected '1' write got '%d'", sets)
	}

	serve(func(w http.ResponseWriter, r *http.Request) {
		p := sm.Get(r).GetData("prefs").([]string)
		p[0] = "dark"
	}, cookies)

	if sets != 2 {
		t.Fatalf("expected in-place change to be written, got '%d' writes", sets)
	}
}

func TestCookieAttributes(t *testing.T) {
	store := memstore.New()
	sm := session.NewManager(store,
		session.WithName("app"),
		session.WithDomain("example.com"),
		session.WithPath("/app"),
		session.WithSecure(true),
		session.WithMaximumAge(10*time.Minute),
		session.WithSameSite(http.SameSiteStrictMode),
	)

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sm.Get(r).Start()
	})

	r := httptest.NewRequest("GET", "/app", &bytes.Buffer{})
	w := httptest.NewRecorder()
	sm.Handler(h).ServeHTTP(w, r)

	cookies := w.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected '1' cookie got '%d'", len(cookies))
	}

	c := cookies[0]
	if c.Name != "app" {
		t.Fatalf("expected name 'app' got '%s'", c.Name)
	}
	if c.Domain != "example.com" {
		t.Fatalf("expected domain 'example.com' got '%s'", c.Domain)
	}
	if c.Path != "/app" {
		t.Fatalf("expected path '/app' got '%s'", c.Path)
	}
	if !c.Secure || !c.HttpOnly {
		t.Fatalf("expected secure and http only cookie got '%v'", c)
	}
	if c.MaxAge != 600 {
		t.Fatalf("expected max age '600' got '%d'", c.MaxAge)
	}
	if c.SameSite != http.SameSiteStrictMode {
		t.Fatalf("expected same site strict got '%v'", c.SameSite)
	}

	expected := time.Now().Add(24*time.Hour + time.Minute)
	if c.Expires.IsZero() || c.Expires.After(expected) {
		t.Fatalf("expected cookie expiration before '%s' got '%s'", expected.UTC(), c.Expires.UTC())
	}
}

func TestGarbageCollection(t *testing.T) {
	store := &collectingStore{collected: make(chan struct{}, 1)}
	store.get = func(string) ([]byte, bool, error) {
		return nil, false, nil
	}
	sm := session.NewManager(store,
		session.WithGCProbability(1),
		session.WithRandom(func() float64 { return 0 }),
	)

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	r := httptest.NewRequest("GET", "/", &bytes.Buffer{})
	w := httptest.NewRecorder()
	sm.Handler(h).ServeHTTP(w, r)

	select {
	case <-store.collected:
	case <-time.After(time.Second):
		t.Fatal("expected garbage collection to run")
	}
}

func TestNoGarbageCollection(t *testing.T) {
	store := &collectingStore{collected: make(chan struct{}, 1)}
	store.get = func(string) ([]byte, bool, error) {
		return nil, false, nil
	}
	sm := session.NewManager(store,
		session.WithGCProbability(0.5),
		session.WithRandom(func() float64 { return 0.7 }),
	)

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	r := httptest.NewRequest("GET", "/", &bytes.Buffer{})
	w := httptest.NewRecorder()
	sm.Handler(h).ServeHTTP(w, r)

	select {
	case <-store.collected:
		t.Fatal("expected garbage collection not to run")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCollectNotSupported(t *testing.T) {
	sm := session.NewManager(&mockstore{})
	if err := sm.Collect(); !errors.Is(err, session.ErrNotSupported) {
		t.Fatalf("expected '%v' got '%v'", session.ErrNotSupported, err)
	}
}

func TestDestroyTagged(t *testing.T) {
	store := memstore.New()
	sm := session.NewManager(store)
	r := httptest.NewRequest("GET", "/", &bytes.Buffer{})

	ids := make([]string, 3)
	for i, tag := range []string{"Acme-Admin", "Acme-Admin", "Acme-Guest"} {
		sess := sm.Get(r)
		if err := sess.AddTag(tag); err != nil {
			t.Fatal(err)
		}
		if err := sm.Save(sess); err != nil {
			t.Fatal(err)
		}
		ids[i] = sess.GetID()
	}

	count, err := sm.DestroyTagged(context.Background(), "Acme-Admin")
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Fatalf("expected '2' destroyed sessions got '%d'", count)
	}

	for i, id := range ids {
		_, found, err := sm.Find(id)
		if err != nil {
			t.Fatal(err)
		}
		if expected := i == 2; found != expected {
			t.Fatalf("expected session '%d' found '%v' got '%v'", i, expected, found)
		}
	}
}

func TestDestroyTaggedCurrentSession(t *testing.T) {
	now := time.Now()
	store := memstore.New()
	sm := session.NewManager(store, session.WithClock(func() time.Time { return now }))

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := sm.Get(r).AddTag("tenant"); err != nil {
			t.Fatal(err)
		}
	})
	w := httptest.NewRecorder()
	sm.Handler(h).ServeHTTP(w, httptest.NewRequest("GET", "/", &bytes.Buffer{}))
	cookies := w.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected '1' cookie got '%d'", len(cookies))
	}
	id := cookies[0].Value

	now = now.Add(2 * time.Minute)

	h = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count, err := sm.DestroyTagged(r.Context(), "tenant")
		if err != nil {
			t.Fatal(err)
		}
		if count != 1 {
			t.Fatalf("expected '1' destroyed session got '%d'", count)
		}
	})
	r := httptest.NewRequest("GET", "/", &bytes.Buffer{})
	r.AddCookie(cookies[0])
	w = httptest.NewRecorder()
	sm.Handler(h).ServeHTTP(w, r)

	if _, found, _ := store.Get(id); found {
		t.Fatal("expected tagged session to stay deleted")
	}
	cookies = w.Result().Cookies()
	if len(cookies) != 1 || cookies[0].MaxAge != -1 {
		t.Fatalf("expected an expired cookie got '%v'", cookies)
	}
}

func TestTouchDoesNotRecreateDeletedSession(t *testing.T) {
	now := time.Now()
	store := memstore.New()
	sm := session.NewManager(store, session.WithClock(func() time.Time { return now }))

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sm.Get(r).PutData("name", "alice")
	})
	w := httptest.NewRecorder()
	sm.Handler(h).ServeHTTP(w, httptest.NewRequest("GET", "/", &bytes.Buffer{}))
	cookie := w.Result().Cookies()[0]

	now = now.Add(2 * time.Minute)

	h = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := sm.Get(r)
		if !sess.HasKey("name") {
			t.Fatal("expected session to be resumed")
		}
		// deleted concurrently, e.g. by another instance
		if err := store.Delete(sess.GetID()); err != nil {
			t.Fatal(err)
		}
	})
	r := httptest.NewRequest("GET", "/", &bytes.Buffer{})
	r.AddCookie(cookie)
	sm.Handler(h).ServeHTTP(httptest.NewRecorder(), r)

	if _, found, _ := store.Get(cookie.Value); found {
		t.Fatal("expected deleted session not to be written back")
	}
}

func TestDestroyTaggedNotSupported(t *testing.T) {
	sm := session.NewManager(&mockstore{})
	if _, err := sm.DestroyTagged(context.Background(), "tag"); !errors.Is(err, session.ErrNotSupported) {
		t.Fatalf("expected '%v' got '%v'", session.ErrNotSupported, err)
	}
}

func TestFindRemoteSession(t *testing.T) {
	now := time.Now()
	store := memstore.New()
	sm := session.NewManager(store, session.WithClock(func() time.Time { return now }))

	sess := sm.Get(httptest.NewRequest("GET", "/", &bytes.Buffer{}))
	sess.PutData("count", 3)
	if err := sm.Save(sess); err != nil {
		t.Fatal(err)
	}
	saved := now

	now = now.Add(time.Minute)

	remote, found, err := sm.Find(sess.GetID())
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatal("expected session to be found")
	}
	if !remote.IsRemote() {
		t.Fatal("expected a remote session")
	}
	if ts := remote.GetLastActivityTimestamp(); !ts.Equal(saved) {
		t.Fatalf("expected last activity '%s' got '%s'", saved, ts)
	}
	if ts := sess.GetLastActivityTimestamp(); !ts.Equal(now) {
		t.Fatalf("expected local last activity '%s' got '%s'", now, ts)
	}
	if v := remote.GetInt("count"); v != 3 {
		t.Fatalf("expected '3' got '%d'", v)
	}
	if ok, _ := remote.CanBeResumed(); ok {
		t.Fatal("expected a remote session not to be resumable")
	}
}

func TestFindExpiredSession(t *testing.T) {
	now := time.Now()
	store := memstore.New()
	reg := prometheus.NewRegistry()
	sm := session.NewManager(store,
		session.WithInactivityTimeout(time.Minute),
		session.WithClock(func() time.Time { return now }),
		session.WithRegisterer(reg),
	)

	data, err := session.GobCodec{}.Encode(session.Record{
		Name:         "SESSID",
		CreatedAt:    now.Add(-2 * time.Hour),
		LastActivity: now.Add(-time.Hour),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := store.Set("abc123", data, time.Now().Add(time.Hour)); err != nil {
		t.Fatal(err)
	}

	sess, found, err := sm.Find("abc123")
	if err != nil {
		t.Fatal(err)
	}
	if found || sess != nil {
		t.Fatal("expected an expired session not to be found")
	}
	if _, found, _ := store.Get("abc123"); found {
		t.Fatal("expected expired session to be deleted")
	}

	expected := `
# HELP sessionx_sessions_expired_total Sessions found expired and deleted.
# TYPE sessionx_sessions_expired_total counter
sessionx_sessions_expired_total 1
`
	err = testutil.GatherAndCompare(reg, strings.NewReader(expected), "sessionx_sessions_expired_total")
	if err != nil {
		t.Fatal(err)
	}
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	sm := session.NewManager(memstore.New(), session.WithRegisterer(reg))

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := sm.Get(r)
		sess.Start()
		sess.Destroy("test")
	})
	sm.Handler(h).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", &bytes.Buffer{}))

	expected := `
# HELP sessionx_sessions_destroyed_total Sessions destroyed explicitly or by tag.
# TYPE sessionx_sessions_destroyed_total counter
sessionx_sessions_destroyed_total 1
# HELP sessionx_sessions_started_total Sessions started.
# TYPE sessionx_sessions_started_total counter
sessionx_sessions_started_total 1
`
	err := testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"sessionx_sessions_started_total", "sessionx_sessions_destroyed_total")
	if err != nil {
		t.Fatal(err)
	}
}

func TestSessionValues(t *testing.T) {
	store := &mockstore{}
	sm := session.NewManager(store)

	store.get = func(string) ([]byte, bool, error) {
		return []byte{}, false, nil
	}

	store.set = func(token string, data []byte, _ time.Time) error {
		return nil
	}

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := sm.Get(r)
		if v := sess.GetData("key"); v != nil {
			t.Fatalf("expected 'nil' got '%v'", v)
		}

		if v := sess.GetInt("int"); v != 0 {
			t.Fatalf("expected '0' got '%d'", v)
		}

		if v := sess.GetUint("uint"); v != 0 {
			t.Fatalf("expected '0' got '%d'", v)
		}

		if v := sess.GetFloat32("float32"); v != 0 {
			t.Fatalf("expected '0' got '%f'", v)
		}

		if v := sess.GetFloat64("float64"); v != 0 {
			t.Fatalf("expected '0' got '%f'", v)
		}

		if v := sess.GetString("string"); v != "" {
			t.Fatalf("expected '' got '%s'", v)
		}

		if v := sess.GetBool("bool"); v != false {
			t.Fatalf("expected 'false' got '%v'", v)
		}

		sess.PutData("int", 1)
		sess.PutData("uint", uint(2))
		sess.PutData("float32", float32(3))
		sess.PutData("float64", float64(4))
		sess.PutData("string", "hello")
		sess.PutData("bool", true)

		if v := sess.GetInt("int"); v != 1 {
			t.Fatalf("expected '1' got '%d'", v)
		}

		if v := sess.GetUint("uint"); v != 2 {
			t.Fatalf("expected '2' got '%d'", v)
		}

		if v := sess.GetFloat32("float32"); v != 3 {
			t.Fatalf("expected '3' got '%f'", v)
		}

		if v := sess.GetFloat64("float64"); v != 4 {
			t.Fatalf("expected '4' got '%f'", v)
		}

		if v := sess.GetString("string"); v != "hello" {
			t.Fatalf("expected 'hello' got '%s'", v)
		}

		if v := sess.GetBool("bool"); v != true {
			t.Fatalf("expected 'true' got '%v'", v)
		}

		sess.Delete("bool")
		if v := sess.GetBool("bool"); v != false {
			t.Fatalf("expected 'false' got '%v'", v)
		}
	})

	r := httptest.NewRequest("POST", "/", &bytes.Buffer{})
	w := httptest.NewRecorder()

	h1 := sm.Handler(h)
	h1.ServeHTTP(w, r)
}

func TestSessionID(t *testing.T) {
	sm := session.NewManager(memstore.New())
	r := httptest.NewRequest("GET", "/", &bytes.Buffer{})

	pattern := regexp.MustCompile(`^[0-9a-f]{32}$`)
	seen := make(map[string]bool)
	for range 100 {
		id := sm.Get(r).GetID()
		if !pattern.MatchString(id) {
			t.Fatalf("expected 32 hex characters got '%s'", id)
		}
		if seen[id] {
			t.Fatalf("expected unique ids got '%s' twice", id)
		}
		seen[id] = true
	}
}

func TestRenamedSessionExpiresOldCookie(t *testing.T) {
	sm := session.NewManager(memstore.New())

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := sm.Get(r)
		sess.Start()
		sess.SetName("admin")
	})
	w := httptest.NewRecorder()
	sm.Handler(h).ServeHTTP(w, httptest.NewRequest("GET", "/", &bytes.Buffer{}))

	cookies := make(map[string]*http.Cookie)
	for _, c := range w.Result().Cookies() {
		cookies[c.Name] = c
	}
	if c, ok := cookies["admin"]; !ok || c.MaxAge == -1 {
		t.Fatalf("expected a live 'admin' cookie got '%v'", cookies)
	}
	if c, ok := cookies["SESSID"]; !ok || c.MaxAge != -1 {
		t.Fatalf("expected an expired 'SESSID' cookie got '%v'", cookies)
	}
}
