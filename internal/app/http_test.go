package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"syncly/api/internal/auth"
	"syncly/api/internal/config"
	"syncly/api/internal/identity"
	"syncly/api/internal/util"
)

const testSecret = "test-secret"

func newTestServer(fs *fakeStore, dir *fakeDirectory) *HTTPServer {
	svc := newTestService(fs, dir, nil, nil)
	svc.cfg = config.Config{JWTSecret: testSecret}
	return NewHTTPServer(svc, testSecret, "*")
}

func tokenFor(t *testing.T, actor Actor) string {
	t.Helper()
	token, err := auth.IssueToken([]byte(testSecret), auth.Claims{
		Sub:   actor.ID,
		Email: actor.Email,
		Name:  actor.Name,
		JTI:   util.NewID("jti"),
		Exp:   time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func doRequest(t *testing.T, server *HTTPServer, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	server.Handler().ServeHTTP(rr, req)
	return rr
}

func TestHealthEndpoint(t *testing.T) {
	server := newTestServer(newFakeStore(), &fakeDirectory{})

	rr := doRequest(t, server, http.MethodGet, "/api/health", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("body: %v", body)
	}
}

func TestReadyEndpointReportsDatabaseFailure(t *testing.T) {
	fs := newFakeStore()
	fs.pingFn = func(ctx context.Context) error { return errors.New("db down") }
	server := newTestServer(fs, &fakeDirectory{})

	rr := doRequest(t, server, http.MethodGet, "/api/ready", "", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestRoomsRequireSession(t *testing.T) {
	server := newTestServer(newFakeStore(), &fakeDirectory{})

	rr := doRequest(t, server, http.MethodGet, "/api/rooms", "", "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rr.Code)
	}

	rr = doRequest(t, server, http.MethodGet, "/api/rooms", "garbage-token", "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status with bad token = %d", rr.Code)
	}
}

func TestSessionEndpointReflectsToken(t *testing.T) {
	server := newTestServer(newFakeStore(), &fakeDirectory{})

	rr := doRequest(t, server, http.MethodGet, "/api/session", "", "")
	var anon map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &anon); err != nil {
		t.Fatal(err)
	}
	if anon["authenticated"] != false {
		t.Fatalf("anonymous session: %v", anon)
	}

	rr = doRequest(t, server, http.MethodGet, "/api/session", tokenFor(t, alice), "")
	var authed map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &authed); err != nil {
		t.Fatal(err)
	}
	if authed["authenticated"] != true || authed["email"] != alice.Email {
		t.Fatalf("authed session: %v", authed)
	}
}

func TestCreateAndFetchRoomOverHTTP(t *testing.T) {
	fs := newFakeStore()
	dir := &fakeDirectory{
		lookupFn: func(ctx context.Context, ids []string) ([]identity.Identity, error) {
			return []identity.Identity{{ID: alice.ID, Email: alice.Email, Name: alice.Name}}, nil
		},
	}
	server := newTestServer(fs, dir)
	token := tokenFor(t, alice)

	rr := doRequest(t, server, http.MethodPost, "/api/rooms", token, `{"title":"Roadmap"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status = %d body = %s", rr.Code, rr.Body.String())
	}
	var created struct {
		Room RoomPayload `json:"room"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}
	if created.Room.Title != "Roadmap" {
		t.Fatalf("created title = %q", created.Room.Title)
	}

	rr = doRequest(t, server, http.MethodGet, "/api/rooms/"+created.Room.ID, token, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("fetch status = %d body = %s", rr.Code, rr.Body.String())
	}
	var view RoomView
	if err := json.Unmarshal(rr.Body.Bytes(), &view); err != nil {
		t.Fatal(err)
	}
	if view.Role != "editor" || len(view.Collaborators) != 1 {
		t.Fatalf("view: %+v", view)
	}
}

func TestInviteOverHTTPMapsDomainErrors(t *testing.T) {
	fs := newFakeStore()
	seedRoom(fs, "room_1", "Plan", alice)
	server := newTestServer(fs, &fakeDirectory{})

	rr := doRequest(t, server, http.MethodPost, "/api/rooms/room_1/access", tokenFor(t, alice), `{"email":"nope","role":"editor"}`)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("validation status = %d", rr.Code)
	}

	rr = doRequest(t, server, http.MethodPost, "/api/rooms/room_1/access", tokenFor(t, alice), `{"email":"`+alice.Email+`","role":"viewer"}`)
	if rr.Code != http.StatusConflict {
		t.Fatalf("creator demotion status = %d", rr.Code)
	}

	rr = doRequest(t, server, http.MethodPost, "/api/rooms/room_1/access", tokenFor(t, bob), `{"email":"x@example.com","role":"viewer"}`)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("outsider invite status = %d", rr.Code)
	}

	rr = doRequest(t, server, http.MethodPost, "/api/rooms/room_missing/access", tokenFor(t, alice), `{"email":"x@example.com","role":"viewer"}`)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("missing room status = %d", rr.Code)
	}
}

func TestRenameOverHTTP(t *testing.T) {
	fs := newFakeStore()
	seedRoom(fs, "room_1", "Plan", alice)
	server := newTestServer(fs, &fakeDirectory{})

	rr := doRequest(t, server, http.MethodPut, "/api/rooms/room_1/title", tokenFor(t, alice), `{"title":"Plan v2"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("rename status = %d body = %s", rr.Code, rr.Body.String())
	}
	var body struct {
		Room RoomPayload `json:"room"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Room.Title != "Plan v2" {
		t.Fatalf("renamed title = %q", body.Room.Title)
	}
}
