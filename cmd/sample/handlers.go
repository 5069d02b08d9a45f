package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/bjaus/dispatch"
)

// ---------------------------------------------------------------------------
// Types
// ---------------------------------------------------------------------------

// User is the API representation of a user.
type User struct {
	ID        string    `json:"id" xml:"id" yaml:"id"`
	Name      string    `json:"name" xml:"name" yaml:"name"`
	Email     string    `json:"email" xml:"email" yaml:"email"`
	Role      string    `json:"role" xml:"role" yaml:"role"`
	CreatedAt time.Time `json:"created_at" xml:"created_at" yaml:"created_at"`
}

// UserList wraps users so every format has a single root element.
type UserList struct {
	Users []User `json:"users" xml:"user" yaml:"users"`
	Total int    `json:"total" xml:"total,attr" yaml:"total"`
}

// ListUsersReq filters the user list.
type ListUsersReq struct {
	Role  string `query:"role" enum:"admin,member,"`
	Limit int    `query:"limit" default:"50" minimum:"1" maximum:"100"`
}

// CreateUserReq is the body of a create request.
type CreateUserReq struct {
	Name  string `json:"name" form:"name" minLength:"1" maxLength:"100"`
	Email string `json:"email" form:"email" pattern:"^[^@]+@[^@]+$"`
	Role  string `json:"role" form:"role" enum:"admin,member"`
}

// UserIDReq addresses a single user.
type UserIDReq struct {
	ID string `path:"id"`
}

// HealthResp reports liveness.
type HealthResp struct {
	Status string    `json:"status" xml:"status" yaml:"status"`
	Time   time.Time `json:"time" xml:"time" yaml:"time"`
}

// Report is produced asynchronously.
type Report struct {
	UserID  string        `json:"user_id" xml:"user_id" yaml:"user_id"`
	Elapsed time.Duration `json:"elapsed" xml:"elapsed" yaml:"elapsed"`
}

// AuditReq is a one-way audit record.
type AuditReq struct {
	Action string `json:"action" minLength:"1"`
}

var errNotFound = errors.New("not found")

// mapStoreErrors turns store errors into HTTP errors.
func mapStoreErrors(_ *dispatch.RequestContext, err error) error {
	if errors.Is(err, errNotFound) {
		return dispatch.Error(http.StatusNotFound, "user not found")
	}
	return err
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

func handleHealth(_ context.Context, _ *dispatch.Void) (*HealthResp, error) {
	return &HealthResp{Status: "ok", Time: time.Now().UTC()}, nil
}

func handleListUsers(_ context.Context, req *ListUsersReq) (*UserList, error) {
	users := store.list(req.Role)
	if len(users) > req.Limit {
		users = users[:req.Limit]
	}
	return &UserList{Users: users, Total: len(users)}, nil
}

func handleCreateUser(_ context.Context, req *CreateUserReq) (*User, error) {
	return store.create(req.Name, req.Email, req.Role), nil
}

func handleGetUser(_ context.Context, req *UserIDReq) (*User, error) {
	u, ok := store.get(req.ID)
	if !ok {
		return nil, fmt.Errorf("user %s: %w", req.ID, errNotFound)
	}
	return u, nil
}

func handleDeleteUser(_ context.Context, req *UserIDReq) (*dispatch.Void, error) {
	if !store.delete(req.ID) {
		return nil, fmt.Errorf("user %s: %w", req.ID, errNotFound)
	}
	return nil, nil
}

func handleDownloadAvatar(_ context.Context, req *UserIDReq) (*dispatch.Stream, error) {
	u, ok := store.get(req.ID)
	if !ok {
		return nil, fmt.Errorf("user %s: %w", req.ID, errNotFound)
	}
	// A one-letter SVG stands in for a stored image.
	svg := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" width="64" height="64"><text x="20" y="42">%c</text></svg>`, u.Name[0])
	return &dispatch.Stream{ContentType: "image/svg+xml", Body: bytes.NewReader([]byte(svg))}, nil
}

func handleReport(_ context.Context, req *UserIDReq) (*dispatch.Async, error) {
	if _, ok := store.get(req.ID); !ok {
		return nil, fmt.Errorf("user %s: %w", req.ID, errNotFound)
	}
	return dispatch.Defer(func(ctx context.Context) (any, error) {
		start := time.Now()
		select {
		case <-time.After(200 * time.Millisecond):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return &Report{UserID: req.ID, Elapsed: time.Since(start)}, nil
	}), nil
}

func handleEvents(ctx context.Context, _ *dispatch.Void) (*dispatch.SSEStream, error) {
	ch := make(chan dispatch.SSEEvent)
	go func() {
		defer close(ch)
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for i := 1; i <= 5; i++ {
			select {
			case <-ctx.Done():
				return
			case t := <-ticker.C:
				select {
				case ch <- dispatch.SSEEvent{ID: strconv.Itoa(i), Event: "tick", Data: map[string]any{"n": i, "at": t.UTC()}}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return &dispatch.SSEStream{Events: ch}, nil
}

func handleHome(_ context.Context, _ *dispatch.Void) (*dispatch.Redirect, error) {
	return &dispatch.Redirect{Location: "/v1/users", Status: http.StatusFound}, nil
}

func handleAudit(_ context.Context, req *AuditReq) (*dispatch.Void, error) {
	store.audit(req.Action)
	return nil, nil
}

// ---------------------------------------------------------------------------
// In-memory store
// ---------------------------------------------------------------------------

var store = &userStore{
	users: map[string]*User{
		"1": {ID: "1", Name: "Alice", Email: "alice@example.com", Role: "admin", CreatedAt: time.Now()},
		"2": {ID: "2", Name: "Bob", Email: "bob@example.com", Role: "member", CreatedAt: time.Now()},
	},
	nextID: 3,
}

type userStore struct {
	mu     sync.RWMutex
	users  map[string]*User
	log    []string
	nextID int
}

func (s *userStore) list(role string) []User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]User, 0, len(s.users))
	for _, u := range s.users {
		if role != "" && u.Role != role {
			continue
		}
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *userStore) get(id string) (*User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, false
	}
	cp := *u
	return &cp, true
}

func (s *userStore) create(name, email, role string) *User {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := &User{
		ID:        strconv.Itoa(s.nextID),
		Name:      name,
		Email:     email,
		Role:      role,
		CreatedAt: time.Now(),
	}
	s.nextID++
	s.users[u.ID] = u
	cp := *u
	return &cp
}

func (s *userStore) delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return false
	}
	delete(s.users, id)
	return true
}

func (s *userStore) audit(action string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = append(s.log, action)
}
