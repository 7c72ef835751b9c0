package authz

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
)

// Directory is the lookup table of users and clients, built once at startup.
// Identity fields never change at runtime; the only mutation path is
// UpdatePermissions, which touches a user's scopes, risk and entitlements.
type Directory struct {
	mu      sync.RWMutex
	users   map[string]*User
	byEmail map[string]string
	clients map[string]Client
}

// NewDirectory builds the lookup tables. Duplicate user ids, duplicate
// emails (case-insensitive) and duplicate client ids are configuration
// errors.
func NewDirectory(users []User, clients []Client) (*Directory, error) {
	d := &Directory{
		users:   make(map[string]*User, len(users)),
		byEmail: make(map[string]string, len(users)),
		clients: make(map[string]Client, len(clients)),
	}
	for i := range users {
		u := users[i]
		u.ID = strings.TrimSpace(u.ID)
		u.Email = strings.TrimSpace(u.Email)
		if u.ID == "" || u.Email == "" {
			return nil, fmt.Errorf("user %q: id and email are required", u.ID)
		}
		if _, ok := d.users[u.ID]; ok {
			return nil, fmt.Errorf("duplicate user id %q", u.ID)
		}
		emailKey := strings.ToLower(u.Email)
		if _, ok := d.byEmail[emailKey]; ok {
			return nil, fmt.Errorf("duplicate user email %q", u.Email)
		}
		if u.Risk == "" {
			u.Risk = RiskOK
		}
		u.Scopes = normalizeScopes(u.Scopes)
		if u.Entitlements == nil {
			u.Entitlements = map[string]bool{}
		}
		d.users[u.ID] = &u
		d.byEmail[emailKey] = u.ID
	}
	for _, c := range clients {
		c.ID = strings.TrimSpace(c.ID)
		if c.ID == "" {
			return nil, fmt.Errorf("client with empty id")
		}
		if _, ok := d.clients[c.ID]; ok {
			return nil, fmt.Errorf("duplicate client id %q", c.ID)
		}
		c.AllowedScopes = normalizeScopes(c.AllowedScopes)
		c.DefaultScopes = normalizeScopes(c.DefaultScopes)
		d.clients[c.ID] = c
	}
	return d, nil
}

// UserByEmail looks up a user by case-insensitive email.
func (d *Directory) UserByEmail(email string) (User, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return User{}, false
	}
	return copyUser(d.users[id]), true
}

// UserByID looks up a user by id.
func (d *Directory) UserByID(id string) (User, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[id]
	if !ok {
		return User{}, false
	}
	return copyUser(u), true
}

// Client looks up a client by id.
func (d *Directory) Client(id string) (Client, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.clients[id]
	return c, ok
}

// UpdatePermissions applies an administrative grant change and returns the
// updated user. Nil update fields leave the current value in place.
func (d *Directory) UpdatePermissions(userID string, upd PermissionUpdate) (User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[userID]
	if !ok {
		return User{}, ErrNotFound
	}
	if upd.Scopes != nil {
		u.Scopes = normalizeScopes(upd.Scopes)
	}
	if upd.Risk != nil {
		switch *upd.Risk {
		case RiskOK, RiskRestricted, RiskBanned:
			u.Risk = *upd.Risk
		default:
			return User{}, fmt.Errorf("invalid risk level %q", *upd.Risk)
		}
	}
	if upd.Entitlements != nil {
		ents := make(map[string]bool, len(upd.Entitlements))
		for k, v := range upd.Entitlements {
			ents[k] = v
		}
		u.Entitlements = ents
	}
	return copyUser(u), nil
}

func copyUser(u *User) User {
	out := *u
	out.Scopes = append([]string(nil), u.Scopes...)
	ents := make(map[string]bool, len(u.Entitlements))
	for k, v := range u.Entitlements {
		ents[k] = v
	}
	out.Entitlements = ents
	if u.MFA != nil {
		mfa := *u.MFA
		out.MFA = &mfa
	}
	return out
}

type directoryFile struct {
	Users   []User   `json:"users"`
	Clients []Client `json:"clients"`
}

// LoadDirectory reads the user/client directory from a JSON file.
func LoadDirectory(path string) (*Directory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read directory: %w", err)
	}
	var file directoryFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse directory: %w", err)
	}
	return NewDirectory(file.Users, file.Clients)
}
