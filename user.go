package flagprobe

import (
	"encoding/json"
	"maps"
	"sync"

	"github.com/google/uuid"

	"github.com/matt-riley/flagprobe/internal/core"
)

// User is the subject toggles are evaluated for. Attribute updates are
// visible to evaluations that start after the update returns. The zero value
// is a user with an empty key and no attributes; NewUser assigns a key.
type User struct {
	mu    sync.RWMutex
	key   string
	attrs map[string]string
}

// NewUser returns a user with the given key. An empty key is replaced by a
// random anonymous key.
func NewUser(key string) *User {
	if key == "" {
		key = uuid.NewString()
	}
	return &User{key: key, attrs: map[string]string{}}
}

// With sets an attribute, replacing any previous value. Empty names are
// ignored.
func (u *User) With(name, value string) *User {
	if name == "" {
		return u
	}
	u.mu.Lock()
	if u.attrs == nil {
		u.attrs = make(map[string]string)
	}
	u.attrs[name] = value
	u.mu.Unlock()
	return u
}

// StableRollout replaces the key used for percentage bucketing.
func (u *User) StableRollout(key string) *User {
	if key == "" {
		return u
	}
	u.mu.Lock()
	u.key = key
	u.mu.Unlock()
	return u
}

func (u *User) Key() string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.key
}

func (u *User) Attr(name string) (string, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	value, ok := u.attrs[name]
	return value, ok
}

// Attrs returns a copy of all attributes.
func (u *User) Attrs() map[string]string {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return maps.Clone(u.attrs)
}

func (u *User) MarshalJSON() ([]byte, error) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return json.Marshal(struct {
		Key   string            `json:"key"`
		Attrs map[string]string `json:"attrs"`
	}{Key: u.key, Attrs: u.attrs})
}

func (u *User) evaluationContext() core.UserContext {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return core.UserContext{Key: u.key, Attributes: maps.Clone(u.attrs)}
}
