package memory

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/adwski/walkie-talkie/backend/model"
)

const (
	defaultTokenLength = 32
)

// MemStore is the identity registry. It keeps name->participant and token->name
// in sync and remembers registration order for listing.
type MemStore struct {
	mx      *sync.Mutex
	db      map[string]model.Participant
	byToken map[string]string
	order   []string
}

func NewMemStore() *MemStore {
	return &MemStore{
		mx:      &sync.Mutex{},
		db:      make(map[string]model.Participant),
		byToken: make(map[string]string),
	}
}

func (ms *MemStore) Register(name string) (model.Participant, error) {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	if _, ok := ms.db[name]; ok {
		return model.Participant{}, fmt.Errorf("%w: %q", model.ErrNameTaken, name)
	}

	token, err := generateToken()
	if err != nil {
		return model.Participant{}, err
	}
	p := model.Participant{
		Name:     name,
		Token:    token,
		JoinedAt: time.Now(),
	}
	ms.db[name] = p
	ms.byToken[token] = name
	ms.order = append(ms.order, name)
	return p, nil
}

// Unregister removes both mappings. It is a no-op for unknown names.
func (ms *MemStore) Unregister(name string) bool {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	p, ok := ms.db[name]
	if !ok {
		return false
	}
	delete(ms.byToken, p.Token)
	delete(ms.db, name)
	for i, n := range ms.order {
		if n == name {
			ms.order = append(ms.order[:i], ms.order[i+1:]...)
			break
		}
	}
	return true
}

func (ms *MemStore) Authenticate(token string) (string, bool) {
	if token == "" {
		return "", false
	}
	ms.mx.Lock()
	defer ms.mx.Unlock()

	name, ok := ms.byToken[token]
	return name, ok
}

func (ms *MemStore) IsRegistered(name string) bool {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	_, ok := ms.db[name]
	return ok
}

// List returns registered names in registration order. The slice is a copy.
func (ms *MemStore) List() []string {
	ms.mx.Lock()
	defer ms.mx.Unlock()

	names := make([]string, len(ms.order))
	copy(names, ms.order)
	return names
}

func generateToken() (string, error) {
	b := make([]byte, defaultTokenLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
