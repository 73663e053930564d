// Package registry holds the administrative key registration sets consumed by the yield
// curve: overnight-rate keys, spot keys and the future keys linked to each spot key.
// Keys are never removed; deactivation only excludes them from curve generation.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/yourorg/oracle-yield-curve/internal/model"
)

// ErrKeyConflict is returned when a future key is already linked to another spot key
var ErrKeyConflict = errors.New("future key registered under a different spot key")

type keySet struct {
	order  []string
	active map[string]bool
}

func newKeySet() keySet {
	return keySet{active: make(map[string]bool)}
}

// add registers a key, returning false when it already existed
func (s *keySet) add(key string, active bool) bool {
	if _, ok := s.active[key]; ok {
		return false
	}
	s.order = append(s.order, key)
	s.active[key] = active
	return true
}

func (s *keySet) statuses() []model.KeyStatus {
	out := make([]model.KeyStatus, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, model.KeyStatus{Key: k, Active: s.active[k]})
	}
	return out
}

// Registry is the in-memory store of key registrations
type Registry struct {
	mu sync.RWMutex

	onKeys   keySet
	spotKeys keySet

	// spot key -> future keys in registration order
	futureKeys map[string][]model.FutureKey

	// future key -> owning spot key
	futureOwner map[string]string
}

// New creates an empty registry
func New() *Registry {
	return &Registry{
		onKeys:      newKeySet(),
		spotKeys:    newKeySet(),
		futureKeys:  make(map[string][]model.FutureKey),
		futureOwner: make(map[string]string),
	}
}

// AddOnKey registers an overnight-rate key. Re-adding a registered key is a no-op.
func (r *Registry) AddOnKey(key string, active bool) error {
	if key == "" {
		return fmt.Errorf("empty on key")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.onKeys.add(key, active) {
		logrus.WithFields(logrus.Fields{"key": key, "active": active}).Info("Registered on key")
	}
	return nil
}

// AddSpotKey registers a spot key. Re-adding a registered key is a no-op.
func (r *Registry) AddSpotKey(key string, active bool) error {
	if key == "" {
		return fmt.Errorf("empty spot key")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.spotKeys.add(key, active) {
		logrus.WithFields(logrus.Fields{"key": key, "active": active}).Info("Registered spot key")
	}
	return nil
}

// AddFutureKey links a future key with a fixed expiry to a registered spot key.
// Re-adding the same link is a no-op and keeps the first expiry.
func (r *Registry) AddFutureKey(spotKey, futureKey string, active bool, expiryTimestamp int64) error {
	if futureKey == "" {
		return fmt.Errorf("empty future key")
	}
	if expiryTimestamp <= 0 {
		return fmt.Errorf("invalid expiry timestamp for %s: %d", futureKey, expiryTimestamp)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.spotKeys.active[spotKey]; !ok {
		return fmt.Errorf("%w: spot key %s", model.ErrUnknownKey, spotKey)
	}

	if owner, ok := r.futureOwner[futureKey]; ok {
		if owner != spotKey {
			return fmt.Errorf("%w: %s belongs to %s", ErrKeyConflict, futureKey, owner)
		}
		return nil
	}

	r.futureKeys[spotKey] = append(r.futureKeys[spotKey], model.FutureKey{
		Key:             futureKey,
		ExpiryTimestamp: expiryTimestamp,
		Active:          active,
	})
	r.futureOwner[futureKey] = spotKey

	logrus.WithFields(logrus.Fields{
		"spot_key":   spotKey,
		"future_key": futureKey,
		"expiry":     expiryTimestamp,
		"active":     active,
	}).Info("Registered future key")
	return nil
}

// SetOnKeyActive toggles an ON key. Deactivating an unregistered key is a no-op;
// activating one returns ErrUnknownKey.
func (r *Registry) SetOnKeyActive(key string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return setActive(&r.onKeys, key, active)
}

// SetSpotKeyActive toggles a spot key with the same semantics as SetOnKeyActive
func (r *Registry) SetSpotKeyActive(key string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return setActive(&r.spotKeys, key, active)
}

// SetFutureKeyActive toggles a future key under its spot key
func (r *Registry) SetFutureKeyActive(spotKey, futureKey string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	futures := r.futureKeys[spotKey]
	for i := range futures {
		if futures[i].Key == futureKey {
			futures[i].Active = active
			return nil
		}
	}

	if !active {
		return nil
	}
	return fmt.Errorf("%w: future key %s under %s", model.ErrUnknownKey, futureKey, spotKey)
}

func setActive(s *keySet, key string, active bool) error {
	if _, ok := s.active[key]; !ok {
		if !active {
			return nil
		}
		return fmt.Errorf("%w: %s", model.ErrUnknownKey, key)
	}
	s.active[key] = active
	return nil
}

// OnKeys returns all ON keys in registration order
func (r *Registry) OnKeys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.onKeys.order...)
}

// SpotKeys returns all spot keys in registration order
func (r *Registry) SpotKeys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.spotKeys.order...)
}

// FutureKeys returns the future keys linked to a spot key in registration order
func (r *Registry) FutureKeys(spotKey string) []model.FutureKey {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]model.FutureKey(nil), r.futureKeys[spotKey]...)
}

// OnKeyIsActive reports the status of an ON key
func (r *Registry) OnKeyIsActive(key string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	active, ok := r.onKeys.active[key]
	if !ok {
		return false, fmt.Errorf("%w: %s", model.ErrUnknownKey, key)
	}
	return active, nil
}

// SpotKeyIsActive reports the status of a spot key
func (r *Registry) SpotKeyIsActive(key string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	active, ok := r.spotKeys.active[key]
	if !ok {
		return false, fmt.Errorf("%w: %s", model.ErrUnknownKey, key)
	}
	return active, nil
}

// FutureKeyIsActive reports the status of a future key under a spot key
func (r *Registry) FutureKeyIsActive(spotKey, futureKey string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, fk := range r.futureKeys[spotKey] {
		if fk.Key == futureKey {
			return fk.Active, nil
		}
	}
	return false, fmt.Errorf("%w: future key %s under %s", model.ErrUnknownKey, futureKey, spotKey)
}

// RegisteredKeys returns a deep copy of the current registration sets
func (r *Registry) RegisteredKeys(_ context.Context) (model.RegisteredKeys, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	futures := make(map[string][]model.FutureKey, len(r.futureKeys))
	for spot, fks := range r.futureKeys {
		futures[spot] = append([]model.FutureKey(nil), fks...)
	}

	return model.RegisteredKeys{
		OnKeys:     r.onKeys.statuses(),
		SpotKeys:   r.spotKeys.statuses(),
		FutureKeys: futures,
	}, nil
}
