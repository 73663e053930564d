package oracle

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/yourorg/oracle-yield-curve/internal/validation"
)

var (
	// ErrUnknownPublisher is returned for entries from a publisher that was never registered
	ErrUnknownPublisher = errors.New("unknown publisher")

	// ErrPublisherExists is returned when registering a name twice
	ErrPublisherExists = errors.New("publisher already registered")
)

// Publisher is a registered publisher and the address its entries must be signed by
type Publisher struct {
	Name    string         `json:"name"`
	Address common.Address `json:"address"`
}

// Publishers maps publisher names to signing addresses
type Publishers struct {
	mu    sync.RWMutex
	addrs map[string]common.Address
}

// NewPublishers creates an empty publisher registry
func NewPublishers() *Publishers {
	return &Publishers{addrs: make(map[string]common.Address)}
}

// Register adds a publisher. A name can only be registered once; use UpdateAddress to rotate keys.
func (p *Publishers) Register(name string, addr common.Address) error {
	if err := validation.ValidateShortString("publisher", name, true); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.addrs[name]; ok {
		return fmt.Errorf("%w: %s", ErrPublisherExists, name)
	}
	p.addrs[name] = addr

	logrus.WithFields(logrus.Fields{
		"publisher": name,
		"address":   addr.Hex(),
	}).Info("Registered publisher")
	return nil
}

// UpdateAddress rotates the signing address of a registered publisher
func (p *Publishers) UpdateAddress(name string, addr common.Address) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	old, ok := p.addrs[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPublisher, name)
	}
	p.addrs[name] = addr

	logrus.WithFields(logrus.Fields{
		"publisher":   name,
		"old_address": old.Hex(),
		"new_address": addr.Hex(),
	}).Info("Updated publisher address")
	return nil
}

// Address returns the signing address of a publisher
func (p *Publishers) Address(name string) (common.Address, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	addr, ok := p.addrs[name]
	if !ok {
		return common.Address{}, fmt.Errorf("%w: %s", ErrUnknownPublisher, name)
	}
	return addr, nil
}

// List returns all publishers sorted by name
func (p *Publishers) List() []Publisher {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]Publisher, 0, len(p.addrs))
	for name, addr := range p.addrs {
		out = append(out, Publisher{Name: name, Address: addr})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of registered publishers
func (p *Publishers) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.addrs)
}
