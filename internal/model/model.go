// Package model defines the core data structures for the oracle yield-curve service.
package model

import (
	"errors"

	sdkmath "cosmossdk.io/math"
)

// Shared lookup errors returned by entry and key sources
var (
	// ErrEntryNotFound means no entry has been submitted yet for a key
	ErrEntryNotFound = errors.New("entry not found")

	// ErrUnknownKey means the key was never registered
	ErrUnknownKey = errors.New("unknown key")
)

// MaxShortStringLength is the longest identifier that fits a single felt on the oracle chain
const MaxShortStringLength = 31

// Entry is a single timestamped, scaled observation submitted by a publisher.
// This is the core data structure that flows through the entire application.
type Entry struct {
	// Key identifies the observed pair or metric, e.g. "btc/usd" or "aave-on-borrow"
	Key string `json:"key"`

	// Value is the observation scaled by 10^decimals of the key
	Value sdkmath.Int `json:"value"`

	// Timestamp is the Unix time in seconds the observation was made
	Timestamp int64 `json:"timestamp"`

	// Publisher is the registered publisher name
	Publisher string `json:"publisher"`

	// Source optionally tags where the publisher got the value from
	Source string `json:"source,omitempty"`
}

// IsZero reports whether the entry was never populated
func (e Entry) IsZero() bool {
	return e.Key == "" && e.Value.IsNil() && e.Timestamp == 0
}

// WithSource returns a copy of the entry tagged with a source
func (e Entry) WithSource(source string) Entry {
	e.Source = source
	return e
}

// YieldPointSource tags how a yield point was derived
type YieldPointSource string

const (
	// SourceOvernight marks a directly observed overnight rate
	SourceOvernight YieldPointSource = "on"

	// SourceFutureSpot marks a rate implied by a future/spot price pair
	SourceFutureSpot YieldPointSource = "future/spot"
)

// YieldPoint is one annualized rate on the yield curve
type YieldPoint struct {
	// ExpiryTimestamp is the maturity of the point, 0 for overnight points
	ExpiryTimestamp int64 `json:"expiry_timestamp"`

	// CaptureTimestamp is the timestamp of the entry the point was derived from
	CaptureTimestamp int64 `json:"capture_timestamp"`

	// Rate is the annualized rate scaled by 10^output_decimals
	Rate sdkmath.Int `json:"rate"`

	// Source indicates the derivation of the point
	Source YieldPointSource `json:"source"`
}

// KeyStatus is a registered key and whether it currently takes part in curve generation
type KeyStatus struct {
	Key    string `json:"key"`
	Active bool   `json:"active"`
}

// FutureKey is a futures contract key linked to a spot key
type FutureKey struct {
	Key             string `json:"key"`
	ExpiryTimestamp int64  `json:"expiry_timestamp"`
	Active          bool   `json:"active"`
}

// RegisteredKeys is a point-in-time snapshot of the key registration sets.
// Slices are in registration order and include inactive keys.
type RegisteredKeys struct {
	OnKeys     []KeyStatus            `json:"on_keys"`
	SpotKeys   []KeyStatus            `json:"spot_keys"`
	FutureKeys map[string][]FutureKey `json:"future_keys"`
}

// ActiveOnKeys returns the active ON keys in registration order
func (r RegisteredKeys) ActiveOnKeys() []string {
	return activeKeys(r.OnKeys)
}

// ActiveSpotKeys returns the active spot keys in registration order
func (r RegisteredKeys) ActiveSpotKeys() []string {
	return activeKeys(r.SpotKeys)
}

// ActiveFutureKeys returns the active future keys linked to a spot key in registration order
func (r RegisteredKeys) ActiveFutureKeys(spotKey string) []FutureKey {
	var active []FutureKey
	for _, fk := range r.FutureKeys[spotKey] {
		if fk.Active {
			active = append(active, fk)
		}
	}
	return active
}

func activeKeys(keys []KeyStatus) []string {
	var active []string
	for _, k := range keys {
		if k.Active {
			active = append(active, k.Key)
		}
	}
	return active
}
