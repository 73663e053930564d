package server

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/yourorg/oracle-yield-curve/internal/validation"
)

// KeyRequest registers an ON or spot key. Active defaults to true.
type KeyRequest struct {
	Key    string `json:"key"`
	Active *bool  `json:"active,omitempty"`
}

// FutureKeyRequest links a future key to a spot key
type FutureKeyRequest struct {
	SpotKey         string `json:"spot_key"`
	Key             string `json:"key"`
	ExpiryTimestamp int64  `json:"expiry_timestamp"`
	Active          *bool  `json:"active,omitempty"`
}

// KeyStatusRequest activates or deactivates a key. Type is "on", "spot" or "future";
// SpotKey is required for futures.
type KeyStatusRequest struct {
	Type    string `json:"type"`
	Key     string `json:"key"`
	SpotKey string `json:"spot_key,omitempty"`
}

// PublisherRequest registers a publisher or, with Update set, rotates its address
type PublisherRequest struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Update  bool   `json:"update,omitempty"`
}

// DecimalsRequest sets the scale of a key
type DecimalsRequest struct {
	Key      string `json:"key"`
	Decimals int    `json:"decimals"`
}

// adminOnly requires the admin bearer token
func (s *Server) adminOnly(next http.Handler) http.Handler {
	want := []byte(s.config.AdminAPIKey)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), want) != 1 {
			logrus.WithField("path", r.URL.Path).Warn("Rejected admin request")
			writeError(w, errUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("%w: limit is %d bytes", errBodyTooLarge, tooLarge.Limit)
		}
		return fmt.Errorf("%w: %v", errInvalidBody, err)
	}
	return nil
}

func activeOrDefault(active *bool) bool {
	return active == nil || *active
}

func checkKey(key string) error {
	if err := validation.ValidateShortString("key", key, true); err != nil {
		return fmt.Errorf("%w: %v", errInvalidBody, err)
	}
	return nil
}

func (s *Server) handleAddOnKey(w http.ResponseWriter, r *http.Request) {
	var req KeyRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := checkKey(req.Key); err != nil {
		writeError(w, err)
		return
	}
	if err := s.deps.Registry.AddOnKey(req.Key, activeOrDefault(req.Active)); err != nil {
		writeError(w, err)
		return
	}
	s.writeKeys(w, r)
}

func (s *Server) handleAddSpotKey(w http.ResponseWriter, r *http.Request) {
	var req KeyRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := checkKey(req.Key); err != nil {
		writeError(w, err)
		return
	}
	if err := s.deps.Registry.AddSpotKey(req.Key, activeOrDefault(req.Active)); err != nil {
		writeError(w, err)
		return
	}
	s.writeKeys(w, r)
}

func (s *Server) handleAddFutureKey(w http.ResponseWriter, r *http.Request) {
	var req FutureKeyRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := checkKey(req.Key); err != nil {
		writeError(w, err)
		return
	}
	if req.ExpiryTimestamp <= 0 {
		writeError(w, fmt.Errorf("%w: expiry_timestamp must be positive", errInvalidBody))
		return
	}

	err := s.deps.Registry.AddFutureKey(req.SpotKey, req.Key, activeOrDefault(req.Active), req.ExpiryTimestamp)
	if err != nil {
		writeError(w, err)
		return
	}
	s.writeKeys(w, r)
}

func (s *Server) handleSetKeyActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req KeyStatusRequest
		if err := decode(r, &req); err != nil {
			writeError(w, err)
			return
		}

		var err error
		switch req.Type {
		case "on":
			err = s.deps.Registry.SetOnKeyActive(req.Key, active)
		case "spot":
			err = s.deps.Registry.SetSpotKeyActive(req.Key, active)
		case "future":
			err = s.deps.Registry.SetFutureKeyActive(req.SpotKey, req.Key, active)
		default:
			err = fmt.Errorf("%w: unknown key type %q", errInvalidBody, req.Type)
		}
		if err != nil {
			writeError(w, err)
			return
		}

		logrus.WithFields(logrus.Fields{
			"type":   req.Type,
			"key":    req.Key,
			"active": active,
		}).Info("Updated key status")
		s.writeKeys(w, r)
	}
}

func (s *Server) handleRegisterPublisher(w http.ResponseWriter, r *http.Request) {
	var req PublisherRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if !common.IsHexAddress(req.Address) {
		writeError(w, fmt.Errorf("%w: invalid address %q", errInvalidBody, req.Address))
		return
	}
	addr := common.HexToAddress(req.Address)

	var err error
	if req.Update {
		err = s.deps.Store.Publishers().UpdateAddress(req.Name, addr)
	} else {
		err = s.deps.Store.RegisterPublisher(req.Name, addr)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"publishers": s.deps.Store.Publishers().List(),
	})
}

func (s *Server) handleSetDecimals(w http.ResponseWriter, r *http.Request) {
	var req DecimalsRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := s.deps.Store.SetDecimals(req.Key, req.Decimals); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (s *Server) writeKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := s.deps.Registry.RegisteredKeys(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, keys)
}
