package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/yourorg/oracle-yield-curve/internal/model"
	"github.com/yourorg/oracle-yield-curve/internal/security"
	"github.com/yourorg/oracle-yield-curve/internal/yieldcurve"
)

// YieldPointsResponse is returned by GET /v1/yield-points
type YieldPointsResponse struct {
	OutputDecimals int                    `json:"output_decimals"`
	Points         []yieldcurve.PointView `json:"points"`
	Timestamp      int64                  `json:"timestamp"`
	Attestation    *security.Attestation  `json:"attestation,omitempty"`
}

// curve computes the rendered curve and, when an attestor is configured, signs it
func (s *Server) curve(ctx context.Context, outputDecimals int) (YieldPointsResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.RequestTimeout)
	defer cancel()

	points, err := s.deps.Curve.GetYieldPoints(ctx, outputDecimals)
	if err != nil {
		return YieldPointsResponse{}, err
	}

	resp := YieldPointsResponse{
		OutputDecimals: outputDecimals,
		Points:         yieldcurve.RenderPoints(points, outputDecimals),
		Timestamp:      time.Now().Unix(),
	}

	if s.deps.Attestor != nil {
		att, err := s.deps.Attestor.Attest(resp.Points)
		if err != nil {
			logrus.WithError(err).Warn("Failed to attest yield curve")
		} else {
			resp.Attestation = &att
		}
	}
	return resp, nil
}

func (s *Server) handleYieldPoints(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	outputDecimals, err := s.parseOutputDecimals(r.URL.Query().Get("output_decimals"))
	if err != nil {
		s.deps.Metrics.ObserveRequest("yield_points", "error", time.Since(start))
		writeError(w, err)
		return
	}

	resp, err := s.curve(r.Context(), outputDecimals)
	if err != nil {
		s.deps.Metrics.ObserveRequest("yield_points", "error", time.Since(start))
		writeError(w, err)
		return
	}

	s.deps.Metrics.ObserveRequest("yield_points", "success", time.Since(start))
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) parseOutputDecimals(raw string) (int, error) {
	if raw == "" {
		return s.config.OutputDecimals, nil
	}
	d, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", errInvalidDecimals, raw)
	}
	return d, nil
}

// ChainlinkRequest matches the standard Chainlink External Adapter request format
type ChainlinkRequest struct {
	ID       string                 `json:"id"`
	JobRunID string                 `json:"jobRunId"`
	Data     map[string]interface{} `json:"data"`
}

// ChainlinkResponse matches the standard Chainlink External Adapter response format
type ChainlinkResponse struct {
	JobRunID   string                 `json:"jobRunId,omitempty"`
	StatusCode int                    `json:"statusCode"`
	Status     string                 `json:"status"`
	Data       map[string]interface{} `json:"data"`
	Error      string                 `json:"error,omitempty"`
}

// handleChainlinkRequest serves the curve in the External Adapter format. The result
// holds the scaled rates in curve order.
func (s *Server) handleChainlinkRequest(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var request ChainlinkRequest
	if err := decode(r, &request); err != nil {
		s.chainlinkError(w, "", err, start)
		return
	}

	outputDecimals := s.config.OutputDecimals
	if raw, ok := request.Data["output_decimals"]; ok {
		d, err := decimalsFromJSON(raw)
		if err != nil {
			s.chainlinkError(w, request.JobRunID, err, start)
			return
		}
		outputDecimals = d
	}

	curve, err := s.curve(r.Context(), outputDecimals)
	if err != nil {
		s.chainlinkError(w, request.JobRunID, err, start)
		return
	}

	rates := make([]string, 0, len(curve.Points))
	for _, p := range curve.Points {
		rates = append(rates, p.Rate)
	}

	response := ChainlinkResponse{
		JobRunID:   request.JobRunID,
		StatusCode: http.StatusOK,
		Status:     "success",
		Data: map[string]interface{}{
			"result":          rates,
			"points":          curve.Points,
			"output_decimals": outputDecimals,
			"timestamp":       curve.Timestamp,
		},
	}
	if request.ID != "" {
		response.Data["id"] = request.ID
	}
	if curve.Attestation != nil {
		response.Data["attestation"] = curve.Attestation
	}

	s.deps.Metrics.ObserveRequest("chainlink", "success", time.Since(start))
	writeJSON(w, http.StatusOK, response)
}

// chainlinkError returns a formatted error response for Chainlink nodes
func (s *Server) chainlinkError(w http.ResponseWriter, jobRunID string, err error, start time.Time) {
	logrus.WithError(err).Warn("Chainlink request failed")
	s.deps.Metrics.ObserveRequest("chainlink", "error", time.Since(start))

	status := statusFor(err)
	writeJSON(w, status, ChainlinkResponse{
		JobRunID:   jobRunID,
		StatusCode: status,
		Status:     "errored",
		Error:      err.Error(),
		Data:       map[string]interface{}{"error": err.Error()},
	})
}

func decimalsFromJSON(v interface{}) (int, error) {
	switch d := v.(type) {
	case float64:
		if d != float64(int(d)) {
			return 0, fmt.Errorf("%w: %v", errInvalidDecimals, d)
		}
		return int(d), nil
	case string:
		n, err := strconv.Atoi(d)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", errInvalidDecimals, d)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%w: %v", errInvalidDecimals, v)
	}
}

// EntryRequest is one publisher submission. Value is a decimal integer string.
type EntryRequest struct {
	Key       string `json:"key"`
	Value     string `json:"value"`
	Timestamp int64  `json:"timestamp"`
	Publisher string `json:"publisher"`
	Source    string `json:"source,omitempty"`

	// Signature is the 0x-prefixed secp256k1 signature over the entry digest
	Signature string `json:"signature,omitempty"`
}

// SubmitRequest is the body of POST /v1/entries
type SubmitRequest struct {
	Entries []EntryRequest `json:"entries"`
}

// SubmitResult reports the outcome of one submitted entry
type SubmitResult struct {
	Key       string `json:"key"`
	Publisher string `json:"publisher"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

// SubmitResponse is returned by POST /v1/entries
type SubmitResponse struct {
	Accepted int            `json:"accepted"`
	Results  []SubmitResult `json:"results"`
}

func (er EntryRequest) entry() (model.Entry, error) {
	value, ok := sdkmath.NewIntFromString(er.Value)
	if !ok {
		return model.Entry{}, fmt.Errorf("%w: value %q is not an integer", errInvalidBody, er.Value)
	}
	e := model.Entry{
		Key:       er.Key,
		Value:     value,
		Timestamp: er.Timestamp,
		Publisher: er.Publisher,
	}
	return e.WithSource(er.Source), nil
}

func (s *Server) handleSubmitEntries(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req SubmitRequest
	err := decode(r, &req)
	if err == nil && len(req.Entries) == 0 {
		err = fmt.Errorf("%w: no entries", errInvalidBody)
	}
	if err != nil {
		s.deps.Metrics.ObserveRequest("submit_entries", "error", time.Since(start))
		writeError(w, err)
		return
	}

	resp := SubmitResponse{Results: make([]SubmitResult, 0, len(req.Entries))}
	var firstErr error

	for _, er := range req.Entries {
		err := s.submitOne(r.Context(), er)

		result := SubmitResult{Key: er.Key, Publisher: er.Publisher, Status: "accepted"}
		if err != nil {
			result.Status = "rejected"
			result.Error = err.Error()
			if firstErr == nil {
				firstErr = err
			}
		} else {
			resp.Accepted++
		}
		resp.Results = append(resp.Results, result)
	}

	status := http.StatusOK
	switch {
	case firstErr == nil:
	case resp.Accepted == 0:
		status = statusFor(firstErr)
	default:
		status = http.StatusMultiStatus
	}

	label := "success"
	if firstErr != nil {
		label = "error"
	}
	s.deps.Metrics.ObserveRequest("submit_entries", label, time.Since(start))
	writeJSON(w, status, resp)
}

func (s *Server) submitOne(ctx context.Context, er EntryRequest) error {
	e, err := er.entry()
	if err != nil {
		return err
	}

	var sig []byte
	if er.Signature != "" {
		if sig, err = security.DecodeSignature(er.Signature); err != nil {
			return err
		}
	}
	return s.deps.Store.SubmitEntry(ctx, e, sig)
}

func (s *Server) handleGetEntries(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		writeError(w, errMissingKey)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"key":     key,
		"entries": s.deps.Store.GetEntries(r.Context(), key),
	})
}

// ValueResponse is returned by GET /v1/value
type ValueResponse struct {
	Key                  string `json:"key"`
	Value                string `json:"value"`
	ValueDecimal         string `json:"value_decimal"`
	Decimals             int    `json:"decimals"`
	LastUpdatedTimestamp int64  `json:"last_updated_timestamp"`
	NumSourcesAggregated int    `json:"num_sources_aggregated"`
}

func (s *Server) handleValue(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		writeError(w, errMissingKey)
		return
	}

	value, lastUpdated, sources, err := s.deps.Store.GetValue(r.Context(), key)
	if err != nil {
		writeError(w, err)
		return
	}
	decimals, err := s.deps.Store.Decimals(r.Context(), key)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ValueResponse{
		Key:                  key,
		Value:                value.String(),
		ValueDecimal:         decimal.NewFromBigInt(value.BigInt(), -int32(decimals)).String(),
		Decimals:             decimals,
		LastUpdatedTimestamp: lastUpdated,
		NumSourcesAggregated: sources,
	})
}

// KeyStatusResponse reports whether a registered key takes part in curve generation
type KeyStatusResponse struct {
	Type    string `json:"type"`
	Key     string `json:"key"`
	SpotKey string `json:"spot_key,omitempty"`
	Active  bool   `json:"active"`
}

// handleKeyStatus answers /v1/keys/status?type=on|spot|future&key=...&spot_key=...
// Keys hold slashes, so they travel as query parameters.
func (s *Server) handleKeyStatus(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	resp := KeyStatusResponse{Type: q.Get("type"), Key: q.Get("key"), SpotKey: q.Get("spot_key")}
	if resp.Key == "" {
		writeError(w, errMissingKey)
		return
	}

	var err error
	switch resp.Type {
	case "on":
		resp.Active, err = s.deps.Registry.OnKeyIsActive(resp.Key)
	case "spot":
		resp.Active, err = s.deps.Registry.SpotKeyIsActive(resp.Key)
	case "future":
		if resp.SpotKey == "" {
			err = fmt.Errorf("%w: spot_key is required for futures", errMissingKey)
			break
		}
		resp.Active, err = s.deps.Registry.FutureKeyIsActive(resp.SpotKey, resp.Key)
	default:
		err = fmt.Errorf("%w: unknown key type %q", errInvalidBody, resp.Type)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := s.deps.Registry.RegisteredKeys(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, keys)
}

// handleHealth is a simple health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "OK",
		"version":   version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleStatus provides detailed service status information
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status":     "operational",
		"uptime":     time.Since(startTime).String(),
		"version":    version,
		"publishers": s.deps.Store.Publishers().Len(),
		"configuration": map[string]interface{}{
			"output_decimals": s.config.OutputDecimals,
			"admin_enabled":   s.config.AdminAPIKey != "",
			"rate_limit_rps":  s.config.RateLimitRPS,
		},
	}

	if keys, err := s.deps.Registry.RegisteredKeys(r.Context()); err == nil {
		futures := 0
		for _, fks := range keys.FutureKeys {
			futures += len(fks)
		}
		status["keys"] = map[string]int{
			"on":     len(keys.OnKeys),
			"spot":   len(keys.SpotKeys),
			"future": futures,
		}
	} else if !errors.Is(err, context.Canceled) {
		logrus.WithError(err).Warn("Failed to read registry for status")
	}

	if s.deps.Attestor != nil {
		status["attestation_signer"] = s.deps.Attestor.Address().Hex()
	}
	if s.deps.Exporter != nil {
		status["exporter"] = s.deps.Exporter.Status()
	}

	writeJSON(w, http.StatusOK, status)
}

// rateLimited rejects requests beyond the configured submission rate
func (s *Server) rateLimited(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.rateLimit.Allow() {
			writeError(w, errRateLimited)
			return
		}
		next.ServeHTTP(w, r)
	})
}
