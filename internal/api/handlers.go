package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"yield-vault/internal/vault"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

const (
	maxBodyBytes     = 1 << 20
	defaultLimit     = 50
	maxLimit         = 500
	errUnknownFailed = "internal error"
)

type depositRequest struct {
	Caller      string `json:"caller"`
	Beneficiary string `json:"beneficiary"`
	Amount      string `json:"amount"`
}

type callerAmountRequest struct {
	Caller string `json:"caller"`
	Amount string `json:"amount"`
}

type fundRequest struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

type amountRequest struct {
	Amount string `json:"amount"`
}

type maxLossRequest struct {
	Bps *uint16 `json:"bps"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) deposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if !decode(w, r, &req) {
		return
	}
	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	beneficiary := caller
	if strings.TrimSpace(req.Beneficiary) != "" {
		if beneficiary, err = parseAddress("beneficiary", req.Beneficiary); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	amount, err := vault.ParseAmount(req.Amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	shares, err := s.deps.Vault.Deposit(r.Context(), caller, beneficiary, amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.committed(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"shares": vault.FormatAmount(shares)})
}

func (s *Server) redeem(w http.ResponseWriter, r *http.Request) {
	caller, amount, ok := s.callerAmount(w, r)
	if !ok {
		return
	}
	received, err := s.deps.Vault.Redeem(r.Context(), caller, amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.committed(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"received": vault.FormatAmount(received)})
}

func (s *Server) sponsor(w http.ResponseWriter, r *http.Request) {
	caller, amount, ok := s.callerAmount(w, r)
	if !ok {
		return
	}
	if err := s.deps.Vault.Sponsor(r.Context(), caller, amount); err != nil {
		s.fail(w, r, err)
		return
	}
	s.committed(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"sponsored": vault.FormatAmount(amount)})
}

func (s *Server) callerAmount(w http.ResponseWriter, r *http.Request) (common.Address, *uint256.Int, bool) {
	var req callerAmountRequest
	if !decode(w, r, &req) {
		return common.Address{}, nil, false
	}
	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		s.fail(w, r, err)
		return common.Address{}, nil, false
	}
	amount, err := vault.ParseAmount(req.Amount)
	if err != nil {
		s.fail(w, r, err)
		return common.Address{}, nil, false
	}
	return caller, amount, true
}

func (s *Server) holder(w http.ResponseWriter, r *http.Request) {
	holder, err := parseAddress("address", r.PathValue("address"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	value, err := s.deps.Vault.TotalAssetValue(r.Context(), holder)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"address": holder.Hex(),
		"shares":  vault.FormatAmount(s.deps.Vault.Ledger().BalanceOf(holder)),
		"value":   vault.FormatAmount(value),
	})
}

func (s *Server) snapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.deps.Vault.Snapshot(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshotBody(snap, s.deps.Now()))
}

func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	if s.deps.Events == nil {
		writeError(w, http.StatusNotFound, "event journal is not enabled")
		return
	}
	limit := defaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxLimit)
	}
	records, err := s.deps.Events.Recent(r.Context(), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if records == nil {
		records = []vault.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": records})
}

func (s *Server) setMaxLoss(w http.ResponseWriter, r *http.Request) {
	var req maxLossRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Bps == nil {
		s.fail(w, r, fmt.Errorf("%w: bps is required", vault.ErrInvalidParameter))
		return
	}
	bps := *req.Bps
	if bps > vault.MaxBps {
		s.fail(w, r, fmt.Errorf("%w: max loss %d bps above %d", vault.ErrInvalidParameter, bps, vault.MaxBps))
		return
	}
	// The stored tolerance is written before it takes effect.
	prev := s.deps.Vault.MaxLoss()
	if s.deps.OnMaxLoss != nil {
		if err := s.deps.OnMaxLoss(r.Context(), bps); err != nil {
			s.fail(w, r, fmt.Errorf("persist max loss: %w", err))
			return
		}
	}
	if err := s.deps.Vault.SetMaxLoss(r.Context(), bps); err != nil {
		if s.deps.OnMaxLoss != nil {
			if restoreErr := s.deps.OnMaxLoss(context.WithoutCancel(r.Context()), prev); restoreErr != nil {
				s.log.Error("restore persisted max loss failed", zap.String("request_id", RequestID(r.Context())), zap.Error(restoreErr))
			}
		}
		s.fail(w, r, err)
		return
	}
	s.committed(r.Context())
	writeJSON(w, http.StatusOK, map[string]uint16{"max_loss_bps": bps})
}

func (s *Server) simFund(w http.ResponseWriter, r *http.Request) {
	var req fundRequest
	if !decode(w, r, &req) {
		return
	}
	holder, err := parseAddress("address", req.Address)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	amount, err := vault.ParseAmount(req.Amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.deps.Simulation.Fund(holder, amount); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"address": holder.Hex(), "funded": vault.FormatAmount(amount)})
}

func (s *Server) simHarvest(w http.ResponseWriter, r *http.Request) {
	s.simMove(w, r, s.deps.Simulation.Harvest, "harvested")
}

func (s *Server) simLoss(w http.ResponseWriter, r *http.Request) {
	s.simMove(w, r, s.deps.Simulation.ReportLoss, "lost")
}

func (s *Server) simMove(w http.ResponseWriter, r *http.Request, move func(*uint256.Int) error, key string) {
	var req amountRequest
	if !decode(w, r, &req) {
		return
	}
	amount, err := vault.ParseAmount(req.Amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := move(amount); err != nil {
		s.fail(w, r, err)
		return
	}
	s.committed(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{key: vault.FormatAmount(amount)})
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", zap.String("request_id", RequestID(r.Context())), zap.Error(err))
		msg = errUnknownFailed
	}
	writeError(w, status, msg)
}

// StatusFor maps the vault error taxonomy onto HTTP statuses.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, vault.ErrInvalidParameter), errors.Is(err, vault.ErrOverflow):
		return http.StatusBadRequest
	case errors.Is(err, vault.ErrInsufficientFunds),
		errors.Is(err, vault.ErrInsufficientShares),
		errors.Is(err, vault.ErrReentrant),
		errors.Is(err, vault.ErrNoAssets):
		return http.StatusConflict
	case errors.Is(err, vault.ErrExcessiveLoss):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func parseAddress(field, raw string) (common.Address, error) {
	raw = strings.TrimSpace(raw)
	if !common.IsHexAddress(raw) {
		return common.Address{}, fmt.Errorf("%w: %s %q is not a hex address", vault.ErrInvalidParameter, field, raw)
	}
	addr := common.HexToAddress(raw)
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: %s is the zero address", vault.ErrInvalidParameter, field)
	}
	return addr, nil
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
