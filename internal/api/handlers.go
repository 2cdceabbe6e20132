package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/punchamoorthee/refledger/internal/domain"
	"github.com/punchamoorthee/refledger/internal/models"
	"github.com/punchamoorthee/refledger/internal/service"
)

const maxBodyBytes = 64 << 10

func (h *Handler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decode reads a JSON body into dst and runs struct validation.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "validation", "Malformed JSON body")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		respondError(w, http.StatusUnprocessableEntity, "validation", err.Error())
		return false
	}
	return true
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
}

func caller(r *http.Request) domain.Principal {
	p, _ := principalFrom(r.Context())
	return p
}

func toCreateRequest(b models.CreateRequestBody) service.CreateRequest {
	in := service.CreateRequest{Amount: b.Amount, Payload: b.Payload}
	if b.Fee != nil {
		in.Fee = *b.Fee
	}
	if b.FinalAmount != nil {
		in.FinalAmount = *b.FinalAmount
	}
	return in
}

func (h *Handler) CreateDepositHandler(w http.ResponseWriter, r *http.Request) {
	var body models.CreateRequestBody
	if !h.decode(w, r, &body) {
		return
	}
	req, err := h.ledger.CreateDeposit(r.Context(), caller(r), toCreateRequest(body))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/api/v1/transactions/deposits/%d", req.ID))
	respondJSON(w, http.StatusCreated, req)
}

func (h *Handler) CreateWithdrawalHandler(w http.ResponseWriter, r *http.Request) {
	var body models.CreateRequestBody
	if !h.decode(w, r, &body) {
		return
	}
	req, err := h.ledger.CreateWithdrawal(r.Context(), caller(r), toCreateRequest(body))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/api/v1/transactions/withdrawals/%d", req.ID))
	respondJSON(w, http.StatusCreated, req)
}

func (h *Handler) transitionHandler(kind domain.RequestKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r)
		if err != nil {
			respondError(w, http.StatusBadRequest, "validation", "invalid id")
			return
		}
		if !caller(r).IsAdmin() {
			h.writeError(w, r, domain.ErrAccessDenied)
			return
		}
		var body models.TransitionBody
		if !h.decode(w, r, &body) {
			return
		}
		out, err := h.ledger.Transition(r.Context(), caller(r), kind, id, service.Decision{
			Status:     domain.RequestStatus(body.Status),
			AdminNotes: body.AdminNotes,
		})
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, out)
	}
}

func (h *Handler) AdjustBalanceHandler(w http.ResponseWriter, r *http.Request) {
	var body models.AdjustBalanceBody
	if !h.decode(w, r, &body) {
		return
	}
	entry, err := h.ledger.AdjustBalance(r.Context(), caller(r), service.AdminAdjustment{
		AccountID: body.AccountID,
		Amount:    body.Amount,
		Type:      body.Type,
		Reason:    body.Reason,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, entry)
}

func (h *Handler) CreateAccountHandler(w http.ResponseWriter, r *http.Request) {
	var body models.CreateAccountBody
	if !h.decode(w, r, &body) {
		return
	}
	acc, err := h.ledger.CreateAccount(r.Context(), caller(r), service.NewAccount{
		Username:   body.Username,
		ReferredBy: body.ReferredBy,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/api/v1/accounts/%d", acc.ID))
	respondJSON(w, http.StatusCreated, acc)
}

func pagination(r *http.Request) (int, int) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func (h *Handler) listHandler(kind domain.RequestKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, offset := pagination(r)
		f := domain.RequestFilter{
			Kind:   kind,
			Status: domain.RequestStatus(r.URL.Query().Get("status")),
			Limit:  limit,
			Offset: offset,
		}
		if raw := r.URL.Query().Get("account_id"); raw != "" {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				respondError(w, http.StatusBadRequest, "validation", "invalid account_id")
				return
			}
			f.AccountID = id
		}
		reqs, err := h.ledger.ListRequests(r.Context(), caller(r), f)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, models.ListResponse[domain.Request]{Items: reqs, Limit: limit, Offset: offset})
	}
}

func (h *Handler) GetRequestHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "validation", "invalid id")
		return
	}
	kind := domain.KindDeposit
	if mux.Vars(r)["kind"] == "withdrawals" {
		kind = domain.KindWithdrawal
	}
	req, err := h.ledger.GetRequest(r.Context(), caller(r), kind, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, req)
}

func (h *Handler) GetAccountHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "validation", "invalid id")
		return
	}
	acc, err := h.ledger.GetAccount(r.Context(), caller(r), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, acc)
}

func (h *Handler) GetAccountEntriesHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "validation", "invalid id")
		return
	}
	limit, offset := pagination(r)
	entries, err := h.ledger.ListEntries(r.Context(), caller(r), id, limit, offset)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, models.ListResponse[domain.LedgerEntry]{Items: entries, Limit: limit, Offset: offset})
}

// ListReferralsHandler returns the caller's referrals; admins may pass
// ?referrer_id= to inspect another account.
func (h *Handler) ListReferralsHandler(w http.ResponseWriter, r *http.Request) {
	p := caller(r)
	referrer := p.AccountID
	if raw := r.URL.Query().Get("referrer_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, "validation", "invalid referrer_id")
			return
		}
		referrer = id
	}
	sum, err := h.ledger.ListReferrals(r.Context(), p, referrer)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, sum)
}
