package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"connectrpc.com/connect"
	"github.com/go-chi/chi/v5"

	"github.com/mmynk/settleup/internal/service"
	pb "github.com/mmynk/settleup/pkg/api"
)

type handlers struct {
	ledger *service.LedgerService
}

type settleUpBody struct {
	Note string `json:"note"`
}

func (h *handlers) getBalances(w http.ResponseWriter, r *http.Request) {
	resp, err := h.ledger.GetBalances(r.Context(), connect.NewRequest(&pb.GetBalancesRequest{
		GroupID: chi.URLParam(r, "groupID"),
	}))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp.Msg)
}

func (h *handlers) getSettlementPlan(w http.ResponseWriter, r *http.Request) {
	resp, err := h.ledger.GetSettlementPlan(r.Context(), connect.NewRequest(&pb.GetSettlementPlanRequest{
		GroupID: chi.URLParam(r, "groupID"),
	}))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp.Msg)
}

func (h *handlers) settleUp(w http.ResponseWriter, r *http.Request) {
	var body settleUpBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, r, http.StatusBadRequest, "BAD_REQUEST", "malformed JSON body", nil)
		return
	}

	resp, err := h.ledger.SettleUp(r.Context(), connect.NewRequest(&pb.SettleUpRequest{
		GroupID: chi.URLParam(r, "groupID"),
		Note:    body.Note,
	}))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	status := http.StatusCreated
	if len(resp.Msg.Settlements) == 0 {
		status = http.StatusOK
	}
	writeJSON(w, status, resp.Msg)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
