// Package transport exposes the HTTP/JSON API.
package transport

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/chainscope/explorer-backend/internal/explorer/aggregate"
	"github.com/chainscope/explorer-backend/internal/model"
	"github.com/chainscope/explorer-backend/internal/service"
)

// ExplorerService is the part of the explorer service the HTTP layer uses.
type ExplorerService interface {
	ResolveIdentifier(ctx context.Context, token string) (service.ResolvedIdentifier, error)
	Block(ctx context.Context, token string) (model.BlockSummary, error)
	Transaction(ctx context.Context, txid string) (model.TransactionSummary, error)
	Blocks(ctx context.Context, offset uint64, limit int) (aggregate.BlocksPage, error)
	MinerStats(ctx context.Context, window uint64, limit int) (aggregate.MinerStatsResult, error)
	Mempool(ctx context.Context, limit int) (aggregate.MempoolPage, error)
	ConvertAmount(amountToken, unitToken string) (service.Conversion, error)
}

// ExplorerHandler shuttles between HTTP and the explorer service. No domain
// logic lives here.
type ExplorerHandler struct {
	svc    ExplorerService
	logger *zap.Logger
}

// NewExplorerHandler returns an ExplorerHandler instance.
func NewExplorerHandler(svc ExplorerService, logger *zap.Logger) *ExplorerHandler {
	return &ExplorerHandler{svc: svc, logger: logger}
}

// Register mounts all API routes on the mux.
func (h *ExplorerHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/search", h.search)
	mux.HandleFunc("GET /api/blocks", h.blocks)
	mux.HandleFunc("GET /api/block/{id}", h.block)
	mux.HandleFunc("GET /api/tx/{txid}", h.transaction)
	mux.HandleFunc("GET /api/mempool", h.mempool)
	mux.HandleFunc("GET /api/miners", h.miners)
	mux.HandleFunc("GET /api/units/convert", h.convert)
	mux.HandleFunc("GET /healthz", h.health)
}

func (h *ExplorerHandler) search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		h.writeError(w, fmt.Errorf("%w: missing query parameter q", model.ErrInvalidInput))
		return
	}
	res, err := h.svc.ResolveIdentifier(r.Context(), q)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, searchResponse(res))
}

func (h *ExplorerHandler) blocks(w http.ResponseWriter, r *http.Request) {
	offset, err := uintQuery(r, "offset", 0)
	if err != nil {
		h.writeError(w, err)
		return
	}
	limit, err := intQuery(r, "limit", 0)
	if err != nil {
		h.writeError(w, err)
		return
	}
	page, err := h.svc.Blocks(r.Context(), offset, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, blocksPageResponse(page))
}

func (h *ExplorerHandler) block(w http.ResponseWriter, r *http.Request) {
	blk, err := h.svc.Block(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, blockResponse(blk))
}

func (h *ExplorerHandler) transaction(w http.ResponseWriter, r *http.Request) {
	tx, err := h.svc.Transaction(r.Context(), r.PathValue("txid"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, transactionResponse(tx))
}

func (h *ExplorerHandler) mempool(w http.ResponseWriter, r *http.Request) {
	limit, err := intQuery(r, "limit", 0)
	if err != nil {
		h.writeError(w, err)
		return
	}
	page, err := h.svc.Mempool(r.Context(), limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, mempoolPageResponse(page))
}

func (h *ExplorerHandler) miners(w http.ResponseWriter, r *http.Request) {
	window, err := uintQuery(r, "window", 0)
	if err != nil {
		h.writeError(w, err)
		return
	}
	limit, err := intQuery(r, "limit", 0)
	if err != nil {
		h.writeError(w, err)
		return
	}
	res, err := h.svc.MinerStats(r.Context(), window, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, minerStatsResponse(res))
}

func (h *ExplorerHandler) convert(w http.ResponseWriter, r *http.Request) {
	amount := r.URL.Query().Get("amount")
	unitToken := r.URL.Query().Get("unit")
	if amount == "" || unitToken == "" {
		h.writeError(w, fmt.Errorf("%w: amount and unit are required", model.ErrInvalidInput))
		return
	}
	conv, err := h.svc.ConvertAmount(amount, unitToken)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, conversionResponse(conv))
}

func (h *ExplorerHandler) health(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func uintQuery(r *http.Request, name string, fallback uint64) (uint64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", model.ErrInvalidInput, name)
	}
	return v, nil
}

func intQuery(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", model.ErrInvalidInput, name)
	}
	return v, nil
}
