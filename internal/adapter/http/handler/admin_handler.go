package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/iho/govault/internal/adapter/http/dto"
	"github.com/iho/govault/internal/domain"
)

type adminService interface {
	RegisterAssetFeed(ctx context.Context, feed *domain.Feed) (*domain.Feed, error)
	ReplaceNativeFeed(ctx context.Context, feed *domain.Feed) (*domain.Feed, error)
	RecoverAsset(ctx context.Context, asset, to string, amount decimal.Decimal) error
	RecoverNative(ctx context.Context, to string, amount decimal.Decimal) error
	ListFeeds(ctx context.Context) ([]*domain.Feed, error)
	ListAuditLogs(ctx context.Context, filter domain.AuditFilter) ([]*domain.AuditLog, error)
}

// AdminHandler handles administrator requests.
type AdminHandler struct {
	admin adminService
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(admin adminService) *AdminHandler {
	return &AdminHandler{admin: admin}
}

// PutFeed replaces the feed of the asset in the path.
func (h *AdminHandler) PutFeed(w http.ResponseWriter, r *http.Request) {
	var req dto.FeedRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	feed, err := req.ToDomain(chi.URLParam(r, "asset"))
	if err != nil {
		writeDomainError(w, "invalid feed", err)
		return
	}

	stored, err := h.admin.RegisterAssetFeed(r.Context(), feed)
	if err != nil {
		writeDomainError(w, "failed to register feed", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.FeedFromDomain(stored))
}

// PutNativeFeed replaces the native currency feed.
func (h *AdminHandler) PutNativeFeed(w http.ResponseWriter, r *http.Request) {
	var req dto.FeedRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	feed, err := req.ToDomain(domain.NativeAsset)
	if err != nil {
		writeDomainError(w, "invalid feed", err)
		return
	}

	stored, err := h.admin.ReplaceNativeFeed(r.Context(), feed)
	if err != nil {
		writeDomainError(w, "failed to replace native feed", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.FeedFromDomain(stored))
}

// ListFeeds lists every registered feed.
func (h *AdminHandler) ListFeeds(w http.ResponseWriter, r *http.Request) {
	feeds, err := h.admin.ListFeeds(r.Context())
	if err != nil {
		writeDomainError(w, "failed to list feeds", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.FeedsFromDomain(feeds))
}

// Recover sends external-asset custody held outside the ledger to a recipient.
func (h *AdminHandler) Recover(w http.ResponseWriter, r *http.Request) {
	var req dto.RecoverRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.admin.RecoverAsset(r.Context(), req.Asset, req.To, req.Amount); err != nil {
		writeDomainError(w, "failed to recover asset", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RecoverNative sends native currency held outside the ledger to a recipient.
func (h *AdminHandler) RecoverNative(w http.ResponseWriter, r *http.Request) {
	var req dto.RecoverNativeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.admin.RecoverNative(r.Context(), req.To, req.Amount); err != nil {
		writeDomainError(w, "failed to recover native currency", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListAuditLogs lists audit entries, filtered by query parameters.
func (h *AdminHandler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	logs, err := h.admin.ListAuditLogs(r.Context(), domain.AuditFilter{
		UserID:       q.Get("user_id"),
		Action:       q.Get("action"),
		ResourceType: q.Get("resource_type"),
		ResourceID:   q.Get("resource_id"),
		Limit:        parseIntQuery(r, "limit", 50),
		Offset:       parseIntQuery(r, "offset", 0),
	})
	if err != nil {
		writeDomainError(w, "failed to list audit logs", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.AuditLogsFromDomain(logs))
}
