package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cyberguard/aegis/internal/auth"
	"github.com/cyberguard/aegis/internal/models"
	"github.com/cyberguard/aegis/internal/reputation"
	pkghttp "github.com/cyberguard/aegis/pkg/http"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// IPControl is the slice of the reputation engine the admin surface needs.
type IPControl interface {
	Block(ctx context.Context, ip, reason string) error
	Unblock(ctx context.Context, ip string) error
}

// BlockedLister exposes the currently blocked IPs.
type BlockedLister interface {
	ListBlocked(ctx context.Context) ([]*models.IPRecord, error)
}

// AlertAdmin is the admin read/resolve surface over the alert stream.
type AlertAdmin interface {
	ListRecent(ctx context.Context, limit int, unresolvedOnly bool) ([]*models.SecurityAlert, error)
	Resolve(ctx context.Context, id uuid.UUID) error
}

// UserAdmin exposes account administration.
type UserAdmin interface {
	List(ctx context.Context, limit, offset int) ([]*models.User, error)
	UpdateRole(ctx context.Context, id string, role models.Role) error
}

// AuditReader exposes the persisted identity-event trail.
type AuditReader interface {
	GetByActorID(ctx context.Context, actorID string, limit, offset int) ([]*models.AuditLog, error)
	GetByEventType(ctx context.Context, eventType string, limit, offset int) ([]*models.AuditLog, error)
	GetFailedAttempts(ctx context.Context, limit, offset int) ([]*models.AuditLog, error)
	Create(ctx context.Context, log *models.AuditLog) (*models.AuditLog, error)
}

// AdminHandler handles the security administration endpoints: manual IP
// blocks, whitelist and country rules, alert triage, user roles, and the
// audit trail.
type AdminHandler struct {
	ips      IPControl
	blocked  BlockedLister
	rules    *reputation.RuleStore
	alerts   AlertAdmin
	users    UserAdmin
	audit    AuditReader
	ipConfig *pkghttp.IPConfig
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(ips IPControl, blocked BlockedLister, rules *reputation.RuleStore, alerts AlertAdmin, users UserAdmin, audit AuditReader, ipConfig *pkghttp.IPConfig) *AdminHandler {
	return &AdminHandler{
		ips:      ips,
		blocked:  blocked,
		rules:    rules,
		alerts:   alerts,
		users:    users,
		audit:    audit,
		ipConfig: ipConfig,
	}
}

// Request DTOs

// BlockIPRequest represents the request body for a manual IP block
type BlockIPRequest struct {
	IPAddress string `json:"ip_address" validate:"required,ip"`
	Reason    string `json:"reason" validate:"required,max=500"`
}

// WhitelistRequest represents the request body for whitelisting an IP.
// TTLMinutes of zero makes the entry permanent.
type WhitelistRequest struct {
	IPAddress  string `json:"ip_address" validate:"required,ip"`
	Reason     string `json:"reason" validate:"required,max=500"`
	TTLMinutes int    `json:"ttl_minutes" validate:"omitempty,gt=0,lte=525600"`
}

// CountryBlockRequest represents the request body for a country block rule
type CountryBlockRequest struct {
	CountryCode string `json:"country_code" validate:"required,len=2,alpha"`
	Reason      string `json:"reason" validate:"required,max=500"`
}

// UpdateRoleRequest represents the request body for a role change
type UpdateRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=admin analyst user"`
}

// Response DTOs

// BlockedIPResponse represents a blocked IP in HTTP responses
type BlockedIPResponse struct {
	IPAddress    string  `json:"ip_address"`
	RequestCount int     `json:"request_count"`
	BlockReason  *string `json:"block_reason,omitempty"`
	BlockedUntil *string `json:"blocked_until,omitempty"`
}

// AlertResponse represents a security alert in HTTP responses
type AlertResponse struct {
	ID           string `json:"id"`
	AlertType    string `json:"alert_type"`
	IPAddress    string `json:"ip_address"`
	Severity     string `json:"severity"`
	Description  string `json:"description"`
	RequestCount int    `json:"request_count"`
	IsResolved   bool   `json:"is_resolved"`
	CreatedAt    string `json:"created_at"`
}

// WhitelistEntryResponse represents a whitelist entry in HTTP responses
type WhitelistEntryResponse struct {
	IPAddress string  `json:"ip_address"`
	Reason    string  `json:"reason"`
	ExpiresAt *string `json:"expires_at,omitempty"`
}

// CountryRuleResponse represents a country block rule in HTTP responses
type CountryRuleResponse struct {
	CountryCode string `json:"country_code"`
	Reason      string `json:"reason"`
	CreatedAt   string `json:"created_at"`
}

// AuditLogResponse represents an audit log entry in HTTP responses
type AuditLogResponse struct {
	ID            string  `json:"id"`
	EventType     string  `json:"event_type"`
	ActorID       *string `json:"actor_id,omitempty"`
	Success       bool    `json:"success"`
	FailureReason *string `json:"failure_reason,omitempty"`
	IPAddress     string  `json:"ip_address,omitempty"`
	UserAgent     string  `json:"user_agent,omitempty"`
	CreatedAt     string  `json:"created_at"`
}

// BlockIP handles POST /admin/ips/block
func (h *AdminHandler) BlockIP(w http.ResponseWriter, r *http.Request) {
	var req BlockIPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.ips.Block(r.Context(), req.IPAddress, req.Reason); err != nil {
		pkghttp.WriteInternalError(w, "Failed to block IP")
		return
	}

	h.auditAdminAction(r, models.AuditEventManualIPBlock, true)
	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{
		"message":    "IP blocked",
		"ip_address": req.IPAddress,
	})
}

// UnblockIP handles DELETE /admin/ips/{ip}/block
func (h *AdminHandler) UnblockIP(w http.ResponseWriter, r *http.Request) {
	ip := chi.URLParam(r, "ip")
	if !isValidIPParam(ip) {
		pkghttp.WriteBadRequest(w, "Invalid IP address")
		return
	}

	if err := h.ips.Unblock(r.Context(), ip); err != nil {
		pkghttp.WriteInternalError(w, "Failed to unblock IP")
		return
	}

	pkghttp.WriteNoContent(w)
}

// ListBlockedIPs handles GET /admin/ips/blocked
func (h *AdminHandler) ListBlockedIPs(w http.ResponseWriter, r *http.Request) {
	records, err := h.blocked.ListBlocked(r.Context())
	if err != nil {
		pkghttp.WriteInternalError(w, "Failed to list blocked IPs")
		return
	}

	out := make([]BlockedIPResponse, 0, len(records))
	for _, record := range records {
		resp := BlockedIPResponse{
			IPAddress:    record.IPAddress,
			RequestCount: record.RequestCount,
			BlockReason:  record.BlockReason,
		}
		if record.BlockedUntil != nil {
			until := record.BlockedUntil.UTC().Format(time.RFC3339)
			resp.BlockedUntil = &until
		}
		out = append(out, resp)
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"blocked": out,
		"total":   len(out),
	})
}

// WhitelistIP handles POST /admin/whitelist
func (h *AdminHandler) WhitelistIP(w http.ResponseWriter, r *http.Request) {
	var req WhitelistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	var expiresAt *time.Time
	if req.TTLMinutes > 0 {
		t := time.Now().Add(time.Duration(req.TTLMinutes) * time.Minute)
		expiresAt = &t
	}
	h.rules.Whitelist(req.IPAddress, req.Reason, expiresAt)

	pkghttp.WriteJSON(w, http.StatusCreated, map[string]string{
		"message":    "IP whitelisted",
		"ip_address": req.IPAddress,
	})
}

// RemoveWhitelist handles DELETE /admin/whitelist/{ip}
func (h *AdminHandler) RemoveWhitelist(w http.ResponseWriter, r *http.Request) {
	ip := chi.URLParam(r, "ip")
	if !isValidIPParam(ip) {
		pkghttp.WriteBadRequest(w, "Invalid IP address")
		return
	}

	h.rules.RemoveWhitelist(ip)
	pkghttp.WriteNoContent(w)
}

// ListWhitelist handles GET /admin/whitelist
func (h *AdminHandler) ListWhitelist(w http.ResponseWriter, r *http.Request) {
	entries := h.rules.WhitelistEntries(time.Now())

	out := make([]WhitelistEntryResponse, 0, len(entries))
	for _, entry := range entries {
		resp := WhitelistEntryResponse{
			IPAddress: entry.IPAddress,
			Reason:    entry.Reason,
		}
		if entry.ExpiresAt != nil {
			expires := entry.ExpiresAt.UTC().Format(time.RFC3339)
			resp.ExpiresAt = &expires
		}
		out = append(out, resp)
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"whitelist": out,
		"total":     len(out),
	})
}

// BlockCountry handles POST /admin/countries
func (h *AdminHandler) BlockCountry(w http.ResponseWriter, r *http.Request) {
	var req CountryBlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	code := strings.ToUpper(req.CountryCode)
	h.rules.BlockCountry(code, req.Reason, time.Now())

	pkghttp.WriteJSON(w, http.StatusCreated, map[string]string{
		"message":      "country blocked",
		"country_code": code,
	})
}

// UnblockCountry handles DELETE /admin/countries/{code}
func (h *AdminHandler) UnblockCountry(w http.ResponseWriter, r *http.Request) {
	code := strings.ToUpper(chi.URLParam(r, "code"))
	if len(code) != 2 {
		pkghttp.WriteBadRequest(w, "Invalid country code")
		return
	}

	h.rules.UnblockCountry(code)
	pkghttp.WriteNoContent(w)
}

// ListCountryRules handles GET /admin/countries
func (h *AdminHandler) ListCountryRules(w http.ResponseWriter, r *http.Request) {
	rules := h.rules.CountryRules()

	out := make([]CountryRuleResponse, 0, len(rules))
	for _, rule := range rules {
		out = append(out, CountryRuleResponse{
			CountryCode: rule.CountryCode,
			Reason:      rule.Reason,
			CreatedAt:   rule.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"countries": out,
		"total":     len(out),
	})
}

// ListAlerts handles GET /admin/alerts
// Accepts optional query params ?limit=N (1-500) and ?unresolved=true.
func (h *AdminHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	unresolvedOnly := r.URL.Query().Get("unresolved") == "true"

	alerts, err := h.alerts.ListRecent(r.Context(), limit, unresolvedOnly)
	if err != nil {
		pkghttp.WriteInternalError(w, "Failed to list alerts")
		return
	}

	out := make([]AlertResponse, 0, len(alerts))
	for _, alert := range alerts {
		out = append(out, AlertResponse{
			ID:           alert.ID.String(),
			AlertType:    alert.AlertType,
			IPAddress:    alert.IPAddress,
			Severity:     string(alert.Severity),
			Description:  alert.Description,
			RequestCount: alert.RequestCount,
			IsResolved:   alert.IsResolved,
			CreatedAt:    alert.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": out,
		"total":  len(out),
	})
}

// ResolveAlert handles POST /admin/alerts/{id}/resolve
func (h *AdminHandler) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		pkghttp.WriteBadRequest(w, "Invalid alert id")
		return
	}

	if err := h.alerts.Resolve(r.Context(), id); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "Alert not found")
			return
		}
		pkghttp.WriteInternalError(w, "Failed to resolve alert")
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "alert resolved",
		"id":      id.String(),
	})
}

// ListUsers handles GET /admin/users
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	limit, offset := paginationParams(r, 50, 100)

	users, err := h.users.List(r.Context(), limit, offset)
	if err != nil {
		pkghttp.WriteInternalError(w, "Failed to list users")
		return
	}

	out := make([]map[string]interface{}, 0, len(users))
	for _, user := range users {
		out = append(out, map[string]interface{}{
			"id":          user.ID,
			"email":       user.Email,
			"name":        user.Name,
			"role":        string(user.Role),
			"mfa_enabled": user.MFAEnabled,
			"created_at":  user.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"users":  out,
		"total":  len(out),
		"limit":  limit,
		"offset": offset,
	})
}

// UpdateUserRole handles PUT /admin/users/{id}/role. Admins cannot change
// their own role; demoting the last admin by accident is the likeliest way
// to lock the console.
func (h *AdminHandler) UpdateUserRole(w http.ResponseWriter, r *http.Request) {
	targetID := chi.URLParam(r, "id")
	if _, err := uuid.Parse(targetID); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid user id")
		return
	}

	claims := auth.GetUserFromContext(r)
	if claims != nil && claims.UserID == targetID {
		pkghttp.WriteForbidden(w, "Cannot change your own role")
		return
	}

	var req UpdateRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	role, ok := models.ParseRole(req.Role)
	if !ok {
		pkghttp.WriteBadRequest(w, "Unknown role")
		return
	}

	if err := h.users.UpdateRole(r.Context(), targetID, role); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			pkghttp.WriteNotFound(w, "User not found")
			return
		}
		pkghttp.WriteInternalError(w, "Failed to update role")
		return
	}

	h.auditAdminAction(r, models.AuditEventRoleChange, true)
	pkghttp.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "role updated",
		"id":      targetID,
		"role":    string(role),
	})
}

// ListAuditLogs handles GET /admin/audit
// Filters: ?actor_id=, ?event_type=, ?failed=true. Exactly one filter is
// applied; actor_id wins, then event_type, then failed.
func (h *AdminHandler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	limit, offset := paginationParams(r, 50, 100)

	var (
		logs []*models.AuditLog
		err  error
	)
	switch {
	case r.URL.Query().Get("actor_id") != "":
		logs, err = h.audit.GetByActorID(r.Context(), r.URL.Query().Get("actor_id"), limit, offset)
	case r.URL.Query().Get("event_type") != "":
		logs, err = h.audit.GetByEventType(r.Context(), r.URL.Query().Get("event_type"), limit, offset)
	default:
		logs, err = h.audit.GetFailedAttempts(r.Context(), limit, offset)
	}
	if err != nil {
		pkghttp.WriteInternalError(w, "Failed to list audit logs")
		return
	}

	out := make([]AuditLogResponse, 0, len(logs))
	for _, log := range logs {
		out = append(out, AuditLogResponse{
			ID:            log.ID.String(),
			EventType:     log.EventType,
			ActorID:       log.ActorID,
			Success:       log.Success,
			FailureReason: log.FailureReason,
			IPAddress:     log.IPAddress,
			UserAgent:     log.UserAgent,
			CreatedAt:     log.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	pkghttp.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"logs":   out,
		"total":  len(out),
		"limit":  limit,
		"offset": offset,
	})
}

// auditAdminAction persists a trail entry for a state-changing admin call.
func (h *AdminHandler) auditAdminAction(r *http.Request, eventType string, success bool) {
	if h.audit == nil {
		return
	}
	var actorID *string
	if claims := auth.GetUserFromContext(r); claims != nil {
		actorID = &claims.UserID
	}
	_, _ = h.audit.Create(r.Context(), &models.AuditLog{
		EventType: eventType,
		ActorID:   actorID,
		Success:   success,
		IPAddress: pkghttp.ExtractClientIP(r, h.ipConfig),
		UserAgent: r.Header.Get("User-Agent"),
	})
}

func paginationParams(r *http.Request, defaultLimit, maxLimit int) (int, int) {
	limit := defaultLimit
	offset := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= maxLimit {
			limit = n
		}
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		if n, err := strconv.Atoi(o); err == nil && n >= 0 {
			offset = n
		}
	}
	return limit, offset
}

func isValidIPParam(ip string) bool {
	return validate.Var(ip, "required,ip") == nil
}
