package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"callbridge/internal/auth"
	"callbridge/internal/call"
	"callbridge/internal/coordinator"
	"callbridge/internal/reconcile"
	"callbridge/internal/record"

	"github.com/gin-gonic/gin"
)

// Accounts is the account surface the REST layer exposes: balance lookup and
// the callee-side availability toggle.
type Accounts interface {
	GetBalance(ctx context.Context, accountID string) (int64, error)
	IsAvailable(ctx context.Context, accountID string) (bool, error)
	SetAvailable(ctx context.Context, accountID string, available bool) error
}

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Auth        *auth.Manager
	Coordinator *coordinator.Coordinator
	Accounts    Accounts
	Records     record.Store
	Reconcile   *reconcile.Service
}

// --- Auth ---

type loginRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// Login issues a JWT token pair.
//
// NOTE: This is a skeleton-only endpoint. Real systems must validate credentials.
func (h Handlers) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" || req.Role == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id, role required"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.UserID, req.Role)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// --- Calls ---

type initiateRequest struct {
	CalleeID string `json:"callee_id"`
	CallType string `json:"call_type"`
}

func (h Handlers) InitiateCall(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "identity required"})
		return
	}
	var req initiateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	s, err := h.Coordinator.Initiate(c.Request.Context(), userID, req.CalleeID, call.Type(req.CallType))
	if err != nil {
		abortCallError(c, err)
		return
	}
	c.JSON(http.StatusCreated, s)
}

func (h Handlers) AnswerCall(c *gin.Context) {
	h.applyCallEvent(c, h.Coordinator.Answer)
}

func (h Handlers) RejectCall(c *gin.Context) {
	h.applyCallEvent(c, h.Coordinator.Reject)
}

func (h Handlers) CancelCall(c *gin.Context) {
	h.applyCallEvent(c, h.Coordinator.Cancel)
}

func (h Handlers) EndCall(c *gin.Context) {
	h.applyCallEvent(c, h.Coordinator.End)
}

func (h Handlers) applyCallEvent(c *gin.Context, op func(ctx context.Context, callID, actor string) (call.Session, error)) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "identity required"})
		return
	}
	callID := c.Param("call_id")
	if callID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "call_id required"})
		return
	}
	s, err := op(c.Request.Context(), callID, userID)
	if err != nil {
		abortCallError(c, err)
		return
	}
	c.JSON(http.StatusOK, s)
}

func (h Handlers) GetCall(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "identity required"})
		return
	}
	rec, err := h.Records.Find(c.Request.Context(), c.Param("call_id"))
	if err != nil {
		if errors.Is(err, record.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}
	if rec.CallerID != userID && rec.CalleeID != userID {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "not a participant"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

// --- Account ---

func (h Handlers) GetBalance(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "identity required"})
		return
	}
	bal, err := h.Accounts.GetBalance(c.Request.Context(), userID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "balance lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"account_id": userID, "balance_coins": bal})
}

type availabilityRequest struct {
	Available *bool `json:"available"`
}

// SetAvailability toggles whether the authenticated callee accepts calls.
func (h Handlers) SetAvailability(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "identity required"})
		return
	}
	var req availabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Available == nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "available required"})
		return
	}
	if err := h.Accounts.SetAvailable(c.Request.Context(), userID, *req.Available); err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "availability update failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"account_id": userID, "available": *req.Available})
}

func (h Handlers) GetAvailability(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "identity required"})
		return
	}
	available, err := h.Accounts.IsAvailable(c.Request.Context(), userID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "availability lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"account_id": userID, "available": available})
}

// --- History ---

func (h Handlers) ListCallHistory(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "identity required"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	recs, err := h.Records.ListByIdentity(c.Request.Context(), userID, limit)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "history lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"calls": recs})
}

func (h Handlers) GetUsageSummary(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "identity required"})
		return
	}
	summary, err := h.Records.Summary(c.Request.Context(), userID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "summary lookup failed"})
		return
	}
	c.JSON(http.StatusOK, summary)
}

// --- Admin ---

// ListReconciliation returns open settlement discrepancies.
// Route must be guarded with auth.RequireRole(auth.RoleAdmin).
func (h Handlers) ListReconciliation(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	entries, err := h.Reconcile.List(c.Request.Context(), limit)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "reconciliation lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// abortCallError maps lifecycle and coordinator errors onto HTTP statuses.
// The response echoes the sentinel text; internals never leak.
func abortCallError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, call.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
	case errors.Is(err, call.ErrUnauthorized):
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "not allowed for this participant"})
	case errors.Is(err, call.ErrInvalidTransition):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, call.ErrAlreadyActive):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "participant already in a call"})
	case errors.Is(err, coordinator.ErrCalleeOffline),
		errors.Is(err, coordinator.ErrCalleeUnavailable):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, coordinator.ErrInsufficientBalance):
		c.AbortWithStatusJSON(http.StatusPaymentRequired, gin.H{"error": err.Error()})
	case errors.Is(err, coordinator.ErrSelfCall),
		errors.Is(err, coordinator.ErrInvalidCallType):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
