package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/svdesai/fraudscope/internal/fraud"
	"github.com/svdesai/fraudscope/internal/idgen"
	"github.com/svdesai/fraudscope/internal/logging"
	"github.com/svdesai/fraudscope/internal/metrics"
	"github.com/svdesai/fraudscope/internal/pagination"
	"github.com/svdesai/fraudscope/internal/retry"
	"github.com/svdesai/fraudscope/internal/validation"
)

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "fraudscope",
		"version": "1.0.0",
		"endpoints": gin.H{
			"intake":  "POST /v1/transactions",
			"alerts":  "GET /v1/alerts",
			"summary": "GET /v1/alerts/summary",
			"feed":    "GET /v1/feed (websocket)",
			"health":  "GET /healthz, GET /readyz",
			"metrics": "GET /metrics",
		},
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "starting"})
		return
	}
	healthy, statuses := s.healthReg.CheckAll(c.Request.Context())
	if !healthy {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "checks": statuses})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "checks": statuses})
}

// ingestRequest is the intake payload. TxnID and Timestamp are optional;
// missing values are filled in server-side.
type ingestRequest struct {
	TxnID            string     `json:"txnId"`
	AccountID        string     `json:"accountId"`
	MerchantID       string     `json:"merchantId"`
	DeviceID         string     `json:"deviceId"`
	Amount           float64    `json:"amount"`
	Timestamp        *time.Time `json:"timestamp"`
	Channel          string     `json:"channel"`
	Location         string     `json:"location"`
	IPAddress        string     `json:"ipAddress"`
	GeoLat           *float64   `json:"geoLat"`
	GeoLng           *float64   `json:"geoLng"`
	MerchantCategory string     `json:"merchantCategory"`
}

// ingestTransaction records a transaction and scores it synchronously,
// returning any alerts it raised.
func (s *Server) ingestTransaction(c *gin.Context) {
	// Intake stays closed until the startup replay finishes. A transaction
	// accepted mid-replay would be scored twice against the same live
	// windows, once by the stream and once by the replay.
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "starting",
			"message": "Service is replaying history, retry shortly",
		})
		return
	}

	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid JSON payload",
		})
		return
	}

	if errs := validation.Validate(
		validation.Required("accountId", req.AccountID),
		validation.NonNegative("amount", req.Amount),
		validation.GeoPair(req.GeoLat, req.GeoLng),
		validation.MaxLength("txnId", req.TxnID, 64),
		validation.MaxLength("accountId", req.AccountID, 64),
		validation.MaxLength("merchantId", req.MerchantID, 128),
	); len(errs) > 0 {
		metrics.TransactionsRejected.Inc()
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_failed",
			"details": errs,
		})
		return
	}

	txn := &fraud.Transaction{
		ID:               req.TxnID,
		AccountID:        req.AccountID,
		MerchantID:       req.MerchantID,
		DeviceID:         req.DeviceID,
		Amount:           req.Amount,
		Timestamp:        time.Now().UTC(),
		Channel:          req.Channel,
		Location:         req.Location,
		IPAddress:        req.IPAddress,
		GeoLat:           req.GeoLat,
		GeoLng:           req.GeoLng,
		MerchantCategory: req.MerchantCategory,
	}
	if txn.ID == "" {
		txn.ID = idgen.WithPrefix("txn_")
	}
	if req.Timestamp != nil {
		txn.Timestamp = req.Timestamp.UTC()
	}

	ctx := c.Request.Context()
	logger := logging.L(ctx)

	if err := s.txns.Insert(ctx, txn); err != nil {
		logger.Error("transaction insert failed", "txn_id", txn.ID, "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "storage_unavailable",
			"message": "Could not persist transaction",
		})
		return
	}

	// Scoring retries on transient alert-store failures; validation errors
	// are permanent. Dedup makes the retries safe.
	var alerts []*fraud.Alert
	err := retry.Do(ctx, 3, 100*time.Millisecond, func() error {
		var perr error
		alerts, perr = s.runner.Process(ctx, txn)
		if perr != nil && fraud.IsValidation(perr) {
			return retry.Permanent(perr)
		}
		return perr
	})
	if err != nil {
		if fraud.IsValidation(err) {
			metrics.TransactionsRejected.Inc()
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "validation_failed",
				"message": err.Error(),
			})
			return
		}
		logger.Error("transaction scoring failed", "txn_id", txn.ID, "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "scoring_failed",
			"message": "Transaction stored but scoring failed; it will be picked up by replay",
		})
		return
	}

	if alerts == nil {
		alerts = []*fraud.Alert{}
	}
	c.JSON(http.StatusCreated, gin.H{
		"transaction": txn,
		"alerts":      alerts,
	})
}

func (s *Server) listAlerts(c *gin.Context) {
	limit := parseLimit(c.Query("limit"), 50, 500)
	cursor, err := pagination.Decode(c.Query("cursor"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "invalid cursor",
		})
		return
	}

	// Fetch one extra row to detect whether another page exists.
	alerts, err := s.alerts.ListRecent(c.Request.Context(), limit+1, cursor)
	if err != nil {
		logging.L(c.Request.Context()).Error("alert list failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}

	page, next, hasMore := pagination.ComputePage(alerts, limit, func(a *fraud.Alert) (time.Time, string) {
		return a.CreatedAt, a.ID
	})
	resp := gin.H{"alerts": page, "count": len(page), "hasMore": hasMore}
	if next != "" {
		resp["nextCursor"] = next
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) listAccountAlerts(c *gin.Context) {
	accountID := c.Param("id")
	limit := parseLimit(c.Query("limit"), 50, 500)
	alerts, err := s.alerts.ListByAccount(c.Request.Context(), accountID, limit)
	if err != nil {
		logging.L(c.Request.Context()).Error("alert list failed", "account_id", accountID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"accountId": accountID, "alerts": alerts, "count": len(alerts)})
}

func (s *Server) alertSummary(c *gin.Context) {
	counts, err := s.alerts.CountByRule(c.Request.Context())
	if err != nil {
		logging.L(c.Request.Context()).Error("alert summary failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rules": counts})
}

func (s *Server) acknowledgeAlert(c *gin.Context) {
	alertID := c.Param("id")
	err := s.alerts.Acknowledge(c.Request.Context(), alertID)
	if err != nil {
		if errors.Is(err, fraud.ErrAlertNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
			return
		}
		logging.L(c.Request.Context()).Error("acknowledge failed", "alert_id", alertID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": alertID, "status": fraud.StatusAcknowledged})
}

// rescore replays stored transactions through the rules. Dedup guarantees
// already-raised alerts are not duplicated, so this is safe to run anytime
// (after a rule threshold change, or to rebuild windows).
func (s *Server) rescore(c *gin.Context) {
	var since *time.Time
	if raw := c.Query("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_request",
				"message": "since must be RFC3339",
			})
			return
		}
		since = &t
	}

	// Replay over fresh windows so the live streaming state is untouched;
	// the replay derives each account's history from scratch, exactly like
	// the backfill command.
	result, err := s.batchRunner().RunBatch(c.Request.Context(), since)
	if err != nil {
		logging.L(c.Request.Context()).Error("rescore failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "rescore_failed"})
		return
	}
	c.JSON(http.StatusOK, result)
}

func parseLimit(raw string, def, max int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
