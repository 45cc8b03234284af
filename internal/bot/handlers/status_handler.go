package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/edgard/civicbot/internal/budget"
)

// NewRateLimitsHandler returns a handler reporting the provider call windows.
func NewRateLimitsHandler(deps HandlerDeps) gin.HandlerFunc {
	return rateLimitsHandler{deps}.Handle
}

type rateLimitsHandler struct {
	deps HandlerDeps
}

func (h rateLimitsHandler) Handle(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true, "endpoints": h.deps.Tracker.Snapshot(c.Request.Context())})
}

// budgetItem renders amounts as JSON numbers rather than quoted decimals.
type budgetItem struct {
	ID         string      `json:"id"`
	Department string      `json:"department"`
	Contractor string      `json:"contractor"`
	BudgetLine string      `json:"budgetLine"`
	WardID     *int        `json:"wardId,omitempty"`
	Amount     json.Number `json:"amount"`
}

// NewBudgetsHandler returns a handler for the transparency budget search.
func NewBudgetsHandler(deps HandlerDeps) gin.HandlerFunc {
	return budgetsHandler{deps}.Handle
}

type budgetsHandler struct {
	deps HandlerDeps
}

func (h budgetsHandler) Handle(c *gin.Context) {
	res := h.deps.Budgets.Find(budget.Query{
		Department: c.Query("department"),
		Text:       c.Query("q"),
	})

	items := make([]budgetItem, 0, len(res.Items))
	for _, it := range res.Items {
		items = append(items, budgetItem{
			ID:         it.ID,
			Department: it.Department,
			Contractor: it.Contractor,
			BudgetLine: it.BudgetLine,
			WardID:     it.WardID,
			Amount:     json.Number(it.Amount.String()),
		})
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "total": json.Number(res.Total.String())})
}

// NewHealthHandler returns a handler probing the service dependencies.
func NewHealthHandler(deps HandlerDeps) gin.HandlerFunc {
	return healthHandler{deps}.Handle
}

type healthHandler struct {
	deps HandlerDeps
}

func (h healthHandler) Handle(c *gin.Context) {
	c.JSON(http.StatusOK, h.deps.Health.Check(c.Request.Context()))
}
