// Package api exposes a running evaluator over HTTP.
package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/roach88/greynet/internal/engine"
	"github.com/roach88/greynet/internal/ir"
)

// Handlers serves the evaluator. Reads use the committed snapshot;
// mutations are submitted to the evaluator's Run loop, which must be
// running.
type Handlers struct {
	ev     *engine.Evaluator
	logger *slog.Logger
}

// NewHandlers creates handlers for ev.
func NewHandlers(ev *engine.Evaluator, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{ev: ev, logger: logger}
}

// HandleScore returns the committed score and per-constraint totals.
//
// GET /v1/score
func (h *Handlers) HandleScore(c *gin.Context) {
	snap := h.ev.Snapshot()
	resp := ScoreResponse{
		Seq:         snap.Seq,
		Score:       ir.FormatDecimal(&snap.Total),
		Matches:     snap.MatchTotal(),
		Facts:       snap.Facts,
		Constraints: make([]ConstraintResponse, len(snap.Constraints)),
	}
	for i := range snap.Constraints {
		ct := &snap.Constraints[i]
		resp.Constraints[i] = ConstraintResponse{
			Name:         ct.Name,
			Count:        ct.Count,
			Contribution: ir.FormatDecimal(&ct.Contribution),
		}
	}
	c.JSON(http.StatusOK, resp)
}

// HandleConstraints lists the constraints with their pipelines.
//
// GET /v1/constraints
func (h *Handlers) HandleConstraints(c *gin.Context) {
	snap := h.ev.Snapshot()
	out := make([]ConstraintResponse, 0, len(snap.Constraints))
	for i := range snap.Constraints {
		ct := &snap.Constraints[i]
		pipeline, err := h.ev.Describe(ct.Name)
		if err != nil {
			h.internalError(c, err)
			return
		}
		out = append(out, ConstraintResponse{
			Name:         ct.Name,
			Count:        ct.Count,
			Contribution: ir.FormatDecimal(&ct.Contribution),
			Pipeline:     pipeline,
		})
	}
	c.JSON(http.StatusOK, gin.H{"constraints": out})
}

// HandleMatches lists the live matches of one constraint.
//
// GET /v1/constraints/:name/matches
func (h *Handlers) HandleMatches(c *gin.Context) {
	name := c.Param("name")
	matches, err := h.ev.Matches(name)
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
		return
	}
	resp := MatchesResponse{Constraint: name, Matches: make([]MatchResponse, len(matches))}
	for i := range matches {
		resp.Matches[i] = MatchResponse{
			Tuple:  matches[i].Tuple.Key(),
			Weight: ir.FormatDecimal(&matches[i].Weight),
		}
	}
	c.JSON(http.StatusOK, resp)
}

// HandleCustomerTransactions lists the live transactions of one customer.
//
// GET /v1/customers/:id/transactions
func (h *Handlers) HandleCustomerTransactions(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("invalid id %q", c.Param("id"))})
		return
	}
	txs := h.ev.CustomerTransactions(id)
	resp := CustomerTransactionsResponse{CustomerID: id, Transactions: make([]TransactionJSON, len(txs))}
	for i, t := range txs {
		resp.Transactions[i] = TransactionJSON{
			ID:         t.ID,
			CustomerID: t.CustomerID,
			Amount:     ir.FormatDecimal(&t.Amount),
			Location:   t.Location,
		}
	}
	c.JSON(http.StatusOK, resp)
}

// HandleStats reports node memory sizes and the submission backlog.
//
// GET /v1/stats
func (h *Handlers) HandleStats(c *gin.Context) {
	stats := h.ev.Stats()
	resp := StatsResponse{
		Seq:    h.ev.Snapshot().Seq,
		Queued: h.ev.QueueLen(),
		Nodes:  make([]NodeResponse, len(stats)),
	}
	for i, s := range stats {
		resp.Nodes[i] = NodeResponse{
			Name:       s.Name,
			Kind:       s.Kind.String(),
			Constraint: s.Constraint,
			Memory:     s.Memory,
			Keys:       s.Keys,
		}
	}
	c.JSON(http.StatusOK, resp)
}

// HandleInsertFacts inserts a batch of facts.
//
// POST /v1/facts
func (h *Handlers) HandleInsertFacts(c *gin.Context) {
	var req FactsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request: " + err.Error()})
		return
	}
	b, err := req.batch()
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	if b.Len() == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "request lists no facts"})
		return
	}
	h.submit(c, b, http.StatusCreated)
}

// HandleRetractFact retracts one fact.
//
// DELETE /v1/facts/:type/:id
func (h *Handlers) HandleRetractFact(c *gin.Context) {
	t, err := ir.ParseFactType(c.Param("type"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	key, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("invalid id %q", c.Param("id"))})
		return
	}
	h.submit(c, engine.NewBatch().Retract(ir.FactID{Type: t, Key: key}), http.StatusOK)
}

// HandleHealth reports whether the evaluator still accepts batches.
//
// GET /healthz
func (h *Handlers) HandleHealth(c *gin.Context) {
	if err := h.ev.Failed(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "failed", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "queued": h.ev.QueueLen()})
}

func (h *Handlers) submit(c *gin.Context, b *engine.Batch, status int) {
	r, err := h.ev.Submit(c.Request.Context(), b)
	if err != nil {
		h.batchError(c, err)
		return
	}
	resp := MutationResponse{Seq: r.Seq, Inserted: make([]string, len(r.Inserted)), Retracted: r.Retracted}
	for i, id := range r.Inserted {
		resp.Inserted[i] = id.String()
	}
	resp.Score = ir.FormatDecimal(&r.Snapshot.Total)
	c.JSON(status, resp)
}

func (h *Handlers) batchError(c *gin.Context, err error) {
	var re *engine.RuntimeError
	if !errors.As(err, &re) {
		h.internalError(c, err)
		return
	}
	status := http.StatusInternalServerError
	switch re.Code {
	case engine.ErrCodeInvalidFact:
		status = http.StatusUnprocessableEntity
	case engine.ErrCodeDuplicateFact:
		status = http.StatusConflict
	case engine.ErrCodeUnknownFact:
		status = http.StatusNotFound
	case engine.ErrCodeBatchTooLarge:
		status = http.StatusRequestEntityTooLarge
	case engine.ErrCodeEvaluatorStopped, engine.ErrCodeEvaluatorFailed:
		status = http.StatusServiceUnavailable
	}
	if re.Fatal() {
		h.logger.Error("batch failed", "code", re.Code, "error", err)
	}
	c.JSON(status, ErrorResponse{Error: re.Message, Code: string(re.Code), FactID: re.FactID})
}

func (h *Handlers) internalError(c *gin.Context, err error) {
	h.logger.Error("request failed", "path", c.FullPath(), "error", err)
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
}

func (r *FactsRequest) batch() (*engine.Batch, error) {
	b := engine.NewBatch()
	for _, c := range r.Customers {
		b.Insert(&ir.Customer{ID: c.ID, RiskLevel: ir.RiskLevel(c.RiskLevel), Status: ir.Status(c.Status)})
	}
	for _, t := range r.Transactions {
		amount, err := ir.ParseDecimal(t.Amount)
		if err != nil {
			return nil, fmt.Errorf("transaction %d: %w", t.ID, err)
		}
		f := &ir.Transaction{ID: t.ID, CustomerID: t.CustomerID, Location: t.Location}
		f.Amount.Set(amount)
		b.Insert(f)
	}
	for _, a := range r.Alerts {
		b.Insert(&ir.SecurityAlert{Location: a.Location, Severity: a.Severity})
	}
	return b, nil
}
