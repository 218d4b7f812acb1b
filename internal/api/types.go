package api

// FactsRequest is the body of POST /v1/facts. All facts are inserted as
// one batch: either every fact is accepted or none is.
type FactsRequest struct {
	Customers    []CustomerJSON    `json:"customers"`
	Transactions []TransactionJSON `json:"transactions"`
	Alerts       []AlertJSON       `json:"alerts"`
}

// CustomerJSON is a customer on the wire.
type CustomerJSON struct {
	ID        int64  `json:"id"`
	RiskLevel string `json:"risk_level" binding:"required"`
	Status    string `json:"status" binding:"required"`
}

// TransactionJSON is a transaction on the wire. Amount is a decimal
// string.
type TransactionJSON struct {
	ID         int64  `json:"id"`
	CustomerID int64  `json:"customer_id"`
	Amount     string `json:"amount" binding:"required"`
	Location   string `json:"location" binding:"required"`
}

// AlertJSON is a security alert on the wire.
type AlertJSON struct {
	Location string `json:"location" binding:"required"`
	Severity int64  `json:"severity"`
}

// ErrorResponse is returned with every non-2xx status.
type ErrorResponse struct {
	Error  string `json:"error"`
	Code   string `json:"code,omitempty"`
	FactID string `json:"fact_id,omitempty"`
}

// ScoreResponse is the committed score.
type ScoreResponse struct {
	Seq         int64                `json:"seq"`
	Score       string               `json:"score"`
	Matches     int64                `json:"matches"`
	Facts       int                  `json:"facts"`
	Constraints []ConstraintResponse `json:"constraints"`
}

// ConstraintResponse is one constraint's totals.
type ConstraintResponse struct {
	Name         string `json:"name"`
	Count        int64  `json:"count"`
	Contribution string `json:"contribution"`
	Pipeline     string `json:"pipeline,omitempty"`
}

// MatchesResponse lists the live matches of one constraint.
type MatchesResponse struct {
	Constraint string          `json:"constraint"`
	Matches    []MatchResponse `json:"matches"`
}

// MatchResponse is one live match.
type MatchResponse struct {
	Tuple  string `json:"tuple"`
	Weight string `json:"weight"`
}

// MutationResponse describes a committed batch.
type MutationResponse struct {
	Seq       int64    `json:"seq"`
	Inserted  []string `json:"inserted"`
	Retracted int      `json:"retracted"`
	Score     string   `json:"score"`
}

// StatsResponse describes the evaluator's network and submission queue.
type StatsResponse struct {
	Seq    int64          `json:"seq"`
	Queued int            `json:"queued"`
	Nodes  []NodeResponse `json:"nodes"`
}

// NodeResponse is one network node and the size of its memory.
type NodeResponse struct {
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	Constraint string `json:"constraint,omitempty"`
	Memory     int    `json:"memory"`
	Keys       int    `json:"keys,omitempty"`
}

// CustomerTransactionsResponse lists a customer's live transactions.
type CustomerTransactionsResponse struct {
	CustomerID   int64             `json:"customer_id"`
	Transactions []TransactionJSON `json:"transactions"`
}
