package domain

import "fmt"

// Graph request bounds.
const (
	MinGraphDepth     = 1
	MaxGraphDepth     = 3
	DefaultGraphDepth = 2
	DefaultGraphLimit = 100
)

// GraphRequest asks for the ego graph around one account.
type GraphRequest struct {
	ClientID      string  `json:"client_id"`
	Depth         int     `json:"depth"`
	MinFraudScore float64 `json:"min_fraud_score"`
	Limit         int     `json:"limit"`
}

// NewGraphRequest returns a request with the default depth and limit.
func NewGraphRequest(clientID string) GraphRequest {
	return GraphRequest{
		ClientID: clientID,
		Depth:    DefaultGraphDepth,
		Limit:    DefaultGraphLimit,
	}
}

// Validate checks every bound and reports all violations at once.
// Values are never clamped.
func (r GraphRequest) Validate() error {
	var violations []string
	if r.ClientID == "" {
		violations = append(violations, "client_id is required")
	}
	if r.Depth < MinGraphDepth || r.Depth > MaxGraphDepth {
		violations = append(violations, fmt.Sprintf("depth must be between %d and %d, got %d", MinGraphDepth, MaxGraphDepth, r.Depth))
	}
	if r.MinFraudScore < 0 || r.MinFraudScore > 1 || r.MinFraudScore != r.MinFraudScore {
		violations = append(violations, fmt.Sprintf("min_fraud_score must be between 0 and 1, got %g", r.MinFraudScore))
	}
	if r.Limit <= 0 {
		violations = append(violations, fmt.Sprintf("limit must be positive, got %d", r.Limit))
	}
	if len(violations) > 0 {
		return NewValidationError(violations...)
	}
	return nil
}

// GraphNode is one account discovered during traversal.
type GraphNode struct {
	ID                  string    `json:"id"`
	Label               string    `json:"label"`
	RiskScore           float64   `json:"risk_score"`
	RiskLevel           RiskLevel `json:"risk_level"`
	TransactionCount    int       `json:"transaction_count"`
	TotalAmountSent     float64   `json:"total_amount_sent"`
	TotalAmountReceived float64   `json:"total_amount_received"`
	IsEgo               bool      `json:"is_ego"`
	Depth               int       `json:"depth"`
}

// GraphEdge is one transaction examined during traversal.
type GraphEdge struct {
	Source            string   `json:"source"`
	Target            string   `json:"target"`
	Amount            float64  `json:"amount"`
	FraudScore        float64  `json:"fraud_score"`
	EdgeScore         float64  `json:"edge_score"`
	TransactionType   string   `json:"transaction_type"`
	Step              int      `json:"step"`
	IsFraud           int      `json:"is_fraud"`
	Reasons           []string `json:"reasons"`
	IsOutgoingFromEgo bool     `json:"is_outgoing_from_ego"`
}

// GraphSummary aggregates a graph result.
type GraphSummary struct {
	TotalNodes      int     `json:"total_nodes"`
	TotalEdges      int     `json:"total_edges"`
	HighRiskEdges   int     `json:"high_risk_edges"`
	MediumRiskEdges int     `json:"medium_risk_edges"`
	LowRiskEdges    int     `json:"low_risk_edges"`
	AvgEdgeScore    float64 `json:"avg_edge_score"`
	AvgNodeRisk     float64 `json:"avg_node_risk"`
	MaxDepthReached int     `json:"max_depth_reached"`
	EgoNodeID       string  `json:"ego_node_id"`
}

// GraphResult is the ego graph returned to callers.
type GraphResult struct {
	Nodes   []GraphNode  `json:"nodes"`
	Edges   []GraphEdge  `json:"edges"`
	Summary GraphSummary `json:"summary"`
}
