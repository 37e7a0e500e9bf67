package graph

import (
	"context"
	"log/slog"

	"gonum.org/v1/gonum/floats"

	"github.com/opensource-finance/harrier/internal/domain"
)

const labelLength = 10

// Builder runs the bounded bidirectional BFS around a focal account.
type Builder struct {
	edgeScoring string
	logger      *slog.Logger
}

// NewBuilder creates a builder using the given edge scoring mode.
func NewBuilder(edgeScoring string, logger *slog.Logger) *Builder {
	if edgeScoring == "" {
		edgeScoring = domain.EdgeScoringFraudScore
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{edgeScoring: edgeScoring, logger: logger}
}

type nodeState struct {
	id       string
	depth    int
	isEgo    bool
	count    int
	sent     float64
	received float64
	scores   []float64
}

type frontierItem struct {
	node  int
	depth int
}

// traversal is the mutable state of one build.
type traversal struct {
	b       *Builder
	req     domain.GraphRequest
	data    *Dataset
	nodes   []nodeState
	index   map[string]int
	queue   []frontierItem
	edges   []domain.GraphEdge
	emitted map[int]struct{}
}

// Build returns the ego graph for req over data.
func (b *Builder) Build(ctx context.Context, req domain.GraphRequest, data *Dataset) (*domain.GraphResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if !data.HasAccount(req.ClientID) {
		return nil, &domain.NotFoundError{Entity: "Client ID", ID: req.ClientID}
	}

	t := &traversal{
		b:       b,
		req:     req,
		data:    data,
		index:   make(map[string]int),
		emitted: make(map[int]struct{}),
	}
	t.addNode(req.ClientID, 0)
	t.nodes[0].isEgo = true
	t.queue = append(t.queue, frontierItem{node: 0, depth: 0})

	for head := 0; head < len(t.queue) && len(t.nodes) < req.Limit; head++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		item := t.queue[head]
		if item.depth >= req.Depth {
			continue
		}

		current := t.nodes[item.node].id
		for _, row := range data.Outgoing(current) {
			t.visit(row, item, true)
		}
		for _, row := range data.Incoming(current) {
			t.visit(row, item, false)
		}
	}

	result := t.result()
	b.logger.Debug("ego graph built",
		"client_id", req.ClientID,
		"depth", req.Depth,
		"nodes", result.Summary.TotalNodes,
		"edges", result.Summary.TotalEdges,
	)
	return result, nil
}

func (t *traversal) addNode(id string, depth int) int {
	idx := len(t.nodes)
	t.nodes = append(t.nodes, nodeState{id: id, depth: depth})
	t.index[id] = idx
	return idx
}

// visit examines one transaction touching the current node. outgoing is true
// when the current node is the origin.
func (t *traversal) visit(row int, item frontierItem, outgoing bool) {
	if _, done := t.emitted[row]; done {
		return
	}

	tx := &t.data.txs[row]
	var fraudScore *float64
	if t.data.scores != nil {
		fs := t.data.scores[row]
		fraudScore = &fs
	}

	risk := EvaluateEdge(tx, fraudScore)
	edgeScore, reasons := risk.Score, risk.Reasons
	if fraudScore != nil && t.b.edgeScoring == domain.EdgeScoringFraudScore {
		edgeScore, reasons = *fraudScore, risk.withoutFloor()
	}
	if edgeScore < t.req.MinFraudScore {
		return
	}

	other := tx.DestID
	if !outgoing {
		other = tx.OriginID
	}
	if _, known := t.index[other]; !known {
		if len(t.nodes) >= t.req.Limit {
			return
		}
		idx := t.addNode(other, item.depth+1)
		t.queue = append(t.queue, frontierItem{node: idx, depth: item.depth + 1})
	}
	t.emitted[row] = struct{}{}

	src := &t.nodes[t.index[tx.OriginID]]
	src.count++
	src.sent += tx.Amount
	src.scores = append(src.scores, edgeScore)

	dst := &t.nodes[t.index[tx.DestID]]
	dst.count++
	dst.received += tx.Amount
	dst.scores = append(dst.scores, edgeScore)

	edgeFraud := edgeScore
	if fraudScore != nil {
		edgeFraud = *fraudScore
	}
	isFraud := 0
	if tx.Fraudulent() {
		isFraud = 1
	}

	t.edges = append(t.edges, domain.GraphEdge{
		Source:            tx.OriginID,
		Target:            tx.DestID,
		Amount:            tx.Amount,
		FraudScore:        edgeFraud,
		EdgeScore:         edgeScore,
		TransactionType:   tx.Type,
		Step:              tx.Step,
		IsFraud:           isFraud,
		Reasons:           reasons,
		IsOutgoingFromEgo: outgoing && item.node == 0,
	})
}

func (t *traversal) result() *domain.GraphResult {
	nodes := make([]domain.GraphNode, len(t.nodes))
	nodeRisk := make([]float64, len(t.nodes))
	maxDepth := 0
	for i := range t.nodes {
		n := &t.nodes[i]
		risk := mean(n.scores)
		nodeRisk[i] = risk
		maxDepth = max(maxDepth, n.depth)
		nodes[i] = domain.GraphNode{
			ID:                  n.id,
			Label:               Label(n.id),
			RiskScore:           risk,
			RiskLevel:           domain.ClassifyRisk(risk),
			TransactionCount:    n.count,
			TotalAmountSent:     n.sent,
			TotalAmountReceived: n.received,
			IsEgo:               n.isEgo,
			Depth:               n.depth,
		}
	}

	summary := domain.GraphSummary{
		TotalNodes:      len(nodes),
		TotalEdges:      len(t.edges),
		AvgNodeRisk:     mean(nodeRisk),
		MaxDepthReached: maxDepth,
		EgoNodeID:       t.req.ClientID,
	}
	edgeScores := make([]float64, len(t.edges))
	for i, e := range t.edges {
		edgeScores[i] = e.EdgeScore
		switch {
		case e.EdgeScore > domain.CriticalRiskThreshold:
			summary.HighRiskEdges++
		case e.EdgeScore > domain.HighRiskThreshold:
			summary.MediumRiskEdges++
		default:
			summary.LowRiskEdges++
		}
	}
	summary.AvgEdgeScore = mean(edgeScores)

	edges := t.edges
	if edges == nil {
		edges = []domain.GraphEdge{}
	}
	return &domain.GraphResult{Nodes: nodes, Edges: edges, Summary: summary}
}

// Label shortens long account ids for display.
func Label(id string) string {
	r := []rune(id)
	if len(r) > labelLength {
		return string(r[:labelLength]) + "..."
	}
	return id
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return floats.Sum(xs) / float64(len(xs))
}
