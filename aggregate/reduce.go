package aggregate

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/agentgraph/agentgraph/graph"
	"github.com/agentgraph/agentgraph/types"
)

// reduce applies the configured method to the collected responses.
// responses is non-empty by the time this runs.
func (a *Aggregator) reduce(ctx context.Context, cfg *graph.AggregatorConfig, responses []types.AgentResponse) (*Result, error) {
	switch cfg.Method {
	case graph.AggConsensus:
		return a.consensus(cfg, responses), nil
	case graph.AggWeightedAverage:
		return a.weightedAverage(cfg, responses), nil
	case graph.AggMajorityVote:
		return a.majorityVote(cfg, responses), nil
	case graph.AggAIJudge:
		if a.judge != nil {
			result, err := a.judge(ctx, cfg.Prompt, responses)
			if err == nil {
				result.Method = graph.AggAIJudge
				result.Responses = responses
				return result, nil
			}
			a.logger.Warn("judge failed, reducing by best confidence", zap.Error(err))
		}
		return bestConfidence(responses), nil
	default:
		return bestConfidence(responses), nil
	}
}

// consensus clusters responses by normalized output. Agreement is reached
// when the largest cluster's share of the responses is at least the node's
// confidence threshold (a strict majority when no threshold is set); the
// cluster's highest-confidence member represents it and the cluster's mean
// confidence is reported. Without agreement the method degrades to
// best_confidence.
func (a *Aggregator) consensus(cfg *graph.AggregatorConfig, responses []types.AgentResponse) *Result {
	clusters := make(map[string][]int)
	var order []string
	for i, r := range responses {
		key := normalize(r.Output)
		if _, seen := clusters[key]; !seen {
			order = append(order, key)
		}
		clusters[key] = append(clusters[key], i)
	}

	best := ""
	for _, key := range order {
		if best == "" || len(clusters[key]) > len(clusters[best]) {
			best = key
		}
	}

	sizes := make(map[string]int, len(clusters))
	for k, members := range clusters {
		sizes[k] = len(members)
	}

	members := clusters[best]
	agreed := len(members)*2 > len(responses)
	if cfg.ConfidenceThreshold > 0 {
		agreed = float64(len(members)) >= cfg.ConfidenceThreshold*float64(len(responses))
	}
	if !agreed {
		a.logger.Debug("no consensus, falling back to best confidence",
			zap.Int("largest_cluster", len(members)),
			zap.Int("responses", len(responses)),
		)
		result := bestConfidence(responses)
		result.Breakdown = map[string]any{"clusters": sizes, "agreement": false}
		return result
	}

	rep := members[0]
	var sum float64
	for _, i := range members {
		sum += responses[i].Confidence
		if responses[i].Confidence > responses[rep].Confidence {
			rep = i
		}
	}

	return &Result{
		Output:     responses[rep].Output,
		Confidence: sum / float64(len(members)),
		Method:     graph.AggConsensus,
		Responses:  responses,
		Breakdown:  map[string]any{"clusters": sizes, "agreement": true, "cluster_size": len(members)},
	}
}

// weightedAverage averages numeric outputs using the per-input weights.
// When any output is non-numeric the method cannot average; the response
// from the heaviest input wins instead.
func (a *Aggregator) weightedAverage(cfg *graph.AggregatorConfig, responses []types.AgentResponse) *Result {
	weights := inputWeights(cfg)

	var valueSum, confSum, weightSum float64
	numeric := true
	for _, r := range responses {
		v, err := strconv.ParseFloat(strings.TrimSpace(r.Output), 64)
		if err != nil {
			numeric = false
			break
		}
		w := weights[r.AgentID]
		valueSum += v * w
		confSum += r.Confidence * w
		weightSum += w
	}

	if numeric && weightSum > 0 {
		return &Result{
			Output:     strconv.FormatFloat(valueSum/weightSum, 'g', -1, 64),
			Confidence: confSum / weightSum,
			Method:     graph.AggWeightedAverage,
			Responses:  responses,
			Breakdown:  map[string]any{"weight_sum": weightSum},
		}
	}

	// Non-numeric outputs: heaviest input wins, ties by arrival order.
	best := 0
	for i := 1; i < len(responses); i++ {
		if weights[responses[i].AgentID] > weights[responses[best].AgentID] {
			best = i
		}
	}
	return &Result{
		Output:     responses[best].Output,
		Confidence: responses[best].Confidence,
		Method:     graph.AggWeightedAverage,
		Responses:  responses,
		Breakdown:  map[string]any{"numeric": false, "winner": responses[best].AgentID},
	}
}

// majorityVote counts normalized ballots. With a declared choice set each
// response must normalize to one of the choices; spoiled ballots are
// discarded. The winner is the ballot with the most votes, ties broken by
// cumulative input weight, then first appearance. Confidence is the winning
// share of valid ballots.
func (a *Aggregator) majorityVote(cfg *graph.AggregatorConfig, responses []types.AgentResponse) *Result {
	weights := inputWeights(cfg)

	choiceByKey := make(map[string]string, len(cfg.Choices))
	for _, c := range cfg.Choices {
		choiceByKey[normalize(c)] = c
	}

	votes := make(map[string]int)
	voteWeight := make(map[string]float64)
	label := make(map[string]string)
	var order []string
	valid := 0

	for _, r := range responses {
		key := normalize(r.Output)
		display := r.Output
		if len(cfg.Choices) > 0 {
			c, ok := choiceByKey[key]
			if !ok {
				a.logger.Debug("discarding ballot outside choice set",
					zap.String("agent_id", r.AgentID),
					zap.String("output", r.Output),
				)
				continue
			}
			key, display = normalize(c), c
		}
		if _, seen := votes[key]; !seen {
			order = append(order, key)
			label[key] = display
		}
		votes[key]++
		voteWeight[key] += weights[r.AgentID]
		valid++
	}

	if valid == 0 {
		result := bestConfidence(responses)
		result.Breakdown = map[string]any{"valid_ballots": 0}
		return result
	}

	winner := order[0]
	for _, key := range order[1:] {
		if votes[key] > votes[winner] ||
			(votes[key] == votes[winner] && voteWeight[key] > voteWeight[winner]) {
			winner = key
		}
	}

	tally := make(map[string]int, len(votes))
	for k, n := range votes {
		tally[label[k]] = n
	}

	return &Result{
		Output:     label[winner],
		Confidence: float64(votes[winner]) / float64(valid),
		Method:     graph.AggMajorityVote,
		Responses:  responses,
		Breakdown:  map[string]any{"votes": tally, "valid_ballots": valid},
	}
}

// bestConfidence picks the single highest-confidence response, ties broken
// by lower latency, then arrival order.
func bestConfidence(responses []types.AgentResponse) *Result {
	best := 0
	for i := 1; i < len(responses); i++ {
		cur, chosen := responses[i], responses[best]
		if cur.Confidence > chosen.Confidence ||
			(cur.Confidence == chosen.Confidence && cur.LatencyMs < chosen.LatencyMs) {
			best = i
		}
	}
	return &Result{
		Output:     responses[best].Output,
		Confidence: responses[best].Confidence,
		Method:     graph.AggBestConfidence,
		Responses:  responses,
		Breakdown:  map[string]any{"winner": responses[best].AgentID},
	}
}

func inputWeights(cfg *graph.AggregatorConfig) map[string]float64 {
	weights := make(map[string]float64, len(cfg.Inputs))
	for _, in := range cfg.Inputs {
		w := in.Weight
		if w <= 0 {
			w = 1
		}
		weights[in.AgentID] = w
	}
	return weights
}

// normalize folds case, strips punctuation and collapses whitespace so that
// "Yes.", "yes" and " YES " land in the same cluster.
func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := true
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			space = false
		case unicode.IsSpace(r):
			if !space {
				b.WriteRune(' ')
				space = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// formatOutput rewrites the winning output per the node's output format.
// combined (the default) and summary keep the winner as-is; ranked lists
// every response ordered by confidence; detailed appends per-agent
// attribution.
func formatOutput(format graph.OutputFormat, result *Result) string {
	switch format {
	case graph.FormatRanked:
		ranked := make([]types.AgentResponse, len(result.Responses))
		copy(ranked, result.Responses)
		for i := 1; i < len(ranked); i++ {
			for j := i; j > 0 && ranked[j].Confidence > ranked[j-1].Confidence; j-- {
				ranked[j], ranked[j-1] = ranked[j-1], ranked[j]
			}
		}
		var b strings.Builder
		for i, r := range ranked {
			fmt.Fprintf(&b, "%d. [%s] %s (%.2f)\n", i+1, r.AgentID, r.Output, r.Confidence)
		}
		return strings.TrimRight(b.String(), "\n")

	case graph.FormatDetailed:
		var b strings.Builder
		b.WriteString(result.Output)
		b.WriteString("\n---\n")
		for _, r := range result.Responses {
			fmt.Fprintf(&b, "[%s] %s (confidence %.2f, %dms)\n", r.AgentID, r.Output, r.Confidence, r.LatencyMs)
		}
		return strings.TrimRight(b.String(), "\n")

	default:
		return result.Output
	}
}
