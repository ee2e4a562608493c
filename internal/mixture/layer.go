package mixture

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"moad/pkg/types"
)

// Layer is an ordered group of agents that all receive the same input and
// run concurrently. The first layer of a pipeline is always the base layer;
// every later layer is a coordinator layer.
type Layer struct {
	Kind   types.LayerKind
	Level  int
	Agents []Agent
}

// failedAgentPlaceholder stands in for an agent whose call could not be
// recovered, so the layer output keeps a stable shape for downstream layers.
const failedAgentPlaceholder = "[agent unavailable]"

type agentOutcome struct {
	index  int
	text   string
	tokens int
	err    error
}

// run fans the input out to every agent in the layer, waits for all of them,
// and returns the outputs in declaration order. A failed agent contributes a
// placeholder instead of failing the layer; the layer only errors when the
// context is cancelled or every agent failed.
func (l *Layer) run(ctx context.Context, e *Engine, runID, input string, maxTokens int) ([]string, int, error) {
	e.publish(Event{Name: EventLayerStarted, RunID: runID, Fields: map[string]any{
		"level":  l.Level,
		"kind":   string(l.Kind),
		"agents": len(l.Agents),
	}})

	outcomes := make([]agentOutcome, len(l.Agents))
	var wg sync.WaitGroup
	for i, ag := range l.Agents {
		wg.Add(1)
		go func(i int, ag Agent) {
			defer wg.Done()
			res, err := e.callAgent(ctx, runID, ag, input, maxTokens)
			outcomes[i] = agentOutcome{index: i, text: res.Text, tokens: res.TokensUsed, err: err}
		}(i, ag)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	outputs := make([]string, len(l.Agents))
	tokens := 0
	failed := 0
	for i, out := range outcomes {
		ag := l.Agents[i]
		if out.err != nil {
			failed++
			outputs[i] = failedAgentPlaceholder
			agentCallsTotal.WithLabelValues(ag.Model, "error").Inc()
			e.publish(Event{Name: EventAgentFailed, RunID: runID, Fields: map[string]any{
				"level": l.Level,
				"model": ag.Model,
				"error": out.err.Error(),
			}})
			e.log.Warn().Int("level", l.Level).Str("model", ag.Model).Err(out.err).Msg("agent failed")
			continue
		}
		outputs[i] = out.text
		tokens += out.tokens
		agentCallsTotal.WithLabelValues(ag.Model, "ok").Inc()
		e.publish(Event{Name: EventAgentSucceeded, RunID: runID, Fields: map[string]any{
			"level":  l.Level,
			"model":  ag.Model,
			"tokens": out.tokens,
		}})
	}
	if failed == len(l.Agents) {
		return nil, tokens, fmt.Errorf("layer %d: all %d agents failed", l.Level, len(l.Agents))
	}
	return outputs, tokens, nil
}

// joinOutputs formats a layer's outputs as the input for the next layer or
// the main agent, labelling each response by its position.
func joinOutputs(query string, outputs []string) string {
	var b strings.Builder
	b.WriteString(query)
	b.WriteString("\n\n")
	for i, out := range outputs {
		fmt.Fprintf(&b, "Response %d:\n%s\n\n", i+1, out)
	}
	return strings.TrimRight(b.String(), "\n")
}
