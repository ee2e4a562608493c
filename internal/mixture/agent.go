package mixture

import (
	"context"
	"strings"

	"moad/internal/breaker"
	"moad/internal/degrade"
	"moad/internal/llm"
	"moad/internal/schedule"
	"moad/pkg/types"
)

// Agent is one (model, temperature, role) unit of work inside a layer.
// Immutable while a run is in flight; the adaptive controller may rewrite it
// between runs.
type Agent struct {
	Model       string
	Temperature float64
	Role        string
}

const opComplete = "complete"

// callAgent drives one agent call through scheduler, retry executor and
// degradation policy. Model switches and input chunking happen here; the
// caller only sees the final result or a contained failure.
func (e *Engine) callAgent(ctx context.Context, runID string, ag Agent, input string, maxTokens int) (types.CompletionResult, error) {
	model := ag.Model
	if !e.Catalog().Has(model) {
		// Configured model vanished (e.g. catalog reload); classify at the
		// throw site and let the policy pick the fallback.
		err := llm.NewError(llm.KindInvalidModel, model, nil)
		var ok bool
		if model, ok = e.recoverModel(runID, err, model, 0); !ok {
			return types.CompletionResult{}, err
		}
	}

	for switches := 0; ; switches++ {
		res, err := e.completeOnce(ctx, model, ag, input, maxTokens)
		if err == nil {
			return res, nil
		}
		// Backpressure, open circuits and cancellation are contained at the
		// layer boundary; no structural recovery applies.
		if schedule.IsOverloaded(err) || breaker.IsCircuitOpen(err) || ctx.Err() != nil {
			return types.CompletionResult{}, err
		}
		if switches >= maxModelSwitches {
			return types.CompletionResult{}, err
		}

		required := e.estimator(input) + maxTokens
		d := e.policy.Recover(err, required)
		degradationsTotal.WithLabelValues(d.Action.String()).Inc()
		switch d.Action {
		case degrade.ActionUseLargerModel, degrade.ActionFallbackDefault:
			e.publish(Event{Name: EventModelSwitched, RunID: runID, Fields: map[string]any{
				"from":   model,
				"to":     d.Model,
				"reason": llm.KindOf(err).String(),
			}})
			e.log.Debug().Str("from", model).Str("to", d.Model).Msg("model switched")
			model = d.Model
		case degrade.ActionChunk:
			return e.chunked(ctx, model, ag, input, maxTokens)
		default:
			return types.CompletionResult{}, err
		}
	}
}

// completeOnce performs one scheduled, breaker-guarded completion attempt
// cycle (including in-place retries) against a fixed model.
func (e *Engine) completeOnce(ctx context.Context, model string, ag Agent, input string, maxTokens int) (types.CompletionResult, error) {
	estimated := e.estimator(input) + maxTokens
	if err := e.sched.Schedule(ctx, model, estimated); err != nil {
		return types.CompletionResult{}, err
	}
	req := types.CompletionRequest{
		Model:       model,
		Messages:    agentMessages(ag, input),
		MaxTokens:   maxTokens,
		Temperature: ag.Temperature,
	}
	var res types.CompletionResult
	err := e.exec.Do(ctx, model+":"+opComplete, func(ctx context.Context) error {
		var cerr error
		res, cerr = e.client.Complete(ctx, req)
		return cerr
	}, e.policy)
	if err != nil {
		return types.CompletionResult{}, err
	}
	return res, nil
}

// chunked splits input into word-bounded chunks sized to the model's context
// window, processes them sequentially, and joins the outputs in order with a
// single space. No cross-chunk context is carried.
func (e *Engine) chunked(ctx context.Context, model string, ag Agent, input string, maxTokens int) (types.CompletionResult, error) {
	prof, ok := e.Catalog().Get(model)
	if !ok {
		return types.CompletionResult{}, llm.NewError(llm.KindInvalidModel, model, nil)
	}
	budget := prof.ContextWindow - maxTokens
	if budget <= 0 {
		budget = prof.ContextWindow
	}
	chunks := degrade.SplitWords(input, budget, e.estimator)
	if len(chunks) == 0 {
		return types.CompletionResult{}, nil
	}
	outputs := make([]string, 0, len(chunks))
	tokens := 0
	for _, chunk := range chunks {
		res, err := e.completeOnce(ctx, model, ag, chunk, maxTokens)
		if err != nil {
			return types.CompletionResult{}, err
		}
		outputs = append(outputs, res.Text)
		tokens += res.TokensUsed
	}
	return types.CompletionResult{Text: strings.Join(outputs, " "), TokensUsed: tokens}, nil
}

// recoverModel resolves an invalid model to the catalog default when one is
// configured. Returns the replacement and whether recovery applies.
func (e *Engine) recoverModel(runID string, err error, from string, required int) (string, bool) {
	d := e.policy.Recover(err, required)
	if d.Action != degrade.ActionFallbackDefault {
		return "", false
	}
	degradationsTotal.WithLabelValues(d.Action.String()).Inc()
	e.publish(Event{Name: EventModelSwitched, RunID: runID, Fields: map[string]any{
		"from":   from,
		"to":     d.Model,
		"reason": llm.KindOf(err).String(),
	}})
	return d.Model, true
}

func agentMessages(ag Agent, input string) []types.Message {
	if ag.Role != "" {
		return []types.Message{
			{Role: "system", Content: ag.Role},
			{Role: "user", Content: input},
		}
	}
	return []types.Message{{Role: "user", Content: input}}
}
