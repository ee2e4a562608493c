package mixture

import (
	"context"
	"time"

	"github.com/google/uuid"

	"moad/internal/llm"
	"moad/pkg/types"
)

// Pipeline is the ordered sequence of layers plus the final synthesis agent.
// It is created once from configuration and mutated in place only by the
// adaptive controller, strictly between runs.
type Pipeline struct {
	Layers []*Layer
	Main   Agent
}

// PerformanceRecord captures one completed run for the adaptive controller.
type PerformanceRecord struct {
	RunID          string
	ProcessingTime time.Duration
	Quality        float64
	TotalTokens    int
	Completed      time.Time
}

// RunQuery executes one end-to-end query: the query threads through the
// pipeline's layers in order, the last layer's reduced output feeds the main
// agent, and the final answer comes back with run accounting. Runs are
// serialized so the adaptive controller can reshape the pipeline between
// them without racing an in-flight iteration.
func (e *Engine) RunQuery(ctx context.Context, req types.QueryRequest) (types.QueryResponse, error) {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	runID := uuid.NewString()
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = e.maxTokens
	}
	start := time.Now()
	e.runs.Add(1)
	e.log.Info().Str("run_id", runID).Int("layers", len(e.pipeline.Layers)).Msg("run started")

	answer, totalTokens, err := e.runPipeline(ctx, runID, req.Query, maxTokens)
	elapsed := time.Since(start)
	if err != nil {
		e.runsFailed.Add(1)
		runsTotal.WithLabelValues("error").Inc()
		e.publish(Event{Name: EventRunCompleted, RunID: runID, Fields: map[string]any{
			"ok":          false,
			"duration_ms": elapsed.Milliseconds(),
			"error":       err.Error(),
		}})
		e.log.Error().Str("run_id", runID).Dur("elapsed", elapsed).Err(err).Msg("run failed")
		return types.QueryResponse{}, err
	}

	quality := e.scorer.Score(answer)
	runsTotal.WithLabelValues("ok").Inc()
	runDuration.Observe(elapsed.Seconds())
	e.publish(Event{Name: EventRunCompleted, RunID: runID, Fields: map[string]any{
		"ok":           true,
		"duration_ms":  elapsed.Milliseconds(),
		"total_tokens": totalTokens,
		"quality":      quality,
	}})
	e.log.Info().Str("run_id", runID).Dur("elapsed", elapsed).Float64("quality", quality).Msg("run completed")

	if e.adaptive != nil {
		e.adaptive.Record(PerformanceRecord{
			RunID:          runID,
			ProcessingTime: elapsed,
			Quality:        quality,
			TotalTokens:    totalTokens,
			Completed:      time.Now(),
		})
		e.adapt(runID)
	}

	return types.QueryResponse{
		RunID:       runID,
		Answer:      answer,
		TotalTokens: totalTokens,
		DurationMs:  elapsed.Milliseconds(),
	}, nil
}

func (e *Engine) runPipeline(ctx context.Context, runID, query string, maxTokens int) (string, int, error) {
	input := query
	totalTokens := 0
	for _, layer := range e.pipeline.Layers {
		outputs, tokens, err := layer.run(ctx, e, runID, input, maxTokens)
		totalTokens += tokens
		if err != nil {
			return "", totalTokens, err
		}
		input = joinOutputs(query, outputs)
	}

	res, err := e.synthesize(ctx, runID, input, maxTokens)
	totalTokens += res.TokensUsed
	if err != nil {
		return "", totalTokens, err
	}
	return res.Text, totalTokens, nil
}

// synthesize runs the main agent, falling back through the configured
// fallback chain when a candidate cannot produce an answer. Exhausting the
// chain is terminal for the run.
func (e *Engine) synthesize(ctx context.Context, runID, input string, maxTokens int) (types.CompletionResult, error) {
	main := e.pipeline.Main
	candidates := append([]string{main.Model}, e.Catalog().Fallback()...)
	var lastErr error
	for i, model := range candidates {
		if !e.Catalog().Has(model) {
			continue
		}
		if i > 0 {
			e.publish(Event{Name: EventModelSwitched, RunID: runID, Fields: map[string]any{
				"from":   candidates[i-1],
				"to":     model,
				"reason": "synthesis_fallback",
			}})
		}
		ag := Agent{Model: model, Temperature: main.Temperature, Role: main.Role}
		res, err := e.callAgent(ctx, runID, ag, input, maxTokens)
		if err == nil {
			agentCallsTotal.WithLabelValues(model, "ok").Inc()
			return res, nil
		}
		agentCallsTotal.WithLabelValues(model, "error").Inc()
		if ctx.Err() != nil {
			return types.CompletionResult{}, ctx.Err()
		}
		e.log.Warn().Str("run_id", runID).Str("model", model).Err(err).Msg("synthesis candidate failed")
		lastErr = err
	}
	if lastErr == nil {
		lastErr = llm.NewError(llm.KindInvalidModel, main.Model, nil)
	}
	return types.CompletionResult{}, ErrTerminal("synthesis exhausted fallback chain", lastErr)
}
