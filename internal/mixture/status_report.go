package mixture

import (
	"time"

	"moad/pkg/types"
)

// Status assembles a live snapshot for GET /status: per-model quota and
// queue state, breaker states, the current pipeline shape, and rolling run
// averages.
func (e *Engine) Status() types.StatusResponse {
	e.mu.RLock()
	cat := e.cat
	layers := make([]types.LayerStatus, 0, len(e.pipeline.Layers))
	for _, l := range e.pipeline.Layers {
		ls := types.LayerStatus{Kind: string(l.Kind)}
		for _, ag := range l.Agents {
			ls.Agents = append(ls.Agents, ag.Model)
		}
		layers = append(layers, ls)
	}
	mainModel := e.pipeline.Main.Model
	e.mu.RUnlock()

	breakerStates := e.exec.Breakers().States()
	models := make([]types.ModelStatus, 0, len(cat.List()))
	for _, p := range cat.List() {
		tokens, requests, dailyUsed, ok := e.tracker.Remaining(p.ID)
		if !ok {
			continue
		}
		state := "closed"
		if s, ok := breakerStates[p.ID+":"+opComplete]; ok {
			state = s.String()
		}
		models = append(models, types.ModelStatus{
			ModelID:           p.ID,
			TokensRemaining:   tokens,
			RequestsRemaining: requests,
			DailyTokensUsed:   dailyUsed,
			QueueLen:          e.sched.QueueLen(p.ID),
			MaxQueueDepth:     e.sched.MaxQueueDepth(),
			BreakerState:      state,
		})
	}

	resp := types.StatusResponse{
		Models:         models,
		Layers:         layers,
		MainModel:      mainModel,
		RunsTotal:      e.runs.Load(),
		RunsFailed:     e.runsFailed.Load(),
		UptimeSeconds:  int64(time.Since(e.startTime).Seconds()),
		ServerTimeUnix: time.Now().Unix(),
	}
	if e.adaptive != nil {
		if avgTime, avgQuality, ok := e.adaptive.window(); ok {
			resp.AvgProcessingMs = avgTime.Milliseconds()
			resp.AvgQuality = avgQuality
		}
	}
	return resp
}
