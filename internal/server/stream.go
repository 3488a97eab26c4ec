package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/research-dashboard/internal/model"
)

// SSE event names.
const (
	eventSource = "source"
	eventResult = "result"
	eventError  = "error"
)

// sseWriter serializes writes to one event stream.
type sseWriter struct {
	mu      sync.Mutex
	w       http.ResponseWriter
	flusher http.Flusher
}

func (s *sseWriter) event(name string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		zap.L().Warn("server: encode stream event", zap.String("event", name), zap.Error(err))
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", name, data)
	s.flusher.Flush()
}

func (s *sseWriter) comment(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, ": %s\n\n", text)
	s.flusher.Flush()
}

// handleResearchStream runs research for ?company= and streams each web
// source as a "source" event, then one "result" (or "error") event.
func (s *Server) handleResearchStream(w http.ResponseWriter, r *http.Request) {
	company := strings.TrimSpace(r.URL.Query().Get("company"))
	if company == "" {
		writeError(w, r, invalid("company is required"))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "streaming not supported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sse := &sseWriter{w: w, flusher: flusher}
	log := zap.L().With(zap.String("company", company))
	log.Info("server: research stream opened")

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(s.heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-r.Context().Done():
				return
			case <-ticker.C:
				sse.comment("heartbeat")
			}
		}
	}()

	run, err := s.deps.Research.Research(r.Context(), company, func(src model.WebSource) {
		sse.event(eventSource, src)
	})

	close(stop)
	wg.Wait()

	if err != nil {
		log.Warn("server: research stream failed", zap.Error(err))
		sse.event(eventError, errorBody{Error: err.Error()})
		return
	}
	sse.event(eventResult, newResearchResponse(run))
	log.Info("server: research stream closed", zap.String("run_id", run.ID))
}
