package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vnmchuo/llm-chargeback/internal/report"
	"github.com/vnmchuo/llm-chargeback/internal/usage"
	"github.com/vnmchuo/llm-chargeback/pkg/ratelimit"
)

const maxPayloadBytes = 1 << 20 // 1 MiB

// wsPongWait is how long a live-tail connection may go without any
// client frame; pings go out often enough that a healthy peer's pongs
// always extend the deadline in time.
const wsPongWait = 2 * time.Minute

type Handler struct {
	store      usage.Store
	reporter   *report.Reporter
	limiter    *ratelimit.Limiter
	tracer     trace.Tracer
	upgrader   websocket.Upgrader
	pingPeriod time.Duration
}

func NewHandler(store usage.Store, reporter *report.Reporter, limiter *ratelimit.Limiter, tracer trace.Tracer) *Handler {
	return &Handler{
		store:    store,
		reporter: reporter,
		limiter:  limiter,
		tracer:   tracer,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 5 * time.Second,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		pingPeriod: wsPongWait * 9 / 10,
	}
}

// HandleIngest accepts a usage report from the gateway, folds it into
// the per-key accumulator, and pushes the merged record to the live
// tail.
func (h *Handler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
	if err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	event, err := usage.ParseEvent(body)
	if err != nil {
		if errors.Is(err, usage.ErrMissingFields) {
			http.Error(w, "Missing required fields", http.StatusBadRequest)
			return
		}
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	allowed, err := h.limiter.Allow(ctx, event.SubscriptionID)
	if err != nil || !allowed {
		w.Header().Set("Retry-After", "60s")
		http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	_, span := h.tracer.Start(ctx, "usage.ingest")
	defer span.End()
	span.SetAttributes(
		attribute.String("subscription_id", event.SubscriptionID),
		attribute.String("deployment_id", event.DeploymentID),
		attribute.String("model", event.Model),
		attribute.Int("payload_bytes", len(body)),
	)

	record, err := h.store.MergeUpsert(ctx, event)
	if err != nil {
		log.Printf("ingest: merge failed for key %s (payload %d bytes): %v", event.Key(), len(body), err)
		http.Error(w, "Failed to process log data", http.StatusInternalServerError)
		return
	}

	// Live-tail delivery is best effort and never fails the ingest.
	if err := h.store.Publish(ctx, record); err != nil {
		log.Printf("ingest: publish failed for key %s: %v", record.Key(), err)
	}

	log.Printf("ingest: stored key %s (payload %d bytes)", record.Key(), len(body))

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Log data processed and stored successfully"))
}

// HandleLogs returns every live usage record decorated with its cost.
func (h *Handler) HandleLogs(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "usage.logs")
	defer span.End()

	summary, err := h.reporter.ListWithCost(ctx)
	if err != nil {
		log.Printf("logs: %v", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "Failed to fetch logs"})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"aggregated_logs": summary.Records,
	})
}

// HandleChargeback returns the records plus the grand total chargeback.
func (h *Handler) HandleChargeback(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "usage.chargeback")
	defer span.End()

	summary, err := h.reporter.ListWithCost(ctx)
	if err != nil {
		log.Printf("chargeback: %v", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "Failed to calculate chargeback"})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"totalChargeback": summary.TotalCost,
		"logs":            summary.Records,
	})
}

// HandleLogsWS streams newly ingested records over a WebSocket, one
// message per ingestion event. Items come off a shared queue, so each
// record reaches exactly one connected consumer.
func (h *Handler) HandleLogsWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	conn.SetReadLimit(1024)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Drain client frames; a read error means the peer went away and
	// the blocking consume below should be released.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// Ping on a period shorter than the pong wait so an idle but
	// healthy connection keeps its read deadline extended.
	go func() {
		ticker := time.NewTicker(h.pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
					cancel()
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		record, err := h.store.Consume(ctx)
		if err != nil {
			if ctx.Err() == nil {
				log.Printf("ws: consume failed: %v", err)
			}
			return
		}
		if err := conn.WriteJSON(record); err != nil {
			return
		}
	}
}
