// Package http implements the HTTP/WebSocket transport for parley.
//
// This transport exposes a REST API for submitting turns and driving the
// microphone, plus a WebSocket endpoint that streams conversation snapshots.
// It is best suited for web clients and phones.
//
// @title       Parley API
// @version     1.0
// @description Conversational turn coordinator: submit utterances, control hands-free listening and watch the conversation.
// @BasePath    /
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/nadzzz/parley/internal/coordinator"
	"github.com/nadzzz/parley/internal/transport"
	_ "github.com/nadzzz/parley/internal/transport/http/docs"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 64 << 10,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// TurnRequest is the body of POST /v1/turns.
type TurnRequest struct {
	Text string `json:"text" example:"what's the weather in Amman"`
}

// AutoContinueRequest is the body of PUT /v1/auto-continue.
type AutoContinueRequest struct {
	Enabled bool `json:"enabled"`
}

// ErrorResponse is returned with every 4xx/5xx status.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Transport implements transport.Transport over HTTP and WebSocket.
type Transport struct {
	port   int
	server *http.Server
}

// New creates a new HTTP transport on the given port.
func New(port int) *Transport {
	return &Transport{port: port}
}

// Name returns the transport identifier.
func (t *Transport) Name() string { return "http" }

// Handler returns the routes serving a.
func (t *Transport) Handler(a transport.Assistant) http.Handler {
	h := &handlers{assistant: a}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/turns", h.submit)
	mux.HandleFunc("POST /v1/cancel", h.cancel)
	mux.HandleFunc("POST /v1/mic", h.toggleMic)
	mux.HandleFunc("PUT /v1/auto-continue", h.autoContinue)
	mux.HandleFunc("POST /v1/reset", h.reset)
	mux.HandleFunc("GET /v1/conversation", h.conversation)
	mux.HandleFunc("GET /v1/events", h.events)

	// Swagger UI over the OpenAPI docs registered by the docs package.
	mux.Handle("GET /swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
	return mux
}

// Listen starts the HTTP server and serves requests from a.
func (t *Transport) Listen(ctx context.Context, a transport.Assistant) error {
	t.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", t.port),
		Handler:           t.Handler(a),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("http transport listening", "port", t.port)

	go func() {
		<-ctx.Done()
		slog.Info("http transport shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = t.server.Shutdown(shutdownCtx)
	}()

	if err := t.server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("http listen: %w", err)
	}
	return nil
}

// Close gracefully shuts down the HTTP server.
func (t *Transport) Close() error {
	if t.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return t.server.Shutdown(ctx)
	}
	return nil
}

type handlers struct {
	assistant transport.Assistant
}

// submit processes a POST /v1/turns request.
//
// @Summary     Submit a user utterance
// @Description Starts a new turn. The reply appears in the conversation once classification and dispatch finish.
// @Tags        turns
// @Accept      json
// @Produce     json
// @Param       turn  body      TurnRequest           true  "Utterance"
// @Success     202   {object}  coordinator.Snapshot  "Turn accepted"
// @Failure     400   {object}  ErrorResponse         "Blank text or invalid body"
// @Failure     409   {object}  ErrorResponse         "A turn is already in flight"
// @Failure     503   {object}  ErrorResponse         "Assistant shutting down"
// @Router      /v1/turns [post]
func (h *handlers) submit(w http.ResponseWriter, r *http.Request) {
	var req TurnRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	if err := h.assistant.Submit(req.Text); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, h.assistant.Snapshot())
}

// cancel processes a POST /v1/cancel request.
//
// @Summary  Cancel the current turn
// @Tags     turns
// @Success  204
// @Router   /v1/cancel [post]
func (h *handlers) cancel(w http.ResponseWriter, r *http.Request) {
	h.assistant.Cancel()
	w.WriteHeader(http.StatusNoContent)
}

// toggleMic processes a POST /v1/mic request.
//
// @Summary     Press the microphone button
// @Description Starts hands-free listening, or finishes the current utterance when already listening.
// @Tags        mic
// @Produce     json
// @Success     200  {object}  coordinator.Snapshot
// @Failure     409  {object}  ErrorResponse
// @Router      /v1/mic [post]
func (h *handlers) toggleMic(w http.ResponseWriter, r *http.Request) {
	snap, err := h.assistant.ToggleMic()
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// autoContinue processes a PUT /v1/auto-continue request.
//
// @Summary  Enable or disable hands-free mode
// @Tags     mic
// @Accept   json
// @Param    mode  body  AutoContinueRequest  true  "Mode"
// @Success  204
// @Failure  400  {object}  ErrorResponse
// @Router   /v1/auto-continue [put]
func (h *handlers) autoContinue(w http.ResponseWriter, r *http.Request) {
	var req AutoContinueRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 4<<10)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return
	}
	h.assistant.SetAutoContinue(req.Enabled)
	w.WriteHeader(http.StatusNoContent)
}

// reset processes a POST /v1/reset request.
//
// @Summary  Clear the conversation
// @Tags     turns
// @Success  204
// @Router   /v1/reset [post]
func (h *handlers) reset(w http.ResponseWriter, r *http.Request) {
	h.assistant.Reset()
	w.WriteHeader(http.StatusNoContent)
}

// conversation processes a GET /v1/conversation request.
//
// @Summary  Current conversation snapshot
// @Tags     turns
// @Produce  json
// @Success  200  {object}  coordinator.Snapshot
// @Router   /v1/conversation [get]
func (h *handlers) conversation(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.assistant.Snapshot())
}

// events processes a GET /v1/events request.
//
// @Summary     Stream snapshots
// @Description Upgrades to a WebSocket that receives a JSON snapshot after every change.
// @Tags        turns
// @Success     101
// @Router      /v1/events [get]
func (h *handlers) events(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	snaps, unsubscribe := h.assistant.Subscribe(8)
	defer unsubscribe()

	// The client sends nothing; reading detects when it goes away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case snap, ok := <-snaps:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(writeWait))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(snap); err != nil {
				slog.Debug("websocket write failed", "error", err)
				return
			}
		}
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, coordinator.ErrBlankInput):
		return http.StatusBadRequest
	case errors.Is(err, coordinator.ErrTurnInFlight):
		return http.StatusConflict
	case errors.Is(err, coordinator.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
