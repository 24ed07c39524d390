// Package server is the relayer's admin HTTP/websocket surface: health
// and status introspection, profit-threshold tuning, and whitelist
// editing (spec.md §1's out-of-scope CLI/HTTP admin endpoints). Adapted
// from the teacher's gorilla/mux + websocket admin server.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/nearbridge/fastbridge-relayer/internal/config"
	"github.com/nearbridge/fastbridge-relayer/internal/store"
)

// HeightSource is the light-client height tracker's read side.
type HeightSource interface {
	Height() uint64
}

type Server struct {
	cfg     *config.Config
	store   store.Store
	heights HeightSource

	router    *mux.Router
	server    *http.Server
	upgrader  websocket.Upgrader
	wsClients map[*websocket.Conn]bool
	wsMu      sync.RWMutex

	startedAt time.Time
}

func New(cfg *config.Config, s store.Store, heights HeightSource) *Server {
	srv := &Server{
		cfg:     cfg,
		store:   s,
		heights: heights,
		router:  mux.NewRouter(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		wsClients: make(map[*websocket.Conn]bool),
		startedAt: time.Now(),
	}

	srv.setupRoutes()
	return srv
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/api/v1/status", s.handleStatus).Methods("GET")

	s.router.HandleFunc("/api/v1/threshold", s.handleGetThreshold).Methods("GET")
	s.router.HandleFunc("/api/v1/threshold", s.handleSetThreshold).Methods("PUT")

	s.router.HandleFunc("/api/v1/whitelist", s.handleListWhitelist).Methods("GET")
	s.router.HandleFunc("/api/v1/whitelist/{tokenAccountId}", s.handleSetWhitelistEntry).Methods("PUT")
	s.router.HandleFunc("/api/v1/whitelist/{tokenAccountId}", s.handleDeleteWhitelistEntry).Methods("DELETE")

	s.router.HandleFunc("/ws", s.handleWebSocket)

	s.router.Use(corsMiddleware)
	s.router.Use(loggingMiddleware)
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%s", s.cfg.ServerHost, s.cfg.ServerPort)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Printf("admin server starting on %s", addr)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("admin server shutting down")
	s.wsMu.Lock()
	for conn := range s.wsClients {
		conn.Close()
	}
	s.wsMu.Unlock()
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	newEvents, _ := s.store.HKeys(ctx, store.KeyNewEvents)
	pending, _ := s.store.HKeys(ctx, store.KeyPendingTransactions)
	completed, _ := s.store.HKeys(ctx, store.KeyTransactions)
	startBlock, _, _ := s.store.Get(ctx, store.KeyOptionsStartBlock)

	respondJSON(w, http.StatusOK, map[string]any{
		"uptime_seconds":                time.Since(s.startedAt).Seconds(),
		"new_events":                    len(newEvents),
		"pending_transactions":          len(pending),
		"transactions":                  len(completed),
		"start_block":                   startBlock,
		"eth_last_block_number_on_near": s.heights.Height(),
		"profit_threshold_usd":          s.cfg.ProfitThreshold.Get(),
		"ws_clients":                    s.wsClientCount(),
	})
}

func (s *Server) handleGetThreshold(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]float64{"profit_threshold_usd": s.cfg.ProfitThreshold.Get()})
}

func (s *Server) handleSetThreshold(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProfitThresholdUSD float64 `json:"profit_threshold_usd"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.cfg.ProfitThreshold.Set(req.ProfitThresholdUSD)
	respondJSON(w, http.StatusOK, map[string]float64{"profit_threshold_usd": req.ProfitThresholdUSD})
}

func (s *Server) handleListWhitelist(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.cfg.Whitelist.Snapshot())
}

func (s *Server) handleSetWhitelistEntry(w http.ResponseWriter, r *http.Request) {
	tokenAccountID := mux.Vars(r)["tokenAccountId"]
	var info config.TokenInfo
	if err := json.NewDecoder(r.Body).Decode(&info); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.cfg.Whitelist.Set(tokenAccountID, info)
	respondJSON(w, http.StatusOK, info)
}

func (s *Server) handleDeleteWhitelistEntry(w http.ResponseWriter, r *http.Request) {
	tokenAccountID := mux.Vars(r)["tokenAccountId"]
	s.cfg.Whitelist.Remove(tokenAccountID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}

	s.wsMu.Lock()
	s.wsClients[conn] = true
	s.wsMu.Unlock()
	log.Printf("websocket client connected (total: %d)", s.wsClientCount())

	go s.handleWSMessages(conn)
}

func (s *Server) handleWSMessages(conn *websocket.Conn) {
	defer func() {
		s.wsMu.Lock()
		delete(s.wsClients, conn)
		s.wsMu.Unlock()
		conn.Close()
		log.Printf("websocket client disconnected (remaining: %d)", s.wsClientCount())
	}()

	for {
		var msg map[string]any
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("websocket error: %v", err)
			}
			break
		}
		if msgType, _ := msg["type"].(string); msgType == "ping" {
			conn.WriteJSON(map[string]any{"type": "pong", "timestamp": time.Now()})
		}
	}
}

// BroadcastStatus pushes the current pipeline status to every connected
// websocket client. Callers (e.g. a ticker in main) drive the cadence;
// the server itself has no opinion on it.
func (s *Server) BroadcastStatus(ctx context.Context) {
	newEvents, _ := s.store.HKeys(ctx, store.KeyNewEvents)
	pending, _ := s.store.HKeys(ctx, store.KeyPendingTransactions)
	completed, _ := s.store.HKeys(ctx, store.KeyTransactions)

	payload := map[string]any{
		"type":                 "status",
		"new_events":           len(newEvents),
		"pending_transactions": len(pending),
		"transactions":         len(completed),
		"timestamp":            time.Now(),
	}

	s.wsMu.RLock()
	defer s.wsMu.RUnlock()
	for conn := range s.wsClients {
		go func(c *websocket.Conn) {
			if err := c.WriteJSON(payload); err != nil {
				log.Printf("websocket write error: %v", err)
			}
		}(conn)
	}
}

func (s *Server) wsClientCount() int {
	s.wsMu.RLock()
	defer s.wsMu.RUnlock()
	return len(s.wsClients)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %v", r.Method, r.URL.Path, time.Since(start))
	})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
