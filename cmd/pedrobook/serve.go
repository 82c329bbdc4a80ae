package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins in development
	},
}

// chatMessage is one message over the websocket, in either direction.
type chatMessage struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

type chatServer struct {
	app         *app
	connections map[*websocket.Conn]bool
	connMutex   sync.Mutex
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the assistant over a websocket chat endpoint",
		Long: `Start an HTTP server with a /ws websocket endpoint.

Each client message {"type":"message","content":"..."} gets one reply
{"type":"reply","content":"..."}. Messages on one connection are handled
in order; connections are independent.`,
		RunE: runServe,
	}

	cmd.Flags().StringVar(&port, "port", "8080", "HTTP server port")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	server := &chatServer{
		app:         a,
		connections: make(map[*websocket.Conn]bool),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", server.handleWebSocket)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	addr := fmt.Sprintf(":%s", port)
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("pedrobook chat server listening on http://localhost%s (caller: %s)", addr, a.request.Caller.Username)

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

func (s *chatServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	s.connMutex.Lock()
	s.connections[conn] = true
	s.connMutex.Unlock()
	defer func() {
		s.connMutex.Lock()
		delete(s.connections, conn)
		s.connMutex.Unlock()
	}()

	log.Printf("WebSocket client connected")

	for {
		var msg chatMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("WebSocket read error: %v", err)
			}
			return
		}

		if msg.Type != "message" || msg.Content == "" {
			_ = conn.WriteJSON(chatMessage{Type: "error", Content: "expected {\"type\":\"message\",\"content\":...}"})
			continue
		}

		s.handleChat(conn, msg.Content)
	}
}

// handleChat runs one message through the orchestrator and writes the reply.
// Replies stay on the connection the message came from.
func (s *chatServer) handleChat(conn *websocket.Conn, content string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutSec)*time.Second)
	defer cancel()

	reply, err := s.app.orch.Run(ctx, content, s.app.request)
	if err != nil {
		log.Printf("request timed out: %v", err)
		_ = conn.WriteJSON(chatMessage{Type: "error", Content: "Sorry, that request timed out. Please try again."})
		return
	}

	_ = conn.WriteJSON(chatMessage{Type: "reply", Content: reply})
}
