package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"pocketsync/internal/logger"
	"pocketsync/internal/service"

	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
)

// notice_smoke drives a running server through an offline enqueue and a
// reconnect, and waits for the sync summary on the notice stream.
func main() {
	_ = godotenv.Load()

	owner := flag.String("owner", "smoke-owner", "owner id")
	flag.Parse()

	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}
	// use 127.0.0.1 to prefer IPv4 (avoid resolving to [::1])
	base := "http://127.0.0.1:" + port

	service.InitJWT()
	token, err := service.GenerateJWT(*owner)
	if err != nil {
		logger.Fatal("gen token", "error", err)
	}

	call := func(method, path string, body any) int {
		var buf bytes.Buffer
		if body != nil {
			json.NewEncoder(&buf).Encode(body)
		}
		req, _ := http.NewRequest(method, base+path, &buf)
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", "application/json")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			logger.Fatal("request failed", "method", method, "path", path, "error", err)
		}
		resp.Body.Close()
		logger.Info("request", "method", method, "path", path, "status", resp.StatusCode)
		return resp.StatusCode
	}

	conn, _, err := websocket.DefaultDialer.Dial(fmt.Sprintf("ws://127.0.0.1:%s/ws?token=%s", port, token), nil)
	if err != nil {
		logger.Fatal("dial", "error", err)
	}
	defer conn.Close()

	call(http.MethodPost, "/api/v1/session", nil)
	call(http.MethodPut, "/api/v1/connectivity", map[string]any{"online": false})
	if code := call(http.MethodPost, "/api/v1/queue", map[string]any{
		"amount":      "-4.20",
		"merchant":    "Smoke Cafe",
		"occurred_at": time.Now().UTC(),
	}); code != http.StatusCreated {
		logger.Fatal("enqueue rejected", "status", code)
	}
	call(http.MethodPut, "/api/v1/connectivity", map[string]any{"online": true})

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		conn.SetReadDeadline(time.Now().Add(time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			continue
		}
		logger.Info("notice stream", "message", string(msg))
		var obj map[string]any
		_ = json.Unmarshal(msg, &obj)
		if obj["type"] == "sync_summary" {
			logger.Info("smoke test finished")
			return
		}
	}
	logger.Fatal("no sync summary received")
}
