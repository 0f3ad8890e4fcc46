// Mock backend API for local gateway development. It echoes enough request
// detail to verify path translation, header scrubbing, and credential
// injection, and exposes magic paths that force error and timeout cases.
package main

import (
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"
)

const (
	defaultPort       = "3000"
	defaultCredential = "dev-service-credential"
)

var (
	credential = getEnv("SERVICE_CREDENTIAL", defaultCredential)
	latencyMs  = getEnvInt("LATENCY_MS", 20)
)

type EchoResponse struct {
	Path          string              `json:"path"`
	Query         map[string][]string `json:"query"`
	Method        string              `json:"method"`
	ForwardedUser string              `json:"forwardedUser,omitempty"`
	GotCookie     bool                `json:"gotCookie"`
	ReceivedAt    string              `json:"receivedAt"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

func main() {
	port := getEnv("PORT", defaultPort)

	http.HandleFunc("/health", handleHealth)
	http.HandleFunc("/", handleEcho)

	log.Printf("mock backend API starting on port %s", port)
	log.Printf("expected service credential: %s", credential)
	log.Printf("simulated latency: %dms", latencyMs)

	if err := http.ListenAndServe(":"+port, nil); err != nil {
		log.Fatal(err)
	}
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "backend-api",
		"version": "1.0.0",
	})
}

// handleEcho answers every path. Magic paths:
//
//	/error/<status>  respond with that status and a JSON error body
//	/slow            sleep 65s to trigger the gateway timeout
func handleEcho(w http.ResponseWriter, r *http.Request) {
	time.Sleep(time.Duration(latencyMs) * time.Millisecond)

	if r.Header.Get("X-Service-Credential") != credential {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{
			Error:   "unauthorized",
			Message: "missing or wrong service credential",
			Code:    http.StatusUnauthorized,
		})
		return
	}

	switch {
	case r.URL.Path == "/slow":
		select {
		case <-time.After(65 * time.Second):
		case <-r.Context().Done():
			return
		}
	case len(r.URL.Path) > len("/error/") && r.URL.Path[:len("/error/")] == "/error/":
		status, err := strconv.Atoi(r.URL.Path[len("/error/"):])
		if err != nil || status < 400 || status > 599 {
			status = http.StatusInternalServerError
		}
		writeJSON(w, status, ErrorResponse{
			Error:   "forced_error",
			Message: "error requested by magic path",
			Code:    status,
		})
		return
	}

	writeJSON(w, http.StatusOK, EchoResponse{
		Path:          r.URL.Path,
		Query:         r.URL.Query(),
		Method:        r.Method,
		ForwardedUser: r.Header.Get("X-Forwarded-User"),
		GotCookie:     r.Header.Get("Cookie") != "",
		ReceivedAt:    time.Now().UTC().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
