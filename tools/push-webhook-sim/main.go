// push-webhook-sim is a local stand-in for a push delivery gateway. It
// accepts the notification service's webhook posts, optionally checks the
// bearer token, and prints each push to stdout.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

type pushRequest struct {
	UserID string `json:"user_id"`
	Title  string `json:"title"`
	Body   string `json:"body"`
}

func main() {
	var (
		addr     = flag.String("addr", getenv("ADDR", ":9090"), "listen address")
		token    = flag.String("token", getenv("PUSH_WEBHOOK_TOKEN", ""), "expected bearer token (empty disables the check)")
		failUser = flag.String("fail-user", getenv("FAIL_USER_ID", ""), "user_id to reject with 502, for failure-path testing")
	)
	flag.Parse()

	mux := http.NewServeMux()
	mux.HandleFunc("POST /", func(w http.ResponseWriter, r *http.Request) {
		if *token != "" {
			got := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer"))
			if got != *token {
				http.Error(w, "bad token", http.StatusUnauthorized)
				return
			}
		}

		var req pushRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad payload", http.StatusBadRequest)
			return
		}
		if req.UserID == "" {
			http.Error(w, "user_id required", http.StatusBadRequest)
			return
		}
		if *failUser != "" && req.UserID == *failUser {
			http.Error(w, "simulated provider failure", http.StatusBadGateway)
			return
		}

		fmt.Printf("%s push user=%s title=%q body=%q\n",
			time.Now().UTC().Format(time.RFC3339), req.UserID, req.Title, req.Body)
		w.WriteHeader(http.StatusNoContent)
	})

	fmt.Printf("push-webhook-sim listening on %s\n", *addr)
	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
