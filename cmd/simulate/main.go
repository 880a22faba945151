// simulate fires concurrent booking requests at a running api-server, all
// targeting the same doctor/date/time slot, and reports how many won.
// Exactly one 201 per contested slot means the conflict guard holds under
// concurrency.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

type simConfig struct {
	apiBaseURL string
	workers    int
	rounds     int
	tokens     []string
}

type createRequest struct {
	Doctor string `json:"doctor"`
	Date   string `json:"date"`
	Time   string `json:"time"`
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg := simConfig{
		apiBaseURL: getenv("API_BASE_URL", "http://127.0.0.1:8080"),
		workers:    10,
		rounds:     20,
	}

	// Each worker needs a patient session token issued by /auth/login,
	// passed one per SIM_TOKEN_<n> env var.
	for i := 0; ; i++ {
		tok := os.Getenv(fmt.Sprintf("SIM_TOKEN_%d", i))
		if tok == "" {
			break
		}
		cfg.tokens = append(cfg.tokens, tok)
	}
	if len(cfg.tokens) == 0 {
		log.Fatal("at least SIM_TOKEN_0 is required (a patient session token)")
	}

	client := &http.Client{Timeout: 10 * time.Second}

	var created, conflicts, other atomic.Int64

	slots := []string{"09:00 AM", "09:30 AM", "10:00 AM", "10:30 AM"}

	for round := 0; round < cfg.rounds; round++ {
		date := time.Now().AddDate(0, 0, 30+round).Format("02/01/2006")
		slot := slots[round%len(slots)]

		var wg sync.WaitGroup
		for w := 0; w < cfg.workers; w++ {
			wg.Add(1)
			token := cfg.tokens[w%len(cfg.tokens)]
			go func() {
				defer wg.Done()
				status, err := book(client, cfg.apiBaseURL, token, createRequest{
					Doctor: "Dr. Juan Pérez - Cardiología",
					Date:   date,
					Time:   slot,
				})
				if err != nil {
					other.Add(1)
					return
				}
				switch status {
				case http.StatusCreated:
					created.Add(1)
				case http.StatusConflict:
					// slot_taken or slot_being_booked, both are the
					// guard doing its job
					conflicts.Add(1)
				default:
					other.Add(1)
				}
			}()
		}
		wg.Wait()
	}

	fmt.Printf("rounds=%d workers=%d created=%d conflicts=%d other=%d\n",
		cfg.rounds, cfg.workers, created.Load(), conflicts.Load(), other.Load())

	if got, want := created.Load(), int64(cfg.rounds); got != want {
		log.Fatalf("expected exactly %d created (one per contested slot), got %d", want, got)
	}
	log.Println("simulation passed: one winner per slot")
}

func book(client *http.Client, baseURL, token string, req createRequest) (int, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return 0, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/appointments", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := client.Do(httpReq)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	return resp.StatusCode, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
