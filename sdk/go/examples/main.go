package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"SeiFlow/sdk/go/seiflow"
)

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/jobs", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(seiflow.Job{ID: "job-demo", Status: "pending", MaxRetries: 3})
	})
	mux.HandleFunc("GET /api/v1/jobs/job-demo", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(seiflow.Job{
			ID:     "job-demo",
			Status: "succeeded",
			Result: &seiflow.ParsedIntent{
				Intent:     seiflow.Intent{Type: "bridge", Amount: "100"},
				Confidence: 0.85,
				Reasoning:  "User wants to bridge USDC from Ethereum to Sei network",
			},
		})
	})
	mux.HandleFunc("GET /api/v1/sei/chain-info", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(seiflow.ChainInfo{ChainID: 1328, BlockNumber: 123456, Network: "sei-testnet"})
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	client, err := seiflow.NewClient(srv.URL, srv.Client())
	if err != nil {
		panic(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	info, err := client.ChainInfo(ctx)
	if err != nil {
		panic(err)
	}
	fmt.Printf("connected to %s (chain %d, block %d)\n", info.Network, info.ChainID, info.BlockNumber)

	job, err := client.SubmitJob(ctx, seiflow.JobSubmission{Input: "bridge 100 USDC from ethereum to sei"})
	if err != nil {
		panic(err)
	}
	fmt.Printf("submitted job %s (status=%s)\n", job.ID, job.Status)

	done, err := client.WaitForJob(ctx, job.ID, 100*time.Millisecond)
	if err != nil {
		panic(err)
	}
	fmt.Printf("job %s %s: %s %s (confidence %.2f)\n", done.ID, done.Status,
		done.Result.Intent.Type, done.Result.Intent.Amount, done.Result.Confidence)
}
