// CLI trigger for the weekly recalculation run. Posts to the running API's
// internal endpoint with the service token and prints the run report. The
// cron entry (or a manual operator) invokes this; the engine itself never
// schedules anything.
// Usage: go run ./cmd/recalc (from the repo root)
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading .env: %v\n", err)
		os.Exit(1)
	}

	baseURL := os.Getenv("RECALC_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	token := os.Getenv("RECALC_TOKEN")
	if token == "" {
		fmt.Fprintln(os.Stderr, "RECALC_TOKEN not set")
		os.Exit(1)
	}

	req, err := http.NewRequest("POST", baseURL+"/internal/recalc/run", nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error building request: %v\n", err)
		os.Exit(1)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	// Generous timeout: the run fans out across every active profile.
	client := &http.Client{Timeout: 5 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Request failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading response: %v\n", err)
		os.Exit(1)
	}
	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Recalculation failed (%d): %s\n", resp.StatusCode, string(body))
		os.Exit(1)
	}

	var report struct {
		RunID             string `json:"run_id"`
		ProfilesProcessed int    `json:"profiles_processed"`
		ProfilesUpdated   int    `json:"profiles_updated"`
		ProfilesSkipped   int    `json:"profiles_skipped"`
		Errors            []struct {
			ProfileID string `json:"profile_id"`
			Reason    string `json:"reason"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(body, &report); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing report: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Run %s: processed=%d updated=%d skipped=%d\n",
		report.RunID, report.ProfilesProcessed, report.ProfilesUpdated, report.ProfilesSkipped)
	for _, e := range report.Errors {
		fmt.Printf("  error: %s — %s\n", e.ProfileID, e.Reason)
	}
}
