// Package main implements the condctl CLI, an executor client for the
// conductord daemon.
//
// condctl connects to conductord over WebSocket, submits a goal and acts
// as the executor for the resulting run: every instruction the daemon
// delivers is either run locally (--exec) or shown to the operator, and
// the outcome is reported back for validation.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

var (
	// serverURL is the base URL for the conductord server
	serverURL string
	// execute runs bash instructions locally instead of prompting
	execute bool
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "condctl",
	Short: "Executor client for the conductord daemon",
	Long: `condctl is a command-line executor client for conductord.
It submits a goal, receives the generated instructions step by step and
reports execution outcomes back for validation.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8084", "conductord server URL")
	runCmd.Flags().BoolVar(&execute, "exec", false, "execute bash instructions locally instead of prompting")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(healthCmd)
}

// runCmd submits a goal and serves the resulting run as its executor
var runCmd = &cobra.Command{
	Use:   "run [goal]",
	Short: "Submit a goal and act as the executor for the run",
	Long: `Submit a goal to conductord and serve the resulting run.

Each instruction the daemon generates is shown on the terminal; paste
the output after running it, or pass --exec to run bash instructions
locally and report their output automatically.

Examples:
  # Interactive executor
  condctl run "find the CIDR range of this machine's network"

  # Execute instructions locally
  condctl run --exec "list the ten largest files under /var/log"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

// healthCmd checks server health
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check conductord server health",
	RunE:  runHealth,
}

// event mirrors the daemon's wire envelope with the payload left raw.
type event struct {
	Type      string          `json:"type"`
	RunID     string          `json:"run_id"`
	StepID    string          `json:"step_id"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

type executionRequest struct {
	Code         string `json:"code"`
	Language     string `json:"language"`
	Instructions string `json:"instructions"`
}

type outcomeReport struct {
	Output    string `json:"output"`
	Succeeded bool   `json:"succeeded"`
}

func runRun(cmd *cobra.Command, args []string) error {
	goal := strings.Join(args, " ")

	wsURL, err := websocketURL(serverURL)
	if err != nil {
		return err
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", wsURL, err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(map[string]string{"goal": goal}); err != nil {
		return fmt.Errorf("failed to submit goal: %w", err)
	}
	fmt.Printf("Goal submitted: %s\n", goal)

	stdin := bufio.NewScanner(os.Stdin)
	for {
		var ev event
		if err := conn.ReadJSON(&ev); err != nil {
			return fmt.Errorf("connection lost: %w", err)
		}

		switch ev.Type {
		case "RUN_START":
			fmt.Printf("\n[%s] run started\n", ev.RunID)
		case "PLAN_READY":
			printPlan(ev.Data)
		case "STEP_BEGIN":
			var data struct {
				Description string `json:"description"`
			}
			_ = json.Unmarshal(ev.Data, &data)
			fmt.Printf("\n--- step %s: %s\n", ev.StepID, data.Description)
		case "EXECUTION_REQUEST":
			var req executionRequest
			if err := json.Unmarshal(ev.Data, &req); err != nil {
				return fmt.Errorf("malformed execution request: %w", err)
			}
			report := handleRequest(cmd.Context(), stdin, req)
			if err := conn.WriteJSON(report); err != nil {
				return fmt.Errorf("failed to report outcome: %w", err)
			}
		case "STEP_SUCCEEDED", "REPAIR_SUCCEEDED":
			fmt.Println("step accepted")
		case "STEP_FAILED", "REPAIR_FAILED":
			var data struct {
				Reason string `json:"reason"`
			}
			_ = json.Unmarshal(ev.Data, &data)
			fmt.Printf("step rejected: %s\n", data.Reason)
		case "REPAIR_BEGIN":
			var data struct {
				Attempt     int `json:"attempt"`
				MaxAttempts int `json:"max_attempts"`
			}
			_ = json.Unmarshal(ev.Data, &data)
			fmt.Printf("repairing (attempt %d of %d)\n", data.Attempt, data.MaxAttempts)
		case "STEP_ABORTED":
			fmt.Println("step aborted: repair budget exhausted")
		case "SUMMARY_READY":
			printSummary(ev.Data)
		case "RUN_COMPLETE":
			var data struct {
				Status string `json:"status"`
			}
			_ = json.Unmarshal(ev.Data, &data)
			fmt.Printf("\nrun complete: %s\n", data.Status)
			return nil
		}
	}
}

func printPlan(data json.RawMessage) {
	var plan struct {
		Steps []struct {
			ID          string `json:"id"`
			Description string `json:"description"`
		} `json:"steps"`
	}
	if err := json.Unmarshal(data, &plan); err != nil {
		return
	}
	fmt.Printf("\nPlan (%d steps):\n", len(plan.Steps))
	for i, step := range plan.Steps {
		fmt.Printf("  %d. [%s] %s\n", i+1, step.ID, step.Description)
	}
}

func printSummary(data json.RawMessage) {
	var summary struct {
		Report struct {
			TotalSummary string   `json:"total_summary"`
			FinalOutcome string   `json:"final_outcome"`
			KeyResults   []string `json:"key_results"`
			Warnings     []string `json:"warnings"`
		} `json:"report"`
	}
	if err := json.Unmarshal(data, &summary); err != nil {
		return
	}
	fmt.Printf("\n=== Summary (%s)\n", summary.Report.FinalOutcome)
	if summary.Report.TotalSummary != "" {
		fmt.Println(summary.Report.TotalSummary)
	}
	for _, result := range summary.Report.KeyResults {
		fmt.Printf("  * %s\n", result)
	}
	for _, warning := range summary.Report.Warnings {
		fmt.Printf("  ! %s\n", warning)
	}
}

// handleRequest executes or displays one instruction and collects the
// outcome to report back.
func handleRequest(ctx context.Context, stdin *bufio.Scanner, req executionRequest) outcomeReport {
	fmt.Printf("\ninstruction (%s):\n%s\n", req.Language, req.Code)

	if execute && req.Language == "bash" {
		out, err := exec.CommandContext(ctx, "bash", "-c", req.Code).CombinedOutput()
		fmt.Printf("output:\n%s\n", out)
		return outcomeReport{Output: string(out), Succeeded: err == nil}
	}

	fmt.Println("Run it, then paste the output (end with an empty line):")
	var lines []string
	for stdin.Scan() {
		line := stdin.Text()
		if line == "" {
			break
		}
		lines = append(lines, line)
	}

	fmt.Print("Did it succeed? [Y/n]: ")
	succeeded := true
	if stdin.Scan() {
		answer := strings.ToLower(strings.TrimSpace(stdin.Text()))
		succeeded = answer == "" || answer == "y" || answer == "yes"
	}

	return outcomeReport{Output: strings.Join(lines, "\n"), Succeeded: succeeded}
}

func runHealth(cmd *cobra.Command, args []string) error {
	client := &http.Client{Timeout: 10 * time.Second}

	resp, err := client.Get(serverURL + "/health")
	if err != nil {
		return fmt.Errorf("failed to reach server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	var health struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Printf("Server: %s\nStatus: %s\n", serverURL, health.Status)
	return nil
}

// websocketURL converts the configured HTTP base URL to the ws endpoint.
func websocketURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid server URL %q: %w", base, err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = "/ws"
	return u.String(), nil
}
