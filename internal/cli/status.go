package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

var statusAddr string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show worker status",
	Long: `Show the status of a running worker by querying its health endpoint.
The address defaults to worker.metrics_addr from the config file.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusAddr, "addr", "", "worker metrics address (host:port)")
	rootCmd.AddCommand(statusCmd)
}

type healthReport struct {
	Status string `json:"status"`
	JobID  string `json:"job_id"`
	Room   string `json:"room"`
	Uptime string `json:"uptime"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	addr := statusAddr
	if addr == "" {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		addr = cfg.Worker.MetricsAddr
	}
	if addr == "" {
		return fmt.Errorf("no metrics address configured; set worker.metrics_addr or pass --addr")
	}

	out := cmd.OutOrStdout()
	report, err := fetchHealth(cmd.Context(), addr)
	if err != nil {
		fmt.Fprintln(out, "Status: stopped")
		return nil
	}

	fmt.Fprintf(out, "Status: %s\n", report.Status)
	fmt.Fprintf(out, "Job: %s\n", report.JobID)
	if report.Room != "" {
		fmt.Fprintf(out, "Room: %s\n", report.Room)
	}
	if d, err := time.ParseDuration(report.Uptime); err == nil {
		fmt.Fprintf(out, "Uptime: %s\n", formatDuration(d))
	}
	return nil
}

func fetchHealth(ctx context.Context, addr string) (*healthReport, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+"/healthz", nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("health check returned %s", resp.Status)
	}

	var report healthReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return nil, fmt.Errorf("failed to decode health report: %w", err)
	}
	return &report, nil
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
