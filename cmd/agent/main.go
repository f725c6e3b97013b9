package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	json "github.com/goccy/go-json"

	"fraud-detection-service/internal/agent"
	"fraud-detection-service/internal/config"
	"fraud-detection-service/internal/util"
)

// workstation resolves the machine identity reported with every event.
type workstation struct {
	deviceID string
	ip       string
	windows  []string
}

func (w *workstation) ForegroundWindow() string {
	// Real deployments read the OS foreground window; this agent rotates
	// through a fixed set so lab runs exercise the keyword rules.
	return w.windows[rand.Intn(len(w.windows))]
}

func (w *workstation) IPAddress() string { return w.ip }
func (w *workstation) DeviceID() string  { return w.deviceID }

func localIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String()
}

// simulateInput feeds the counters the way OS input hooks would.
func simulateInput(ctx context.Context, counters *agent.Counters) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Occasional quiet stretches produce realistic idle windows.
			if rand.Float64() < 0.2 {
				continue
			}
			counters.RecordMouse(rand.Intn(40))
			counters.RecordKeyboard(rand.Intn(25))
		}
	}
}

func postJSON(ctx context.Context, client *http.Client, url string, body interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

func main() {
	var (
		employeeID = flag.Int64("employee", 0, "employee ID this agent reports for")
		serverURL  = flag.String("server", "http://localhost:8080", "collection server base URL")
		wsURL      = flag.String("ws", "ws://localhost:8080/ws", "realtime socket URL")
	)
	flag.Parse()

	cfg := config.LoadConfig()
	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)
	defer util.Sync()

	if *employeeID <= 0 {
		util.Fatal("employee ID is required (-employee)")
	}

	hostname, _ := os.Hostname()
	station := &workstation{
		deviceID: hostname,
		ip:       localIP(),
		windows: []string{
			"main.go - Visual Studio Code",
			"Quarterly Report - LibreOffice Writer",
			"Inbox - Thunderbird",
			"YouTube - Mozilla Firefox",
			"Terminal",
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpClient := &http.Client{Timeout: 10 * time.Second}
	login := map[string]interface{}{
		"employee_id": *employeeID,
		"ip_address":  station.ip,
		"device_id":   station.deviceID,
	}
	if err := postJSON(ctx, httpClient, *serverURL+"/api/log-login", login); err != nil {
		util.Fatal("Failed to record login", util.ErrorField(err))
	}

	counters := agent.NewCounters()
	sender := agent.NewHTTPSender(*serverURL)
	reporter := agent.NewReporter(*employeeID, counters, station, sender,
		cfg.Detection.ReportInterval, cfg.Detection.IdleThreshold)
	control := agent.NewControlListener(*wsURL, *employeeID, reporter)

	go simulateInput(ctx, counters)
	go func() { _ = control.Run(ctx) }()

	_ = reporter.Run(ctx)

	// Best effort logout on shutdown.
	logoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	logout := map[string]interface{}{"employee_id": *employeeID}
	if err := postJSON(logoutCtx, httpClient, *serverURL+"/api/log-logout", logout); err != nil {
		util.Warn("Failed to record logout", util.ErrorField(err))
	}
}
