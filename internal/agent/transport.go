package agent

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"fraud-detection-service/internal/model"
	"fraud-detection-service/internal/util"
)

// HTTPSender posts reports to the collection endpoint.
type HTTPSender struct {
	baseURL string
	client  *http.Client
}

func NewHTTPSender(baseURL string) *HTTPSender {
	return &HTTPSender{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *HTTPSender) Send(ctx context.Context, event *model.ActivityEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.baseURL+"/api/log-activity", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to deliver report: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("report rejected with status %d", resp.StatusCode)
	}
	return nil
}

// controlMessage mirrors the server's realtime envelope for the frames the
// agent cares about.
type controlMessage struct {
	Type string `json:"type"`
	Data struct {
		Command string `json:"command"`
	} `json:"data"`
}

// ControlListener keeps a websocket open to the server and applies stop and
// start commands to the reporter.
type ControlListener struct {
	wsURL      string
	employeeID int64
	reporter   *Reporter
}

func NewControlListener(wsURL string, employeeID int64, reporter *Reporter) *ControlListener {
	return &ControlListener{
		wsURL:      wsURL,
		employeeID: employeeID,
		reporter:   reporter,
	}
}

// Run dials, joins, and listens until the context is cancelled, redialing
// with a flat backoff on any connection failure.
func (l *ControlListener) Run(ctx context.Context) error {
	for {
		if err := l.listenOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			util.Warn("Control channel lost, redialing", util.ErrorField(err))
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Second):
		}
	}
}

func (l *ControlListener) listenOnce(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, l.wsURL, nil)
	if err != nil {
		return fmt.Errorf("failed to dial control channel: %w", err)
	}
	defer conn.Close()

	join := map[string]interface{}{
		"type": "join",
		"data": map[string]interface{}{"employee_id": l.employeeID},
	}
	payload, err := json.Marshal(join)
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("failed to join control channel: %w", err)
	}

	util.Info("Control channel connected", util.Int64("employee_id", l.employeeID))

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var msg controlMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		if msg.Type != "server_control_agent" {
			continue
		}

		switch msg.Data.Command {
		case "stop":
			l.reporter.SetEnabled(false)
		case "start":
			l.reporter.SetEnabled(true)
		}
	}
}
