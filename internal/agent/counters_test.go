package agent

import (
	"context"
	"sync"
	"testing"
	"time"

	"fraud-detection-service/internal/model"
)

func TestDrainResetsCounts(t *testing.T) {
	c := NewCounters()
	c.RecordMouse(5)
	c.RecordMouse(3)
	c.RecordKeyboard(7)

	mouse, keyboard, idle := c.Drain(time.Now(), 15*time.Second, time.Minute)
	if mouse != 8 || keyboard != 7 {
		t.Errorf("Drain = (%d, %d), want (8, 7)", mouse, keyboard)
	}
	if idle != 0 {
		t.Errorf("idle = %d right after input, want 0", idle)
	}

	mouse, keyboard, _ = c.Drain(time.Now(), 15*time.Second, time.Minute)
	if mouse != 0 || keyboard != 0 {
		t.Errorf("second Drain = (%d, %d), want counts reset", mouse, keyboard)
	}
}

func TestDrainIdleThreshold(t *testing.T) {
	c := NewCounters()
	c.RecordKeyboard(1)
	last := c.LastInput()

	tests := []struct {
		name     string
		now      time.Time
		wantIdle int
	}{
		{"within threshold", last.Add(30 * time.Second), 0},
		{"at threshold", last.Add(time.Minute), 0},
		{"past threshold", last.Add(time.Minute + time.Second), 15},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, idle := c.Drain(tt.now, 15*time.Second, time.Minute)
			if idle != tt.wantIdle {
				t.Errorf("idle = %d, want %d", idle, tt.wantIdle)
			}
		})
	}
}

func TestRecordUpdatesLastInput(t *testing.T) {
	c := NewCounters()
	before := c.LastInput()
	time.Sleep(5 * time.Millisecond)
	c.RecordMouse(1)
	if !c.LastInput().After(before) {
		t.Error("RecordMouse did not advance the last input time")
	}
}

func TestCountersConcurrentAccess(t *testing.T) {
	c := NewCounters()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.RecordMouse(1)
				c.RecordKeyboard(1)
			}
		}()
	}
	wg.Wait()

	mouse, keyboard, _ := c.Drain(time.Now(), 15*time.Second, time.Minute)
	if mouse != 1000 || keyboard != 1000 {
		t.Errorf("Drain = (%d, %d), want (1000, 1000)", mouse, keyboard)
	}
}

type fixedWorkstation struct{}

func (fixedWorkstation) ForegroundWindow() string { return "Terminal" }
func (fixedWorkstation) IPAddress() string        { return "10.0.0.5" }
func (fixedWorkstation) DeviceID() string         { return "ws-0042" }

type captureSender struct {
	mu     sync.Mutex
	events []model.ActivityEvent
}

func (s *captureSender) Send(ctx context.Context, event *model.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, *event)
	return nil
}

func (s *captureSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestReporterShipsDrainedCounts(t *testing.T) {
	counters := NewCounters()
	counters.RecordMouse(4)
	counters.RecordKeyboard(9)

	sender := &captureSender{}
	r := NewReporter(7, counters, fixedWorkstation{}, sender,
		20*time.Millisecond, time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_ = r.Run(ctx)

	if sender.count() == 0 {
		t.Fatal("no reports shipped")
	}

	sender.mu.Lock()
	first := sender.events[0]
	sender.mu.Unlock()
	if first.EmployeeID != 7 || first.MouseCount != 4 || first.KeyboardCount != 9 {
		t.Errorf("first report = %+v, want drained counts for employee 7", first)
	}
	if first.WindowTitle != "Terminal" || first.DeviceID != "ws-0042" {
		t.Errorf("first report workstation = %q/%q", first.WindowTitle, first.DeviceID)
	}
}

func TestReporterStopGatesSendingOnly(t *testing.T) {
	counters := NewCounters()
	sender := &captureSender{}
	r := NewReporter(7, counters, fixedWorkstation{}, sender,
		20*time.Millisecond, time.Minute)

	r.SetEnabled(false)
	counters.RecordMouse(6)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_ = r.Run(ctx)

	if n := sender.count(); n != 0 {
		t.Fatalf("%d reports shipped while stopped, want 0", n)
	}

	// Counts survived the pause.
	mouse, _, _ := counters.Drain(time.Now(), 15*time.Second, time.Minute)
	if mouse != 6 {
		t.Errorf("mouse count after pause = %d, want 6", mouse)
	}
}
