package realtime

import (
	"context"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"fraud-detection-service/internal/model"
	"fraud-detection-service/internal/util"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// ActivitySink accepts telemetry reported over the socket. Satisfied by the
// telemetry service.
type ActivitySink interface {
	Ingest(ctx context.Context, event *model.ActivityEvent) error
}

// Client is the middleman between one websocket connection and the hub. A
// connection is anonymous until its join frame arrives.
type Client struct {
	hub  *Hub
	sink ActivitySink
	conn *websocket.Conn
	send chan Outbound

	// rooms is written under the hub's lock while the client is registered.
	rooms map[string]bool

	mu         sync.Mutex
	closed     bool
	employeeID int64
	isAdmin    bool
}

func NewClient(hub *Hub, sink ActivitySink, conn *websocket.Conn) *Client {
	return &Client{
		hub:   hub,
		sink:  sink,
		conn:  conn,
		send:  make(chan Outbound, 64),
		rooms: make(map[string]bool),
	}
}

// Start begins reading and writing for the client.
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}

// closeSend marks the client closed and closes its send channel. The mutex
// orders this against in-flight enqueues so nothing sends on the closed
// channel.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *Client) identity() (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.employeeID, c.isAdmin
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister <- c
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		util.Error("Failed to set read deadline", util.ErrorField(err))
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				util.Error("Unexpected websocket close", util.ErrorField(err))
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.enqueue(Outbound{Type: MessageTypeError, Data: "malformed message"})
			continue
		}

		c.dispatch(msg)
	}
}

func (c *Client) dispatch(msg Message) {
	switch msg.Type {
	case MessageTypeJoin:
		c.handleJoin(msg.Data)
	case MessageTypeActivityLog:
		c.handleActivity(msg.Data)
	case MessageTypeSendWarning:
		c.handleWarning(msg.Data)
	case MessageTypeWebRTCSignal:
		c.handleSignal(msg.Data)
	case MessageTypeScreenShareRequest:
		c.relayScreenShare(MessageTypeScreenShareRequest, msg.Data)
	case MessageTypeScreenShareAccept:
		c.handleScreenShareAccepted(msg.Data)
	case MessageTypePing:
		c.enqueue(Outbound{Type: MessageTypePong})
	default:
		c.enqueue(Outbound{Type: MessageTypeError, Data: "unknown message type"})
	}
}

func (c *Client) handleJoin(data json.RawMessage) {
	var req JoinRequest
	if err := json.Unmarshal(data, &req); err != nil || req.EmployeeID <= 0 {
		c.enqueue(Outbound{Type: MessageTypeError, Data: "invalid join"})
		return
	}

	c.mu.Lock()
	c.employeeID = req.EmployeeID
	c.isAdmin = req.Role == "admin"
	isAdmin := c.isAdmin
	c.mu.Unlock()

	c.hub.JoinRoom(c, employeeRoom(req.EmployeeID))
	if isAdmin {
		c.hub.JoinRoom(c, adminRoom)
	}
}

func (c *Client) handleActivity(data json.RawMessage) {
	employeeID, _ := c.identity()
	if employeeID == 0 {
		c.enqueue(Outbound{Type: MessageTypeError, Data: "join required"})
		return
	}

	var event model.ActivityEvent
	if err := json.Unmarshal(data, &event); err != nil {
		c.enqueue(Outbound{Type: MessageTypeError, Data: "invalid activity payload"})
		return
	}
	// The socket identity wins over whatever the payload claims.
	event.EmployeeID = employeeID

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := c.sink.Ingest(ctx, &event); err != nil {
		util.Debug("Socket telemetry rejected",
			util.Int64("employee_id", employeeID),
			util.ErrorField(err))
	}
}

func (c *Client) handleWarning(data json.RawMessage) {
	if _, isAdmin := c.identity(); !isAdmin {
		c.enqueue(Outbound{Type: MessageTypeError, Data: "admin only"})
		return
	}

	var req WarningRequest
	if err := json.Unmarshal(data, &req); err != nil || req.EmployeeID <= 0 {
		c.enqueue(Outbound{Type: MessageTypeError, Data: "invalid warning"})
		return
	}

	c.hub.Broadcast(employeeRoom(req.EmployeeID), Outbound{
		Type: "employee_warning",
		Data: map[string]string{"message": req.Message},
	})
}

// handleSignal relays WebRTC signaling frames. The sender identity is taken
// from the socket, never from the payload.
func (c *Client) handleSignal(data json.RawMessage) {
	employeeID, _ := c.identity()
	if employeeID == 0 {
		c.enqueue(Outbound{Type: MessageTypeError, Data: "join required"})
		return
	}

	var signal Signal
	if err := json.Unmarshal(data, &signal); err != nil {
		c.enqueue(Outbound{Type: MessageTypeError, Data: "invalid signal"})
		return
	}
	signal.SenderID = employeeID

	room, err := roomForReceiver(signal.ReceiverID)
	if err != nil {
		c.enqueue(Outbound{Type: MessageTypeError, Data: "invalid signal receiver"})
		return
	}

	c.hub.Broadcast(room, Outbound{Type: MessageTypeWebRTCSignal, Data: signal})
}

func (c *Client) relayScreenShare(messageType string, data json.RawMessage) {
	if _, isAdmin := c.identity(); !isAdmin {
		c.enqueue(Outbound{Type: MessageTypeError, Data: "admin only"})
		return
	}

	var req ScreenShareRequest
	if err := json.Unmarshal(data, &req); err != nil || req.EmployeeID <= 0 {
		c.enqueue(Outbound{Type: MessageTypeError, Data: "invalid screen share request"})
		return
	}

	c.hub.Broadcast(employeeRoom(req.EmployeeID), Outbound{Type: messageType, Data: req})
}

// handleScreenShareAccepted flows the other way: the employee's agent
// notifies the admin console that capture is live.
func (c *Client) handleScreenShareAccepted(data json.RawMessage) {
	employeeID, _ := c.identity()
	if employeeID == 0 {
		c.enqueue(Outbound{Type: MessageTypeError, Data: "join required"})
		return
	}

	c.hub.Broadcast(adminRoom, Outbound{
		Type: MessageTypeScreenShareNotify,
		Data: map[string]int64{"employee_id": employeeID},
	})
}

// enqueue buffers a frame for the write pump without blocking. Returns false
// when the client is closed or its buffer is full.
func (c *Client) enqueue(message Outbound) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- message:
		return true
	default:
		return false
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			payload, err := json.Marshal(message)
			if err != nil {
				util.Error("Failed to encode outbound frame", util.ErrorField(err))
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
