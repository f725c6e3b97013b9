package realtime

import (
	"fmt"
	"strconv"

	json "github.com/goccy/go-json"
)

// Message types shared with browser dashboards and desktop agents.
const (
	// Inbound from clients.
	MessageTypeJoin               = "join"
	MessageTypeActivityLog        = "activity_log"
	MessageTypeSendWarning        = "send_warning"
	MessageTypeWebRTCSignal       = "webrtc_signal"
	MessageTypeScreenShareRequest = "screen_share_request"
	MessageTypeScreenShareAccept  = "screen_share_accepted"
	MessageTypePing               = "ping"

	// Outbound to clients.
	MessageTypePong              = "pong"
	MessageTypeAgentControl      = "server_control_agent"
	MessageTypeScreenShareNotify = "screen_share_accepted_admin_notification"
	MessageTypeError             = "error"
)

// Message is the envelope for every frame on the socket. Data stays raw on
// the inbound path so each handler decodes only its own payload shape.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Outbound pairs a message type with an encodable payload.
type Outbound struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// JoinRequest identifies the connection. Admins land in the shared admin
// room; everyone lands in their own employee room.
type JoinRequest struct {
	EmployeeID int64  `json:"employee_id"`
	Role       string `json:"role"`
}

// WarningRequest is an admin-initiated warning pushed to one employee.
type WarningRequest struct {
	EmployeeID int64  `json:"employee_id"`
	Message    string `json:"message"`
}

// Signal is a WebRTC signaling frame relayed between an employee's agent and
// the admin console. ReceiverID is an employee ID or the literal "admin".
type Signal struct {
	ReceiverID string          `json:"receiver_id"`
	Type       string          `json:"type"`
	SenderID   int64           `json:"sender_id"`
	Payload    json.RawMessage `json:"payload"`
}

// ScreenShareRequest targets one employee's agent.
type ScreenShareRequest struct {
	EmployeeID int64 `json:"employee_id"`
}

// AgentControl tells a desktop agent to stop or resume reporting.
type AgentControl struct {
	Command string `json:"command"`
}

// AdminReceiver is the reserved receiver alias for the admin console.
const AdminReceiver = "admin"

const adminRoom = "admin"

func employeeRoom(employeeID int64) string {
	return "employee_" + strconv.FormatInt(employeeID, 10)
}

func roomForReceiver(receiver string) (string, error) {
	if receiver == AdminReceiver {
		return adminRoom, nil
	}
	employeeID, err := strconv.ParseInt(receiver, 10, 64)
	if err != nil || employeeID <= 0 {
		return "", fmt.Errorf("invalid signal receiver: %q", receiver)
	}
	return employeeRoom(employeeID), nil
}
