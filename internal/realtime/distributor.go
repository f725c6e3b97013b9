package realtime

// Distributor adapts the hub to the fan-out contract the services use:
// per-employee dashboard pushes, admin room pushes, and the agent control
// channel.
type Distributor struct {
	hub *Hub
}

func NewDistributor(hub *Hub) *Distributor {
	return &Distributor{hub: hub}
}

func (d *Distributor) ToEmployee(employeeID int64, event string, payload interface{}) {
	d.hub.Broadcast(employeeRoom(employeeID), Outbound{Type: event, Data: payload})
}

func (d *Distributor) ToAdmins(event string, payload interface{}) {
	d.hub.Broadcast(adminRoom, Outbound{Type: event, Data: payload})
}

// ControlAgent pushes a stop or start command down the employee's socket.
// The desktop agent gates its reporting loop on these.
func (d *Distributor) ControlAgent(employeeID int64, command string) {
	d.hub.Broadcast(employeeRoom(employeeID), Outbound{
		Type: MessageTypeAgentControl,
		Data: AgentControl{Command: command},
	})
}
