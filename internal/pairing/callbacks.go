package pairing

// Callbacks is the decoupled notification surface a caller registers to
// observe a pairing attempt: the Controller holds no reference back to
// whatever UI or higher-level component consumes these events. Every
// field is optional; nil fields are simply not invoked.
type Callbacks struct {
	OnStarted             func()
	OnDeviceIDReceived    func(deviceID []byte)
	OnAuthStringAvailable func(code string)
	OnAssociated          func()
	OnAssociationFailed   func(err error)
	OnCarDisassociated    func()
	OnAllDisassociated    func()
	OnConnected           func()
	OnDisconnected        func()
	OnConnectionFailed    func(err error)
}

func (c Callbacks) started() {
	if c.OnStarted != nil {
		c.OnStarted()
	}
}

func (c Callbacks) deviceIDReceived(id []byte) {
	if c.OnDeviceIDReceived != nil {
		c.OnDeviceIDReceived(id)
	}
}

func (c Callbacks) authStringAvailable(code string) {
	if c.OnAuthStringAvailable != nil {
		c.OnAuthStringAvailable(code)
	}
}

func (c Callbacks) associated() {
	if c.OnAssociated != nil {
		c.OnAssociated()
	}
}

func (c Callbacks) associationFailed(err error) {
	if c.OnAssociationFailed != nil {
		c.OnAssociationFailed(err)
	}
}

func (c Callbacks) connected() {
	if c.OnConnected != nil {
		c.OnConnected()
	}
}

func (c Callbacks) disconnected() {
	if c.OnDisconnected != nil {
		c.OnDisconnected()
	}
}

func (c Callbacks) connectionFailed(err error) {
	if c.OnConnectionFailed != nil {
		c.OnConnectionFailed(err)
	}
}
