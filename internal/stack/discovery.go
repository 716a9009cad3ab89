package stack

import (
	"context"
	"log/slog"
	"strings"

	"github.com/godbus/dbus/v5"

	"github.com/carlinkd/cartrustd/internal/transport"
)

const (
	deviceInterface        = "org.bluez.Device1"
	objectManagerInterface = "org.freedesktop.DBus.ObjectManager"
	interfacesAddedSignal  = objectManagerInterface + ".InterfacesAdded"
)

// BlueZDiscoverer watches org.bluez's ObjectManager for newly advertised
// devices carrying the companion-device service UUID and hands each one
// to onDevice as a fresh transport.BlueZ (spec.md §4.1, "Discovering":
// advertisement filtered by the well-known service UUID).
type BlueZDiscoverer struct {
	conn        *dbus.Conn
	serviceUUID string
	logger      *slog.Logger
}

// NewBlueZDiscoverer builds a discoverer over conn, a connection to the
// system bus, filtering for serviceUUID.
func NewBlueZDiscoverer(conn *dbus.Conn, serviceUUID string, logger *slog.Logger) *BlueZDiscoverer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &BlueZDiscoverer{conn: conn, serviceUUID: strings.ToLower(serviceUUID), logger: logger.With(slog.String("component", "stack.discovery"))}
}

// Run blocks, dispatching onDevice for every InterfacesAdded signal whose
// Device1.UUIDs includes the configured service UUID, until ctx is done.
// mac is the peer's Bluetooth address as reported by Device1.Address, used
// by the caller to decide association vs. reconnection before the GATT
// connection even opens (spec.md §4.1).
func (d *BlueZDiscoverer) Run(ctx context.Context, onDevice func(tr *transport.BlueZ, mac string)) error {
	if err := d.conn.AddMatchSignal(
		dbus.WithMatchInterface(objectManagerInterface),
		dbus.WithMatchMember("InterfacesAdded"),
	); err != nil {
		return err
	}

	signals := make(chan *dbus.Signal, 16)
	d.conn.Signal(signals)
	defer d.conn.RemoveSignal(signals)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sig, ok := <-signals:
			if !ok {
				return nil
			}
			if sig.Name != interfacesAddedSignal {
				continue
			}
			d.handleInterfacesAdded(sig, onDevice)
		}
	}
}

func (d *BlueZDiscoverer) handleInterfacesAdded(sig *dbus.Signal, onDevice func(*transport.BlueZ, string)) {
	if len(sig.Body) != 2 {
		return
	}
	path, ok := sig.Body[0].(dbus.ObjectPath)
	if !ok {
		return
	}
	ifaces, ok := sig.Body[1].(map[string]map[string]dbus.Variant)
	if !ok {
		return
	}
	props, ok := ifaces[deviceInterface]
	if !ok {
		return
	}
	if !d.advertisesService(props) {
		return
	}

	d.logger.Info("discovered candidate device", slog.String("path", string(path)))
	onDevice(transport.NewBlueZ(d.conn, path), deviceAddress(props))
}

func deviceAddress(props map[string]dbus.Variant) string {
	v, ok := props["Address"]
	if !ok {
		return ""
	}
	addr, _ := v.Value().(string)
	return addr
}

func (d *BlueZDiscoverer) advertisesService(props map[string]dbus.Variant) bool {
	v, ok := props["UUIDs"]
	if !ok {
		return false
	}
	uuids, ok := v.Value().([]string)
	if !ok {
		return false
	}
	for _, u := range uuids {
		if strings.ToLower(u) == d.serviceUUID {
			return true
		}
	}
	return false
}
