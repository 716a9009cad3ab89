package transport

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"
)

const (
	bluezService            = "org.bluez"
	deviceInterface         = "org.bluez.Device1"
	characteristicInterface = "org.bluez.GattCharacteristic1"
	propertiesInterface     = "org.freedesktop.DBus.Properties"
	objectManagerInterface  = "org.freedesktop.DBus.ObjectManager"
)

// BlueZ is a GATT Transport backed by the BlueZ D-Bus API (org.bluez),
// the standard Linux Bluetooth stack. It drives device connect, GATT
// characteristic AcquireWrite/AcquireNotify for MTU negotiation, and
// service discovery over org.freedesktop.DBus.ObjectManager.
type BlueZ struct {
	conn       *dbus.Conn
	devicePath dbus.ObjectPath

	mu         sync.Mutex
	clientPath dbus.ObjectPath
	serverPath dbus.ObjectPath
	writeFile  *os.File
	notifyFile *os.File
	mtu        int
}

// NewBlueZ builds a BlueZ transport for the device at devicePath (e.g.
// "/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF") over the system bus.
func NewBlueZ(conn *dbus.Conn, devicePath dbus.ObjectPath) *BlueZ {
	return &BlueZ{conn: conn, devicePath: devicePath}
}

func (b *BlueZ) device() dbus.BusObject {
	return b.conn.Object(bluezService, b.devicePath)
}

// Connect calls org.bluez.Device1.Connect, which triggers the platform's
// own GATT connect sequence.
func (b *BlueZ) Connect(ctx context.Context) error {
	call := b.device().CallWithContext(ctx, deviceInterface+".Connect", 0)
	if call.Err != nil {
		return fmt.Errorf("%w: %v", ErrConnectFailed, call.Err)
	}
	return nil
}

// BondState reads the device's "Bonded"/"Paired" properties, reporting
// BondBonded if either is set and BondNone otherwise.
func (b *BlueZ) BondState(ctx context.Context) (BondState, error) {
	var bonded, paired dbus.Variant
	props := b.device()
	if err := props.CallWithContext(ctx, propertiesInterface+".Get", 0, deviceInterface, "Bonded").Store(&bonded); err != nil {
		return BondNone, fmt.Errorf("transport: read Bonded property: %w", err)
	}
	if isTrue(bonded) {
		return BondBonded, nil
	}
	if err := props.CallWithContext(ctx, propertiesInterface+".Get", 0, deviceInterface, "Paired").Store(&paired); err != nil {
		return BondNone, fmt.Errorf("transport: read Paired property: %w", err)
	}
	if isTrue(paired) {
		return BondBonded, nil
	}
	return BondNone, nil
}

func isTrue(v dbus.Variant) bool {
	b, ok := v.Value().(bool)
	return ok && b
}

// DiscoverServices walks org.freedesktop.DBus.ObjectManager looking for
// GATT characteristics under b.devicePath whose UUID matches want's
// client-write and server-write characteristics.
func (b *BlueZ) DiscoverServices(ctx context.Context, want ServiceUUIDs) error {
	manager := b.conn.Object(bluezService, dbus.ObjectPath("/"))
	var objects map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	if err := manager.CallWithContext(ctx, objectManagerInterface+".GetManagedObjects", 0).Store(&objects); err != nil {
		return fmt.Errorf("transport: GetManagedObjects: %w", err)
	}

	found := map[string]dbus.ObjectPath{}
	for path, ifaces := range objects {
		if !strings.HasPrefix(string(path), string(b.devicePath)) {
			continue
		}
		char, ok := ifaces[characteristicInterface]
		if !ok {
			continue
		}
		uuidVariant, ok := char["UUID"]
		if !ok {
			continue
		}
		uuid, _ := uuidVariant.Value().(string)
		switch strings.ToLower(uuid) {
		case strings.ToLower(want.ClientWrite):
			found["client"] = path
		case strings.ToLower(want.ServerWrite):
			found["server"] = path
		case strings.ToLower(want.AdvertiseData):
			if want.AdvertiseData != "" {
				found["advertise"] = path
			}
		}
	}

	if _, ok := found["client"]; !ok {
		return fmt.Errorf("%w: client-write characteristic", ErrServiceNotFound)
	}
	if _, ok := found["server"]; !ok {
		return fmt.Errorf("%w: server-write characteristic", ErrServiceNotFound)
	}

	b.mu.Lock()
	b.clientPath, b.serverPath = found["client"], found["server"]
	b.mu.Unlock()
	return nil
}

// RequestMTU acquires the write and notify file descriptors for the
// client-write characteristic, which is how BlueZ negotiates the
// effective ATT MTU for a GATT link (AcquireWrite/AcquireNotify return
// the negotiated MTU alongside the fd).
func (b *BlueZ) RequestMTU(ctx context.Context, requested int) (int, error) {
	b.mu.Lock()
	clientPath := b.clientPath
	b.mu.Unlock()
	if clientPath == "" {
		return 0, fmt.Errorf("%w: DiscoverServices must run before RequestMTU", ErrServiceNotFound)
	}

	characteristic := b.conn.Object(bluezService, clientPath)
	opts := map[string]dbus.Variant{"mtu": dbus.MakeVariant(uint16(requested))}

	var writeFD dbus.UnixFD
	var writeMTU uint16
	if err := characteristic.CallWithContext(ctx, characteristicInterface+".AcquireWrite", 0, opts).
		Store(&writeFD, &writeMTU); err != nil {
		return 0, fmt.Errorf("%w: AcquireWrite: %w", ErrMTUTimeout, err)
	}

	var notifyFD dbus.UnixFD
	var notifyMTU uint16
	if err := characteristic.CallWithContext(ctx, characteristicInterface+".AcquireNotify", 0, opts).
		Store(&notifyFD, &notifyMTU); err != nil {
		return 0, fmt.Errorf("%w: AcquireNotify: %w", ErrMTUTimeout, err)
	}

	mtu := int(writeMTU)
	if int(notifyMTU) < mtu {
		mtu = int(notifyMTU)
	}

	b.mu.Lock()
	b.writeFile = os.NewFile(uintptr(writeFD), "ble-write")
	b.notifyFile = os.NewFile(uintptr(notifyFD), "ble-notify")
	b.mtu = mtu
	b.mu.Unlock()

	return mtu, nil
}

func (b *BlueZ) Read(p []byte) (int, error) {
	b.mu.Lock()
	f := b.notifyFile
	b.mu.Unlock()
	if f == nil {
		return 0, fmt.Errorf("%w: RequestMTU must run before Read", ErrClosed)
	}
	return f.Read(p)
}

func (b *BlueZ) Write(p []byte) (int, error) {
	b.mu.Lock()
	f := b.writeFile
	b.mu.Unlock()
	if f == nil {
		return 0, fmt.Errorf("%w: RequestMTU must run before Write", ErrClosed)
	}
	return f.Write(p)
}

func (b *BlueZ) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	var firstErr error
	if b.writeFile != nil {
		if err := b.writeFile.Close(); err != nil {
			firstErr = err
		}
	}
	if b.notifyFile != nil {
		if err := b.notifyFile.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
