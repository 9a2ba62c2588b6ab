// Package discovery accumulates the device, service and characteristic records reported
// by a scan and decides which of them are surfaced to the caller.
package discovery

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/cornelk/hashmap"
	"github.com/sirupsen/logrus"
	"github.com/srg/gripsense/internal/adapter"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Kind identifies what a scan discovers.
type Kind int

const (
	KindDevice Kind = iota
	KindService
	KindCharacteristic
)

func (k Kind) String() string {
	switch k {
	case KindDevice:
		return "device"
	case KindService:
		return "service"
	case KindCharacteristic:
		return "characteristic"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Filter narrows which records are surfaced. Empty fields match everything; matching
// is a case-insensitive substring test.
type Filter struct {
	DeviceName         string
	ServiceUUID        string
	CharacteristicUUID string
}

// DeviceRecord is the merged view of every update seen for one device. Nil fields
// have not been reported yet.
type DeviceRecord struct {
	ID            string
	Name          *string
	IsConnectable *bool
}

// NameOrEmpty returns the reported name, or "" when none was reported.
func (d DeviceRecord) NameOrEmpty() string {
	if d.Name == nil {
		return ""
	}
	return *d.Name
}

// Connectable reports whether the device is known to accept connections.
func (d DeviceRecord) Connectable() bool {
	return d.IsConnectable != nil && *d.IsConnectable
}

// ServiceRecord is a discovered service.
type ServiceRecord struct {
	UUID string
}

// CharacteristicRecord is a discovered characteristic. DisplayName is the user
// description when one is available, otherwise the UUID.
type CharacteristicRecord struct {
	UUID        string
	DisplayName string
}

type deviceEntry struct {
	record    DeviceRecord
	qualified bool
}

// Registry holds the records of the current scans. Observe* calls are expected from a
// single scan goroutine per kind; queries may run concurrently with them. Device
// lookups by id do not take the registry lock.
type Registry struct {
	mu     sync.Mutex
	filter Filter
	logger *logrus.Logger

	// normalized uuid filters, compared against normalized keys
	serviceFilter string
	charFilter    string

	devices     atomic.Pointer[hashmap.Map[string, *deviceEntry]]
	deviceOrder *orderedmap.OrderedMap[string, struct{}]

	services        *orderedmap.OrderedMap[string, ServiceRecord]
	characteristics *orderedmap.OrderedMap[string, CharacteristicRecord]
	names           *orderedmap.OrderedMap[string, string]
}

// NewRegistry creates an empty registry.
func NewRegistry(filter Filter, logger *logrus.Logger) *Registry {
	if logger == nil {
		logger = logrus.New()
	}
	r := &Registry{
		filter:        filter,
		logger:        logger,
		serviceFilter: adapter.NormalizeUUID(filter.ServiceUUID),
		charFilter:    adapter.NormalizeUUID(filter.CharacteristicUUID),
	}
	r.resetDevices()
	r.resetServices()
	r.resetCharacteristics()
	return r
}

// Filter returns the registry's filter.
func (r *Registry) Filter() Filter {
	return r.filter
}

// Reset discards every record of the given kind.
func (r *Registry) Reset(kind Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch kind {
	case KindDevice:
		r.resetDevices()
	case KindService:
		r.resetServices()
	case KindCharacteristic:
		r.resetCharacteristics()
	}
}

func (r *Registry) resetDevices() {
	r.devices.Store(hashmap.New[string, *deviceEntry]())
	r.deviceOrder = orderedmap.New[string, struct{}]()
}

func (r *Registry) resetServices() {
	r.services = orderedmap.New[string, ServiceRecord]()
}

func (r *Registry) resetCharacteristics() {
	r.characteristics = orderedmap.New[string, CharacteristicRecord]()
	r.names = orderedmap.New[string, string]()
}

// ObserveDevice merges a partial update into the device's record. It returns the
// merged record and true only when the device has just become qualifying.
func (r *Registry) ObserveDevice(u adapter.DeviceUpdate) (DeviceRecord, bool) {
	if u.ID == "" {
		return DeviceRecord{}, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	devices := r.devices.Load()
	prev, seen := devices.Get(u.ID)

	// Entries are replaced, never mutated, so concurrent readers see whole records.
	next := &deviceEntry{record: DeviceRecord{ID: u.ID}}
	if seen {
		next.record = prev.record
	} else {
		r.deviceOrder.Set(u.ID, struct{}{})
	}
	if u.NameUpdated {
		name := u.Name
		next.record.Name = &name
	}
	if u.IsConnectableUpdated {
		connectable := u.IsConnectable
		next.record.IsConnectable = &connectable
	}
	next.qualified = r.qualifies(next.record)
	devices.Set(u.ID, next)

	transition := next.qualified && (!seen || !prev.qualified)
	if transition {
		r.logger.WithFields(logrus.Fields{
			"id":   u.ID,
			"name": next.record.NameOrEmpty(),
		}).Debug("Device qualifies")
	}
	return next.record, transition
}

func (r *Registry) qualifies(d DeviceRecord) bool {
	name := d.NameOrEmpty()
	if name == "" || !d.Connectable() {
		return false
	}
	return adapter.ContainsFold(name, r.filter.DeviceName)
}

// Qualifies reports whether the device is named, connectable and matches the name filter.
func (r *Registry) Qualifies(id string) bool {
	e, ok := r.devices.Load().Get(id)
	return ok && e.qualified
}

// Device returns the merged record for id.
func (r *Registry) Device(id string) (DeviceRecord, bool) {
	e, ok := r.devices.Load().Get(id)
	if !ok {
		return DeviceRecord{}, false
	}
	return e.record, true
}

// Devices returns every sighted device in first-seen order.
func (r *Registry) Devices() []DeviceRecord {
	return r.deviceSnapshot(false)
}

// QualifyingDevices returns the qualifying devices in first-seen order.
func (r *Registry) QualifyingDevices() []DeviceRecord {
	return r.deviceSnapshot(true)
}

func (r *Registry) deviceSnapshot(onlyQualifying bool) []DeviceRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	devices := r.devices.Load()
	out := make([]DeviceRecord, 0, r.deviceOrder.Len())
	for pair := r.deviceOrder.Oldest(); pair != nil; pair = pair.Next() {
		e, ok := devices.Get(pair.Key)
		if !ok || (onlyQualifying && !e.qualified) {
			continue
		}
		out = append(out, e.record)
	}
	return out
}

// ObserveService records a service. It returns true only the first time a UUID that
// passes the service filter is seen.
func (r *Registry) ObserveService(uuid string) (ServiceRecord, bool) {
	key := adapter.NormalizeUUID(uuid)
	if key == "" || !strings.Contains(key, r.serviceFilter) {
		return ServiceRecord{}, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.services.Get(key); ok {
		return ServiceRecord{}, false
	}
	rec := ServiceRecord{UUID: uuid}
	r.services.Set(key, rec)
	return rec, true
}

// Services returns the recorded services in discovery order.
func (r *Registry) Services() []ServiceRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]ServiceRecord, 0, r.services.Len())
	for pair := r.services.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// ObserveCharacteristic records a characteristic and its display name. It returns true
// only the first time a UUID that passes the characteristic filter is seen. When two
// characteristics share a display name the later one wins the name lookup.
func (r *Registry) ObserveCharacteristic(uuid, description string) (CharacteristicRecord, bool) {
	key := adapter.NormalizeUUID(uuid)
	if key == "" || !strings.Contains(key, r.charFilter) {
		return CharacteristicRecord{}, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.characteristics.Get(key); ok {
		return CharacteristicRecord{}, false
	}

	rec := CharacteristicRecord{UUID: uuid, DisplayName: displayName(uuid, description)}
	r.characteristics.Set(key, rec)
	if prev, clobbered := r.names.Set(rec.DisplayName, uuid); clobbered {
		r.logger.WithFields(logrus.Fields{
			"name":     rec.DisplayName,
			"previous": prev,
			"uuid":     uuid,
		}).Warn("Characteristic display name reused, lookup now resolves to the latest")
	}
	return rec, true
}

func displayName(uuid, description string) string {
	if description == "" || description == adapter.UserDescriptionPlaceholder {
		return uuid
	}
	return description
}

// Characteristics returns the recorded characteristics in discovery order.
func (r *Registry) Characteristics() []CharacteristicRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]CharacteristicRecord, 0, r.characteristics.Len())
	for pair := r.characteristics.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// ResolveCharacteristic maps a display name, or a known UUID, to the characteristic's
// addressing UUID.
func (r *Registry) ResolveCharacteristic(name string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if uuid, ok := r.names.Get(name); ok {
		return uuid, true
	}
	if rec, ok := r.characteristics.Get(adapter.NormalizeUUID(name)); ok {
		return rec.UUID, true
	}
	return "", false
}
