package discovery_test

import (
	"testing"

	"github.com/srg/gripsense/internal/adapter"
	"github.com/srg/gripsense/internal/discovery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type RegistryTestSuite struct {
	suite.Suite
	reg *discovery.Registry
}

func (s *RegistryTestSuite) SetupTest() {
	s.reg = discovery.NewRegistry(discovery.Filter{}, nil)
}

func named(id, name string) adapter.DeviceUpdate {
	return adapter.DeviceUpdate{ID: id, Name: name, NameUpdated: true}
}

func connectable(id string, v bool) adapter.DeviceUpdate {
	return adapter.DeviceUpdate{ID: id, IsConnectable: v, IsConnectableUpdated: true}
}

func (s *RegistryTestSuite) TestObserveDevice_MergesPartialUpdates() {
	// GOAL: Verify fields revealed by separate updates accumulate into one record
	//
	// TEST SCENARIO: name arrives first, connectable later → qualifies only after both

	rec, surfaced := s.reg.ObserveDevice(named("AA", "SensoGrip"))
	s.False(surfaced, "device without connectable flag MUST NOT qualify")
	s.Require().NotNil(rec.Name)
	s.Nil(rec.IsConnectable)
	s.False(s.reg.Qualifies("AA"))

	rec, surfaced = s.reg.ObserveDevice(connectable("AA", true))
	s.True(surfaced, "transition to qualifying MUST be surfaced")
	s.Equal("SensoGrip", rec.NameOrEmpty(), "name MUST survive an update that does not carry it")
	s.True(rec.Connectable())
	s.True(s.reg.Qualifies("AA"))
}

func (s *RegistryTestSuite) TestObserveDevice_RedeliveryIsIdempotent() {
	u := adapter.DeviceUpdate{ID: "AA", Name: "Grip", NameUpdated: true, IsConnectable: true, IsConnectableUpdated: true}

	_, first := s.reg.ObserveDevice(u)
	_, second := s.reg.ObserveDevice(u)
	_, third := s.reg.ObserveDevice(named("AA", "Grip"))

	s.True(first)
	s.False(second, "identical update MUST NOT surface the device twice")
	s.False(third)
	s.Len(s.reg.Devices(), 1)
}

func (s *RegistryTestSuite) TestObserveDevice_EmptyNameNeverQualifies() {
	for _, c := range []bool{true, false} {
		id := "dev"
		if c {
			id = "dev-connectable"
		}
		_, surfaced := s.reg.ObserveDevice(adapter.DeviceUpdate{
			ID: id, Name: "", NameUpdated: true, IsConnectable: c, IsConnectableUpdated: true,
		})
		s.False(surfaced)
		s.False(s.reg.Qualifies(id))
	}
}

func (s *RegistryTestSuite) TestObserveDevice_RequalifiesAfterLosingQualification() {
	s.reg.ObserveDevice(named("AA", "Grip"))
	_, surfaced := s.reg.ObserveDevice(connectable("AA", true))
	s.True(surfaced)

	_, surfaced = s.reg.ObserveDevice(connectable("AA", false))
	s.False(surfaced)
	s.False(s.reg.Qualifies("AA"))

	_, surfaced = s.reg.ObserveDevice(connectable("AA", true))
	s.True(surfaced, "a new qualifying transition MUST be surfaced again")
}

func (s *RegistryTestSuite) TestObserveDevice_NameFilter() {
	reg := discovery.NewRegistry(discovery.Filter{DeviceName: "senso"}, nil)

	reg.ObserveDevice(adapter.DeviceUpdate{ID: "1", Name: "SENSOgrip", NameUpdated: true, IsConnectable: true, IsConnectableUpdated: true})
	reg.ObserveDevice(adapter.DeviceUpdate{ID: "2", Name: "Heart Rate", NameUpdated: true, IsConnectable: true, IsConnectableUpdated: true})

	s.True(reg.Qualifies("1"), "name filter MUST match case-insensitively")
	s.False(reg.Qualifies("2"))

	q := reg.QualifyingDevices()
	s.Require().Len(q, 1)
	s.Equal("1", q[0].ID)
	s.Len(reg.Devices(), 2)
}

func (s *RegistryTestSuite) TestObserveDevice_IgnoresEmptyID() {
	_, surfaced := s.reg.ObserveDevice(adapter.DeviceUpdate{Name: "x", NameUpdated: true})
	s.False(surfaced)
	s.Empty(s.reg.Devices())
}

func (s *RegistryTestSuite) TestReset_DiscardsOnlyThatKind() {
	s.reg.ObserveDevice(named("AA", "Grip"))
	s.reg.ObserveService("1111")
	s.reg.ObserveCharacteristic("3004", "Data")

	s.reg.Reset(discovery.KindDevice)
	s.Empty(s.reg.Devices())
	s.Len(s.reg.Services(), 1)
	s.Len(s.reg.Characteristics(), 1)

	_, ok := s.reg.Device("AA")
	s.False(ok)

	s.reg.Reset(discovery.KindCharacteristic)
	s.Empty(s.reg.Characteristics())
	_, ok = s.reg.ResolveCharacteristic("Data")
	s.False(ok)

	s.reg.Reset(discovery.KindService)
	s.Empty(s.reg.Services())
}

func (s *RegistryTestSuite) TestObserveService_OncePerUUID() {
	rec, ok := s.reg.ObserveService("{00001111-0000-1000-8000-00805F9B34FB}")
	s.True(ok)
	s.Equal("{00001111-0000-1000-8000-00805F9B34FB}", rec.UUID, "record MUST keep the adapter's addressing form")

	_, ok = s.reg.ObserveService("00001111-0000-1000-8000-00805f9b34fb")
	s.False(ok, "same uuid in another notation MUST NOT be surfaced twice")

	_, ok = s.reg.ObserveService("")
	s.False(ok)
	s.Len(s.reg.Services(), 1)
}

func (s *RegistryTestSuite) TestObserveService_Filter() {
	reg := discovery.NewRegistry(discovery.Filter{ServiceUUID: "00001111"}, nil)

	_, ok := reg.ObserveService("0000180f-0000-1000-8000-00805f9b34fb")
	s.False(ok)
	_, ok = reg.ObserveService("00001111-0000-1000-8000-00805f9b34fb")
	s.True(ok)
}

func (s *RegistryTestSuite) TestUUIDFilters_IgnoreDashesAndCase() {
	// GOAL: Verify uuid filters match regardless of how the filter and the uuid are written
	//
	// TEST SCENARIO: dashed, upper-case and full-uuid filters → matching uuids in dashed and plain form pass

	tests := []struct {
		name   string
		filter string
		uuid   string
		want   bool
	}{
		{"dashed prefix", "00001111-0000", "00001111-0000-1000-8000-00805f9b34fb", true},
		{"dashed prefix against plain uuid", "00001111-0000", "0000111100001000800000805f9b34fb", true},
		{"full uuid", "00001111-0000-1000-8000-00805f9b34fb", "00001111-0000-1000-8000-00805f9b34fb", true},
		{"upper case braced", "{00001111-0000-1000-8000-00805F9B34FB}", "00001111-0000-1000-8000-00805f9b34fb", true},
		{"different uuid", "00001111-0000", "0000180f-0000-1000-8000-00805f9b34fb", false},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			svc := discovery.NewRegistry(discovery.Filter{ServiceUUID: tt.filter}, nil)
			_, ok := svc.ObserveService(tt.uuid)
			s.Equal(tt.want, ok, "service filter MUST ignore dashes, braces and case")

			chars := discovery.NewRegistry(discovery.Filter{CharacteristicUUID: tt.filter}, nil)
			_, ok = chars.ObserveCharacteristic(tt.uuid, "")
			s.Equal(tt.want, ok, "characteristic filter MUST ignore dashes, braces and case")
		})
	}
}

func (s *RegistryTestSuite) TestObserveCharacteristic_DisplayName() {
	tests := []struct {
		name        string
		uuid        string
		description string
		want        string
	}{
		{"uses description", "3004", "Sensor Data", "Sensor Data"},
		{"placeholder falls back to uuid", "3005", adapter.UserDescriptionPlaceholder, "3005"},
		{"empty falls back to uuid", "3006", "", "3006"},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			rec, ok := s.reg.ObserveCharacteristic(tt.uuid, tt.description)
			s.True(ok)
			s.Equal(tt.want, rec.DisplayName)

			uuid, found := s.reg.ResolveCharacteristic(tt.want)
			s.True(found)
			s.Equal(tt.uuid, uuid)
		})
	}
}

func (s *RegistryTestSuite) TestObserveCharacteristic_DuplicateNameLastWriteWins() {
	_, ok := s.reg.ObserveCharacteristic("3004", "Data")
	s.True(ok)
	_, ok = s.reg.ObserveCharacteristic("3005", "Data")
	s.True(ok, "distinct uuid MUST be recorded even when its name collides")

	uuid, found := s.reg.ResolveCharacteristic("Data")
	s.True(found)
	s.Equal("3005", uuid)

	uuid, found = s.reg.ResolveCharacteristic("3004")
	s.True(found, "known uuid MUST still resolve directly")
	s.Equal("3004", uuid)

	_, ok = s.reg.ObserveCharacteristic("3004", "Other")
	s.False(ok, "re-delivered uuid MUST NOT be surfaced again")
	s.Len(s.reg.Characteristics(), 2)
}

func TestRegistryTestSuite(t *testing.T) {
	suite.Run(t, new(RegistryTestSuite))
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "device", discovery.KindDevice.String())
	assert.Equal(t, "service", discovery.KindService.String())
	assert.Equal(t, "characteristic", discovery.KindCharacteristic.String())
	assert.Equal(t, "Kind(7)", discovery.Kind(7).String())
}

func TestDeviceRecord_Accessors(t *testing.T) {
	var d discovery.DeviceRecord
	assert.Equal(t, "", d.NameOrEmpty())
	assert.False(t, d.Connectable())

	name, yes := "n", true
	d = discovery.DeviceRecord{ID: "x", Name: &name, IsConnectable: &yes}
	require.True(t, d.Connectable())
	assert.Equal(t, "n", d.NameOrEmpty())
}
