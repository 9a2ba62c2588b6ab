package connector_test

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/srg/gripsense/internal/adapter"
	"github.com/srg/gripsense/internal/adapter/adaptertest"
	"github.com/srg/gripsense/internal/connector"
	"github.com/srg/gripsense/internal/discovery"
	"github.com/srg/gripsense/internal/frame"
	"github.com/srg/gripsense/internal/scan"
	"github.com/srg/gripsense/internal/telemetry"
	"github.com/srg/gripsense/pkg/config"
	"github.com/srgg/testify/depend"
	"github.com/stretchr/testify/suite"
)

const (
	gripID      = "AA"
	serviceUUID = "00001111-0000-1000-8000-00805f9b34fb"
	dataUUID    = "00003004-0000-1000-8000-00805f9b34fb"
)

type recorder struct {
	devices         []discovery.DeviceRecord
	services        []discovery.ServiceRecord
	characteristics []discovery.CharacteristicRecord
	finished        []discovery.Kind
	errs            []error
}

func (r *recorder) handlers() connector.Handlers {
	return connector.Handlers{
		Device:         func(d discovery.DeviceRecord) { r.devices = append(r.devices, d) },
		Service:        func(s discovery.ServiceRecord) { r.services = append(r.services, s) },
		Characteristic: func(c discovery.CharacteristicRecord) { r.characteristics = append(r.characteristics, c) },
		ScanFinished:   func(k discovery.Kind) { r.finished = append(r.finished, k) },
		Error:          func(err error) { r.errs = append(r.errs, err) },
	}
}

type ConnectorTestSuite struct {
	suite.Suite
	fake *adaptertest.Fake
	conn *connector.Connector
	rec  *recorder
}

func (s *ConnectorTestSuite) SetupTest() {
	s.fake = adaptertest.New()
	s.conn = connector.New(s.fake, *config.DefaultConfig(), nil)
	s.rec = &recorder{}
	s.conn.SetHandlers(s.rec.handlers())
}

func sensorFrame(timestamp uint16) adapter.RawFrame {
	buf := make([]byte, frame.FrameSize)
	binary.LittleEndian.PutUint16(buf, timestamp)
	binary.LittleEndian.PutUint16(buf[2:], 20)
	return adapter.RawFrame{Data: buf, DeviceID: gripID, ServiceUUID: serviceUUID, CharacteristicUUID: dataUUID}
}

func (s *ConnectorTestSuite) TestEndToEnd() {
	// GOAL: Verify the full flow from device discovery to decoded readings
	//
	// TEST SCENARIO: scan finds the grip and a non-matching device → services → characteristics
	//                → subscribe by display name → two distinct frames and one repeat

	s.Require().NoError(s.conn.StartDeviceScan())
	s.fake.QueueDevices(
		adapter.DeviceUpdate{ID: gripID, Name: "SensoGrip", NameUpdated: true, IsConnectable: true, IsConnectableUpdated: true},
		adapter.DeviceUpdate{ID: "BB", Name: "Heart Rate", NameUpdated: true, IsConnectable: true, IsConnectableUpdated: true},
	).FinishDevices()
	s.conn.Tick()

	s.Require().Len(s.rec.devices, 1, "default profile MUST keep only sensor grips")
	s.Equal(gripID, s.rec.devices[0].ID)
	s.Equal([]discovery.Kind{discovery.KindDevice}, s.rec.finished)
	s.Equal(scan.Finished, s.conn.ScanState(discovery.KindDevice))

	s.Require().NoError(s.conn.StartServiceScan(gripID))
	s.fake.QueueServices(serviceUUID).FinishServices()
	s.conn.Tick()
	s.Require().Len(s.rec.services, 1)

	s.Require().NoError(s.conn.StartCharacteristicScan(gripID, serviceUUID))
	s.fake.QueueCharacteristics(adapter.Characteristic{UUID: dataUUID, UserDescription: "Sensor Data"}).FinishCharacteristics()
	s.conn.Tick()
	s.Require().Len(s.rec.characteristics, 1)
	s.Equal("Sensor Data", s.rec.characteristics[0].DisplayName)

	var readings []frame.SensorReading
	s.conn.OnReading(func(r frame.SensorReading) { readings = append(readings, r) })

	s.Require().NoError(s.conn.Subscribe(gripID, serviceUUID, "Sensor Data"))
	s.Contains(s.fake.Calls(), "Subscribe:AA/"+serviceUUID+"/"+dataUUID, "display name MUST resolve to the uuid")

	s.fake.QueueFrames(sensorFrame(1), sensorFrame(1), sensorFrame(2))
	s.conn.Tick()

	s.Require().Len(readings, 2)
	s.Equal(uint16(1), readings[0].Timestamp)
	s.Equal(uint16(2), readings[1].Timestamp)
	last, ok := s.conn.LastReading()
	s.True(ok)
	s.Equal(uint16(2), last.Timestamp)
	s.Empty(s.rec.errs)
}

func (s *ConnectorTestSuite) TestSubscribeProfile_UsesFixedUUIDs() {
	s.Require().NoError(s.conn.SubscribeProfile(gripID))
	s.True(s.conn.Subscribed())
	s.Equal([]string{"Subscribe:AA/" + serviceUUID + "/" + dataUUID}, s.fake.Calls())

	err := s.conn.SubscribeProfile(gripID)
	s.True(errors.Is(err, telemetry.ErrAlreadySubscribed))

	s.Require().NoError(s.conn.Unsubscribe())
	s.False(s.conn.Subscribed())
}

func (s *ConnectorTestSuite) TestSubscribe_Rejected() {
	s.fake.SetSubscribeResult(false)
	err := s.conn.SubscribeProfile(gripID)
	s.ErrorIs(err, telemetry.ErrSubscribeFailed)
	s.False(s.conn.Subscribed())
}

func (s *ConnectorTestSuite) TestTick_ReportsDecodeErrors() {
	s.Require().NoError(s.conn.SubscribeProfile(gripID))
	bad := sensorFrame(1)
	bad.Data = bad.Data[:10]
	s.fake.QueueFrames(bad, sensorFrame(1))

	var readings int
	s.conn.OnReading(func(frame.SensorReading) { readings++ })
	s.conn.Tick()

	s.Equal(1, readings, "stream MUST continue after a malformed frame")
	s.Require().Len(s.rec.errs, 1)
	s.ErrorIs(s.rec.errs[0], frame.ErrTooShort)
}

func (s *ConnectorTestSuite) TestTick_ReportsAdapterErrorOnce() {
	s.fake.SetLastError("connection timed out")
	s.conn.Tick()
	s.conn.Tick()

	s.Require().Len(s.rec.errs, 1, "same adapter error MUST be reported once")
	var adapterErr *connector.AdapterError
	s.Require().True(errors.As(s.rec.errs[0], &adapterErr))
	s.Equal("connection timed out", adapterErr.Msg)

	s.fake.SetLastError("device unreachable")
	s.conn.Tick()
	s.Len(s.rec.errs, 2)
}

func (s *ConnectorTestSuite) TestStartDeviceScan_WhileScanning() {
	s.Require().NoError(s.conn.StartDeviceScan())
	err := s.conn.StartDeviceScan()
	s.True(errors.Is(err, scan.ErrAlreadyScanning))

	s.Require().NoError(s.conn.StopDeviceScan())
	s.NoError(s.conn.StartDeviceScan(), "stopped scan MUST restart")
}

func (s *ConnectorTestSuite) TestWrite() {
	s.Require().NoError(s.conn.Write(gripID, serviceUUID, dataUUID, []byte("calibrate")))
	sent := s.fake.Sent()
	s.Require().Len(sent, 1)
	s.Equal([]byte("calibrate"), sent[0].Data)
	s.Equal(dataUUID, sent[0].CharacteristicUUID)

	s.Require().NoError(s.conn.Write(gripID, serviceUUID, dataUUID, make([]byte, adapter.MaxPayload)), "payload of exactly MaxPayload MUST be accepted")

	err := s.conn.Write(gripID, serviceUUID, dataUUID, make([]byte, adapter.MaxPayload+1))
	s.ErrorIs(err, connector.ErrPayloadTooLarge)
	s.Len(s.fake.Sent(), 2, "oversized payload MUST NOT reach the adapter")

	s.fake.SetSendResult(false).SetLastError("write rejected")
	err = s.conn.Write(gripID, serviceUUID, dataUUID, []byte{1})
	s.ErrorIs(err, connector.ErrSendFailed)
	s.Contains(err.Error(), "write rejected")
}

func (s *ConnectorTestSuite) TestQuit() {
	s.Require().NoError(s.conn.StartDeviceScan())
	s.Require().NoError(s.conn.SubscribeProfile(gripID))

	s.conn.Quit()
	s.conn.Quit()

	s.Equal(1, s.fake.CallCount("Quit"), "adapter MUST be shut down exactly once")
	s.Equal(1, s.fake.CallCount("StopDeviceScan"), "running scan MUST be stopped on quit")
	s.False(s.conn.Subscribed())

	before := len(s.fake.Calls())
	s.ErrorIs(s.conn.StartDeviceScan(), connector.ErrAdapterClosed)
	s.ErrorIs(s.conn.StartServiceScan(gripID), connector.ErrAdapterClosed)
	s.ErrorIs(s.conn.StartCharacteristicScan(gripID, serviceUUID), connector.ErrAdapterClosed)
	s.ErrorIs(s.conn.SubscribeProfile(gripID), connector.ErrAdapterClosed)
	s.ErrorIs(s.conn.Write(gripID, serviceUUID, dataUUID, []byte{1}), connector.ErrAdapterClosed)
	s.ErrorIs(s.conn.Unsubscribe(), connector.ErrAdapterClosed)
	s.conn.Tick()
	s.Len(s.fake.Calls(), before, "closed connector MUST NOT reach the adapter")
}

func (s *ConnectorTestSuite) TestRun_UntilCancelled() {
	s.Require().NoError(s.conn.StartDeviceScan())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.conn.Run(ctx) }()

	s.fake.QueueDevices(adapter.DeviceUpdate{ID: gripID, Name: "senso", NameUpdated: true, IsConnectable: true, IsConnectableUpdated: true})
	s.Eventually(func() bool { return s.conn.Registry().Qualifies(gripID) }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		s.ErrorIs(err, context.Canceled)
	case <-time.After(time.Second):
		s.Fail("Run did not return after cancel")
	}
}

func (s *ConnectorTestSuite) TestRun_ReturnsAfterQuit() {
	done := make(chan error, 1)
	go func() { done <- s.conn.Run(context.Background()) }()

	s.conn.Quit()
	select {
	case err := <-done:
		s.NoError(err)
	case <-time.After(time.Second):
		s.Fail("Run did not return after quit")
	}
}

func TestConnectorTestSuite(t *testing.T) {
	depend.RunSuite(t, new(ConnectorTestSuite))
}
