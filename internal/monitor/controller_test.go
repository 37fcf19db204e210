//go:build test

package monitor_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/srg/pulse/internal/device"
	"github.com/srg/pulse/internal/heartrate"
	"github.com/srg/pulse/internal/monitor"
	"github.com/srg/pulse/internal/testutils"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

var (
	testHandle = device.DeviceHandle{Address: "AA:BB:CC:DD:EE:FF", Name: "Garmin HRM-Dual"}
	sessionT0  = time.Date(2025, 3, 14, 7, 30, 0, 0, time.UTC)
)

type ControllerTestSuite struct {
	suite.Suite

	transport  *MockTransport
	channel    *fakeChannel
	char       fakeChar
	controller *monitor.Controller
	events     *eventRecorder

	notify      device.NotificationHandler
	dropLink    func()
	dropCancels int
}

func TestControllerTestSuite(t *testing.T) {
	suite.Run(t, new(ControllerTestSuite))
}

func (s *ControllerTestSuite) SetupTest() {
	s.transport = new(MockTransport)
	s.channel = &fakeChannel{handle: testHandle}
	s.char = fakeChar{}
	s.events = &eventRecorder{}
	s.notify = nil
	s.dropLink = nil
	s.dropCancels = 0

	// one minute per measurement
	helper := testutils.NewTestHelper(s.T())
	s.controller = monitor.New(s.transport,
		monitor.WithLogger(helper.Logger),
		monitor.WithClock(testutils.StepClock(sessionT0, time.Minute)),
	)

	s.controller.OnConnect(func(name string) {
		s.events.mu.Lock()
		defer s.events.mu.Unlock()
		s.events.connects = append(s.events.connects, name)
	})
	s.controller.OnDisconnect(func() {
		s.events.mu.Lock()
		defer s.events.mu.Unlock()
		s.events.disconnects++
	})
	s.controller.OnHeartRateUpdate(func(bpm int) {
		s.events.mu.Lock()
		defer s.events.mu.Unlock()
		s.events.bpms = append(s.events.bpms, bpm)
	})
	s.controller.OnError(func(message string) {
		s.events.mu.Lock()
		defer s.events.mu.Unlock()
		s.events.errors = append(s.events.errors, message)
	})
}

func (s *ControllerTestSuite) TearDownTest() {
	s.transport.AssertExpectations(s.T())
}

// expectHappyConnect wires every transport step of a successful Connect
func (s *ControllerTestSuite) expectHappyConnect() {
	s.transport.On("IsAvailable").Return(true).Once()
	s.transport.On("RequestDevice", mock.Anything, device.DefaultFilter()).Return(testHandle, nil).Once()
	s.transport.On("Open", mock.Anything, testHandle).Return(s.channel, nil).Once()
	s.transport.On("ResolveCharacteristic", mock.Anything, s.channel, "180d", "2a37").Return(s.char, nil).Once()
	s.transport.On("Subscribe", mock.Anything, s.char, mock.Anything).
		Run(func(args mock.Arguments) {
			s.notify = args.Get(2).(device.NotificationHandler)
		}).
		Return(nil).Once()
	s.transport.On("OnLinkDropped", s.channel, mock.Anything).
		Run(func(args mock.Arguments) {
			s.dropLink = args.Get(1).(func())
		}).
		Return(func() { s.dropCancels++ }).Once()
}

func (s *ControllerTestSuite) connect() {
	s.expectHappyConnect()
	identity, err := s.controller.Connect(context.Background())
	s.Require().NoError(err, "connect MUST succeed")
	s.Require().Equal("Garmin HRM-Dual", identity.Name)
	s.Require().Equal(monitor.Connected, s.controller.State())
	s.Require().NotNil(s.notify, "notification handler MUST be registered")
	s.Require().NotNil(s.dropLink, "link drop handler MUST be registered")
}

func (s *ControllerTestSuite) TestConnect() {
	s.Run("successful connect fires onConnect", func() {
		// GOAL: Verify the four connection steps run in order and the session becomes Connected
		//
		// TEST SCENARIO: Transport accepts every step → Connected → onConnect(name) → status reports device

		s.connect()

		s.Assert().Equal([]string{"Garmin HRM-Dual"}, s.events.Connects(), "onConnect MUST fire once with device name")
		s.Assert().Empty(s.events.Errors(), "no error MUST be reported")

		identity, ok := s.controller.Device()
		s.Assert().True(ok)
		s.Assert().Equal(testHandle, identity.Handle)

		status := s.controller.Status()
		s.Assert().True(status.IsConnected)
		s.Require().NotNil(status.DeviceName)
		s.Assert().Equal("Garmin HRM-Dual", *status.DeviceName)
		s.Assert().Empty(status.Measurements)
	})
}

func (s *ControllerTestSuite) TestConnect_NameFromChannel() {
	// GOAL: Verify a name resolved while opening the channel wins over the advertised one
	//
	// TEST SCENARIO: Device selected by address only → channel knows GAP name → identity uses it

	anonymous := device.DeviceHandle{Address: "11:22:33:44:55:66"}
	ch := &fakeChannel{handle: device.DeviceHandle{Address: anonymous.Address, Name: "Sw 81"}}

	s.transport.On("IsAvailable").Return(true)
	s.transport.On("RequestDevice", mock.Anything, mock.Anything).Return(anonymous, nil)
	s.transport.On("Open", mock.Anything, anonymous).Return(ch, nil)
	s.transport.On("ResolveCharacteristic", mock.Anything, ch, "180d", "2a37").Return(s.char, nil)
	s.transport.On("Subscribe", mock.Anything, s.char, mock.Anything).Return(nil)
	s.transport.On("OnLinkDropped", ch, mock.Anything).Return(func() {})

	identity, err := s.controller.Connect(context.Background())

	s.Require().NoError(err)
	s.Assert().Equal("Sw 81", identity.Name, "identity MUST use channel name")
	s.Assert().Equal([]string{"Sw 81"}, s.events.Connects())
}

func (s *ControllerTestSuite) TestConnect_CapabilityUnavailable() {
	// GOAL: Verify a missing transport fails fast without touching the radio
	//
	// TEST SCENARIO: IsAvailable false → ErrCapabilityUnavailable → Disconnected → onError

	s.transport.On("IsAvailable").Return(false).Once()

	_, err := s.controller.Connect(context.Background())

	s.Assert().ErrorIs(err, monitor.ErrCapabilityUnavailable, "error MUST be ErrCapabilityUnavailable")
	s.Assert().Equal(monitor.Disconnected, s.controller.State(), "state MUST return to Disconnected")
	s.Assert().Equal([]string{"bluetooth capability unavailable"}, s.events.Errors(), "onError MUST fire once")
	s.Assert().Empty(s.events.Connects())
	s.transport.AssertNotCalled(s.T(), "RequestDevice", mock.Anything, mock.Anything)
}

func (s *ControllerTestSuite) TestConnect_StageFailures() {
	// GOAL: Verify any failing step aborts the whole attempt and reports its stage
	//
	// TEST SCENARIO: Each step fails in turn → ConnectionFailedError{stage} → Disconnected → opened channel closed

	boom := errors.New("boom")

	tests := []struct {
		name          string
		stage         monitor.Stage
		setup         func()
		expectClosing bool
	}{
		{
			name:  "request device",
			stage: monitor.StageRequestDevice,
			setup: func() {
				s.transport.On("RequestDevice", mock.Anything, mock.Anything).Return(device.DeviceHandle{}, boom).Once()
			},
		},
		{
			name:  "open channel",
			stage: monitor.StageOpen,
			setup: func() {
				s.transport.On("RequestDevice", mock.Anything, mock.Anything).Return(testHandle, nil).Once()
				s.transport.On("Open", mock.Anything, testHandle).Return(nil, boom).Once()
			},
		},
		{
			name:  "resolve characteristic",
			stage: monitor.StageResolve,
			setup: func() {
				s.transport.On("RequestDevice", mock.Anything, mock.Anything).Return(testHandle, nil).Once()
				s.transport.On("Open", mock.Anything, testHandle).Return(s.channel, nil).Once()
				s.transport.On("ResolveCharacteristic", mock.Anything, s.channel, "180d", "2a37").Return(nil, boom).Once()
			},
			expectClosing: true,
		},
		{
			name:  "subscribe",
			stage: monitor.StageSubscribe,
			setup: func() {
				s.transport.On("RequestDevice", mock.Anything, mock.Anything).Return(testHandle, nil).Once()
				s.transport.On("Open", mock.Anything, testHandle).Return(s.channel, nil).Once()
				s.transport.On("ResolveCharacteristic", mock.Anything, s.channel, "180d", "2a37").Return(s.char, nil).Once()
				s.transport.On("Subscribe", mock.Anything, s.char, mock.Anything).Return(boom).Once()
				s.transport.On("Unsubscribe", mock.Anything, s.char).Return(nil).Once()
			},
			expectClosing: true,
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.SetupTest()
			s.transport.On("IsAvailable").Return(true).Once()
			tt.setup()
			if tt.expectClosing {
				s.transport.On("Close", mock.Anything, s.channel).Return(nil).Once()
			}

			_, err := s.controller.Connect(context.Background())

			var cfe *monitor.ConnectionFailedError
			s.Require().ErrorAs(err, &cfe, "error MUST be ConnectionFailedError")
			s.Assert().Equal(tt.stage, cfe.Stage, "stage MUST identify the failing step")
			s.Assert().ErrorIs(err, boom, "cause MUST be preserved")
			s.Assert().ErrorIs(err, monitor.ErrConnectionFailed)
			s.Assert().Equal(monitor.Disconnected, s.controller.State(), "state MUST return to Disconnected")
			s.Assert().Len(s.events.Errors(), 1, "onError MUST fire once")
			s.Assert().Contains(s.events.Errors()[0], string(tt.stage))
			s.Assert().Empty(s.events.Connects(), "onConnect MUST not fire")

			status := s.controller.Status()
			s.Assert().False(status.IsConnected)
			s.Assert().Nil(status.DeviceName, "no partial identity MUST be retained")

			s.transport.AssertExpectations(s.T())
		})
	}
}

func (s *ControllerTestSuite) TestConnect_FramesDuringSubscribe() {
	s.Run("failed subscribe discards early frames", func() {
		// GOAL: Verify frames delivered before Subscribe fails never reach the session or the listeners
		//
		// TEST SCENARIO: Subscribe delivers 70 bpm then fails → ConnectionFailedError → no measurement, no onHeartRate → Unsubscribe + Close

		s.transport.On("IsAvailable").Return(true).Once()
		s.transport.On("RequestDevice", mock.Anything, mock.Anything).Return(testHandle, nil).Once()
		s.transport.On("Open", mock.Anything, testHandle).Return(s.channel, nil).Once()
		s.transport.On("ResolveCharacteristic", mock.Anything, s.channel, "180d", "2a37").Return(s.char, nil).Once()
		s.transport.On("Subscribe", mock.Anything, s.char, mock.Anything).
			Run(func(args mock.Arguments) {
				s.notify = args.Get(2).(device.NotificationHandler)
				s.notify([]byte{0x00, 0x46})
			}).
			Return(errors.New("cccd write failed")).Once()
		s.transport.On("Unsubscribe", mock.Anything, s.char).Return(errors.New("not subscribed")).Once()
		s.transport.On("Close", mock.Anything, s.channel).Return(nil).Once()

		_, err := s.controller.Connect(context.Background())

		s.Require().ErrorIs(err, monitor.ErrConnectionFailed)
		s.Assert().Equal(monitor.Disconnected, s.controller.State())
		s.Assert().Empty(s.controller.Status().Measurements, "early frame MUST NOT be recorded")
		s.Assert().Empty(s.events.BPMs(), "onHeartRate MUST NOT fire for a failed attempt")
		s.Assert().Len(s.events.Errors(), 1, "only the connection failure MUST be reported")

		s.notify([]byte{0x00, 0x48})
		s.Assert().Empty(s.controller.Status().Measurements, "late frame from the failed attempt MUST be ignored")
	})

	s.Run("successful subscribe commits early frames after onConnect", func() {
		// GOAL: Verify frames delivered during Subscribe are kept and reported once the session is Connected
		//
		// TEST SCENARIO: Subscribe delivers 70 bpm and a malformed frame → Connected → onConnect, then onHeartRate(70), then onError

		s.SetupTest()

		var mu sync.Mutex
		var order []string
		record := func(e string) {
			mu.Lock()
			defer mu.Unlock()
			order = append(order, e)
		}
		s.controller.OnConnect(func(name string) { record("connect " + name) })
		s.controller.OnHeartRateUpdate(func(bpm int) { record("bpm") })
		s.controller.OnError(func(message string) { record("error " + message) })

		s.transport.On("IsAvailable").Return(true).Once()
		s.transport.On("RequestDevice", mock.Anything, mock.Anything).Return(testHandle, nil).Once()
		s.transport.On("Open", mock.Anything, testHandle).Return(s.channel, nil).Once()
		s.transport.On("ResolveCharacteristic", mock.Anything, s.channel, "180d", "2a37").Return(s.char, nil).Once()
		s.transport.On("Subscribe", mock.Anything, s.char, mock.Anything).
			Run(func(args mock.Arguments) {
				s.notify = args.Get(2).(device.NotificationHandler)
				s.notify([]byte{0x00, 0x46})
				s.notify([]byte{0x01, 0x50})
			}).
			Return(nil).Once()
		s.transport.On("OnLinkDropped", s.channel, mock.Anything).Return(func() {}).Once()

		_, err := s.controller.Connect(context.Background())
		s.Require().NoError(err)

		measurements := s.controller.Status().Measurements
		s.Require().Len(measurements, 1, "early frame MUST be committed")
		s.Assert().Equal(uint16(70), measurements[0].BPM)

		s.notify([]byte{0x00, 0x48})

		mu.Lock()
		defer mu.Unlock()
		s.Require().Len(order, 4)
		s.Assert().Equal("connect Garmin HRM-Dual", order[0], "onConnect MUST precede every held frame")
		s.Assert().Equal("bpm", order[1])
		s.Assert().Contains(order[2], "error malformed heart rate frame")
		s.Assert().Equal("bpm", order[3], "live frame MUST follow the held ones")
	})
}

func (s *ControllerTestSuite) TestConnect_Reentrant() {
	s.Run("while connecting", func() {
		// GOAL: Verify a second Connect during an attempt is rejected without side effects
		//
		// TEST SCENARIO: First Connect blocks in RequestDevice → second Connect → ErrAlreadyConnecting → first completes

		entered := make(chan struct{})
		release := make(chan struct{})

		s.transport.On("IsAvailable").Return(true).Once()
		s.transport.On("RequestDevice", mock.Anything, mock.Anything).
			Run(func(mock.Arguments) {
				close(entered)
				<-release
			}).
			Return(testHandle, nil).Once()
		s.transport.On("Open", mock.Anything, testHandle).Return(s.channel, nil).Once()
		s.transport.On("ResolveCharacteristic", mock.Anything, s.channel, "180d", "2a37").Return(s.char, nil).Once()
		s.transport.On("Subscribe", mock.Anything, s.char, mock.Anything).Return(nil).Once()
		s.transport.On("OnLinkDropped", s.channel, mock.Anything).Return(func() {}).Once()

		result := make(chan error, 1)
		go func() {
			_, err := s.controller.Connect(context.Background())
			result <- err
		}()

		<-entered
		s.Assert().Equal(monitor.Connecting, s.controller.State())

		_, err := s.controller.Connect(context.Background())
		s.Assert().ErrorIs(err, monitor.ErrAlreadyConnecting, "second Connect MUST be rejected")
		s.Assert().Equal(monitor.Connecting, s.controller.State(), "state MUST be unaffected")

		close(release)
		s.Require().NoError(<-result, "first Connect MUST still succeed")
		s.Assert().Equal(monitor.Connected, s.controller.State())
		s.transport.AssertNumberOfCalls(s.T(), "RequestDevice", 1)
		s.Assert().Empty(s.events.Errors(), "rejection MUST not be reported as an error event")
	})

	s.Run("while connected", func() {
		// GOAL: Verify Connect on an active session is rejected and the session is untouched
		//
		// TEST SCENARIO: Connected with one measurement → Connect → ErrAlreadyConnected → measurement kept

		s.SetupTest()
		s.connect()
		s.notify([]byte{0x00, 0x46})

		_, err := s.controller.Connect(context.Background())

		s.Assert().ErrorIs(err, monitor.ErrAlreadyConnected)
		s.Assert().Equal(monitor.Connected, s.controller.State())
		s.Assert().Len(s.controller.Status().Measurements, 1, "session MUST be unaffected")
		s.transport.AssertNumberOfCalls(s.T(), "IsAvailable", 1)
	})
}

func (s *ControllerTestSuite) TestNotifications() {
	s.Run("mixed valid and malformed frames", func() {
		// GOAL: Verify malformed frames are reported but never break the session
		//
		// TEST SCENARIO: [00 46], [01], [00 50] → two measurements (70, 80) → one onError → still Connected

		s.connect()

		s.notify([]byte{0x00, 0x46})
		s.notify([]byte{0x01})
		s.notify([]byte{0x00, 0x50})

		status := s.controller.Status()
		s.Require().Len(status.Measurements, 2, "session MUST contain exactly two measurements")
		s.Assert().Equal(uint16(70), status.Measurements[0].BPM)
		s.Assert().Equal(uint16(80), status.Measurements[1].BPM)
		s.Assert().Equal(sessionT0, status.Measurements[0].CapturedAt)
		s.Assert().Equal(sessionT0.Add(time.Minute), status.Measurements[1].CapturedAt)
		s.Assert().Equal([]int{70, 80}, s.events.BPMs(), "onHeartRateUpdate MUST fire per valid frame")

		s.Require().Len(s.events.Errors(), 1, "onError MUST fire once for the malformed frame")
		s.Assert().Contains(s.events.Errors()[0], heartrate.ErrMalformedFrame.Error())
		s.Assert().Equal(monitor.Connected, s.controller.State(), "state MUST remain Connected")
	})

	s.Run("statistics", func() {
		// GOAL: Verify the status aggregates the session
		//
		// TEST SCENARIO: 70, 80, 90 one minute apart → avg 80, max 90, duration 2

		s.SetupTest()
		s.connect()

		s.notify([]byte{0x00, 70})
		s.notify([]byte{0x01, 90, 0x00})
		s.notify([]byte{0x00, 80})

		status := s.controller.Status()
		s.Assert().Equal(80, status.AverageHeartRate)
		s.Assert().Equal(90, status.MaxHeartRate)
		s.Assert().Equal(2, status.SessionDurationMinutes)
	})

	s.Run("handlers may call back into the controller", func() {
		// GOAL: Verify event handlers run without internal locks held
		//
		// TEST SCENARIO: onHeartRateUpdate reads Status → no deadlock → sees the new measurement

		s.SetupTest()
		s.connect()

		var seen int
		s.controller.OnHeartRateUpdate(func(int) {
			seen = len(s.controller.Status().Measurements)
		})

		s.notify([]byte{0x00, 0x48})

		s.Assert().Equal(1, seen, "handler MUST observe the appended measurement")
	})

	s.Run("FIFO under concurrent delivery", func() {
		// GOAL: Verify notifications are processed one at a time
		//
		// TEST SCENARIO: Many goroutines deliver frames → every frame appended exactly once

		s.SetupTest()
		s.connect()

		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				s.notify([]byte{0x00, 75})
			}()
		}
		wg.Wait()

		s.Assert().Len(s.controller.Status().Measurements, 50)
		s.Assert().Len(s.events.BPMs(), 50)
	})
}

func (s *ControllerTestSuite) TestLinkDropped() {
	s.Run("drop while connected", func() {
		// GOAL: Verify a transport link drop is authoritative
		//
		// TEST SCENARIO: Connected → link dropped → Disconnected → onDisconnect → later notification ignored

		s.connect()
		s.notify([]byte{0x00, 0x46})
		s.transport.On("Close", mock.Anything, s.channel).Return(nil).Once()

		s.dropLink()

		s.Assert().Equal(monitor.Disconnected, s.controller.State(), "state MUST be Disconnected")
		s.Assert().Equal(1, s.events.Disconnects(), "onDisconnect MUST fire once")
		s.Assert().Equal(1, s.dropCancels, "link drop registration MUST be cancelled")

		s.notify([]byte{0x00, 0x50})

		status := s.controller.Status()
		s.Assert().False(status.IsConnected)
		s.Assert().Nil(status.DeviceName)
		s.Assert().Len(status.Measurements, 1, "notification after drop MUST be ignored")
		s.Assert().Equal([]int{70}, s.events.BPMs())

		s.dropLink()
		s.Assert().Equal(1, s.events.Disconnects(), "repeated drop MUST be ignored")

		s.Require().NoError(s.controller.Disconnect(context.Background()))
		s.Assert().Equal(1, s.events.Disconnects(), "Disconnect after drop MUST be a no-op")
	})

	s.Run("stale callbacks from a previous session", func() {
		// GOAL: Verify handlers of an ended session never affect the next one
		//
		// TEST SCENARIO: Session 1 dropped → reconnect → session 1 handlers fire → ignored

		s.SetupTest()
		s.connect()
		oldNotify, oldDrop := s.notify, s.dropLink
		s.transport.On("Close", mock.Anything, s.channel).Return(nil).Once()
		s.dropLink()

		s.connect()

		oldNotify([]byte{0x00, 0x50})
		oldDrop()

		s.Assert().Equal(monitor.Connected, s.controller.State(), "new session MUST stay Connected")
		s.Assert().Empty(s.controller.Status().Measurements, "stale notification MUST be ignored")
		s.Assert().Equal(1, s.events.Disconnects())
	})
}

func (s *ControllerTestSuite) TestDisconnect() {
	s.Run("explicit disconnect", func() {
		// GOAL: Verify Disconnect unsubscribes, closes and lands in Disconnected
		//
		// TEST SCENARIO: Connected → Disconnect → Unsubscribe + Close → onDisconnect → measurements kept

		s.connect()
		s.notify([]byte{0x00, 0x46})
		s.transport.On("Unsubscribe", mock.Anything, s.char).Return(nil).Once()
		s.transport.On("Close", mock.Anything, s.channel).Return(nil).Once()

		err := s.controller.Disconnect(context.Background())

		s.Require().NoError(err)
		s.Assert().Equal(monitor.Disconnected, s.controller.State())
		s.Assert().Equal(1, s.events.Disconnects())
		s.Assert().Equal(1, s.dropCancels, "link drop registration MUST be cancelled")
		s.Assert().Len(s.controller.Status().Measurements, 1, "session MUST survive disconnect")
		s.Assert().Empty(s.events.Errors())

		s.dropLink()
		s.Assert().Equal(1, s.events.Disconnects(), "drop after Disconnect MUST be ignored")
	})

	s.Run("disconnect when already disconnected", func() {
		// GOAL: Verify Disconnect is idempotent
		//
		// TEST SCENARIO: Fresh controller → Disconnect → nil → no callbacks → no transport calls

		s.SetupTest()

		s.Assert().NoError(s.controller.Disconnect(context.Background()))
		s.Assert().NoError(s.controller.Disconnect(context.Background()))

		s.Assert().Equal(0, s.events.Disconnects(), "no callback MUST fire")
		s.Assert().Empty(s.events.Errors(), "no error MUST fire")
		s.transport.AssertNotCalled(s.T(), "Close", mock.Anything, mock.Anything)
	})

	s.Run("cancelled context leaves the session connected", func() {
		// GOAL: Verify Disconnect honors an already cancelled context before touching the transport
		//
		// TEST SCENARIO: Connected → Disconnect(cancelled) → context.Canceled → still Connected → no Unsubscribe/Close

		s.SetupTest()
		s.connect()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := s.controller.Disconnect(ctx)

		s.Require().ErrorIs(err, context.Canceled)
		s.Assert().Equal(monitor.Connected, s.controller.State(), "session MUST be untouched")
		s.Assert().Equal(0, s.events.Disconnects())
		s.Assert().Equal(0, s.dropCancels, "link watch MUST stay registered")
		s.transport.AssertNotCalled(s.T(), "Unsubscribe", mock.Anything, mock.Anything)
		s.transport.AssertNotCalled(s.T(), "Close", mock.Anything, mock.Anything)

		s.notify([]byte{0x00, 0x46})
		s.Assert().Len(s.controller.Status().Measurements, 1, "session MUST keep accepting data")
	})

	s.Run("teardown failures are warnings", func() {
		// GOAL: Verify teardown errors are reported but the state is still forced to Disconnected
		//
		// TEST SCENARIO: Unsubscribe and Close fail → two onError → Disconnect returns nil → Disconnected

		s.SetupTest()
		s.connect()
		s.transport.On("Unsubscribe", mock.Anything, s.char).Return(errors.New("gatt busy")).Once()
		s.transport.On("Close", mock.Anything, s.channel).Return(errors.New("already gone")).Once()

		err := s.controller.Disconnect(context.Background())

		s.Assert().NoError(err, "teardown warnings MUST not be returned")
		s.Assert().Equal(monitor.Disconnected, s.controller.State())
		s.Assert().Equal([]string{
			"disconnection error during unsubscribe: gatt busy",
			"disconnection error during close: already gone",
		}, s.events.Errors())
		s.Assert().Equal(1, s.events.Disconnects())
	})
}

func (s *ControllerTestSuite) TestClear() {
	// GOAL: Verify Clear empties the session without touching the connection
	//
	// TEST SCENARIO: Connected with measurements → Clear → empty session → still Connected → new data accepted

	s.connect()
	s.notify([]byte{0x00, 0x46})
	s.notify([]byte{0x00, 0x50})

	s.controller.Clear()

	status := s.controller.Status()
	s.Assert().Empty(status.Measurements)
	s.Assert().Equal(0, status.AverageHeartRate)
	s.Assert().Equal(0, status.MaxHeartRate)
	s.Assert().Equal(0, status.SessionDurationMinutes)
	s.Assert().True(status.IsConnected, "Clear MUST not affect the connection")

	s.notify([]byte{0x00, 0x3C})
	s.Assert().Equal(60, s.controller.Status().MaxHeartRate)
}

func (s *ControllerTestSuite) TestStatus_Disconnected() {
	// GOAL: Verify Status is safe before any connection
	//
	// TEST SCENARIO: Fresh controller → Status → zero values

	status := s.controller.Status()

	s.Assert().False(status.IsConnected)
	s.Assert().Nil(status.DeviceName)
	s.Assert().Empty(status.Measurements)
	s.Assert().Zero(status.AverageHeartRate)
	s.Assert().Zero(status.MaxHeartRate)
	s.Assert().Zero(status.SessionDurationMinutes)

	_, ok := s.controller.Device()
	s.Assert().False(ok)
}

func (s *ControllerTestSuite) TestClose() {
	// GOAL: Verify Close tears everything down and disables the controller
	//
	// TEST SCENARIO: Connected → Close → disconnected, cleared, listeners dropped → Connect → ErrClosed

	s.connect()
	s.notify([]byte{0x00, 0x46})
	s.transport.On("Unsubscribe", mock.Anything, s.char).Return(nil).Once()
	s.transport.On("Close", mock.Anything, s.channel).Return(nil).Once()

	s.Require().NoError(s.controller.Close(context.Background()))

	s.Assert().Equal(monitor.Disconnected, s.controller.State())
	s.Assert().Empty(s.controller.Status().Measurements, "Close MUST clear the session")
	s.Assert().Equal(1, s.events.Disconnects(), "onDisconnect MUST fire before listeners are dropped")

	_, err := s.controller.Connect(context.Background())
	s.Assert().ErrorIs(err, monitor.ErrClosed)
	s.Assert().NoError(s.controller.Close(context.Background()), "second Close MUST be a no-op")
}

func (s *ControllerTestSuite) TestClose_CancelledContext() {
	// GOAL: Verify Close with a cancelled context neither tears down nor disables the controller
	//
	// TEST SCENARIO: Connected → Close(cancelled) → error → Connected → Close(background) succeeds

	s.connect()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s.Require().ErrorIs(s.controller.Close(ctx), context.Canceled)
	s.Assert().Equal(monitor.Connected, s.controller.State())
	s.transport.AssertNotCalled(s.T(), "Close", mock.Anything, mock.Anything)

	s.transport.On("Unsubscribe", mock.Anything, s.char).Return(nil).Once()
	s.transport.On("Close", mock.Anything, s.channel).Return(nil).Once()
	s.Require().NoError(s.controller.Close(context.Background()), "retry MUST close normally")
	s.Assert().Equal(monitor.Disconnected, s.controller.State())
}

func TestState_String(t *testing.T) {
	cases := map[monitor.State]string{
		monitor.Disconnected:  "disconnected",
		monitor.Connecting:    "connecting",
		monitor.Connected:     "connected",
		monitor.Disconnecting: "disconnecting",
		monitor.State(9):      "state(9)",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(state), got, want)
		}
	}
}
