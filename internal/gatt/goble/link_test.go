package goble

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/gattq/internal/gatt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

const eventTimeout = 2 * time.Second

type mockClient struct {
	mock.Mock
	disconnected chan struct{}
}

func newMockClient() *mockClient {
	return &mockClient{disconnected: make(chan struct{})}
}

func (m *mockClient) DiscoverProfile(force bool) (*ble.Profile, error) {
	args := m.Called(force)
	p, _ := args.Get(0).(*ble.Profile)
	return p, args.Error(1)
}

func (m *mockClient) ReadCharacteristic(c *ble.Characteristic) ([]byte, error) {
	args := m.Called(c)
	v, _ := args.Get(0).([]byte)
	return v, args.Error(1)
}

func (m *mockClient) WriteCharacteristic(c *ble.Characteristic, value []byte, noRsp bool) error {
	return m.Called(c, value, noRsp).Error(0)
}

func (m *mockClient) Subscribe(c *ble.Characteristic, ind bool, h ble.NotificationHandler) error {
	return m.Called(c, ind, h).Error(0)
}

func (m *mockClient) Unsubscribe(c *ble.Characteristic, ind bool) error {
	return m.Called(c, ind).Error(0)
}

func (m *mockClient) ReadRSSI() int {
	return m.Called().Int(0)
}

func (m *mockClient) ExchangeMTU(rxMTU int) (int, error) {
	args := m.Called(rxMTU)
	return args.Int(0), args.Error(1)
}

func (m *mockClient) CancelConnection() error {
	return m.Called().Error(0)
}

func (m *mockClient) Disconnected() <-chan struct{} {
	return m.disconnected
}

type chanSink chan gatt.HardwareEvent

func (s chanSink) Post(ev gatt.HardwareEvent) {
	s <- ev
}

type LinkTestSuite struct {
	suite.Suite

	client   *mockClient
	sink     chanSink
	radio    *Radio
	heart    *ble.Characteristic
	profile  *ble.Profile
	origDial func(ctx context.Context, address string) (Client, error)
}

func (s *LinkTestSuite) SetupSuite() {
	s.origDial = Dial
}

func (s *LinkTestSuite) TearDownSuite() {
	Dial = s.origDial
}

func (s *LinkTestSuite) SetupTest() {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	s.client = newMockClient()
	s.sink = make(chanSink, 64)
	s.radio = NewRadio(logger, time.Second)

	s.heart = &ble.Characteristic{
		UUID:     ble.MustParse("2a37"),
		Property: ble.CharRead | ble.CharWrite | ble.CharWriteNR | ble.CharNotify,
		Descriptors: []*ble.Descriptor{
			{UUID: ble.MustParse("2902")},
		},
	}
	s.profile = &ble.Profile{Services: []*ble.Service{
		{UUID: ble.MustParse("180d"), Characteristics: []*ble.Characteristic{s.heart}},
	}}

	Dial = func(ctx context.Context, address string) (Client, error) {
		return s.client, nil
	}
}

func (s *LinkTestSuite) next() gatt.HardwareEvent {
	select {
	case ev := <-s.sink:
		return ev
	case <-time.After(eventTimeout):
		s.FailNow("timed out waiting for a hardware event")
		return nil
	}
}

func (s *LinkTestSuite) expectNothing() {
	select {
	case ev := <-s.sink:
		s.Failf("unexpected event", "%#v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

// open dials a link and returns it together with the discovered tree
func (s *LinkTestSuite) open() (gatt.Link, *gatt.Characteristic) {
	s.client.On("DiscoverProfile", true).Return(s.profile, nil).Once()

	link, err := s.radio.Open("aa:bb:cc:dd:ee:ff", gatt.LinkParams{}, s.sink)
	s.Require().NoError(err)
	s.Require().Equal(gatt.LinkStateChanged{Connected: true, Status: gatt.StatusSuccess}, s.next())

	s.Require().NoError(link.DiscoverServices())
	discovered, ok := s.next().(gatt.ServicesDiscovered)
	s.Require().True(ok)
	s.Require().True(discovered.Status.OK())
	s.Require().Len(discovered.Services, 1)
	s.Require().Len(discovered.Services[0].Characteristics, 1)

	return link, discovered.Services[0].Characteristics[0]
}

func (s *LinkTestSuite) TestDiscoveryConvertsProfile() {
	_, char := s.open()

	s.Equal("2a37", gatt.NormalizeUUID(char.UUID))
	s.Equal("180d", gatt.NormalizeUUID(char.Service))
	s.True(char.Properties.Has(gatt.PropRead | gatt.PropWrite | gatt.PropWriteNR | gatt.PropNotify))
	s.False(char.Properties.Has(gatt.PropIndicate))
	s.Require().Len(char.Descriptors, 1)
	s.Equal("2902", gatt.NormalizeUUID(char.Descriptors[0].UUID))
	s.Same(s.heart, char.Handle, "the platform characteristic MUST travel as the handle")
}

func (s *LinkTestSuite) TestRediscoveryUsesCachedProfileUntilRefresh() {
	link, _ := s.open()

	s.client.On("DiscoverProfile", false).Return(s.profile, nil).Once()
	s.Require().NoError(link.DiscoverServices())
	s.IsType(gatt.ServicesDiscovered{}, s.next())

	s.Require().NoError(link.RefreshCache())
	s.client.On("DiscoverProfile", true).Return(s.profile, nil).Once()
	s.Require().NoError(link.DiscoverServices())
	s.IsType(gatt.ServicesDiscovered{}, s.next())

	s.client.AssertExpectations(s.T())
}

func (s *LinkTestSuite) TestReadReportsATTStatus() {
	link, char := s.open()

	s.client.On("ReadCharacteristic", s.heart).Return([]byte{0x06, 0x48}, nil).Once()
	s.Require().NoError(link.ReadCharacteristic(char))
	read := s.next().(gatt.CharacteristicRead)
	s.Equal([]byte{0x06, 0x48}, read.Value)
	s.True(read.Status.OK())
	s.Equal(char.UUID, read.Characteristic)

	s.client.On("ReadCharacteristic", s.heart).Return(nil, ble.ErrAuthentication).Once()
	s.Require().NoError(link.ReadCharacteristic(char))
	read = s.next().(gatt.CharacteristicRead)
	s.Equal(gatt.StatusInsufficientAuthentication, read.Status)
}

func (s *LinkTestSuite) TestWriteModes() {
	link, char := s.open()

	s.client.On("WriteCharacteristic", s.heart, []byte{1}, false).Return(nil).Once()
	s.Require().NoError(link.WriteCharacteristic(char, []byte{1}, true))
	written := s.next().(gatt.CharacteristicWritten)
	s.True(written.Status.OK())

	s.client.On("WriteCharacteristic", s.heart, []byte{2}, true).Return(nil).Once()
	s.Require().NoError(link.WriteCharacteristic(char, []byte{2}, false))
	s.expectNothing()

	s.client.On("WriteCharacteristic", s.heart, []byte{3}, true).Return(errors.New("device not connected")).Once()
	err := link.WriteCharacteristic(char, []byte{3}, false)
	s.ErrorIs(err, gatt.ErrNotConnected)

	s.client.AssertExpectations(s.T())
}

func (s *LinkTestSuite) TestNotificationLifecycle() {
	link, char := s.open()

	var handler ble.NotificationHandler
	s.client.On("Subscribe", s.heart, true, mock.Anything).Run(func(args mock.Arguments) {
		handler = args.Get(2).(ble.NotificationHandler)
	}).Return(nil).Once()

	s.Require().NoError(link.SetNotification(char, gatt.IndicateEnabled))
	written := s.next().(gatt.DescriptorWritten)
	s.True(written.Status.OK())
	s.Equal("2902", written.Descriptor)

	frame := []byte{7, 8}
	handler(frame)
	frame[0] = 0
	changed := s.next().(gatt.CharacteristicChanged)
	s.Equal([]byte{7, 8}, changed.Value, "delivered values MUST not alias the platform buffer")

	s.client.On("Unsubscribe", s.heart, true).Return(nil).Once()
	s.Require().NoError(link.SetNotification(char, gatt.NotifyDisabled))
	s.True(s.next().(gatt.DescriptorWritten).Status.OK())

	s.client.AssertExpectations(s.T())
}

func (s *LinkTestSuite) TestRSSIAndMTU() {
	link, _ := s.open()

	s.client.On("ReadRSSI").Return(-61).Once()
	s.client.On("ExchangeMTU", 185).Return(185, nil).Once()

	s.Require().NoError(link.ReadRSSI())
	s.Equal(gatt.RSSIRead{RSSI: -61, Status: gatt.StatusSuccess}, s.next())

	s.Require().NoError(link.RequestMTU(185))
	s.Equal(gatt.MTUChanged{MTU: 185, Status: gatt.StatusSuccess}, s.next())

	s.NoError(link.RequestConnectionPriority(gatt.PriorityHigh))
}

func (s *LinkTestSuite) TestLinkLossAndGracefulDisconnect() {
	s.Run("link loss", func() {
		s.SetupTest()
		s.open()
		close(s.client.disconnected)
		s.Equal(gatt.LinkStateChanged{Connected: false, Status: gatt.StatusLinkLoss}, s.next())
	})

	s.Run("requested", func() {
		s.SetupTest()
		link, _ := s.open()
		s.client.On("CancelConnection").Run(func(mock.Arguments) {
			close(s.client.disconnected)
		}).Return(nil).Once()

		s.Require().NoError(link.Disconnect())
		s.Equal(gatt.LinkStateChanged{Connected: false, Status: gatt.StatusSuccess}, s.next())
	})
}

func (s *LinkTestSuite) TestDialFailure() {
	Dial = func(ctx context.Context, address string) (Client, error) {
		return nil, errors.New("timeout")
	}

	_, err := s.radio.Open("aa:bb:cc:dd:ee:ff", gatt.LinkParams{}, s.sink)
	s.Require().NoError(err)
	s.Equal(gatt.LinkStateChanged{Connected: false, Status: gatt.StatusFailure}, s.next())
}

func (s *LinkTestSuite) TestDisconnectWhileDialing() {
	Dial = func(ctx context.Context, address string) (Client, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	link, err := s.radio.Open("aa:bb:cc:dd:ee:ff", gatt.LinkParams{AutoReconnect: true}, s.sink)
	s.Require().NoError(err)
	s.Require().NoError(link.Disconnect())
	s.Equal(gatt.LinkStateChanged{Connected: false, Status: gatt.StatusLocalTermination}, s.next())
}

func (s *LinkTestSuite) TestCloseSilencesLink() {
	link, char := s.open()
	s.client.On("CancelConnection").Return(nil).Maybe()

	s.Require().NoError(link.Close())
	s.NoError(link.Close(), "close MUST be idempotent")

	s.ErrorIs(link.ReadCharacteristic(char), gatt.ErrClosed)
	s.ErrorIs(link.Disconnect(), gatt.ErrClosed)
	close(s.client.disconnected)
	s.expectNothing()
}

func (s *LinkTestSuite) TestUnknownHandle() {
	link, _ := s.open()

	err := link.ReadCharacteristic(&gatt.Characteristic{UUID: "2a38", Service: "180d"})
	s.ErrorIs(err, gatt.ErrAttributeNotFound)
}

func TestLinkTestSuite(t *testing.T) {
	suite.Run(t, new(LinkTestSuite))
}

func TestNormalizeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "bluetooth off", err: errors.New("central manager has invalid state: have=4 want=5: is Bluetooth turned on?"), want: ErrBluetoothOff},
		{name: "turned off", err: errors.New("Bluetooth is turned OFF"), want: ErrBluetoothOff},
		{name: "not connected", err: errors.New("device not connected"), want: gatt.ErrNotConnected},
		{name: "disconnected", err: errors.New("peripheral disconnected"), want: gatt.ErrNotConnected},
		{name: "already connected", err: errors.New("device already connected"), want: gatt.ErrAlreadyConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeError(tt.err)
			assert.ErrorIs(t, got, tt.want)
			assert.Contains(t, got.Error(), tt.err.Error(), "the original message MUST be kept")
		})
	}

	assert.NoError(t, NormalizeError(nil))
	other := errors.New("boom")
	assert.Same(t, other, NormalizeError(other), "unknown errors MUST pass through")
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, gatt.StatusSuccess, statusOf(nil))
	assert.Equal(t, gatt.StatusInsufficientEncryption, statusOf(ble.ErrInsuffEnc))
	assert.Equal(t, gatt.StatusLinkLoss, statusOf(errors.New("disconnected")))
	assert.Equal(t, gatt.StatusLocalTermination, statusOf(context.Canceled))
	assert.Equal(t, gatt.StatusFailure, statusOf(errors.New("boom")))
}
