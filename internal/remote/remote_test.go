package remote_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/srg/boks/internal/device"
	"github.com/srg/boks/internal/pool"
	"github.com/srg/boks/internal/remote"
	"github.com/srg/boks/internal/session"
	"github.com/srg/boks/internal/testutils"
	"github.com/stretchr/testify/suite"
)

const address = "AA:BB:CC:DD:EE:01"

type RemoteTestSuite struct {
	suite.Suite
	helper   *testutils.TestHelper
	dialer   *testutils.FakeDialer
	platform *testutils.FakePlatform
	opts     remote.Options
}

func (suite *RemoteTestSuite) SetupTest() {
	suite.helper = testutils.NewTestHelper(suite.T())
	suite.dialer = testutils.NewFakeDialer(true)
	suite.platform = testutils.NewFakePlatform()
	suite.opts = remote.Options{
		Pool: pool.Options{},
		Session: session.Options{
			WriteInterval:    time.Millisecond,
			AckTimeout:       40 * time.Millisecond,
			MaxWriteAttempts: 3,
		},
	}
}

func (suite *RemoteTestSuite) newRemote() *remote.Remote {
	r := remote.New(suite.dialer, suite.platform, suite.opts, suite.helper.Logger, nil)
	suite.T().Cleanup(r.Close)
	return r
}

func (suite *RemoteTestSuite) TestUseRunsAgainstReadySession() {
	// GOAL: Verify Use only runs the block once the session is ready
	//
	// TEST SCENARIO: Use → dial + connect + discovery → block sees ready session → released afterwards

	r := suite.newRemote()
	key := device.Key{Address: address}

	err := r.Use(context.Background(), key, time.Second, func(ctx context.Context, s *session.Session) error {
		suite.Assert().True(s.IsReady(), "block MUST see a ready session")
		suite.Assert().Equal(1, r.Refs(key), "block MUST hold one reference")
		return nil
	})
	suite.Require().NoError(err)
	suite.Assert().Zero(r.Refs(key), "reference MUST be released")
	suite.Assert().Zero(r.Sessions(), "zero grace MUST close the session")
	suite.Assert().True(suite.dialer.Last(address).IsClosed(), "link MUST be closed")
}

func (suite *RemoteTestSuite) TestConcurrentUsersShareSession() {
	// GOAL: Verify concurrent callers of one key share a single connection
	//
	// TEST SCENARIO: 5 concurrent Uses holding the session → one dial → all see the same session

	r := suite.newRemote()
	key := device.Key{Address: address}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		sessions = map[*session.Session]bool{}
		inside   = make(chan struct{})
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := r.Use(context.Background(), key, time.Second, func(ctx context.Context, s *session.Session) error {
				mu.Lock()
				sessions[s] = true
				mu.Unlock()
				<-inside
				return nil
			})
			suite.Assert().NoError(err)
		}()
	}

	suite.Require().Eventually(func() bool { return r.Refs(key) == 5 }, time.Second, 5*time.Millisecond,
		"all callers MUST hold the session")
	close(inside)
	wg.Wait()

	suite.Assert().Len(sessions, 1, "callers MUST share one session")
	suite.Assert().Equal(1, suite.dialer.Dials(address), "MUST dial once")
}

func (suite *RemoteTestSuite) TestPinIsPartOfTheKey() {
	// GOAL: Verify sessions differing only by pin are distinct
	//
	// TEST SCENARIO: Use without pin, Use with pin 1234 concurrently → two dials → only the pinned one unlocks

	r := suite.newRemote()
	release := make(chan struct{})
	var wg sync.WaitGroup
	for _, pin := range []device.Pin{device.NoPin, device.MustPin(1234)} {
		wg.Add(1)
		go func(pin device.Pin) {
			defer wg.Done()
			suite.Assert().NoError(r.Use(context.Background(), device.Key{Address: address, Pin: pin}, time.Second,
				func(ctx context.Context, s *session.Session) error { <-release; return nil }))
		}(pin)
	}
	suite.Require().Eventually(func() bool { return r.Sessions() == 2 }, time.Second, 5*time.Millisecond,
		"pin MUST select a separate session")
	close(release)
	wg.Wait()

	var unlocks int
	for _, link := range suite.dialer.Links(address) {
		unlocks += len(link.Payloads(device.PinCharacteristic))
	}
	suite.Assert().Equal(1, unlocks, "only the pinned session MUST unlock")
}

func (suite *RemoteTestSuite) TestConnectTimeout() {
	// GOAL: Verify a session that never becomes ready fails with a timeout
	//
	// TEST SCENARIO: link never connects → Use with 50ms timeout → ErrTimeout → block not run → refs 0

	suite.dialer.AutoConnect = false
	r := suite.newRemote()
	key := device.Key{Address: address}

	ran := false
	err := r.Use(context.Background(), key, 50*time.Millisecond, func(ctx context.Context, s *session.Session) error {
		ran = true
		return nil
	})
	suite.Assert().ErrorIs(err, device.ErrTimeout, "MUST report a connect timeout")
	suite.Assert().False(ran, "block MUST NOT run")
	suite.Assert().Zero(r.Refs(key), "MUST release on timeout")
}

func (suite *RemoteTestSuite) TestCallerCancelIsNotATimeout() {
	suite.dialer.AutoConnect = false
	r := suite.newRemote()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := r.Use(ctx, device.Key{Address: address}, time.Second, func(ctx context.Context, s *session.Session) error { return nil })
	suite.Assert().ErrorIs(err, context.Canceled, "caller cancellation MUST pass through")
	suite.Assert().NotErrorIs(err, device.ErrTimeout)
}

func (suite *RemoteTestSuite) TestDisconnectDuringBlock() {
	// GOAL: Verify a disconnect mid-block cancels the block and reports connection lost
	//
	// TEST SCENARIO: ready → block triggers disconnect → block ctx cancelled → Use returns ErrConnectionLost

	r := suite.newRemote()
	key := device.Key{Address: address}

	err := r.Use(context.Background(), key, time.Second, func(ctx context.Context, s *session.Session) error {
		suite.dialer.Last(address).Disconnect()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
			return nil
		}
	})
	suite.Assert().ErrorIs(err, device.ErrConnectionLost, "MUST report the lost connection")
}

func (suite *RemoteTestSuite) TestWithReturnsResult() {
	r := suite.newRemote()
	id, err := remote.With(context.Background(), r, device.Key{Address: address}, time.Second,
		func(ctx context.Context, s *session.Session) (string, error) { return s.ID(), nil })
	suite.Require().NoError(err)
	suite.Assert().NotEmpty(id, "MUST return the block result")
}

func (suite *RemoteTestSuite) TestPowerOff() {
	// GOAL: Verify power off writes the single zero byte
	r := suite.newRemote()

	suite.Require().NoError(r.PowerOff(context.Background(), device.Key{Address: address}, time.Second))
	suite.Assert().Equal([][]byte{{0x00}}, suite.dialer.Last(address).Payloads(device.PowerOffCharacteristic))
}

func (suite *RemoteTestSuite) TestGracePeriodReusesSession() {
	// GOAL: Verify a quick second Use reuses the lingering session
	//
	// TEST SCENARIO: grace 1s → Use → Use → one dial, link still open

	suite.opts.Pool.GracePeriod = time.Second
	r := suite.newRemote()
	key := device.Key{Address: address}
	noop := func(ctx context.Context, s *session.Session) error { return nil }

	suite.Require().NoError(r.Use(context.Background(), key, time.Second, noop))
	suite.Require().NoError(r.Use(context.Background(), key, time.Second, noop))

	suite.Assert().Equal(1, suite.dialer.Dials(address), "MUST reuse within grace")
	suite.Assert().False(suite.dialer.Last(address).IsClosed(), "link MUST linger during grace")
	suite.Assert().Equal(1, r.Sessions())
}

func (suite *RemoteTestSuite) TestIsConnectedEmitsDistinctValues() {
	// GOAL: Verify the link state stream starts with the current value and skips repeats
	//
	// TEST SCENARIO: false → set true → set true again → set false → observes false, true, false

	r := suite.newRemote()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	states, err := r.IsConnected(ctx, address)
	suite.Require().NoError(err)

	next := func() bool {
		select {
		case v := <-states:
			return v
		case <-time.After(time.Second):
			suite.Require().FailNow("MUST emit a state")
			return false
		}
	}

	suite.Assert().False(next(), "first value MUST be the current state")
	suite.platform.SetLinked(address, true)
	suite.Assert().True(next())
	suite.platform.SetLinked(address, true)
	suite.platform.SetLinked(address, false)
	suite.Assert().False(next(), "repeats MUST be suppressed")

	cancel()
	suite.Require().Eventually(func() bool {
		_, open := <-states
		return !open
	}, time.Second, 5*time.Millisecond, "stream MUST close with the context")
}

func (suite *RemoteTestSuite) TestIsConnectedWithoutPlatform() {
	r := remote.New(suite.dialer, nil, suite.opts, suite.helper.Logger, nil)
	defer r.Close()
	_, err := r.IsConnected(context.Background(), address)
	suite.Assert().ErrorIs(err, device.ErrUnsupported)
}

func TestRemoteTestSuite(t *testing.T) {
	suite.Run(t, new(RemoteTestSuite))
}
