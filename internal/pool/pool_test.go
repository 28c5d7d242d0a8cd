package pool_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/srg/boks/internal/pool"
	"github.com/srg/boks/internal/testutils"
	"github.com/stretchr/testify/suite"
)

type resource struct {
	id     int
	key    string
	closed atomic.Int32
}

// tracker counts live resources per key and records the peak.
type tracker struct {
	mu      sync.Mutex
	nextID  int
	live    map[string]int
	peak    map[string]int
	created []*resource
	delay   time.Duration
}

func newTracker() *tracker {
	return &tracker{live: make(map[string]int), peak: make(map[string]int)}
}

func (t *tracker) create(key string) (*resource, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	r := &resource{id: t.nextID, key: key}
	t.created = append(t.created, r)
	t.live[key]++
	if t.live[key] > t.peak[key] {
		t.peak[key] = t.live[key]
	}
	return r, nil
}

func (t *tracker) release(key string, r *resource) error {
	if t.delay > 0 {
		time.Sleep(t.delay)
	}
	r.closed.Add(1)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.live[key]--
	return nil
}

func (t *tracker) all() []*resource {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*resource(nil), t.created...)
}

type PoolTestSuite struct {
	suite.Suite
	helper  *testutils.TestHelper
	tracker *tracker
}

func (suite *PoolTestSuite) SetupTest() {
	suite.helper = testutils.NewTestHelper(suite.T())
	suite.tracker = newTracker()
}

func (suite *PoolTestSuite) newPool(grace time.Duration) *pool.Pool[string, *resource] {
	return pool.New(suite.tracker.create, suite.tracker.release, pool.Options{GracePeriod: grace}, suite.helper.Logger)
}

func (suite *PoolTestSuite) TestSharedWithinKey() {
	// GOAL: Verify concurrent holders of one key share a single resource
	//
	// TEST SCENARIO: two holders acquire "a" → same resource → refs 2 → release both

	p := suite.newPool(0)
	ctx := context.Background()

	r1, release1, err := p.Acquire(ctx, "a")
	suite.Require().NoError(err)
	r2, release2, err := p.Acquire(ctx, "a")
	suite.Require().NoError(err)

	suite.Assert().Same(r1, r2, "holders MUST share the resource")
	suite.Assert().Equal(2, p.Refs("a"))

	release1()
	release1()
	suite.Assert().Equal(1, p.Refs("a"), "double release MUST count once")
	suite.Assert().Zero(r1.closed.Load(), "resource MUST stay open while held")

	release2()
	suite.Assert().Equal(int32(1), r1.closed.Load(), "last release MUST close with zero grace")
	suite.Assert().Zero(p.Len())
}

func (suite *PoolTestSuite) TestAtMostOneLivePerKey() {
	// GOAL: Verify there is never more than one live resource per key
	//
	// TEST SCENARIO: 50 goroutines Use random keys with slow teardown → peak live per key is 1

	suite.tracker.delay = 2 * time.Millisecond
	p := suite.newPool(0)
	keys := []string{"a", "b", "c"}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := keys[i%len(keys)]
			err := p.Use(context.Background(), key, func(ctx context.Context, r *resource) error {
				suite.Assert().Equal(key, r.key)
				time.Sleep(time.Duration(i%3) * time.Millisecond)
				return nil
			})
			suite.Assert().NoError(err)
		}(i)
	}
	wg.Wait()

	for _, key := range keys {
		suite.Assert().Equal(1, suite.tracker.peak[key], "key %s MUST never have two live resources", key)
	}
	for _, r := range suite.tracker.all() {
		suite.Assert().Equal(int32(1), r.closed.Load(), "every resource MUST close exactly once")
	}
}

func (suite *PoolTestSuite) TestGracePeriodReuse() {
	// GOAL: Verify a resource survives the grace period and is reused
	//
	// TEST SCENARIO: release → reacquire within grace → same resource, no close → release → closed after grace

	p := suite.newPool(80 * time.Millisecond)
	ctx := context.Background()

	r1, release, err := p.Acquire(ctx, "a")
	suite.Require().NoError(err)
	release()

	time.Sleep(20 * time.Millisecond)
	r2, release, err := p.Acquire(ctx, "a")
	suite.Require().NoError(err)
	suite.Assert().Same(r1, r2, "reacquire within grace MUST reuse")
	suite.Assert().Zero(r1.closed.Load())

	release()
	suite.Assert().Equal(1, p.Len(), "resource MUST linger during grace")
	suite.Require().Eventually(func() bool { return r1.closed.Load() == 1 }, time.Second, 5*time.Millisecond,
		"resource MUST close after grace")
	suite.Assert().Zero(p.Len())

	time.Sleep(100 * time.Millisecond)
	suite.Assert().Equal(int32(1), r1.closed.Load(), "stale timers MUST NOT close twice")
	suite.Assert().Len(suite.tracker.all(), 1, "MUST create once")
}

func (suite *PoolTestSuite) TestUseReleasesOnError() {
	p := suite.newPool(0)
	boom := errors.New("boom")

	err := p.Use(context.Background(), "a", func(ctx context.Context, r *resource) error { return boom })
	suite.Assert().ErrorIs(err, boom, "MUST propagate the block error")
	suite.Assert().Zero(p.Refs("a"), "MUST release after the block")

	n, err := pool.With(context.Background(), p, "b", func(ctx context.Context, r *resource) (int, error) {
		return r.id, nil
	})
	suite.Require().NoError(err)
	suite.Assert().Equal(2, n, "With MUST return the block result")
}

func (suite *PoolTestSuite) TestCancelDuringBlockReleases() {
	// GOAL: Verify a holder cancelled inside its block still gives up its reference
	//
	// TEST SCENARIO: Use blocks on ctx → cancel → Use returns ctx error → refs 0, closed once

	p := suite.newPool(0)
	ctx, cancel := context.WithCancel(context.Background())
	inside := make(chan *resource, 1)

	errs := make(chan error, 1)
	go func() {
		errs <- p.Use(ctx, "a", func(ctx context.Context, r *resource) error {
			inside <- r
			<-ctx.Done()
			return ctx.Err()
		})
	}()

	r := <-inside
	suite.Assert().Equal(1, p.Refs("a"))
	cancel()

	select {
	case err := <-errs:
		suite.Assert().ErrorIs(err, context.Canceled, "MUST return the cancellation")
	case <-time.After(time.Second):
		suite.Require().FailNow("cancelled Use MUST return")
	}
	suite.Assert().Zero(p.Refs("a"), "cancelled holder MUST release")
	suite.Assert().Equal(int32(1), r.closed.Load(), "resource MUST close exactly once")
	suite.Assert().Zero(p.Len())
}

func (suite *PoolTestSuite) TestCancelWhileWaitingForTeardown() {
	// GOAL: Verify a caller cancelled while the previous resource is torn down takes no reference
	//
	// TEST SCENARIO: slow release in flight → Acquire waits → cancel → ctx error, nothing created → teardown ends → next Acquire creates anew

	suite.tracker.delay = 150 * time.Millisecond
	p := suite.newPool(0)

	r1, release, err := p.Acquire(context.Background(), "a")
	suite.Require().NoError(err)
	go release()
	suite.Require().Eventually(func() bool { return p.Len() == 0 }, time.Second, time.Millisecond,
		"teardown MUST start")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, _, err = p.Acquire(ctx, "a")
	suite.Assert().ErrorIs(err, context.DeadlineExceeded, "waiting Acquire MUST honour cancellation")
	suite.Assert().Zero(p.Refs("a"), "cancelled waiter MUST NOT hold a reference")
	suite.Assert().Len(suite.tracker.all(), 1, "cancelled waiter MUST NOT create")

	suite.Require().Eventually(func() bool { return r1.closed.Load() == 1 }, time.Second, 5*time.Millisecond)
	r2, release, err := p.Acquire(context.Background(), "a")
	suite.Require().NoError(err)
	suite.Assert().NotSame(r1, r2, "MUST create after teardown")
	release()

	suite.Require().Eventually(func() bool { return r2.closed.Load() == 1 }, time.Second, 5*time.Millisecond)
	suite.Assert().Equal(int32(1), r1.closed.Load(), "first resource MUST close exactly once")
	suite.Assert().Zero(p.Refs("a"))
	suite.Assert().Equal(1, suite.tracker.peak["a"], "MUST never hold two live resources")
}

func (suite *PoolTestSuite) TestCreateFailure() {
	p := pool.New(func(key string) (*resource, error) { return nil, errors.New("dial failed") },
		suite.tracker.release, pool.Options{}, suite.helper.Logger)

	_, _, err := p.Acquire(context.Background(), "a")
	suite.Assert().ErrorContains(err, "dial failed")
	suite.Assert().Zero(p.Len(), "failed creation MUST NOT be cached")
}

func (suite *PoolTestSuite) TestCloseReleasesEverything() {
	p := suite.newPool(time.Hour)
	r, release, err := p.Acquire(context.Background(), "a")
	suite.Require().NoError(err)

	p.Close()
	suite.Assert().Equal(int32(1), r.closed.Load(), "Close MUST release held resources")

	release()
	suite.Assert().Equal(int32(1), r.closed.Load(), "late release MUST NOT close again")

	_, _, err = p.Acquire(context.Background(), "a")
	suite.Assert().ErrorIs(err, pool.ErrPoolClosed)
}

func (suite *PoolTestSuite) TestRefsObserver() {
	var seen []int
	p := suite.newPool(0)
	p.OnRefs = func(key string, refs int) { seen = append(seen, refs) }

	_ = p.Use(context.Background(), "a", func(ctx context.Context, r *resource) error {
		return p.Use(ctx, "a", func(ctx context.Context, r *resource) error { return nil })
	})
	suite.Assert().Equal([]int{1, 2, 1, 0}, seen)
}

func TestPoolTestSuite(t *testing.T) {
	suite.Run(t, new(PoolTestSuite))
}
