package geyser

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	pb "github.com/rpcpool/yellowstone-grpc/examples/golang/proto"
)

// stubClient implements ClientInterface for failover tests.
type stubClient struct {
	mu           sync.Mutex
	name         string
	connectErr   error
	subscribeFn  func(uint64) (<-chan *pb.SubscribeUpdate, <-chan error)
	closeFn      func() error
	connectCount int
	closeCount   int
}

func (s *stubClient) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connectCount++
	return s.connectErr
}

func (s *stubClient) Subscribe(startSlot uint64) (<-chan *pb.SubscribeUpdate, <-chan error) {
	if s.subscribeFn == nil {
		return nil, nil
	}
	return s.subscribeFn(startSlot)
}

func (s *stubClient) Close() error {
	s.mu.Lock()
	s.closeCount++
	s.mu.Unlock()
	if s.closeFn != nil {
		return s.closeFn()
	}
	return nil
}

func (s *stubClient) Name() string { return s.name }

func (s *stubClient) connects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectCount
}

func TestFailoverServiceSwitchesToFallback(t *testing.T) {
	var fallbackInvoked sync.WaitGroup
	fallbackInvoked.Add(1)

	primary := &stubClient{
		name: PrimarySource,
		subscribeFn: func(uint64) (<-chan *pb.SubscribeUpdate, <-chan error) {
			updates := make(chan *pb.SubscribeUpdate)
			errs := make(chan error, 1)
			go func() {
				defer close(updates)
				defer close(errs)
				errs <- errors.New("primary stream failed")
			}()
			return updates, errs
		},
	}

	var once sync.Once
	fallback := &stubClient{
		name: FallbackSource,
		subscribeFn: func(uint64) (<-chan *pb.SubscribeUpdate, <-chan error) {
			updates := make(chan *pb.SubscribeUpdate, 1)
			errs := make(chan error)
			go func() {
				defer close(updates)
				defer close(errs)
				updates <- blockMetaUpdate(testSlot, testTimestamp)
				once.Do(fallbackInvoked.Done)
			}()
			return updates, errs
		},
	}

	pub := &stubPublisher{}
	proc, _ := newTestProcessor(t, pub)
	metricsReg := prometheus.NewRegistry()

	svc := &FailoverService{
		primary:            primary,
		fallback:           fallback,
		processor:          proc,
		metrics:            newFailoverMetrics(metricsReg),
		primaryRetryDelay:  5 * time.Millisecond,
		fallbackRetryDelay: 5 * time.Millisecond,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- svc.Run(ctx, 0)
	}()

	done := make(chan struct{})
	go func() {
		fallbackInvoked.Wait()
		close(done)
	}()

	select {
	case <-done:
		cancel()
	case <-time.After(500 * time.Millisecond):
		cancel()
		t.Fatal("fallback was not invoked within timeout")
	}

	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}

	if primary.connects() == 0 {
		t.Fatal("primary client was never connected")
	}
	if fallback.connects() == 0 {
		t.Fatal("fallback client was never connected")
	}
	if got := testutil.ToFloat64(svc.metrics.failures.WithLabelValues(PrimarySource)); got < 1 {
		t.Fatalf("expected primary failure to be counted, got %v", got)
	}
	if got := testutil.ToFloat64(svc.metrics.switches); got < 1 {
		t.Fatalf("expected a source switch, got %v", got)
	}

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.heads) == 0 || pub.heads[0].Slot != testSlot {
		t.Fatalf("expected block head from fallback stream, got %+v", pub.heads)
	}
}

func TestFailoverServiceRetriesPrimaryAlone(t *testing.T) {
	primary := &stubClient{name: PrimarySource, connectErr: errors.New("dial failed")}

	pub := &stubPublisher{}
	proc, _ := newTestProcessor(t, pub)
	svc := &FailoverService{
		primary:           primary,
		processor:         proc,
		metrics:           newFailoverMetrics(prometheus.NewRegistry()),
		primaryRetryDelay: time.Millisecond,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := svc.Run(ctx, 0); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if primary.connects() < 2 {
		t.Fatalf("expected repeated connection attempts, got %d", primary.connects())
	}
	if got := testutil.ToFloat64(svc.metrics.active.WithLabelValues(PrimarySource)); got != 1 {
		t.Fatalf("active source=%v want 1", got)
	}
	if got := testutil.ToFloat64(svc.metrics.switches); got != 0 {
		t.Fatalf("primary-only service must not switch, got %v", got)
	}
}

func TestNewFailoverServiceRequiresPrimary(t *testing.T) {
	if _, err := NewFailoverService(nil, nil, nil, natsConfigForTest(), "", nil); err == nil {
		t.Fatal("expected error without primary client")
	}
}

func TestServiceRunEndsWithStream(t *testing.T) {
	client := &stubClient{
		name: PrimarySource,
		subscribeFn: func(uint64) (<-chan *pb.SubscribeUpdate, <-chan error) {
			updates := make(chan *pb.SubscribeUpdate, 1)
			errs := make(chan error)
			updates <- blockMetaUpdate(testSlot, testTimestamp)
			close(updates)
			close(errs)
			return updates, errs
		},
	}
	pub := &stubPublisher{}
	proc, _ := newTestProcessor(t, pub)
	svc := &Service{client: client, processor: proc}

	if err := svc.Run(context.Background(), 0); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if client.closeCount != 1 {
		t.Fatalf("client closed %d times", client.closeCount)
	}
	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.heads) != 1 || pub.heads[0].Slot != testSlot {
		t.Fatalf("unexpected heads %+v", pub.heads)
	}
}

func TestServiceRunReturnsStreamError(t *testing.T) {
	boom := errors.New("stream reset")
	client := &stubClient{
		name: PrimarySource,
		subscribeFn: func(uint64) (<-chan *pb.SubscribeUpdate, <-chan error) {
			errs := make(chan error, 1)
			errs <- boom
			return make(chan *pb.SubscribeUpdate), errs
		},
	}
	proc, _ := newTestProcessor(t, &stubPublisher{})
	svc := &Service{client: client, processor: proc}

	if err := svc.Run(context.Background(), 0); !errors.Is(err, boom) {
		t.Fatalf("Run() error = %v, want %v", err, boom)
	}
}
