package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vietddude/botrelay/internal/core/domain"
	"github.com/vietddude/botrelay/internal/infra/storage"
	"github.com/vietddude/botrelay/internal/infra/storage/media"
	"github.com/vietddude/botrelay/internal/infra/storage/memory"
	"github.com/vietddude/botrelay/internal/infra/transport"
)

// =============================================================================
// Stubs
// =============================================================================

type stubTransport struct {
	connectErr   error
	authorized   bool
	authErr      error
	disconnected atomic.Int32
	stream       chan domain.IncomingMessage
}

func (s *stubTransport) Connect(ctx context.Context) error { return s.connectErr }
func (s *stubTransport) IsAuthorized(ctx context.Context) (bool, error) {
	return s.authorized, s.authErr
}
func (s *stubTransport) Send(ctx context.Context, a domain.ActorID, text string) error { return nil }
func (s *stubTransport) Messages() <-chan domain.IncomingMessage                       { return s.stream }
func (s *stubTransport) Disconnect() error {
	s.disconnected.Add(1)
	return nil
}

type stubDispatcher struct {
	calls  atomic.Int32
	delay  time.Duration
	result *domain.AggregatedResult
	err    error
	sawCtx context.Context
}

func (s *stubDispatcher) Dispatch(ctx context.Context, t transport.Transport, q domain.Query) (*domain.AggregatedResult, error) {
	s.calls.Add(1)
	s.sawCtx = ctx
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.err != nil {
		return nil, s.err
	}
	res := *s.result
	return &res, nil
}

func okResult() *domain.AggregatedResult {
	return &domain.AggregatedResult{
		Status:       "ok",
		DNI:          "12345678",
		Fields:       map[string]string{"nombres": "JUAN"},
		SourceActor:  "@primary",
		MessageCount: 2,
		Media:        []domain.MediaRef{{URL: "http://x/files/a.jpg", Type: "rostro"}},
	}
}

func factoryFor(t *stubTransport) (transport.Factory, *atomic.Int32) {
	var created atomic.Int32
	return func() transport.Transport {
		created.Add(1)
		return t
	}, &created
}

// =============================================================================
// Tests
// =============================================================================

func TestQuery_Success(t *testing.T) {
	tr := &stubTransport{authorized: true}
	factory, _ := factoryFor(tr)
	disp := &stubDispatcher{result: okResult()}
	history := memory.NewHistoryRepo(0)
	e := New(factory, disp, WithHistory(history))

	res, err := e.Query(context.Background(), "/dni 12345678")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if res.FromCache {
		t.Error("fresh result marked as cached")
	}
	if tr.disconnected.Load() != 1 {
		t.Errorf("disconnects = %d, want 1", tr.disconnected.Load())
	}

	recs, _ := history.List(context.Background(), storage.HistoryFilter{})
	if len(recs) != 1 {
		t.Fatalf("history = %d records", len(recs))
	}
	rec := recs[0]
	if rec.Outcome != domain.OutcomeOK || rec.Actor != "@primary" || rec.CorrelationKey != "12345678" {
		t.Errorf("record = %+v", rec)
	}
	if len(rec.MediaURLs) != 1 {
		t.Errorf("media urls = %v", rec.MediaURLs)
	}
}

func TestQuery_CacheShortCircuits(t *testing.T) {
	tr := &stubTransport{authorized: true}
	factory, created := factoryFor(tr)
	disp := &stubDispatcher{result: okResult()}
	e := New(factory, disp, WithCache(memory.NewResultCache(time.Hour)))

	if _, err := e.Query(context.Background(), "/dni 12345678"); err != nil {
		t.Fatal(err)
	}
	res, err := e.Query(context.Background(), "/dni 12345678")
	if err != nil {
		t.Fatal(err)
	}
	if !res.FromCache {
		t.Error("second query should be served from cache")
	}
	if disp.calls.Load() != 1 || created.Load() != 1 {
		t.Errorf("dispatches = %d, sessions = %d; cache hit must not open a session",
			disp.calls.Load(), created.Load())
	}

	// Different command, same key: miss.
	if _, err := e.Query(context.Background(), "/dnif 12345678"); err != nil {
		t.Fatal(err)
	}
	if disp.calls.Load() != 2 {
		t.Errorf("dispatches = %d, want 2", disp.calls.Load())
	}

	// No correlation key: never cached.
	_, _ = e.Query(context.Background(), "/nm JUAN PEREZ")
	_, _ = e.Query(context.Background(), "/nm JUAN PEREZ")
	if disp.calls.Load() != 4 {
		t.Errorf("dispatches = %d, keyless queries must not be cached", disp.calls.Load())
	}
}

func TestQuery_TransportFailures(t *testing.T) {
	tests := []struct {
		name string
		tr   *stubTransport
	}{
		{"connect", &stubTransport{connectErr: errors.New("dial refused")}},
		{"auth error", &stubTransport{authErr: errors.New("timeout")}},
		{"unauthorized", &stubTransport{authorized: false}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			factory, _ := factoryFor(tt.tr)
			disp := &stubDispatcher{result: okResult()}
			e := New(factory, disp)

			_, err := e.Query(context.Background(), "/dni 12345678")
			if !errors.Is(err, domain.ErrTransportUnavailable) {
				t.Fatalf("err = %v, want transport_unavailable", err)
			}
			if disp.calls.Load() != 0 {
				t.Error("dispatch must not run without a session")
			}
			if tt.tr.disconnected.Load() != 1 {
				t.Errorf("disconnects = %d, want 1", tt.tr.disconnected.Load())
			}
		})
	}
}

func TestQuery_ErrorsAreRecorded(t *testing.T) {
	tr := &stubTransport{authorized: true}
	factory, _ := factoryFor(tr)
	qerr := &domain.Error{Kind: domain.KindNotFound, Message: "no data", Actor: "@backup"}
	history := memory.NewHistoryRepo(0)
	cache := memory.NewResultCache(time.Hour)
	e := New(factory, &stubDispatcher{err: qerr}, WithHistory(history), WithCache(cache))

	_, err := e.Query(context.Background(), "/dni 12345678")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v", err)
	}

	recs, _ := history.List(context.Background(), storage.HistoryFilter{})
	if len(recs) != 1 || recs[0].Outcome != "not_found" || recs[0].Actor != "@backup" {
		t.Errorf("records = %+v", recs)
	}
	if _, ok, _ := cache.Find(context.Background(), "dni", "12345678"); ok {
		t.Error("failed queries must not be cached")
	}
}

func TestQuery_RejectsMalformedCommand(t *testing.T) {
	factory, created := factoryFor(&stubTransport{authorized: true})
	e := New(factory, &stubDispatcher{result: okResult()})

	for _, cmd := range []string{"", "   ", "dni 12345678"} {
		if _, err := e.Query(context.Background(), cmd); !errors.Is(err, domain.ErrFormatError) {
			t.Errorf("Query(%q) err = %v, want format_error", cmd, err)
		}
	}
	if created.Load() != 0 {
		t.Error("malformed commands must not open a session")
	}
}

func TestQuery_CallerCancellationDoesNotAbandonSession(t *testing.T) {
	tr := &stubTransport{authorized: true}
	factory, _ := factoryFor(tr)
	disp := &stubDispatcher{result: okResult(), delay: 50 * time.Millisecond}
	e := New(factory, disp)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	res, err := e.Query(ctx, "/dni 12345678")
	if err != nil || res == nil {
		t.Fatalf("Query: res=%v err=%v", res, err)
	}
	if disp.sawCtx.Err() != nil {
		t.Error("dispatch context should be detached from caller cancellation")
	}
	if tr.disconnected.Load() != 1 {
		t.Errorf("disconnects = %d, want 1", tr.disconnected.Load())
	}
}

func TestQuery_CacheHitWithPrunedMediaDispatchesAgain(t *testing.T) {
	ctx := context.Background()
	store, err := media.NewDiskStore(t.TempDir(), "http://x")
	if err != nil {
		t.Fatal(err)
	}
	u, err := store.Upload(ctx, []byte("jpeg"), "12345678", "a.jpg")
	if err != nil {
		t.Fatal(err)
	}

	result := okResult()
	result.Media = []domain.MediaRef{{URL: u, Type: "rostro"}}
	disp := &stubDispatcher{result: result}
	factory, _ := factoryFor(&stubTransport{authorized: true})
	e := New(factory, disp,
		WithCache(memory.NewResultCache(24*time.Hour)),
		WithMediaCheck(store),
	)

	if _, err := e.Query(ctx, "/dni 12345678"); err != nil {
		t.Fatal(err)
	}
	res, err := e.Query(ctx, "/dni 12345678")
	if err != nil || !res.FromCache {
		t.Fatalf("second query: res=%+v err=%v, want cache hit while media exists", res, err)
	}

	if n, err := store.Prune(ctx, time.Now().Add(5*time.Minute+time.Second)); err != nil || n != 1 {
		t.Fatalf("Prune = %d, %v", n, err)
	}

	res, err = e.Query(ctx, "/dni 12345678")
	if err != nil {
		t.Fatal(err)
	}
	if res.FromCache {
		t.Error("cached result with pruned media must not be served")
	}
	if disp.calls.Load() != 2 {
		t.Errorf("dispatches = %d, want 2", disp.calls.Load())
	}
}
