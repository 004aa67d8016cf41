package control

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vietddude/botrelay/internal/core/config"
	"github.com/vietddude/botrelay/internal/core/domain"
	"github.com/vietddude/botrelay/internal/infra/storage"
	"github.com/vietddude/botrelay/internal/infra/transport"
)

// scriptedTransport answers every Send with the configured replies from that actor.
type scriptedTransport struct {
	replies map[domain.ActorID][]domain.IncomingMessage
	stream  chan domain.IncomingMessage
}

func (s *scriptedTransport) Connect(ctx context.Context) error              { return nil }
func (s *scriptedTransport) IsAuthorized(ctx context.Context) (bool, error) { return true, nil }
func (s *scriptedTransport) Messages() <-chan domain.IncomingMessage        { return s.stream }
func (s *scriptedTransport) Disconnect() error                              { return nil }

func (s *scriptedTransport) Send(ctx context.Context, actor domain.ActorID, text string) error {
	for _, m := range s.replies[actor] {
		m.Sender = actor
		m.ReceivedAt = time.Now()
		s.stream <- m
	}
	return nil
}

func testConfig(t *testing.T) *config.AppConfig {
	t.Helper()
	cfg, err := config.Parse([]byte(`
actors:
  - id: "@primary"
    total_timeout: 400ms
    idle_threshold: 80ms
  - id: "@backup"
    total_timeout: 400ms
    idle_threshold: 80ms
dispatch:
  rate_limit_cooldown: 10ms
cache:
  enabled: true
  ttl: 1m
media:
  retention: 1m
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	cfg.Server.Port = 0
	cfg.Media.Dir = t.TempDir()
	return cfg
}

func TestRelay_EndToEnd(t *testing.T) {
	cfg := testConfig(t)
	factory := func() transport.Transport {
		return &scriptedTransport{
			stream: make(chan domain.IncomingMessage, 16),
			replies: map[domain.ActorID][]domain.IncomingMessage{
				"@primary": {
					{RawText: "DNI : 12345678\nNOMBRES : JUAN"},
					{
						RawText: "DNI : 12345678\nFoto : rostro",
						Attachments: []domain.Attachment{
							{ID: "p1", Kind: domain.AttachmentPhoto, Data: []byte{0xff, 0xd8}},
						},
					},
				},
			},
		}
	}

	r, err := NewRelay(cfg, Options{Transports: factory})
	if err != nil {
		t.Fatalf("NewRelay: %v", err)
	}
	defer r.Close()

	res, err := r.Engine().Query(context.Background(), "/dnif 12345678")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if res.SourceActor != "@primary" || res.DNI != "12345678" || res.MessageCount != 2 {
		t.Errorf("result = %+v", res)
	}
	if _, ok := res.MediaByType["ROSTRO"]; !ok {
		t.Errorf("MediaByType = %v, want ROSTRO", res.MediaByType)
	}

	cached, err := r.Engine().Query(context.Background(), "/dnif 12345678")
	if err != nil || !cached.FromCache {
		t.Errorf("second query: from_cache=%v err=%v", cached != nil && cached.FromCache, err)
	}

	recs, err := r.History().List(context.Background(), storage.HistoryFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 || !recs[0].FromCache {
		t.Errorf("history = %+v", recs)
	}
}

func TestRelay_NoActorReplies(t *testing.T) {
	cfg := testConfig(t)
	factory := func() transport.Transport {
		return &scriptedTransport{stream: make(chan domain.IncomingMessage, 16)}
	}
	r, err := NewRelay(cfg, Options{Transports: factory})
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	_, err = r.Engine().Query(context.Background(), "/dni 12345678")
	if !errors.Is(err, domain.ErrNoResponse) {
		t.Fatalf("err = %v, want no_response", err)
	}
	_, err = r.Engine().Query(context.Background(), "/dni 12345678")
	if !errors.Is(err, domain.ErrAllActorsBlocked) {
		t.Errorf("err = %v, want all_actors_blocked", err)
	}

	report := r.healthMon.CheckHealth(context.Background())
	if report.SystemStatus != "critical" {
		t.Errorf("health = %s, want critical", report.SystemStatus)
	}
}

func TestRelay_StartStop(t *testing.T) {
	cfg := testConfig(t)
	r, err := NewRelay(cfg, Options{Transports: func() transport.Transport {
		return &scriptedTransport{stream: make(chan domain.IncomingMessage)}
	}})
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.Stop(ctx); err != nil {
		t.Errorf("Stop: %v", err)
	}
}

func TestActorProfile(t *testing.T) {
	a := config.ActorConfig{
		ID:                "@backup",
		TotalTimeout:      50 * time.Second,
		IdleThreshold:     5 * time.Second,
		NameSearchTimeout: 70 * time.Second,
		MaxMessages:       8,
	}
	p := ActorProfile(a, 1)
	if p.Actor.ID != "@backup" || p.Actor.Priority != 1 {
		t.Errorf("actor = %+v", p.Actor)
	}
	if p.Standard.TotalTimeout != 50*time.Second || p.Standard.IdleThreshold != 5*time.Second || p.Standard.MaxMessages != 8 {
		t.Errorf("standard = %+v", p.Standard)
	}
	if p.NameSearch.TotalTimeout != 70*time.Second || p.NameSearch.IdleThreshold != 5*time.Second {
		t.Errorf("name search = %+v", p.NameSearch)
	}
}
