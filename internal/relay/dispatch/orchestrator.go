// Package dispatch sends a query to the eligible actors in priority order and
// returns the first genuine answer.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/vietddude/botrelay/internal/core/domain"
	"github.com/vietddude/botrelay/internal/infra/transport"
	"github.com/vietddude/botrelay/internal/relay/aggregate"
	"github.com/vietddude/botrelay/internal/relay/breaker"
	"github.com/vietddude/botrelay/internal/relay/classify"
	"github.com/vietddude/botrelay/internal/relay/collector"
	"github.com/vietddude/botrelay/internal/relay/metrics"
)

// DefaultRateLimitCooldown is the pause before trying the next actor after a rate-limit reply.
const DefaultRateLimitCooldown = 5 * time.Second

// ActorProfile is an actor with its collection timing per endpoint kind.
type ActorProfile struct {
	Actor      domain.Actor
	Standard   collector.Profile
	NameSearch collector.Profile
}

// ProfileFor returns the collection profile for a query kind.
func (p ActorProfile) ProfileFor(kind domain.EndpointKind) collector.Profile {
	if kind == domain.EndpointNameSearch && p.NameSearch.TotalTimeout > 0 {
		return p.NameSearch
	}
	return p.Standard
}

// Materializer turns accepted messages into aggregation inputs, storing their
// media. On error it must leave nothing stored.
type Materializer interface {
	Materialize(ctx context.Context, q domain.Query, msgs []domain.ParsedMessage) ([]aggregate.Input, error)
}

// textOnly is used when no media store is configured.
type textOnly struct{}

func (textOnly) Materialize(_ context.Context, _ domain.Query, msgs []domain.ParsedMessage) ([]aggregate.Input, error) {
	inputs := make([]aggregate.Input, 0, len(msgs))
	for _, m := range msgs {
		inputs = append(inputs, aggregate.Input{Message: m})
	}
	return inputs, nil
}

// Config configures an Orchestrator.
type Config struct {
	Actors            []ActorProfile
	RateLimitCooldown time.Duration
}

// Orchestrator is the failover engine.
type Orchestrator struct {
	actors     []ActorProfile
	cooldown   time.Duration
	breaker    breaker.Breaker
	classifier *classify.Classifier
	collector  *collector.Collector
	registry   *collector.Registry
	aggregator *aggregate.Aggregator
	media      Materializer
	log        *slog.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// NewOrchestrator creates an orchestrator. Actors are tried in ascending
// Priority; ties keep configuration order. media may be nil.
func NewOrchestrator(
	cfg Config,
	br breaker.Breaker,
	classifier *classify.Classifier,
	coll *collector.Collector,
	aggregator *aggregate.Aggregator,
	media Materializer,
	log *slog.Logger,
) *Orchestrator {
	actors := append([]ActorProfile(nil), cfg.Actors...)
	sort.SliceStable(actors, func(i, j int) bool {
		return actors[i].Actor.Priority < actors[j].Actor.Priority
	})
	if cfg.RateLimitCooldown <= 0 {
		cfg.RateLimitCooldown = DefaultRateLimitCooldown
	}
	if media == nil {
		media = textOnly{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		actors:     actors,
		cooldown:   cfg.RateLimitCooldown,
		breaker:    br,
		classifier: classifier,
		collector:  coll,
		registry:   collector.NewRegistry(),
		aggregator: aggregator,
		media:      media,
		log:        log,
		sleep:      sleepCtx,
	}
}

// Actors returns the configured actors in priority order.
func (o *Orchestrator) Actors() []domain.ActorID {
	ids := make([]domain.ActorID, 0, len(o.actors))
	for _, a := range o.actors {
		ids = append(ids, a.Actor.ID)
	}
	return ids
}

// Eligible returns the actors not currently blocked, in priority order.
func (o *Orchestrator) Eligible() []ActorProfile {
	eligible := make([]ActorProfile, 0, len(o.actors))
	for _, a := range o.actors {
		if !o.breaker.IsBlocked(a.Actor.ID) {
			eligible = append(eligible, a)
		}
	}
	return eligible
}

// ActiveSessions returns the number of sessions currently collecting.
func (o *Orchestrator) ActiveSessions() int {
	return o.registry.Active()
}

// Dispatch sends q through t to each eligible actor at most once, in order,
// until one gives an answer. t must already be connected and authorized.
func (o *Orchestrator) Dispatch(ctx context.Context, t transport.Transport, q domain.Query) (*domain.AggregatedResult, error) {
	eligible := o.Eligible()
	if len(eligible) == 0 {
		return nil, domain.NewError(domain.KindAllActorsBlocked,
			"all actors are temporarily blocked", nil)
	}

	log := o.log.With("query_id", q.ID, "command", q.CommandName())

	var lastErr *domain.Error
	for i, ap := range eligible {
		actor := ap.Actor.ID
		isLast := i == len(eligible)-1
		alog := log.With("actor", actor)

		out, sendErr := o.attempt(ctx, t, q, ap)
		if sendErr != nil {
			action := ClassifySendError(sendErr)
			metrics.DispatchTotal.WithLabelValues(string(actor), "send_error").Inc()
			if action == ActionFatal {
				alog.Error("Send failed", "error", sendErr)
				return nil, &domain.Error{
					Kind:    domain.KindTransportUnavailable,
					Message: "failed to send command",
					Actor:   actor,
					Err:     sendErr,
				}
			}

			alog.Warn("Actor refused the command, failing over", "error", sendErr)
			o.breaker.RecordFailure(actor)
			metrics.Failovers.WithLabelValues(string(actor), "unreachable").Inc()
			lastErr = &domain.Error{
				Kind:    domain.KindNoResponse,
				Message: "actor is unreachable",
				Actor:   actor,
				Err:     sendErr,
			}
			continue
		}

		var verdict domain.Verdict
		if out.State == collector.StateClosedOK {
			verdict = o.classifier.Classify(actor, out.Messages).Verdict
		}
		action := ClassifyOutcome(out, verdict)

		label := string(verdict)
		if label == "" {
			label = "timeout"
		}
		metrics.DispatchTotal.WithLabelValues(string(actor), label).Inc()

		alog.Info("Actor attempt finished",
			"state", out.State,
			"verdict", verdict,
			"messages", len(out.Messages),
			"duration", out.Duration,
			"action", action,
		)

		switch action {
		case ActionAccept:
			return o.accept(ctx, q, actor, out.Messages)

		case ActionReturn:
			kind := domain.KindNotFound
			if verdict == domain.VerdictFormatError {
				kind = domain.KindFormatError
			}
			return nil, &domain.Error{Kind: kind, Message: joinText(out.Messages), Actor: actor}

		case ActionFatal:
			return nil, &domain.Error{
				Kind:    domain.KindTransportUnavailable,
				Message: "session ended before the actor replied",
				Actor:   actor,
				Err:     fmt.Errorf("collection closed: %s", out.Reason),
			}

		case ActionFailover:
			o.breaker.RecordFailure(actor)
			metrics.Failovers.WithLabelValues(string(actor), "timeout").Inc()
			lastErr = &domain.Error{
				Kind:    domain.KindNoResponse,
				Message: "no actor replied in time",
				Actor:   actor,
			}

		case ActionCooldown:
			metrics.Failovers.WithLabelValues(string(actor), "rate_limited").Inc()
			lastErr = &domain.Error{
				Kind:    domain.KindRateLimitedExhausted,
				Message: "every actor rate limited the command",
				Actor:   actor,
			}
			if !isLast {
				if err := o.sleep(ctx, o.cooldown); err != nil {
					return nil, lastErr
				}
			}
		}
	}

	return nil, lastErr
}

// attempt sends the command once and collects the reply. A non-nil error
// means the send itself failed.
func (o *Orchestrator) attempt(ctx context.Context, t transport.Transport, q domain.Query, ap ActorProfile) (collector.Outcome, error) {
	s, err := o.registry.Open(q, ap.Actor.ID)
	if err != nil {
		return collector.Outcome{}, fmt.Errorf("open session: %w", err)
	}
	defer o.registry.Release(s)

	if err := t.Send(ctx, ap.Actor.ID, q.Command); err != nil {
		return collector.Outcome{}, err
	}

	out := o.collector.Collect(ctx, s, ap.ProfileFor(q.Kind), t.Messages())

	metrics.CollectionDuration.WithLabelValues(string(ap.Actor.ID), string(out.State)).Observe(out.Duration.Seconds())
	metrics.MessagesCollected.WithLabelValues(string(ap.Actor.ID)).Observe(float64(len(out.Messages)))
	return out, nil
}

func (o *Orchestrator) accept(ctx context.Context, q domain.Query, actor domain.ActorID, msgs []domain.ParsedMessage) (*domain.AggregatedResult, error) {
	inputs, err := o.media.Materialize(ctx, q, msgs)
	if err != nil {
		return nil, fmt.Errorf("materialize reply from %s: %w", actor, err)
	}
	return o.aggregator.Aggregate(actor, inputs), nil
}

func joinText(msgs []domain.ParsedMessage) string {
	parts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		text := m.Text
		if text == "" {
			text = strings.TrimSpace(m.RawText)
		}
		if text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, aggregate.BodySeparator)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
