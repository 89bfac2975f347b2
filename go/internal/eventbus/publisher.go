package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mcdev12/econgame/go/internal/events"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
)

// Config controls the JetStream mirror. An empty URL disables it.
type Config struct {
	URL             string        `yaml:"url"`
	StreamName      string        `yaml:"stream_name"`
	SubjectPrefix   string        `yaml:"subject_prefix"`
	MaxReconnects   int           `yaml:"max_reconnects"`
	ReconnectWait   time.Duration `yaml:"reconnect_wait"`
	MaxAge          time.Duration `yaml:"max_age"`
	MaxMsgs         int64         `yaml:"max_msgs"`
	Replicas        int           `yaml:"replicas"`
	DuplicateWindow time.Duration `yaml:"duplicate_window"`
	QueueSize       int           `yaml:"queue_size"`
	PublishTimeout  time.Duration `yaml:"publish_timeout"`
	MaxRetries      int           `yaml:"max_retries"`
	RetryDelay      time.Duration `yaml:"retry_delay"`
}

func DefaultConfig() Config {
	return Config{
		StreamName:      "ECONGAME_EVENTS",
		SubjectPrefix:   "econgame.events",
		MaxReconnects:   -1, // Infinite
		ReconnectWait:   2 * time.Second,
		MaxAge:          24 * time.Hour,
		MaxMsgs:         -1,
		Replicas:        1,
		DuplicateWindow: 10 * time.Minute,
		QueueSize:       1024,
		PublishTimeout:  5 * time.Second,
		MaxRetries:      3,
		RetryDelay:      250 * time.Millisecond,
	}
}

// Enabled reports whether a NATS server is configured.
func (c Config) Enabled() bool {
	return c.URL != ""
}

// Envelope is a game event together with the room it was sent to.
type Envelope struct {
	Room  events.Room
	Event *events.Event
}

// Mirror accepts copies of game events. Enqueue must not block.
type Mirror interface {
	Enqueue(env Envelope) bool
}

type msgPublisher interface {
	PublishMsg(ctx context.Context, msg *nats.Msg, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// Publisher mirrors game events into a JetStream stream from a single
// worker goroutine, so the engine never waits on the network.
type Publisher struct {
	nc     *nats.Conn
	js     msgPublisher
	config Config

	queue   chan Envelope
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool

	published atomic.Int64
	dropped   atomic.Int64
	failed    atomic.Int64
}

// NewPublisher connects to NATS and makes sure the stream exists.
func NewPublisher(cfg Config) (*Publisher, error) {
	opts := []nats.Option{
		nats.Name("econgame"),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.PublishTimeout)
	defer cancel()
	if err := ensureStream(ctx, js, cfg); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure stream: %w", err)
	}

	p := newPublisher(js, cfg)
	p.nc = nc
	return p, nil
}

func newPublisher(js msgPublisher, cfg Config) *Publisher {
	return &Publisher{
		js:     js,
		config: cfg,
		queue:  make(chan Envelope, cfg.QueueSize),
		stopCh: make(chan struct{}),
	}
}

func streamConfig(cfg Config) jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:        cfg.StreamName,
		Description: "Classroom investment game events",
		Subjects:    []string{cfg.SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      cfg.MaxAge,
		MaxMsgs:     cfg.MaxMsgs,
		Storage:     jetstream.FileStorage,
		Replicas:    cfg.Replicas,
		Duplicates:  cfg.DuplicateWindow,
	}
}

func ensureStream(ctx context.Context, js jetstream.JetStream, cfg Config) error {
	sc := streamConfig(cfg)

	stream, err := js.Stream(ctx, cfg.StreamName)
	if err != nil {
		if _, err = js.CreateStream(ctx, sc); err != nil {
			return fmt.Errorf("create stream: %w", err)
		}
		log.Info().Str("stream", cfg.StreamName).Msg("created JetStream stream")
		return nil
	}

	info, err := stream.Info(ctx)
	if err != nil {
		return fmt.Errorf("get stream info: %w", err)
	}
	if !isStreamConfigEqual(info.Config, sc) {
		if _, err = js.UpdateStream(ctx, sc); err != nil {
			return fmt.Errorf("update stream: %w", err)
		}
		log.Info().Str("stream", cfg.StreamName).Msg("updated JetStream stream")
	}
	return nil
}

func isStreamConfigEqual(a, b jetstream.StreamConfig) bool {
	return a.Name == b.Name &&
		a.MaxAge == b.MaxAge &&
		a.MaxMsgs == b.MaxMsgs &&
		a.Replicas == b.Replicas &&
		a.Duplicates == b.Duplicates
}

// Start launches the publishing worker.
func (p *Publisher) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return fmt.Errorf("event publisher already running")
	}
	p.running = true

	p.wg.Add(1)
	go p.run(ctx)

	log.Info().
		Str("stream", p.config.StreamName).
		Str("subject_prefix", p.config.SubjectPrefix).
		Msg("event publisher started")
	return nil
}

// Stop publishes what is already queued and waits for the worker to exit.
func (p *Publisher) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	close(p.stopCh)
	p.wg.Wait()

	log.Info().
		Int64("published", p.published.Load()).
		Int64("dropped", p.dropped.Load()).
		Int64("failed", p.failed.Load()).
		Msg("event publisher stopped")
}

// Close stops the worker and the NATS connection.
func (p *Publisher) Close() error {
	p.Stop()
	if p.nc != nil {
		p.nc.Close()
	}
	return nil
}

// Enqueue implements Mirror. A full queue drops the event.
func (p *Publisher) Enqueue(env Envelope) bool {
	select {
	case p.queue <- env:
		return true
	default:
		p.dropped.Add(1)
		log.Warn().Str("event_type", string(env.Event.Type)).Msg("event mirror queue full, dropping event")
		return false
	}
}

// run publishes until Stop is called or ctx is done, then drains the queue.
// Publishes are not tied to ctx so shutdown does not cut one off halfway.
func (p *Publisher) run(ctx context.Context) {
	defer p.wg.Done()
	publishCtx := context.WithoutCancel(ctx)

	for {
		select {
		case <-ctx.Done():
			p.flush()
			return
		case <-p.stopCh:
			p.flush()
			return
		case env := <-p.queue:
			p.publishWithRetry(publishCtx, env)
		}
	}
}

// flush publishes what is left in the queue within one PublishTimeout.
// Events it cannot publish in time are counted as failed.
func (p *Publisher) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), p.config.PublishTimeout)
	defer cancel()

	for {
		select {
		case env := <-p.queue:
			p.publishWithRetry(ctx, env)
		default:
			return
		}
	}
}

func (p *Publisher) publishWithRetry(ctx context.Context, env Envelope) {
	var err error
	for attempt := 0; ; attempt++ {
		if err = p.publish(ctx, env); err == nil {
			p.published.Add(1)
			return
		}
		if attempt >= p.config.MaxRetries || ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
		case <-time.After(p.config.RetryDelay):
		}
	}
	p.failed.Add(1)
	log.Error().
		Err(err).
		Str("event_id", env.Event.ID).
		Str("event_type", string(env.Event.Type)).
		Msg("failed to publish event to JetStream")
}

// Subject returns the subject an event type is published on.
func (p *Publisher) Subject(eventType events.Type) string {
	return fmt.Sprintf("%s.%s", p.config.SubjectPrefix, eventType)
}

func (p *Publisher) publish(ctx context.Context, env Envelope) error {
	data, err := json.Marshal(env.Event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.config.PublishTimeout)
	defer cancel()

	subject := p.Subject(env.Event.Type)
	ack, err := p.js.PublishMsg(ctx, &nats.Msg{
		Subject: subject,
		Data:    data,
		Header: nats.Header{
			"Event-Type": []string{string(env.Event.Type)},
			"Event-ID":   []string{env.Event.ID},
			"Room":       []string{string(env.Room)},
		},
	},
		jetstream.WithMsgID(env.Event.ID),
		jetstream.WithExpectStream(p.config.StreamName),
	)
	if err != nil {
		return fmt.Errorf("publish to JetStream: %w", err)
	}

	log.Debug().
		Str("subject", subject).
		Str("event_id", env.Event.ID).
		Uint64("sequence", ack.Sequence).
		Str("stream", ack.Stream).
		Msg("published to JetStream")
	return nil
}

// Stats reports publisher counters.
type Stats struct {
	Published int64 `json:"published"`
	Dropped   int64 `json:"dropped"`
	Failed    int64 `json:"failed"`
	Queued    int   `json:"queued"`
}

func (p *Publisher) Stats() Stats {
	return Stats{
		Published: p.published.Load(),
		Dropped:   p.dropped.Load(),
		Failed:    p.failed.Load(),
		Queued:    len(p.queue),
	}
}
