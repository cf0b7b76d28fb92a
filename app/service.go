// Package app assembles a full role node from its configuration: stores,
// signer, directory, message engine, lifecycle scheduler and the role
// coordinator, plus the HTTP surfaces around them.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	apinode "github.com/kilianp07/usef/api/node"
	"github.com/kilianp07/usef/config"
	"github.com/kilianp07/usef/coordinator"
	"github.com/kilianp07/usef/core/events"
	"github.com/kilianp07/usef/core/exchange"
	"github.com/kilianp07/usef/core/lifecycle"
	coremetrics "github.com/kilianp07/usef/core/metrics"
	"github.com/kilianp07/usef/core/model"
	"github.com/kilianp07/usef/core/planboard"
	coreregistry "github.com/kilianp07/usef/core/registry"
	"github.com/kilianp07/usef/core/router"
	"github.com/kilianp07/usef/core/scheduler"
	"github.com/kilianp07/usef/core/sign"
	"github.com/kilianp07/usef/infra/keystore"
	"github.com/kilianp07/usef/infra/logger"
	"github.com/kilianp07/usef/infra/metrics"
	"github.com/kilianp07/usef/infra/registry"
	"github.com/kilianp07/usef/infra/transport"
	"github.com/kilianp07/usef/internal/eventbus"
	"github.com/kilianp07/usef/jobs/archive"

	_ "github.com/kilianp07/usef/infra/mqtt"
	_ "github.com/kilianp07/usef/infra/planboard"
)

// Coordinator is the role-specific behavior plugged into the node.
type Coordinator interface {
	Register(rt *router.Router)
	Run(ctx context.Context)
}

// Service is one assembled role node.
type Service struct {
	Engine      *exchange.Engine
	Store       planboard.Store
	Coordinator Coordinator

	me        model.Participant
	cfg       *config.Config
	keys      *keystore.SQLiteStore
	provider  exchange.QueueProvider
	poster    *transport.Poster
	lifecycle *lifecycle.Engine
	sweeper   *coordinator.Sweeper
	retention *archive.Job
	sched     *scheduler.WallClock
	phases    *eventbus.Bus[events.PhaseEvent]
	recreated *eventbus.Bus[events.RecreateEvent]
	apiMux    *http.ServeMux
	receiver  http.Handler
	log       logger.Logger
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	logg := logger.New("service")
	me, err := cfg.Node.Me()
	if err != nil {
		return nil, err
	}

	keys, err := keystore.NewSQLiteStore(cfg.Keystore.Path)
	if err != nil {
		return nil, fmt.Errorf("keystore: %w", err)
	}
	signer, err := sign.New(keys, cfg.Node.MinSignatureVersion)
	if err != nil {
		return nil, fmt.Errorf("signer: %w", err)
	}
	dir, err := newDirectory(cfg.Registry)
	if err != nil {
		return nil, fmt.Errorf("directory: %w", err)
	}

	store, err := planboard.NewStore(cfg.Planboard)
	if err != nil {
		return nil, fmt.Errorf("plan board: %w", err)
	}
	groups, err := cfg.Node.ConnectionGroups()
	if err != nil {
		return nil, err
	}
	if err := store.EnsureGroups(groups); err != nil {
		return nil, fmt.Errorf("ensure connection groups: %w", err)
	}

	provider, err := exchange.NewTransport(cfg.Transport)
	if err != nil {
		return nil, fmt.Errorf("transport: %w", err)
	}
	sink, err := coremetrics.NewSink(cfg.Metrics.Sinks)
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	sched := scheduler.NewWallClock(logg)
	rt := router.New()
	phases := eventbus.New[events.PhaseEvent]()
	recreated := eventbus.New[events.RecreateEvent]()

	engine, err := exchange.New(me, cfg.Exchange, signer, dir, sched,
		provider.Queue("outgoing"), provider.Queue("not-sent"), rt,
		store, store, sink, nil, logger.New("exchange"))
	if err != nil {
		return nil, fmt.Errorf("exchange engine: %w", err)
	}

	deps := coordinator.Deps{
		Me:     me,
		Engine: engine,
		Docs:   store,
		Ptus:   store,
		Phases: phases,
		Log:    logger.New("coordinator"),
	}
	coord, err := newCoordinator(me.Role, deps, cfg.Node.MeterRecipients)
	if err != nil {
		return nil, err
	}
	coord.Register(rt)

	sweeper := coordinator.NewSweeper(store, engine, sched, recreated,
		time.Duration(cfg.Sweep.IntervalS)*time.Second, logger.New("sweeper"))
	retention := archive.New(store, sched, cfg.Archive.RetentionDays, logger.New("archive"))

	lc := lifecycle.New(cfg.Lifecycle, me.Role, store, phases, sched, logger.New("lifecycle"))

	view := apinode.ConfigView{
		Role:                cfg.Node.Role,
		Domain:              cfg.Node.Domain,
		PtuDurationMinutes:  cfg.Lifecycle.PtuDurationMinutes,
		DayAheadGateClosure: cfg.Lifecycle.DayAheadGateClosure,
		TransportType:       cfg.Transport.Type,
		PlanboardType:       cfg.Planboard.Type,
		RegistryMode:        cfg.Registry.Mode,
	}
	for _, g := range groups {
		view.Groups = append(view.Groups, g.ID)
	}

	incoming := provider.Queue("incoming")
	svc := &Service{
		Engine:      engine,
		Store:       store,
		Coordinator: coord,
		me:          me,
		cfg:         cfg,
		keys:        keys,
		provider:    provider,
		poster:      transport.NewPoster(dir, time.Duration(cfg.HTTP.DeliverTimeoutMS)*time.Millisecond, logger.New("poster")),
		lifecycle:   lc,
		sweeper:     sweeper,
		retention:   retention,
		sched:       sched,
		phases:      phases,
		recreated:   recreated,
		apiMux:      apinode.NewMux(store, store, keys, view, cfg.HTTP.APIToken),
		receiver:    transport.NewReceiver(incoming, cfg.HTTP.MaxBodyBytes, logger.New("receiver")),
		log:         logg,
	}
	return svc, nil
}

func newDirectory(cfg config.RegistryConfig) (coreregistry.Directory, error) {
	switch cfg.Mode {
	case "cro":
		return registry.NewCROClient(cfg.CRO), nil
	default:
		return registry.NewStaticDirectory(cfg.Static)
	}
}

func newCoordinator(role model.Role, deps coordinator.Deps, recipients []config.ParticipantRef) (Coordinator, error) {
	switch role {
	case model.RoleAGR:
		return coordinator.NewAggregator(deps), nil
	case model.RoleDSO:
		return coordinator.NewGridOperator(deps), nil
	case model.RoleBRP:
		return coordinator.NewBalanceParty(deps), nil
	case model.RoleMDC:
		to := make([]model.Participant, 0, len(recipients))
		for _, r := range recipients {
			p, err := r.Participant()
			if err != nil {
				return nil, err
			}
			to = append(to, p)
		}
		return coordinator.NewMeterDataCompany(deps, nil, to), nil
	case model.RoleCRO:
		return coordinator.NewCommonReference(deps), nil
	default:
		return nil, fmt.Errorf("no coordinator for role %s", role)
	}
}

// Run starts the node and blocks until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if err := s.provider.Subscribe("outgoing", func(payload []byte) {
		if err := s.poster.Deliver(ctx, payload); err != nil {
			s.log.Errorf("deliver outbound message: %v", err)
		}
	}); err != nil {
		return fmt.Errorf("subscribe outgoing: %w", err)
	}
	if err := s.provider.Subscribe("incoming", func(payload []byte) {
		if err := s.Engine.OnInbound(ctx, payload); err != nil {
			s.log.Errorf("process inbound message: %v", err)
		}
	}); err != nil {
		return fmt.Errorf("subscribe incoming: %w", err)
	}

	s.lifecycle.Register()
	s.sweeper.Register()
	s.retention.Register()
	go s.Coordinator.Run(ctx)

	if port := s.cfg.Metrics.PrometheusPort; port != "" {
		go func() {
			if err := metrics.StartPromServer(ctx, port); err != nil {
				s.log.Errorf("prometheus server: %v", err)
			}
		}()
	}
	go s.serve(ctx, s.cfg.HTTP.ReceiverAddr, s.receiver, "receiver")
	go s.serve(ctx, s.cfg.HTTP.APIAddr, s.apiMux, "api")

	s.log.Infof("%s node running on %s", s.me.Role, s.me.Domain)
	<-ctx.Done()
	return nil
}

func (s *Service) serve(ctx context.Context, addr string, h http.Handler, name string) {
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.log.Errorf("%s server: %v", name, err)
	}
}

// SendTestMessage probes connectivity to the recipient. The probe is
// sent TRANSACTIONAL so the counterpart's echo resolves the pending
// acknowledgement. With the in-process transport delivery happens
// synchronously and a transport failure is returned to the caller.
func (s *Service) SendTestMessage(ctx context.Context, recipient model.Participant) error {
	var deliverErr error
	if err := s.provider.Subscribe("outgoing", func(payload []byte) {
		if err := s.poster.Deliver(ctx, payload); err != nil {
			deliverErr = err
		}
	}); err != nil {
		return fmt.Errorf("subscribe outgoing: %w", err)
	}
	now := time.Now().UTC()
	doc := model.Document{
		Type:      model.DocTestMessage,
		Period:    time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC),
		Sender:    s.me,
		Recipient: recipient,
		Status:    model.StatusSent,
		Body:      []byte(`{"query":"ping"}`),
	}
	if _, err := s.Engine.Send(doc, model.PrecedenceTransactional); err != nil {
		return err
	}
	return deliverErr
}

// Close releases the resources held by the node.
func (s *Service) Close() error {
	s.sched.Stop()
	s.phases.Close()
	s.recreated.Close()
	s.provider.Close()
	if err := s.keys.Close(); err != nil {
		return err
	}
	return s.Store.Close()
}
