package session

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/alanbriolat/ezfetch/internal/locate"
	"github.com/alanbriolat/ezfetch/internal/notify"
	"github.com/alanbriolat/ezfetch/internal/process"
	"github.com/alanbriolat/ezfetch/internal/pubsub"
	"github.com/alanbriolat/ezfetch/internal/settings"
	sync_ "github.com/alanbriolat/ezfetch/internal/sync"
	"github.com/alanbriolat/ezfetch/internal/tools"
)

var (
	ErrSessionClosed = errors.New("session closed")
	ErrBusy          = errors.New("metadata is still being resolved")
	ErrTaskActive    = errors.New("a task is already active")
	ErrNotReady      = errors.New("no task is ready to download")
	ErrNoActiveTask  = errors.New("no active task")
	ErrNoSavePath    = errors.New("no save path chosen")
	ErrInvalidConfig = errors.New("invalid session config")
)

// Confirmer asks the user whether the active task should really be cancelled. It is called with the task's process
// suspended, and nothing else happens in the session until it returns.
type Confirmer interface {
	ConfirmCancel(ctx context.Context, current Snapshot) bool
}

type ConfirmFunc func(ctx context.Context, current Snapshot) bool

func (f ConfirmFunc) ConfirmCancel(ctx context.Context, current Snapshot) bool {
	return f(ctx, current)
}

var AlwaysConfirm = ConfirmFunc(func(context.Context, Snapshot) bool { return true })

type Notifier interface {
	Notify(ctx context.Context, c notify.Completion, prefs settings.Preferences) error
}

type ToolLocator interface {
	Locate(tool string) (string, error)
}

type Config struct {
	Runner      process.Runner
	Locator     ToolLocator
	Confirmer   Confirmer
	Notifier    Notifier
	History     History
	Preferences settings.Loader
	Downloader  string
	Transcoder  string
}

var DefaultConfig = Config{
	Runner:      &process.ExecRunner{},
	Locator:     locate.Default(),
	Confirmer:   AlwaysConfirm,
	Notifier:    notify.New(),
	History:     NilHistory{},
	Preferences: settings.NewMemoryStore(settings.Defaults()),
	Downloader:  tools.Downloader,
	Transcoder:  tools.Transcoder,
}

// Session runs one task at a time through metadata resolution, download and optional conversion. All task state is
// owned by a single goroutine; methods send it commands and wait for the result.
type Session struct {
	config    Config
	ctx       context.Context
	ctxCancel context.CancelFunc
	log       *zap.SugaredLogger

	snapshot *sync_.RWMutexed[Snapshot]
	events   pubsub.Publisher[Event]
	commands chan any
	done     chan struct{}

	// Owned by run()
	task *task
}

func New(ctx context.Context, config Config) (*Session, error) {
	if config.Runner == nil || config.Locator == nil {
		return nil, ErrInvalidConfig
	}
	if config.Confirmer == nil {
		config.Confirmer = AlwaysConfirm
	}
	if config.Notifier == nil {
		config.Notifier = &notify.Notifier{}
	}
	if config.History == nil {
		config.History = NilHistory{}
	}
	if config.Preferences == nil {
		config.Preferences = settings.NewMemoryStore(settings.Defaults())
	}
	if config.Downloader == "" {
		config.Downloader = tools.Downloader
	}
	if config.Transcoder == "" {
		config.Transcoder = tools.Transcoder
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &Session{
		config:    config,
		ctx:       ctx,
		ctxCancel: cancel,
		log:       zap.S().Named("session"),

		snapshot: sync_.NewRWMutexed(idleSnapshot),
		events:   pubsub.NewPublisher[Event](),
		commands: make(chan any),
		done:     make(chan struct{}),
	}
	go s.run()
	return s, nil
}

// Snapshot returns the current state without waiting for the session goroutine.
func (s *Session) Snapshot() Snapshot {
	return s.snapshot.Get()
}

// Subscribe returns a receiver for all future events. Subscribers must keep receiving: the session waits for slow
// subscribers rather than dropping events.
func (s *Session) Subscribe(bufSize int) (pubsub.ReceiverCloser[Event], error) {
	return s.events.SubscribeBufSize(bufSize)
}

// SubscribeFinished is like Subscribe, but only delivers TaskFinished events.
func (s *Session) SubscribeFinished(bufSize int) (pubsub.ReceiverCloser[Event], error) {
	return s.events.SubscribeFiltered(bufSize, pubsub.OfType[Event, TaskFinished]())
}

// Close terminates any running process and stops the session, closing all subscribers.
func (s *Session) Close() {
	s.ctxCancel()
	<-s.done
}
