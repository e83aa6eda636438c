package events

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"prism-todo/storage"
	"prism-todo/store"
)

// Options selects the event transports.
type Options struct {
	Log                   bool
	RedisURL              string
	RedisChannel          string
	QueueConnectionString string
	QueueName             string
	Dispatcher            DispatcherConfig
}

// Build assembles the configured publishers behind a Dispatcher. The
// publisher is nil when no transport is enabled. The returned func drains
// the dispatcher and releases transport clients.
func Build(o Options, logger *log.Logger) (store.Publisher, func(), error) {
	var (
		pubs    Multi
		closers []func()
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if o.Log {
		pubs = append(pubs, NewLogPublisher(logger))
	}
	if o.RedisChannel != "" {
		opts, err := storage.ParseRedisURL(o.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("redis events: %w", err)
		}
		rc := redis.NewClient(opts)
		closers = append(closers, func() { _ = rc.Close() })
		pubs = append(pubs, NewRedisPublisher(rc, o.RedisChannel))
	}
	if o.QueueConnectionString != "" || o.QueueName != "" {
		q, err := NewQueuePublisher(o.QueueConnectionString, o.QueueName)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		pubs = append(pubs, q)
	}

	if len(pubs) == 0 {
		return nil, func() {}, nil
	}
	var next store.Publisher = pubs
	if len(pubs) == 1 {
		next = pubs[0]
	}
	d := NewDispatcher(next, o.Dispatcher, logger)
	return d, func() {
		d.Close()
		closeAll()
	}, nil
}
