// Package leaseextender keeps a pubsub message leased while a scan of the
// package it names is still running.
package leaseextender

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"gocloud.dev/pubsub"
	"gocloud.dev/pubsub/gcppubsub"

	"github.com/AnishDe12020/unsus/internal/featureflags"
)

const (
	defaultGracePeriod = 60 * time.Second
	defaultDeadline    = 300 * time.Second
)

var ErrInvalidGracePeriod = errors.New("invalid grace period")

type driver interface {
	// ExtendMessageDeadline asks the broker to redeliver msg no sooner than
	// deadline from now.
	ExtendMessageDeadline(ctx context.Context, msg *pubsub.Message, deadline time.Duration) error

	// SubscriptionDeadline returns the subscription's ack deadline, or zero if
	// the broker has no such notion.
	SubscriptionDeadline(ctx context.Context) (time.Duration, error)
}

// Extender renews message leases at Deadline-GracePeriod intervals.
type Extender struct {
	driver      driver
	Deadline    time.Duration
	GracePeriod time.Duration
}

func driverFor(u *url.URL, sub *pubsub.Subscription) (driver, error) {
	if !featureflags.PubSubExtender.Enabled() || u.Scheme != gcppubsub.Scheme {
		return noopDriver{}, nil
	}
	return newGCPDriver(u, sub)
}

// New returns an Extender for the subscription opened from subURL. Brokers
// other than GCP Pub/Sub get an Extender that does nothing.
func New(ctx context.Context, subURL string, sub *pubsub.Subscription) (*Extender, error) {
	u, err := url.Parse(subURL)
	if err != nil {
		return nil, err
	}
	d, err := driverFor(u, sub)
	if err != nil {
		return nil, err
	}
	deadline, err := d.SubscriptionDeadline(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read subscription deadline: %w", err)
	}
	if deadline == 0 {
		deadline = defaultDeadline
	}
	return &Extender{driver: d, Deadline: deadline, GracePeriod: defaultGracePeriod}, nil
}

// Lease is a running renewal loop for one message.
type Lease struct {
	cancel  context.CancelFunc
	done    chan struct{}
	err     error
	once    sync.Once
	renewed func()
}

// Hold starts renewing msg's lease until Release is called. onRenew, if not
// nil, runs after every successful renewal.
func (e *Extender) Hold(ctx context.Context, msg *pubsub.Message, onRenew func()) (*Lease, error) {
	interval := e.Deadline - e.GracePeriod
	if interval <= 0 {
		return nil, fmt.Errorf("%w: deadline %v is not larger than grace period %v", ErrInvalidGracePeriod, e.Deadline, e.GracePeriod)
	}

	ctx, cancel := context.WithCancel(ctx)
	l := &Lease{cancel: cancel, done: make(chan struct{}), renewed: onRenew}
	go l.loop(ctx, e, msg, interval)
	return l, nil
}

func (l *Lease) loop(ctx context.Context, e *Extender, msg *pubsub.Message, interval time.Duration) {
	defer close(l.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.driver.ExtendMessageDeadline(ctx, msg, e.Deadline); err != nil {
				if ctx.Err() == nil {
					slog.WarnContext(ctx, "Failed to extend message lease", "error", err)
					l.err = err
				}
				return
			}
			if l.renewed != nil {
				l.renewed()
			}
		}
	}
}

// Release stops the renewal loop and returns the error that ended it early,
// if any. Later calls return nil.
func (l *Lease) Release() error {
	var err error
	l.once.Do(func() {
		l.cancel()
		<-l.done
		err = l.err
	})
	return err
}
