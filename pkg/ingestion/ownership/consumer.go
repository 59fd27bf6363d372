package ownership

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"com.aviebrantz.statistics/pkg/core/store/historical"
	"com.aviebrantz.statistics/pkg/ingestion"
	"github.com/apex/log"
	"github.com/cenkalti/backoff/v4"
	"gocloud.dev/pubsub"
)

const (
	MetadataType = "type"

	EventDelete = "delete"
	EventUpdate = "update"
)

var ErrMalformed = errors.New("malformed ownership event")

// Event is a change of an episode: removed, or moved to another series.
type Event struct {
	Type      string
	EpisodeID string
	SeriesID  string
}

type Config struct {
	// Measurements are cleaned up on every event.
	Measurements []string
	// EpisodePath and SeriesPath locate the ids in the flattened payload.
	EpisodePath string
	SeriesPath  string
	// EpisodeColumn and SeriesColumn are the tags holding the ids in the store.
	EpisodeColumn string
	SeriesColumn  string
	MaxRetries    uint64
	// RetryInterval is the first backoff interval.
	RetryInterval time.Duration
}

// Consumer keeps stored points consistent with episode deletions and moves.
type Consumer struct {
	sub    *pubsub.Subscription
	store  historical.Maintainer
	config Config
	logger *log.Entry
}

func NewConsumer(sub *pubsub.Subscription, store historical.Maintainer, config Config) *Consumer {
	if config.EpisodePath == "" {
		config.EpisodePath = "episodeId"
	}
	if config.SeriesPath == "" {
		config.SeriesPath = "seriesId"
	}
	if config.EpisodeColumn == "" {
		config.EpisodeColumn = "episodeId"
	}
	if config.SeriesColumn == "" {
		config.SeriesColumn = "seriesId"
	}
	if config.RetryInterval <= 0 {
		config.RetryInterval = 500 * time.Millisecond
	}
	return &Consumer{
		sub:    sub,
		store:  store,
		config: config,
		logger: log.WithField("module", "ownership-consumer"),
	}
}

// Decode reads an ownership event from msg.
func (c *Consumer) Decode(msg *pubsub.Message) (Event, error) {
	ev := Event{Type: strings.ToLower(msg.Metadata[MetadataType])}
	if ev.Type != EventDelete && ev.Type != EventUpdate {
		return ev, fmt.Errorf("%w: unknown type %q", ErrMalformed, msg.Metadata[MetadataType])
	}
	payload, err := ingestion.DecodePayload(msg)
	if err != nil {
		return ev, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	var ok bool
	if ev.EpisodeID, ok = ingestion.StringAt(payload, c.config.EpisodePath); !ok {
		return ev, fmt.Errorf("%w: no episode id at %s", ErrMalformed, c.config.EpisodePath)
	}
	if ev.Type == EventUpdate {
		if ev.SeriesID, ok = ingestion.StringAt(payload, c.config.SeriesPath); !ok {
			return ev, fmt.Errorf("%w: no series id at %s", ErrMalformed, c.config.SeriesPath)
		}
	}
	return ev, nil
}

// Apply performs the store changes for ev on every measurement.
func (c *Consumer) Apply(ctx context.Context, ev Event) error {
	for _, m := range c.config.Measurements {
		var err error
		switch ev.Type {
		case EventDelete:
			err = c.store.DeleteResource(ctx, m, c.config.EpisodeColumn, ev.EpisodeID)
		case EventUpdate:
			err = c.store.ReassignResource(ctx, m, c.config.EpisodeColumn, ev.EpisodeID, c.config.SeriesColumn, ev.SeriesID)
		}
		if err != nil {
			return fmt.Errorf("%s %s in %s: %w", ev.Type, ev.EpisodeID, m, err)
		}
	}
	return nil
}

func (c *Consumer) retryPolicy(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.config.RetryInterval
	return backoff.WithContext(backoff.WithMaxRetries(exp, c.config.MaxRetries), ctx)
}

func (c *Consumer) handle(ctx context.Context, msg *pubsub.Message) string {
	ev, err := c.Decode(msg)
	if err != nil {
		c.logger.Warnf("dropping message: %v", err)
		msg.Ack()
		return ingestion.OutcomeDropped
	}

	err = backoff.RetryNotify(func() error {
		return c.Apply(ctx, ev)
	}, c.retryPolicy(ctx), func(err error, wait time.Duration) {
		c.logger.Warnf("retrying %s of %s in %v: %v", ev.Type, ev.EpisodeID, wait, err)
	})
	if err != nil {
		c.logger.Errorf("err applying %s of %s: %v", ev.Type, ev.EpisodeID, err)
		if msg.Nackable() {
			msg.Nack()
			return ingestion.OutcomeNack
		}
		msg.Ack()
		return ingestion.OutcomeDropped
	}

	c.logger.Infof("applied %s of episode %s", ev.Type, ev.EpisodeID)
	msg.Ack()
	return ingestion.OutcomeAck
}

// Start receives until ctx is done or the subscription fails.
func (c *Consumer) Start(ctx context.Context) error {
	for {
		msg, err := c.sub.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Warnf("err receiving message: %v", err)
			return err
		}
		startTime := time.Now()
		outcome := c.handle(ctx, msg)
		ingestion.RecordMessage(ctx, "ownership", outcome, startTime)
	}
}
