/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package commands implements the durable command queue between the web API
// and the changer firmware. Commands survive restarts; the firmware polls,
// executes, then acknowledges.
package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/slinkd/jukebox/internal/models"
	"github.com/slinkd/jukebox/internal/telemetry"
)

// EnqueueOptions carries the optional targeting fields of a command.
// Play commands require Player and Disc; transport commands carry none.
type EnqueueOptions struct {
	Player int
	Disc   int
	Track  int
}

// Queue is the durable FIFO of pending firmware commands.
type Queue struct {
	db         *gorm.DB
	logger     zerolog.Logger
	retention  time.Duration
	gcInterval time.Duration
}

// New constructs the command queue. Acknowledged commands are kept for
// retention so a re-delivered ack still finds its row, then swept every
// gcInterval.
func New(database *gorm.DB, logger zerolog.Logger, retention, gcInterval time.Duration) *Queue {
	return &Queue{
		db:         database,
		logger:     logger.With().Str("component", "commands").Logger(),
		retention:  retention,
		gcInterval: gcInterval,
	}
}

// newCommandID builds a queue-unique id. The millisecond prefix keeps ids
// roughly sortable in logs; the uuid suffix breaks same-millisecond ties.
func newCommandID() string {
	return fmt.Sprintf("cmd-%d-%s", time.Now().UnixMilli(), uuid.NewString()[:8])
}

// Enqueue appends a command to the queue and returns the stored row.
func (q *Queue) Enqueue(ctx context.Context, verb models.CommandVerb, opts EnqueueOptions) (*models.Command, error) {
	if !verb.Valid() {
		return nil, fmt.Errorf("unknown command verb %q", verb)
	}
	if verb == models.CommandPlay {
		if opts.Player != 1 && opts.Player != 2 {
			return nil, fmt.Errorf("play requires player 1 or 2, got %d", opts.Player)
		}
		if opts.Disc < 1 {
			return nil, fmt.Errorf("play requires a disc position, got %d", opts.Disc)
		}
		if opts.Track < 1 {
			opts.Track = 1
		}
	}

	cmd := models.Command{
		ID:        newCommandID(),
		Verb:      verb,
		Player:    opts.Player,
		Disc:      opts.Disc,
		Track:     opts.Track,
		CreatedAt: time.Now().UTC(),
	}
	if err := q.db.WithContext(ctx).Create(&cmd).Error; err != nil {
		return nil, fmt.Errorf("enqueue command: %w", err)
	}

	telemetry.CommandsEnqueuedTotal.WithLabelValues(string(verb)).Inc()
	q.logger.Info().
		Str("command_id", cmd.ID).
		Str("verb", string(verb)).
		Int("player", opts.Player).
		Int("disc", opts.Disc).
		Int("track", opts.Track).
		Msg("command enqueued")
	return &cmd, nil
}

// PeekOldest returns the oldest unacknowledged command without removing it,
// or nil when the queue is empty. The command stays at the head until the
// firmware acknowledges it, so a crashed poll cycle re-delivers.
func (q *Queue) PeekOldest(ctx context.Context) (*models.Command, error) {
	var cmd models.Command
	err := q.db.WithContext(ctx).
		Where("acknowledged = ?", false).
		Order("created_at ASC, id ASC").
		First(&cmd).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("peek command: %w", err)
	}
	return &cmd, nil
}

// Acknowledge marks a command executed. Re-delivered and unknown ids are
// accepted silently so firmware retries stay idempotent.
func (q *Queue) Acknowledge(ctx context.Context, id string) error {
	res := q.db.WithContext(ctx).Model(&models.Command{}).
		Where("id = ? AND acknowledged = ?", id, false).
		Update("acknowledged", true)
	if res.Error != nil {
		return fmt.Errorf("acknowledge command: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		telemetry.CommandsAcknowledgedTotal.Inc()
		q.logger.Info().Str("command_id", id).Msg("command acknowledged")
	}
	return nil
}

// Pending returns the number of unacknowledged commands.
func (q *Queue) Pending(ctx context.Context) (int64, error) {
	var count int64
	err := q.db.WithContext(ctx).Model(&models.Command{}).
		Where("acknowledged = ?", false).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count pending commands: %w", err)
	}
	return count, nil
}

// GC deletes acknowledged commands older than the retention window and
// returns how many were removed. Unacknowledged commands are never swept.
func (q *Queue) GC(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().Add(-q.retention)
	res := q.db.WithContext(ctx).
		Where("acknowledged = ? AND created_at < ?", true, cutoff).
		Delete(&models.Command{})
	if res.Error != nil {
		return 0, fmt.Errorf("gc commands: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		telemetry.CommandsGCTotal.Add(float64(res.RowsAffected))
	}
	return res.RowsAffected, nil
}

// Run sweeps the queue on an interval until the context is cancelled.
// GC failures are logged and retried next tick.
func (q *Queue) Run(ctx context.Context) {
	q.logger.Info().Dur("interval", q.gcInterval).Msg("command gc started")
	ticker := time.NewTicker(q.gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			q.logger.Info().Msg("command gc stopped")
			return
		case <-ticker.C:
			removed, err := q.GC(ctx)
			if err != nil {
				q.logger.Error().Err(err).Msg("command gc sweep failed")
				continue
			}
			if removed > 0 {
				q.logger.Debug().Int64("removed", removed).Msg("swept acknowledged commands")
			}
		}
	}
}
