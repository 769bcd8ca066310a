package funnel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmitrymomot/signupkit/pkg/dispatch"
	"github.com/dmitrymomot/signupkit/pkg/logger"
)

// Tracker records funnel and abandonment events, fire-and-forget. Recording
// never returns an error to the caller: persistence failures are logged and
// swallowed so analytics can never delay or break an authentication flow.
type Tracker struct {
	store      Store
	dispatcher *dispatch.Dispatcher
	log        *slog.Logger
	now        func() time.Time
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithLogger sets a custom logger for the tracker.
func WithLogger(log *slog.Logger) TrackerOption {
	return func(t *Tracker) {
		if log != nil {
			t.log = log
		}
	}
}

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) TrackerOption {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// NewTracker creates a Tracker. With a nil dispatcher events are persisted
// synchronously, which is what tests want; production wiring passes a shared
// bounded dispatcher so recording stays non-blocking.
func NewTracker(store Store, dispatcher *dispatch.Dispatcher, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		store:      store,
		dispatcher: dispatcher,
		log:        logger.NewDiscard(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// RecordEvent reports a funnel transition for the session. Out-of-order and
// post-terminal events are silently dropped.
func (t *Tracker) RecordEvent(ctx context.Context, e Event) {
	if e.SessionID == "" || !e.Stage.Valid() {
		return
	}
	if e.At.IsZero() {
		e.At = t.now()
	}

	t.run(ctx, "funnel.event", e.SessionID, func(ctx context.Context) error {
		return t.applyEvent(ctx, e)
	})
}

// RecordAbandonment reports an exit signal with its form context. Last
// signal wins for the record itself; the session flips to Abandoned only if
// no other terminal state claimed it first.
func (t *Tracker) RecordAbandonment(ctx context.Context, rec Abandonment) {
	if rec.SessionID == "" {
		return
	}
	if rec.At.IsZero() {
		rec.At = t.now()
	}

	t.run(ctx, "funnel.abandonment", rec.SessionID, func(ctx context.Context) error {
		return t.applyAbandonment(ctx, rec)
	})
}

func (t *Tracker) run(ctx context.Context, name, sessionID string, task dispatch.Task) {
	if t.dispatcher != nil {
		// Keyed by session so updates to one session stay serialized and
		// ordered; unkeyed dispatch would let two workers race load-save.
		t.dispatcher.DispatchKeyed(name, sessionID, task)
		return
	}
	if err := task(ctx); err != nil {
		t.log.Error("analytics dispatch failed",
			logger.Error(err),
			logger.Component("funnel"),
			logger.SessionID(sessionID),
		)
	}
}

func (t *Tracker) applyEvent(ctx context.Context, e Event) error {
	sess, err := t.loadOrInit(ctx, e.SessionID)
	if err != nil {
		return err
	}
	if !sess.Apply(e) {
		return nil
	}
	return t.store.SaveSession(ctx, sess)
}

func (t *Tracker) applyAbandonment(ctx context.Context, rec Abandonment) error {
	sess, err := t.loadOrInit(ctx, rec.SessionID)
	if err != nil {
		return err
	}

	// Completed and Failed beat abandonment; the record itself is still
	// replaced so the freshest form context survives.
	if sess.Abandon(rec.At) {
		if err := t.store.SaveSession(ctx, sess); err != nil {
			return err
		}
	}
	if sess.Stage != StageAbandoned {
		return nil
	}
	return t.store.SaveAbandonment(ctx, &rec)
}

func (t *Tracker) loadOrInit(ctx context.Context, sessionID string) (*Session, error) {
	sess, err := t.store.GetSession(ctx, sessionID)
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, ErrSessionNotFound) {
		return nil, err
	}
	return &Session{SessionID: sessionID, Stage: StageInitial}, nil
}

// ConversionRate computes the share of sessions that reached `from` which
// also reached `to`. A session with a missing timestamp simply never reached
// that stage.
func (t *Tracker) ConversionRate(ctx context.Context, from, to Stage) (float64, error) {
	if !from.Valid() || !to.Valid() {
		return 0, ErrUnknownStage
	}

	sessions, err := t.store.ListSessions(ctx)
	if err != nil {
		return 0, fmt.Errorf("funnel: conversion rate: %w", err)
	}

	var reached, converted int
	for _, sess := range sessions {
		if !sess.Reached(from) {
			continue
		}
		reached++
		if sess.Reached(to) {
			converted++
		}
	}
	if reached == 0 {
		return 0, ErrNoSessions
	}
	return float64(converted) / float64(reached), nil
}

// AverageTimeToComplete computes the mean duration from page view to
// completion over all completed sessions.
func (t *Tracker) AverageTimeToComplete(ctx context.Context) (time.Duration, error) {
	sessions, err := t.store.ListSessions(ctx)
	if err != nil {
		return 0, fmt.Errorf("funnel: average time to complete: %w", err)
	}

	var (
		total time.Duration
		n     int
	)
	for _, sess := range sessions {
		if sess.PageViewedAt == nil || sess.CompletedAt == nil {
			continue
		}
		total += sess.CompletedAt.Sub(*sess.PageViewedAt)
		n++
	}
	if n == 0 {
		return 0, ErrNoSessions
	}
	return total / time.Duration(n), nil
}
