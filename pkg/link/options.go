// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"go.uber.org/zap"

	"github.com/Thermoquad/ventilink/pkg/settings"
	"github.com/Thermoquad/ventilink/pkg/ventproto"
)

// Defaults
const (
	DefaultReadAttempts = 5
	DefaultResyncAfter  = 3
)

// Option configures a Link
type Option func(*Link)

// WithLogger sets the structured logger
func WithLogger(logger *zap.Logger) Option {
	return func(l *Link) { l.logger = logger }
}

// WithStatistics shares a statistics tracker with the caller
func WithStatistics(stats *ventproto.Statistics) Option {
	return func(l *Link) { l.stats = stats }
}

// WithReadAttempts bounds the empty reads tolerated while filling one frame
func WithReadAttempts(n int) Option {
	return func(l *Link) { l.readAttempts = n }
}

// WithResyncAfter sets how many consecutive CRC failures drop frame sync
func WithResyncAfter(n int) Option {
	return func(l *Link) { l.resyncAfter = n }
}

// WithStrictSequence drops frames whose sequence does not follow the previous
// one. By default gaps are only counted and logged.
func WithStrictSequence(strict bool) Option {
	return func(l *Link) { l.strictSequence = strict }
}

// WithPassive disables command transmission, for listen-only monitoring
func WithPassive(passive bool) Option {
	return func(l *Link) { l.passive = passive }
}

// WithFlush discards unread input after each valid frame when the
// connection supports it
func WithFlush(flush bool) Option {
	return func(l *Link) { l.flush = flush }
}

// WithSettings sets the committed settings mirrored before the first update
func WithSettings(s settings.Settings) Option {
	return func(l *Link) { l.settings = s }
}

// WithListener subscribes a listener before Run starts
func WithListener(listener Listener) Option {
	return func(l *Link) { l.listeners = append(l.listeners, listener) }
}

// WithObserver receives every frame-level event, for diagnostics
func WithObserver(fn func(FrameEvent)) Option {
	return func(l *Link) { l.observer = fn }
}
