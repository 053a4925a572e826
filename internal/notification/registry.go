package notification

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"MediMind/internal/domain"
	"MediMind/internal/ports"
)

// ErrNotifierDisabled is returned by channels that are configured off.
var ErrNotifierDisabled = errors.New("notifier disabled")

// Channel is one reminder transport (email, kafka, log).
type Channel interface {
	ports.Notifier
	Name() string
}

// Registry keeps a mapping from channel names to their implementations.
type Registry struct {
	channels map[string]Channel
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{channels: map[string]Channel{}}
}

// Register adds or replaces a channel implementation.
func (r *Registry) Register(channel Channel) {
	if r.channels == nil {
		r.channels = map[string]Channel{}
	}
	r.channels[channel.Name()] = channel
}

// Resolve returns a channel by name or an error if it is absent.
func (r *Registry) Resolve(name string) (Channel, error) {
	if channel, ok := r.channels[name]; ok {
		return channel, nil
	}
	return nil, fmt.Errorf("notification channel %q is not registered (have %v)", name, r.Names())
}

// Names lists registered channels alphabetically.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.channels))
	for name := range r.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LogChannel writes rendered reminders to the logger instead of delivering them.
type LogChannel struct {
	logger *zap.Logger
}

var _ Channel = (*LogChannel)(nil)

// NewLogChannel builds the development channel.
func NewLogChannel(logger *zap.Logger) *LogChannel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogChannel{logger: logger.With(zap.String("component", "notify-log"))}
}

// Name implements Channel.
func (l *LogChannel) Name() string { return "log" }

// SendReminder implements ports.Notifier.
func (l *LogChannel) SendReminder(_ context.Context, reminder domain.Reminder) error {
	msg, err := Render(reminder)
	if err != nil {
		return err
	}
	l.logger.Info("reminder",
		zap.String("to", reminder.Recipient),
		zap.String("subject", msg.Subject),
		zap.String("period", reminder.Period.String()),
		zap.String("dosage", reminder.Dosage),
	)
	return nil
}
