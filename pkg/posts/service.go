package posts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/instapod/platform/pkg/common/logger"
	"github.com/instapod/platform/pkg/common/models"
	"github.com/instapod/platform/pkg/identity"
	"github.com/instapod/platform/pkg/observability/metrics"
)

// Admitter decides whether an identity may publish now.
type Admitter interface {
	Admit(ctx context.Context, identity string) (bool, error)
}

// EventPublisher emits domain events. Failures never fail the caller.
type EventPublisher interface {
	PublishEvent(ctx context.Context, eventType string, source string, data map[string]interface{}) error
}

type PublishResult struct {
	Topic    Topic
	Key      string
	RawID    string
	Identity string
	Mode     Mode
}

type Service struct {
	store          Store
	resolver       identity.Resolver
	quota          Admitter
	events         EventPublisher
	resolveTimeout time.Duration
}

type ServiceOption func(*Service)

func WithEvents(events EventPublisher) ServiceOption {
	return func(s *Service) { s.events = events }
}

// WithResolveTimeout bounds each identity lookup.
func WithResolveTimeout(d time.Duration) ServiceOption {
	return func(s *Service) { s.resolveTimeout = d }
}

func NewService(store Store, resolver identity.Resolver, quota Admitter, opts ...ServiceOption) *Service {
	s := &Service{
		store:          store,
		resolver:       resolver,
		quota:          quota,
		resolveTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Publish validates the topic and id, resolves the submitter, charges the
// submitter's quota and stores the post under its derived key. Checks run in
// that order and the first failure short-circuits the rest.
func (s *Service) Publish(ctx context.Context, topicName, rawID, mode string) (PublishResult, error) {
	topic, err := ParseTopic(topicName)
	if err != nil {
		metrics.ObservePublish(metrics.PublishRejected)
		return PublishResult{}, err
	}

	rawID = strings.TrimSpace(rawID)
	if rawID == "" {
		metrics.ObservePublish(metrics.PublishRejected)
		return PublishResult{}, ErrInvalidID
	}

	username, err := s.resolve(ctx, rawID)
	if err != nil {
		metrics.ObserveIdentityFailure()
		metrics.ObservePublish(metrics.PublishRejected)
		logger.Log.WithError(err).WithField("postid", rawID).Warn("identity lookup failed")
		return PublishResult{}, fmt.Errorf("%w: %v", ErrIdentityResolution, err)
	}

	allowed, err := s.quota.Admit(ctx, username)
	if err != nil {
		metrics.ObservePublish(metrics.PublishFailed)
		return PublishResult{}, fmt.Errorf("checking daily limit for %s: %w", username, err)
	}
	if !allowed {
		metrics.ObservePublish(metrics.PublishQuotaDenied)
		return PublishResult{}, fmt.Errorf("%w for username: %s", ErrQuotaExceeded, username)
	}

	key, err := DeriveKey(rawID)
	if err != nil {
		metrics.ObservePublish(metrics.PublishRejected)
		return PublishResult{}, err
	}

	rec, err := s.store.Upsert(ctx, Record{
		Topic:    topic,
		Key:      key,
		RawID:    rawID,
		Mode:     NormalizeMode(mode),
		Identity: username,
	})
	if err != nil {
		metrics.ObservePublish(metrics.PublishFailed)
		return PublishResult{}, fmt.Errorf("storing post %s: %w", key, err)
	}
	metrics.ObservePublish(metrics.PublishAccepted)

	logger.Log.WithFields(map[string]interface{}{
		"topic":    topic,
		"key":      key,
		"postid":   rawID,
		"username": username,
	}).Info("New post added to the pod")

	s.emit(ctx, models.EventPostPublished, rec)

	return PublishResult{
		Topic:    rec.Topic,
		Key:      rec.Key,
		RawID:    rec.RawID,
		Identity: username,
		Mode:     rec.Mode,
	}, nil
}

func (s *Service) resolve(ctx context.Context, rawID string) (string, error) {
	if s.resolveTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.resolveTimeout)
		defer cancel()
	}
	name, err := s.resolver.Resolve(ctx, rawID)
	if err != nil {
		return "", err
	}
	name = strings.TrimSpace(name)
	if !identity.ValidHandle(name) {
		return "", identity.ErrNotResolved
	}
	return name, nil
}

func (s *Service) emit(ctx context.Context, eventType string, rec Record) {
	if s.events == nil {
		return
	}
	err := s.events.PublishEvent(ctx, eventType, string(rec.Topic), map[string]interface{}{
		"topic":         rec.Topic,
		"key":           rec.Key,
		"postid":        rec.RawID,
		"mode":          rec.Mode,
		"username":      rec.Identity,
		"last_modified": rec.LastModified,
	})
	if err != nil {
		logger.Log.WithError(err).WithField("key", rec.Key).Warn("failed to emit post event")
	}
}

// Lookup returns the record stored under key in topic.
func (s *Service) Lookup(ctx context.Context, topicName, key string) (Record, error) {
	topic, err := ParseTopic(topicName)
	if err != nil {
		return Record{}, err
	}
	if strings.TrimSpace(key) == "" {
		return Record{}, ErrNotFound
	}
	return s.store.Get(ctx, topic, key)
}

// Recent returns every record currently stored in topic.
func (s *Service) Recent(ctx context.Context, topicName string) ([]Record, error) {
	topic, err := ParseTopic(topicName)
	if err != nil {
		return nil, err
	}
	return s.store.ListAll(ctx, topic)
}

// IsRejection reports whether err is one of the publish failures surfaced to
// clients as a refusal rather than a server fault.
func IsRejection(err error) bool {
	return errors.Is(err, ErrInvalidTopic) ||
		errors.Is(err, ErrInvalidID) ||
		errors.Is(err, ErrIdentityResolution) ||
		errors.Is(err, ErrQuotaExceeded)
}
