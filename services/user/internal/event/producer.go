package event

import (
	"context"
	"fmt"
	"log/slog"

	pkgkafka "github.com/horike37/serverless-application/pkg/kafka"
	"github.com/horike37/serverless-application/pkg/logger"
	"github.com/horike37/serverless-application/services/user/internal/domain"
)

// Kafka topics for user profile events. The search service indexes both.
var (
	TopicProfileCreated = pkgkafka.Topic("user", "profile_created")
	TopicProfileUpdated = pkgkafka.Topic("user", "profile_updated")
)

// Event types carried in the envelope.
const (
	EventProfileCreated = "user.profile.created"
	EventProfileUpdated = "user.profile.updated"
)

// AggregateTypeUser is the aggregate type of user events.
const AggregateTypeUser = "user"

// SourceUserService identifies events originating from the user service.
const SourceUserService = "user-service"

// ProfileData is the payload of profile events.
type ProfileData struct {
	UserID           string `json:"user_id"`
	DisplayName      string `json:"user_display_name"`
	SelfIntroduction string `json:"self_introduction,omitempty"`
	IconImageURL     string `json:"icon_image_url,omitempty"`
	Provider         string `json:"provider,omitempty"`
}

// Producer publishes user domain events to Kafka.
type Producer struct {
	kafka  pkgkafka.Publisher
	logger *slog.Logger
}

// NewProducer creates a new event producer for the user service.
func NewProducer(kafka pkgkafka.Publisher, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishProfileCreated publishes a user.profile.created event.
func (p *Producer) PublishProfileCreated(ctx context.Context, user *domain.PlatformUser, provider domain.Provider) error {
	data := profileData(user)
	data.Provider = provider.String()
	return p.publish(ctx, TopicProfileCreated, EventProfileCreated, user.UserID, data)
}

// PublishProfileUpdated publishes a user.profile.updated event.
func (p *Producer) PublishProfileUpdated(ctx context.Context, user *domain.PlatformUser) error {
	return p.publish(ctx, TopicProfileUpdated, EventProfileUpdated, user.UserID, profileData(user))
}

func (p *Producer) publish(ctx context.Context, topic, eventType, userID string, data ProfileData) error {
	event, err := pkgkafka.NewEvent(eventType, userID, AggregateTypeUser, SourceUserService, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", eventType, err)
	}
	if id := logger.CorrelationIDFromContext(ctx); id != "" {
		event.WithCorrelationID(id)
	}

	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", eventType, err)
	}

	p.logger.DebugContext(ctx, "published "+eventType+" event",
		slog.String("user_id", userID),
	)
	return nil
}

func profileData(u *domain.PlatformUser) ProfileData {
	return ProfileData{
		UserID:           u.UserID,
		DisplayName:      u.DisplayName,
		SelfIntroduction: u.SelfIntroduction,
		IconImageURL:     u.IconImageURL,
	}
}
