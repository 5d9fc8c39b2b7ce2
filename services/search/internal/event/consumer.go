package event

import (
	"context"
	"fmt"
	"log/slog"

	pkgkafka "github.com/horike37/serverless-application/pkg/kafka"
	"github.com/horike37/serverless-application/services/search/internal/service"
)

// Kafka topics of user profile events consumed by the search service.
var (
	TopicProfileCreated = pkgkafka.Topic("user", "profile_created")
	TopicProfileUpdated = pkgkafka.Topic("user", "profile_updated")
)

// Event types carried in the envelope.
const (
	EventProfileCreated = "user.profile.created"
	EventProfileUpdated = "user.profile.updated"
)

// Topics returns every topic the consumer handles.
func Topics() []string {
	return []string{TopicProfileCreated, TopicProfileUpdated}
}

// ProfileEventData is the payload of user profile events.
type ProfileEventData struct {
	UserID           string `json:"user_id"`
	DisplayName      string `json:"user_display_name"`
	SelfIntroduction string `json:"self_introduction,omitempty"`
	IconImageURL     string `json:"icon_image_url,omitempty"`
	Provider         string `json:"provider,omitempty"`
}

// Consumer indexes user profiles from Kafka events.
type Consumer struct {
	searchService *service.SearchService
	logger        *slog.Logger
}

// NewConsumer creates a new event consumer for the search service.
func NewConsumer(searchService *service.SearchService, logger *slog.Logger) *Consumer {
	return &Consumer{
		searchService: searchService,
		logger:        logger,
	}
}

// Handle processes a Kafka event based on its type.
func (c *Consumer) Handle(ctx context.Context, event *pkgkafka.Event) error {
	switch event.EventType {
	case EventProfileCreated, EventProfileUpdated:
		return c.handleProfile(ctx, event)
	default:
		c.logger.WarnContext(ctx, "unknown event type received",
			slog.String("event_type", event.EventType),
			slog.String("event_id", event.EventID),
		)
		return nil
	}
}

// handleProfile creates or replaces the user's search document. Created
// and updated events carry the same full profile.
func (c *Consumer) handleProfile(ctx context.Context, event *pkgkafka.Event) error {
	var data ProfileEventData
	if err := event.UnmarshalData(&data); err != nil {
		return fmt.Errorf("unmarshal %s data: %w", event.EventType, err)
	}

	if err := c.searchService.IndexUserProfile(ctx, service.IndexUserProfileInput{
		UserID:           data.UserID,
		DisplayName:      data.DisplayName,
		SelfIntroduction: data.SelfIntroduction,
		IconImageURL:     data.IconImageURL,
	}); err != nil {
		return fmt.Errorf("index user profile from %s event: %w", event.EventType, err)
	}

	c.logger.InfoContext(ctx, "indexed user profile from event",
		slog.String("event_type", event.EventType),
		slog.String("user_id", data.UserID),
	)
	return nil
}
