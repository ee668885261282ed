package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/stridehq/sportiva-adapter/internal/gateway"
	"github.com/stridehq/sportiva-adapter/internal/sportiva"
	"github.com/stridehq/sportiva-adapter/pkg/model"
)

// ClubService defines the slice of the Sportiva service the consumer drives.
type ClubService interface {
	RecordCheckIn(ctx context.Context, cmd *sportiva.RecordCheckInCommand) (*model.CheckIn, error)
	PostAnnouncement(ctx context.Context, cmd *sportiva.PostAnnouncementCommand) (*model.Announcement, error)
}

// Consumer consumes check-in and announcement commands from RabbitMQ.
type Consumer struct {
	conn          *amqp.Connection
	channel       *amqp.Channel
	service       ClubService
	checkinQueue  string
	announceQueue string
	logger        *zap.Logger
	done          chan struct{}
}

// NewConsumer connects to RabbitMQ and prepares a command consumer.
func NewConsumer(url, checkinQueue, announceQueue string, service ClubService, logger *zap.Logger) (*Consumer, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	return &Consumer{
		conn:          conn,
		channel:       channel,
		service:       service,
		checkinQueue:  checkinQueue,
		announceQueue: announceQueue,
		logger:        logger,
		done:          make(chan struct{}),
	}, nil
}

// Start declares both queues and begins consuming.
func (c *Consumer) Start(ctx context.Context) error {
	if _, err := c.channel.QueueDeclare(c.checkinQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", c.checkinQueue, err)
	}

	if _, err := c.channel.QueueDeclare(c.announceQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", c.announceQueue, err)
	}

	checkinMsgs, err := c.channel.Consume(c.checkinQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume from %s: %w", c.checkinQueue, err)
	}

	announceMsgs, err := c.channel.Consume(c.announceQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume from %s: %w", c.announceQueue, err)
	}

	c.logger.Info("Started consuming from RabbitMQ",
		zap.String("checkinQueue", c.checkinQueue),
		zap.String("announceQueue", c.announceQueue),
	)

	go c.consumeCheckIns(ctx, checkinMsgs)
	go c.consumeAnnouncements(ctx, announceMsgs)

	return nil
}

// requeueable reports whether a failed command is worth redelivering.
// Validation and permission failures will fail identically every time, so
// requeueing them would loop the message forever.
func requeueable(err error) bool {
	var valErr *gateway.ValidationError
	var authzErr *gateway.AuthorizationError
	return !errors.As(err, &valErr) && !errors.As(err, &authzErr)
}

func (c *Consumer) consumeCheckIns(ctx context.Context, msgs <-chan amqp.Delivery) {
	for {
		select {
		case <-c.done:
			return
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				c.logger.Warn("Check-in command channel closed")
				return
			}
			c.handleCheckIn(ctx, msg)
		}
	}
}

func (c *Consumer) handleCheckIn(ctx context.Context, msg amqp.Delivery) {
	c.logger.Debug("Received check-in command", zap.String("body", string(msg.Body)))

	var cmd sportiva.RecordCheckInCommand
	if err := json.Unmarshal(msg.Body, &cmd); err != nil {
		c.logger.Error("Failed to unmarshal RecordCheckInCommand", zap.Error(err))
		msg.Nack(false, false)
		return
	}

	if _, err := c.service.RecordCheckIn(ctx, &cmd); err != nil {
		requeue := requeueable(err)
		c.logger.Error("Failed to record check-in",
			zap.Bool("requeue", requeue),
			zap.Error(err))
		msg.Nack(false, requeue)
		return
	}

	msg.Ack(false)
}

func (c *Consumer) consumeAnnouncements(ctx context.Context, msgs <-chan amqp.Delivery) {
	for {
		select {
		case <-c.done:
			return
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				c.logger.Warn("Announcement command channel closed")
				return
			}
			c.handleAnnouncement(ctx, msg)
		}
	}
}

func (c *Consumer) handleAnnouncement(ctx context.Context, msg amqp.Delivery) {
	c.logger.Debug("Received announcement command", zap.String("body", string(msg.Body)))

	var cmd sportiva.PostAnnouncementCommand
	if err := json.Unmarshal(msg.Body, &cmd); err != nil {
		c.logger.Error("Failed to unmarshal PostAnnouncementCommand", zap.Error(err))
		msg.Nack(false, false)
		return
	}

	if _, err := c.service.PostAnnouncement(ctx, &cmd); err != nil {
		requeue := requeueable(err)
		c.logger.Error("Failed to post announcement",
			zap.Bool("requeue", requeue),
			zap.Error(err))
		msg.Nack(false, requeue)
		return
	}

	msg.Ack(false)
}

// Close stops the consumer goroutines and closes the connection.
func (c *Consumer) Close() error {
	close(c.done)

	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
