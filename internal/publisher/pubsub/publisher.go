// Package pubsub implements a Google Cloud Pub/Sub publisher.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
)

type publishFunc func(ctx context.Context, msg *pubsub.Message) (string, error)

// Publisher sends JSON payloads to one topic.
type Publisher struct {
	publish    publishFunc
	stop       func()
	attributes map[string]string
}

// New creates a Publisher for the provided topic. Stop flushes and releases
// it.
func New(topic *pubsub.Topic, attributes map[string]string) *Publisher {
	if topic == nil {
		return &Publisher{}
	}
	return &Publisher{
		publish: func(ctx context.Context, msg *pubsub.Message) (string, error) {
			return topic.Publish(ctx, msg).Get(ctx)
		},
		stop:       topic.Stop,
		attributes: attributes,
	}
}

// Dial connects to projectID and returns a Publisher for topicID along with
// the client, which the caller closes after Stop.
func Dial(ctx context.Context, projectID, topicID string) (*Publisher, *pubsub.Client, error) {
	if projectID == "" || topicID == "" {
		return nil, nil, fmt.Errorf("pubsub project and topic are required")
	}
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, nil, fmt.Errorf("create pubsub client: %w", err)
	}
	return New(client.Topic(topicID), map[string]string{"source": "sitesearch"}), client, nil
}

// Publish marshals the payload to JSON and publishes it to the topic.
func (p *Publisher) Publish(ctx context.Context, payload any) (string, error) {
	if p.publish == nil {
		return "", fmt.Errorf("pubsub publisher is not configured")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	msg := &pubsub.Message{Data: data, Attributes: make(map[string]string, len(p.attributes))}
	for k, v := range p.attributes {
		msg.Attributes[k] = v
	}
	id, err := p.publish(ctx, msg)
	if err != nil {
		return "", fmt.Errorf("publish message: %w", err)
	}
	return id, nil
}

// Stop flushes pending messages.
func (p *Publisher) Stop() {
	if p.stop != nil {
		p.stop()
	}
}
