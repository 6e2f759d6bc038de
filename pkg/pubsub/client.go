// Package pubsub wraps the Pub/Sub v2 client used by the outbox publisher.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/tillstock-backend/pkg/config"
	"github.com/angelmondragon/tillstock-backend/pkg/logger"
)

var ErrTopicMissing = errors.New("pubsub topic does not exist")

// Client owns the underlying connection and the set of topics the service
// publishes to. Those topics are checked on start and on every Ping.
type Client struct {
	raw     *gcppubsub.Client
	project string
	topics  []string
	create  bool
	logg    *logger.Logger
}

func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	project := strings.TrimSpace(gcp.ProjectID)
	if project == "" {
		return nil, errors.New("gcp project id is required")
	}
	topics := TopicNames(cfg)
	if len(topics) == 0 {
		return nil, errors.New("no pubsub topics configured")
	}

	raw, err := gcppubsub.NewClient(ctx, project, clientOptions(gcp, cfg)...)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	c := &Client{
		raw:     raw,
		project: project,
		topics:  topics,
		create:  cfg.CreateTopics,
		logg:    logg,
	}
	if err := c.checkTopics(ctx); err != nil {
		_ = raw.Close()
		return nil, err
	}

	logg.Info(logg.WithFields(ctx, map[string]any{
		"project":  project,
		"topics":   topics,
		"emulator": cfg.EmulatorHost != "",
	}), "pubsub client ready")
	return c, nil
}

// clientOptions picks credentials, or a plaintext connection when talking
// to the local emulator.
func clientOptions(gcp config.GCPConfig, cfg config.PubSubConfig) []option.ClientOption {
	if host := strings.TrimSpace(cfg.EmulatorHost); host != "" {
		return []option.ClientOption{
			option.WithEndpoint(host),
			option.WithoutAuthentication(),
			option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		}
	}
	if js := strings.TrimSpace(gcp.CredentialsJSON); js != "" {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(js))}
	}
	if file := strings.TrimSpace(gcp.ApplicationCredentials); file != "" {
		return []option.ClientOption{option.WithCredentialsFile(file)}
	}
	return nil
}

// TopicNames returns the configured, non-blank topic ids without duplicates.
func TopicNames(cfg config.PubSubConfig) []string {
	var names []string
	seen := map[string]bool{}
	for _, name := range []string{cfg.StockTopic, cfg.OrdersTopic} {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}

func (c *Client) checkTopics(ctx context.Context) error {
	for _, name := range c.topics {
		full := TopicResourceName(c.project, name)
		_, err := c.raw.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: full})
		switch {
		case err == nil:
			continue
		case status.Code(err) != codes.NotFound:
			return fmt.Errorf("get topic %s: %w", name, err)
		case !c.create:
			return fmt.Errorf("%w: %s", ErrTopicMissing, name)
		}
		if _, err := c.raw.TopicAdminClient.CreateTopic(ctx, &pubsubpb.Topic{Name: full}); err != nil && status.Code(err) != codes.AlreadyExists {
			return fmt.Errorf("create topic %s: %w", name, err)
		}
		c.logg.Warn(c.logg.WithField(ctx, "topic", name), "created missing pubsub topic")
	}
	return nil
}

// Publisher returns a batching publisher for a topic id or full resource name.
func (c *Client) Publisher(name string) *gcppubsub.Publisher {
	if c == nil || c.raw == nil {
		return nil
	}
	full := TopicResourceName(c.project, name)
	if full == "" {
		return nil
	}
	return c.raw.Publisher(full)
}

func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.raw == nil {
		return errors.New("pubsub client not initialized")
	}
	return c.checkTopics(ctx)
}

func (c *Client) Close() error {
	if c == nil || c.raw == nil {
		return nil
	}
	return c.raw.Close()
}

// TopicResourceName expands a bare id into projects/<p>/topics/<id>. Full
// resource names pass through untouched.
func TopicResourceName(projectID, name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	if strings.HasPrefix(name, "projects/") && strings.Contains(name, "/topics/") {
		return name
	}
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return ""
	}
	return "projects/" + projectID + "/topics/" + name
}
