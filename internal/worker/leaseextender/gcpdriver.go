package leaseextender

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	api "cloud.google.com/go/pubsub/apiv1"
	pb "cloud.google.com/go/pubsub/apiv1/pubsubpb"
	"gocloud.dev/pubsub"
	"gocloud.dev/pubsub/gcppubsub"
)

// Bounds accepted by ModifyAckDeadline.
const (
	gcpMinAckDeadline = 10 * time.Second
	gcpMaxAckDeadline = 600 * time.Second
)

var fullSubscriptionPath = regexp.MustCompile(`^projects/[^/]+/subscriptions/[^/]+$`)

type gcpDriver struct {
	client *api.SubscriberClient
	path   string
}

// subscriptionPath accepts both gcppubsub://projects/P/subscriptions/S and
// the short gcppubsub://P/S form.
func subscriptionPath(u *url.URL) string {
	p := path.Join(u.Host, u.Path)
	if fullSubscriptionPath.MatchString(p) {
		return p
	}
	return fmt.Sprintf("projects/%s/subscriptions/%s", u.Host, strings.TrimPrefix(u.Path, "/"))
}

func clampDeadline(d time.Duration) time.Duration {
	return min(max(d, gcpMinAckDeadline), gcpMaxAckDeadline)
}

func newGCPDriver(u *url.URL, sub *pubsub.Subscription) (*gcpDriver, error) {
	if u.Scheme != gcppubsub.Scheme {
		return nil, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	var c *api.SubscriberClient
	if sub == nil || !sub.As(&c) {
		return nil, errors.New("not a GCP subscription")
	}
	return &gcpDriver{client: c, path: subscriptionPath(u)}, nil
}

func (d *gcpDriver) ExtendMessageDeadline(ctx context.Context, msg *pubsub.Message, deadline time.Duration) error {
	var rm *pb.ReceivedMessage
	if !msg.As(&rm) {
		return errors.New("not a GCP message")
	}
	err := d.client.ModifyAckDeadline(ctx, &pb.ModifyAckDeadlineRequest{
		Subscription:       d.path,
		AckIds:             []string{rm.AckId},
		AckDeadlineSeconds: int32(clampDeadline(deadline) / time.Second),
	})
	if err != nil {
		return fmt.Errorf("failed to extend message deadline: %w", err)
	}
	return nil
}

func (d *gcpDriver) SubscriptionDeadline(ctx context.Context) (time.Duration, error) {
	resp, err := d.client.GetSubscription(ctx, &pb.GetSubscriptionRequest{Subscription: d.path})
	if err != nil {
		return 0, err
	}
	return time.Duration(resp.GetAckDeadlineSeconds()) * time.Second, nil
}
