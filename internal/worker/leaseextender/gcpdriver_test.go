package leaseextender

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"sync"
	"testing"
	"time"

	api "cloud.google.com/go/pubsub/apiv1"
	pb "cloud.google.com/go/pubsub/apiv1/pubsubpb"
	"gocloud.dev/pubsub/gcppubsub"
	"gocloud.dev/pubsub/mempubsub"
	"golang.org/x/exp/slices"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
)

const (
	testSubscription = "projects/unsus-test/subscriptions/scan-requests"
	testAckID        = "ack-001"
)

type fakeSubscriber struct {
	pb.UnimplementedSubscriberServer

	mu          sync.Mutex
	ackDeadline int32
	ackIDs      []string
}

func (f *fakeSubscriber) GetSubscription(_ context.Context, req *pb.GetSubscriptionRequest) (*pb.Subscription, error) {
	if req.Subscription != testSubscription {
		return nil, fmt.Errorf("unknown subscription: %s", req.Subscription)
	}
	return &pb.Subscription{Name: testSubscription, AckDeadlineSeconds: 120}, nil
}

func (f *fakeSubscriber) ModifyAckDeadline(_ context.Context, req *pb.ModifyAckDeadlineRequest) (*emptypb.Empty, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ackDeadline = req.GetAckDeadlineSeconds()
	f.ackIDs = req.GetAckIds()
	return &emptypb.Empty{}, nil
}

func (f *fakeSubscriber) Pull(_ context.Context, req *pb.PullRequest) (*pb.PullResponse, error) {
	if req.Subscription != testSubscription {
		return nil, fmt.Errorf("unknown subscription: %s", req.Subscription)
	}
	return &pb.PullResponse{
		ReceivedMessages: []*pb.ReceivedMessage{{
			AckId: testAckID,
			Message: &pb.PubsubMessage{
				MessageId:  "msg-001",
				Attributes: map[string]string{"name": "left-pad", "version": "1.3.0"},
			},
			DeliveryAttempt: 1,
		}},
	}, nil
}

func startSubscriber(t *testing.T, srv *fakeSubscriber) *api.SubscriberClient {
	t.Helper()
	lis := bufconn.Listen(4096)
	gsrv := grpc.NewServer()
	pb.RegisterSubscriberServer(gsrv, srv)
	go gsrv.Serve(lis)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, err := grpc.DialContext(ctx, lis.Addr().String(),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) {
			return lis.Dial()
		}))
	if err != nil {
		t.Fatal(err)
	}
	client, err := api.NewSubscriberClient(ctx, option.WithGRPCConn(conn))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		client.Close()
		lis.Close()
		gsrv.Stop()
	})
	return client
}

func TestSubscriptionPath(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"gcppubsub://projects/p/subscriptions/s", "projects/p/subscriptions/s"},
		{"gcppubsub://p/s", "projects/p/subscriptions/s"},
	}
	for _, test := range tests {
		u, err := url.Parse(test.url)
		if err != nil {
			t.Fatal(err)
		}
		if got := subscriptionPath(u); got != test.want {
			t.Errorf("subscriptionPath(%q) = %q; want %q", test.url, got, test.want)
		}
	}
}

func TestClampDeadline(t *testing.T) {
	tests := []struct {
		in, want time.Duration
	}{
		{5 * time.Second, gcpMinAckDeadline},
		{345 * time.Second, 345 * time.Second},
		{1000 * time.Second, gcpMaxAckDeadline},
	}
	for _, test := range tests {
		if got := clampDeadline(test.in); got != test.want {
			t.Errorf("clampDeadline(%v) = %v; want %v", test.in, got, test.want)
		}
	}
}

func TestNewGCP(t *testing.T) {
	for _, subURL := range []string{"gcppubsub://" + testSubscription, "gcppubsub://unsus-test/scan-requests"} {
		client := startSubscriber(t, &fakeSubscriber{})
		sub := gcppubsub.OpenSubscription(client, "unsus-test", "scan-requests", nil)
		e, err := New(context.Background(), subURL, sub)
		if err != nil {
			t.Fatalf("New(%q) error = %v", subURL, err)
		}
		if want := 120 * time.Second; e.Deadline != want {
			t.Errorf("New(%q).Deadline = %v; want %v", subURL, e.Deadline, want)
		}
	}
}

func TestNewGCPWrongDriver(t *testing.T) {
	sub := mempubsub.NewSubscription(mempubsub.NewTopic(), 10*time.Second)
	if e, err := New(context.Background(), "gcppubsub://unsus-test/scan-requests", sub); err == nil {
		t.Errorf("New() = %v; want an error", e)
	}
}

func TestNewGCPDriverWrongScheme(t *testing.T) {
	u, _ := url.Parse("kafka://scan-requests")
	if d, err := newGCPDriver(u, nil); err == nil {
		t.Errorf("newGCPDriver() = %v; want an error", d)
	}
}

func TestGCPExtendMessageDeadline(t *testing.T) {
	srv := &fakeSubscriber{}
	client := startSubscriber(t, srv)
	sub := gcppubsub.OpenSubscription(client, "unsus-test", "scan-requests", nil)
	u, _ := url.Parse("gcppubsub://" + testSubscription)
	d, err := newGCPDriver(u, sub)
	if err != nil {
		t.Fatalf("newGCPDriver() error = %v", err)
	}

	ctx := context.Background()
	msg, err := sub.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if got := msg.Metadata["name"]; got != "left-pad" {
		t.Errorf("Metadata[name] = %q; want left-pad", got)
	}

	tests := []struct {
		deadline time.Duration
		want     int32
	}{
		{345 * time.Second, 345},
		{5 * time.Second, 10},
		{1000 * time.Second, 600},
	}
	for _, test := range tests {
		if err := d.ExtendMessageDeadline(ctx, msg, test.deadline); err != nil {
			t.Fatalf("ExtendMessageDeadline(%v) error = %v", test.deadline, err)
		}
		srv.mu.Lock()
		if srv.ackDeadline != test.want {
			t.Errorf("ExtendMessageDeadline(%v) sent %d seconds; want %d", test.deadline, srv.ackDeadline, test.want)
		}
		if !slices.Equal(srv.ackIDs, []string{testAckID}) {
			t.Errorf("AckIds = %v; want [%s]", srv.ackIDs, testAckID)
		}
		srv.mu.Unlock()
	}
}
