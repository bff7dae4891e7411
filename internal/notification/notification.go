// Package notification publishes scan completion messages to a gocloud pubsub
// topic.
package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"gocloud.dev/pubsub"

	"github.com/AnishDe12020/unsus/pkg/api/scanresult"
	"github.com/AnishDe12020/unsus/pkg/notification"
	"github.com/AnishDe12020/unsus/pkg/pkgidentifier"
)

func PublishScanCompletion(ctx context.Context, notificationTopic *pubsub.Topic, result *scanresult.ScanResult) error {
	pkgDetails := pkgidentifier.PkgIdentifier{Name: result.Name, Version: result.Version}
	notificationMsg, err := json.Marshal(notification.ScanCompletion{
		Package:   pkgDetails,
		PURL:      result.PURL,
		RiskScore: result.RiskScore,
		RiskLevel: result.RiskLevel,
	})
	if err != nil {
		return fmt.Errorf("failed to encode completion notification: %w", err)
	}
	err = notificationTopic.Send(ctx, &pubsub.Message{
		Body: notificationMsg,
		Metadata: map[string]string{
			"name":       result.Name,
			"version":    result.Version,
			"risk_level": string(result.RiskLevel),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to send completion notification: %w", err)
	}
	return nil
}

// Notifier is a scan.Consumer that publishes every result to a topic.
type Notifier struct {
	topic *pubsub.Topic
}

func NewNotifier(topic *pubsub.Topic) *Notifier {
	return &Notifier{topic: topic}
}

func (n *Notifier) Consume(ctx context.Context, result *scanresult.ScanResult) error {
	return PublishScanCompletion(ctx, n.topic, result)
}
