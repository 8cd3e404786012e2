// Package alert delivers operator notifications about rejected or failed
// uploads. Delivery is best effort: Dispatcher never blocks or fails the request
// that triggered it.
package alert

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"go.uber.org/zap"
)

const (
	sendTimeout = 5 * time.Second
	// SNS rejects subjects longer than 100 characters.
	maxSubjectLen = 100
)

type Notifier interface {
	Notify(ctx context.Context, subject, message string) error
}

type snsPublisher interface {
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSNotifier publishes to a single SNS topic.
type SNSNotifier struct {
	client   snsPublisher
	topicARN string
}

func NewSNSNotifier(awsCfg aws.Config, topicARN string) *SNSNotifier {
	return &SNSNotifier{client: sns.NewFromConfig(awsCfg), topicARN: topicARN}
}

func (n *SNSNotifier) Notify(ctx context.Context, subject, message string) error {
	if len(subject) > maxSubjectLen {
		subject = subject[:maxSubjectLen]
	}
	_, err := n.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(n.topicARN),
		Subject:  aws.String(subject),
		Message:  aws.String(message),
	})
	if err != nil {
		return fmt.Errorf("sns publish: %w", err)
	}
	return nil
}

// LogNotifier writes alerts to the log. Used when no topic is configured.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(_ context.Context, subject, message string) error {
	n.log.Warn("Alert", zap.String("subject", subject), zap.String("message", message))
	return nil
}

// Dispatcher sends alerts on their own goroutine with their own deadline.
type Dispatcher struct {
	notifier Notifier
	log      *zap.Logger
	wg       sync.WaitGroup
}

func NewDispatcher(n Notifier, log *zap.Logger) *Dispatcher {
	return &Dispatcher{notifier: n, log: log}
}

// Send returns immediately. Failures are logged.
func (d *Dispatcher) Send(subject, message string) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				d.log.Error("Alert notifier panicked", zap.Any("panic", r), zap.String("subject", subject))
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		if err := d.notifier.Notify(ctx, subject, message); err != nil {
			d.log.Error("Failed to send alert", zap.String("subject", subject), zap.Error(err))
		}
	}()
}

// Wait blocks until every alert sent so far has finished. Called on shutdown.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
