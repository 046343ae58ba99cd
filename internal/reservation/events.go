package reservation

import (
	"context"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/AndresEncalada/tolerancia-fallos/pkg/contracts"
	"github.com/AndresEncalada/tolerancia-fallos/pkg/kafka"
	"github.com/AndresEncalada/tolerancia-fallos/pkg/logging"
)

// KafkaSink publishes workflow audit events. Publishing is best-effort:
// failures are logged and dropped so a broker outage can never affect a
// reservation outcome.
type KafkaSink struct {
	writer *kafkago.Writer
}

func NewKafkaSink(client *kafka.Client, topic string) *KafkaSink {
	if !client.Enabled() {
		return nil
	}
	return &KafkaSink{writer: client.NewWriter(topic)}
}

func (s *KafkaSink) Emit(ctx context.Context, evt contracts.Event) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := kafka.PublishJSON(ctx, s.writer, evt.OrderID, evt); err != nil {
		logging.Log(logging.Fields{Service: service, OrderID: evt.OrderID, Step: "events", Status: "publish_failed", Message: err.Error()})
	}
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}
