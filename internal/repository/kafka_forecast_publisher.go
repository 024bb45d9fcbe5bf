package repository

import (
	"context"

	domrepo "SalesCast/internal/domain/repository"
	pkgkafka "SalesCast/pkg/kafka"
)

// KafkaForecastPublisher publishes ForecastCompleted events keyed by snapshot.
type KafkaForecastPublisher struct {
	p *pkgkafka.Producer
}

func NewKafkaForecastPublisher(p *pkgkafka.Producer) *KafkaForecastPublisher {
	return &KafkaForecastPublisher{p: p}
}

func (k *KafkaForecastPublisher) PublishForecast(ctx context.Context, ev *domrepo.ForecastEvent) error {
	return k.p.Publish(ctx, ev.Snapshot, ev)
}

func (k *KafkaForecastPublisher) Close() error { return k.p.Close() }

// NopForecastPublisher drops events. It is used when Kafka is disabled.
type NopForecastPublisher struct{}

func (NopForecastPublisher) PublishForecast(context.Context, *domrepo.ForecastEvent) error {
	return nil
}

func (NopForecastPublisher) Close() error { return nil }
