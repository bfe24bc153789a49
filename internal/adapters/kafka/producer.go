package kafka

import (
	"context"

	"poll-service/internal/poll"

	"github.com/IBM/sarama"
)

// Producer publishes poll activity through a synchronous sarama producer. It waits for all
// in-sync replicas, for deployments that want the activity feed durable.
type Producer struct {
	producer sarama.SyncProducer
	topic    string
}

func newProducerConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Partitioner = sarama.NewHashPartitioner
	config.Version = sarama.V2_0_0_0
	config.ClientID = clientID
	config.Producer.MaxMessageBytes = 1000000
	return config
}

func NewProducer(brokers []string, topic string) (*Producer, error) {
	producer, err := sarama.NewSyncProducer(brokers, newProducerConfig())
	if err != nil {
		return nil, err
	}
	return &Producer{producer: producer, topic: topic}, nil
}

func (p *Producer) Record(ctx context.Context, a poll.Activity) error {
	msg, err := buildProducerMessage(p.topic, a)
	if err != nil {
		return err
	}
	_, _, err = p.producer.SendMessage(msg)
	return err
}

func (p *Producer) Close() error {
	return p.producer.Close()
}

func buildProducerMessage(topic string, a poll.Activity) (*sarama.ProducerMessage, error) {
	key, value, err := encodeActivity(a)
	if err != nil {
		return nil, err
	}
	return &sarama.ProducerMessage{
		Topic:     topic,
		Key:       sarama.ByteEncoder(key),
		Value:     sarama.ByteEncoder(value),
		Timestamp: a.At,
		Headers: []sarama.RecordHeader{
			{Key: []byte("kind"), Value: []byte(a.Kind)},
		},
	}, nil
}
