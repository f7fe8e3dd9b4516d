package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"io"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/cafe/internal/messaging/kafka"
)

var fixedNow = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

func dlqMessage(t *testing.T, offset int64, originalTopic string, nested map[string]any) *sarama.ConsumerMessage {
	t.Helper()

	payload, err := json.Marshal(nested)
	require.NoError(t, err)
	value, err := json.Marshal(kafka.SaleEvent{
		ID:            "outbox-1",
		AggregateType: "sale",
		SaleID:        "sale-1",
		EventType:     "sale.created",
		Payload:       payload,
		PublishedAt:   fixedNow,
	})
	require.NoError(t, err)

	msg := &sarama.ConsumerMessage{Offset: offset, Value: value}
	if originalTopic != "" {
		msg.Headers = []*sarama.RecordHeader{{Key: []byte(kafka.HeaderOriginalTopic), Value: []byte(originalTopic)}}
	}
	return msg
}

func validNested() map[string]any {
	return map[string]any{
		"outbox_id":      "outbox-1",
		"aggregate_type": "sale",
		"sale_id":        "sale-1",
		"event_type":     "sale.created",
		"payload":        map[string]any{"total": "20.00"},
		"publish_error":  "kafka: client has run out of available brokers",
	}
}

func TestParseBrokers(t *testing.T) {
	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, parseBrokers(" broker-1:9092, ,broker-2:9092 "))
	assert.Empty(t, parseBrokers(" , "))
}

func TestExtractReplayMessage_RestoresOriginalEnvelope(t *testing.T) {
	got, err := extractReplayMessage(dlqMessage(t, 0, "custom.sales", validNested()), "", fixedNow)
	require.NoError(t, err)

	assert.Equal(t, "custom.sales", got.topic)
	assert.Equal(t, "sale-1", got.key)
	assert.Equal(t, "sale.created", got.headers[kafka.HeaderEventType])

	var event kafka.SaleEvent
	require.NoError(t, json.Unmarshal(got.value, &event))
	assert.Equal(t, "outbox-1", event.ID)
	assert.JSONEq(t, `{"total":"20.00"}`, string(event.Payload))
	assert.True(t, event.PublishedAt.Equal(fixedNow))
}

func TestExtractReplayMessage_TopicFallbacks(t *testing.T) {
	explicit, err := extractReplayMessage(dlqMessage(t, 0, "custom.sales", validNested()), "override", fixedNow)
	require.NoError(t, err)
	assert.Equal(t, "override", explicit.topic)

	fallback, err := extractReplayMessage(dlqMessage(t, 0, "", validNested()), "", fixedNow)
	require.NoError(t, err)
	assert.Equal(t, kafka.TopicSaleEvents, fallback.topic)
}

func TestExtractReplayMessage_Rejects(t *testing.T) {
	_, err := extractReplayMessage(&sarama.ConsumerMessage{Value: []byte(`{"foo":"bar"}`)}, "", fixedNow)
	assert.ErrorIs(t, err, errNotSaleEvent)

	_, err = extractReplayMessage(&sarama.ConsumerMessage{Value: []byte(`not json`)}, "", fixedNow)
	assert.ErrorIs(t, err, errNotSaleEvent)

	nested := validNested()
	delete(nested, "payload")
	_, err = extractReplayMessage(dlqMessage(t, 0, "", nested), "", fixedNow)
	assert.ErrorIs(t, err, errMissingPayload)
}

func TestReadConfig(t *testing.T) {
	fs := flag.NewFlagSet("dlq-reprocess", flag.ContinueOnError)
	cfg, err := readConfig(fs, []string{"-execute", "-limit=5"}, func(key string) (string, bool) {
		if key == "CAFE_KAFKA_BROKERS" {
			return "localhost:9092", true
		}
		return "", false
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"localhost:9092"}, cfg.brokers)
	assert.Equal(t, kafka.TopicDeadLetterQueue, cfg.sourceTopic)
	assert.True(t, cfg.execute)
	assert.Equal(t, 5, cfg.limit)
}

func TestReadConfig_ValidationErrors(t *testing.T) {
	fs := flag.NewFlagSet("dlq-reprocess", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	_, err := readConfig(fs, []string{"-limit=0", "-idle-timeout=0s"}, func(string) (string, bool) { return "", false })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kafka brokers are required")
	assert.Contains(t, err.Error(), "limit must be > 0")
	assert.Contains(t, err.Error(), "idle-timeout must be > 0")
}

func TestReplay_DryRunDoesNotPublish(t *testing.T) {
	messages := []*sarama.ConsumerMessage{
		dlqMessage(t, 0, "", validNested()),
		{Offset: 1, Value: []byte(`garbage`)},
	}
	r := newStubReplayer(config{sourceTopic: kafka.TopicDeadLetterQueue, limit: 10, idleTimeout: time.Second}, messages)

	stats, err := r.replay(context.Background())
	require.NoError(t, err)
	assert.Equal(t, replayStats{processed: 2, replayed: 1, skipped: 1}, stats)
}

func TestReplay_ExecutePublishesWithHeaders(t *testing.T) {
	cfg := config{sourceTopic: kafka.TopicDeadLetterQueue, limit: 10, idleTimeout: time.Second, execute: true}
	r := newStubReplayer(cfg, []*sarama.ConsumerMessage{dlqMessage(t, 0, "custom.sales", validNested())})
	producer := &stubProducer{}
	r.producer = producer

	stats, err := r.replay(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.replayed)
	require.Len(t, producer.sent, 1)

	sent := producer.sent[0]
	assert.Equal(t, "custom.sales", sent.Topic)
	key, err := sent.Key.Encode()
	require.NoError(t, err)
	assert.Equal(t, "sale-1", string(key))

	found := false
	for _, header := range sent.Headers {
		if string(header.Key) == kafka.HeaderOutboxID {
			found = string(header.Value) == "outbox-1"
		}
	}
	assert.True(t, found, "outbox id header must be replayed")
}

func TestReplay_ExecuteRequiresProducer(t *testing.T) {
	cfg := config{sourceTopic: kafka.TopicDeadLetterQueue, limit: 1, idleTimeout: time.Second, execute: true}
	_, err := newStubReplayer(cfg, nil).replay(context.Background())
	assert.Error(t, err)
}

func TestReplay_ProducerErrorStops(t *testing.T) {
	cfg := config{sourceTopic: kafka.TopicDeadLetterQueue, limit: 10, idleTimeout: time.Second, execute: true}
	r := newStubReplayer(cfg, []*sarama.ConsumerMessage{dlqMessage(t, 0, "", validNested())})
	r.producer = &stubProducer{err: sarama.ErrOutOfBrokers}

	_, err := r.replay(context.Background())
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
}

func TestReplay_RespectsLimit(t *testing.T) {
	messages := []*sarama.ConsumerMessage{
		dlqMessage(t, 0, "", validNested()),
		dlqMessage(t, 1, "", validNested()),
		dlqMessage(t, 2, "", validNested()),
	}
	r := newStubReplayer(config{sourceTopic: kafka.TopicDeadLetterQueue, limit: 2, idleTimeout: time.Second}, messages)

	stats, err := r.replay(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.processed)
}

func TestRun_UsesReplayer(t *testing.T) {
	original := newReplayer
	defer func() { newReplayer = original }()

	var created bool
	newReplayer = func(cfg config) (*replayer, error) {
		created = true
		return newStubReplayer(cfg, nil), nil
	}
	require.NoError(t, run(context.Background(), config{sourceTopic: kafka.TopicDeadLetterQueue, limit: 1, idleTimeout: time.Second}))
	assert.True(t, created)

	newReplayer = func(config) (*replayer, error) { return nil, errors.New("boom") }
	assert.Error(t, run(context.Background(), config{}))
}

func TestFailExits(t *testing.T) {
	if os.Getenv("DLQ_TEST_FAIL_EXIT") == "1" {
		fail("forced failure %d", 42)
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestFailExits")
	cmd.Env = append(os.Environ(), "DLQ_TEST_FAIL_EXIT=1")
	err := cmd.Run()
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) || exitErr.ExitCode() == 0 {
		t.Fatalf("expected non-zero exit code, got %v", err)
	}
}

func newStubReplayer(cfg config, messages []*sarama.ConsumerMessage) *replayer {
	return &replayer{
		cfg:      cfg,
		client:   &stubOffsetClient{newest: int64(len(messages))},
		consumer: &stubConsumerSource{messages: messages},
		now:      func() time.Time { return fixedNow },
	}
}

type stubOffsetClient struct {
	newest int64
}

func (s *stubOffsetClient) GetOffset(_ string, _ int32, marker int64) (int64, error) {
	if marker == sarama.OffsetOldest {
		return 0, nil
	}
	return s.newest, nil
}

func (s *stubOffsetClient) Partitions(string) ([]int32, error) { return []int32{0}, nil }
func (s *stubOffsetClient) Close() error                       { return nil }

type stubConsumerSource struct {
	messages []*sarama.ConsumerMessage
}

func (s *stubConsumerSource) ConsumePartition(string, int32, int64) (partitionConsumer, error) {
	ch := make(chan *sarama.ConsumerMessage, len(s.messages))
	for _, msg := range s.messages {
		ch <- msg
	}
	close(ch)
	return &stubPartitionConsumer{messages: ch, errors: make(chan *sarama.ConsumerError)}, nil
}

func (s *stubConsumerSource) Close() error { return nil }

type stubPartitionConsumer struct {
	messages chan *sarama.ConsumerMessage
	errors   chan *sarama.ConsumerError
}

func (s *stubPartitionConsumer) Messages() <-chan *sarama.ConsumerMessage { return s.messages }
func (s *stubPartitionConsumer) Errors() <-chan *sarama.ConsumerError     { return s.errors }
func (s *stubPartitionConsumer) Close() error                             { return nil }

type stubProducer struct {
	sent []*sarama.ProducerMessage
	err  error
}

func (s *stubProducer) SendMessage(msg *sarama.ProducerMessage) (int32, int64, error) {
	if s.err != nil {
		return 0, 0, s.err
	}
	s.sent = append(s.sent, msg)
	return 0, int64(len(s.sent)), nil
}

func (s *stubProducer) Close() error { return nil }
