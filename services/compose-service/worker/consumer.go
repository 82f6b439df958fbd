package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	kafka "github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/RigelNana/backdrop/pkg/metrics"
	"github.com/RigelNana/backdrop/services/compose-service/codec"
	"github.com/RigelNana/backdrop/services/compose-service/config"
	"github.com/RigelNana/backdrop/services/compose-service/models"
	"github.com/RigelNana/backdrop/services/compose-service/service"
)

const serviceName = "compose-service"

// composeJob is the schema published on the requests topic. Images are data
// URLs, bare base64 or s3:// / http(s):// references.
type composeJob struct {
	JobID      string    `json:"job_id"`
	Credential string    `json:"credential,omitempty"`
	Pairs      []jobPair `json:"pairs"`
}

type jobPair struct {
	Photo           string `json:"photo"`
	Inspiration     string `json:"inspiration"`
	PhotoName       string `json:"photo_name,omitempty"`
	InspirationName string `json:"inspiration_name,omitempty"`
}

// composeResult is published on the results topic, keyed by job ID.
type composeResult struct {
	JobID   string                    `json:"job_id"`
	RunID   string                    `json:"run_id,omitempty"`
	Status  string                    `json:"status"`
	Error   string                    `json:"error,omitempty"`
	Code    string                    `json:"code,omitempty"`
	Results []models.GenerationResult `json:"results,omitempty"`
}

type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Executor runs a batch of pairs to completion.
type Executor interface {
	Execute(ctx context.Context, source string, pairs []models.Pair, credential string) (*models.Run, error)
}

type Consumer struct {
	reader  MessageReader
	writer  MessageWriter
	exec    Executor
	topic   string
	logger  *logrus.Logger
	backoff time.Duration
}

func NewConsumer(cfg config.KafkaConfig, exec Executor, logger *logrus.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.BrokerList(),
		GroupID:  cfg.GroupID,
		Topic:    cfg.RequestsTopic,
		MinBytes: 1,
		MaxBytes: 50 << 20,
	})
	w := &kafka.Writer{
		Addr:     kafka.TCP(cfg.BrokerList()...),
		Topic:    cfg.ResultsTopic,
		Balancer: &kafka.LeastBytes{},
	}
	return newConsumer(r, w, exec, cfg.RequestsTopic, logger)
}

func newConsumer(r MessageReader, w MessageWriter, exec Executor, topic string, logger *logrus.Logger) *Consumer {
	return &Consumer{
		reader:  r,
		writer:  w,
		exec:    exec,
		topic:   topic,
		logger:  logger,
		backoff: time.Second,
	}
}

// Run consumes jobs one at a time until ctx is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.close()
	c.logger.WithField("topic", c.topic).Info("kafka consumer started")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.WithError(err).Error("kafka fetch failed")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.backoff):
			}
			continue
		}

		result := c.handle(ctx, msg)
		if err := c.publish(ctx, result); err != nil {
			c.logger.WithError(err).WithField("job_id", result.JobID).Error("failed to publish result")
		}
		// 无论成功失败都提交 offset，任务不会自动重试
		if err := c.reader.CommitMessages(context.Background(), msg); err != nil {
			c.logger.WithError(err).Error("kafka commit failed")
		}
	}
}

func (c *Consumer) handle(ctx context.Context, msg kafka.Message) composeResult {
	var job composeJob
	if err := json.Unmarshal(msg.Value, &job); err != nil {
		metrics.KafkaMessagesTotal.WithLabelValues(serviceName, c.topic, "bad_json").Inc()
		return composeResult{
			JobID:  string(msg.Key),
			Status: models.RunStatusCanceled,
			Error:  fmt.Sprintf("bad job json: %v", err),
			Code:   string(service.KindValidation),
		}
	}
	if job.JobID == "" {
		job.JobID = string(msg.Key)
	}
	if job.JobID == "" {
		job.JobID = msg.Topic + "-" + strconv.Itoa(msg.Partition) + "-" + strconv.FormatInt(msg.Offset, 10)
	}
	log := c.logger.WithFields(logrus.Fields{"job_id": job.JobID, "pairs": len(job.Pairs)})
	log.Info("compose job received")

	run, err := c.exec.Execute(ctx, models.RunSourceKafka, job.pairs(), job.Credential)
	if err != nil {
		ge := service.AsGenerationError(err)
		metrics.KafkaMessagesTotal.WithLabelValues(serviceName, c.topic, "rejected").Inc()
		log.WithError(err).Warn("compose job rejected")
		res := composeResult{JobID: job.JobID, Status: models.RunStatusCanceled, Error: ge.Message, Code: ge.Code}
		if run != nil {
			res.RunID = run.ID.String()
		}
		return res
	}

	metrics.KafkaMessagesTotal.WithLabelValues(serviceName, c.topic, "processed").Inc()
	log.WithFields(logrus.Fields{"run_id": run.ID, "done": run.DoneCount, "failed": run.ErrorCount}).Info("compose job finished")
	return composeResult{
		JobID:   job.JobID,
		RunID:   run.ID.String(),
		Status:  run.Status,
		Results: run.Results.Data(),
	}
}

func (c *Consumer) publish(ctx context.Context, result composeResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	return c.writer.WriteMessages(wctx, kafka.Message{
		Key:   []byte(result.JobID),
		Value: payload,
	})
}

func (c *Consumer) close() {
	if err := errors.Join(c.reader.Close(), c.writer.Close()); err != nil {
		c.logger.WithError(err).Warn("kafka close")
	}
}

func (j composeJob) pairs() []models.Pair {
	pairs := make([]models.Pair, 0, len(j.Pairs))
	for i, p := range j.Pairs {
		pairs = append(pairs, models.Pair{
			Photo:       codec.AssetFromString(fmt.Sprintf("%s-photo-%d", j.JobID, i), p.Photo, p.PhotoName),
			Inspiration: codec.AssetFromString(fmt.Sprintf("%s-inspiration-%d", j.JobID, i), p.Inspiration, p.InspirationName),
		})
	}
	return pairs
}
