package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/RigelNana/backdrop/pkg/metrics"
	"github.com/RigelNana/backdrop/services/compose-service/models"
)

// ProgressFunc receives a copy of a pair's result after every transition.
type ProgressFunc func(index int, result models.GenerationResult)

// AssetResolver turns asset references into inline payloads.
type AssetResolver interface {
	Resolve(ctx context.Context, asset models.ImageAsset) (models.ImageAsset, error)
}

// Orchestrator drives pairs through a Generator one at a time.
type Orchestrator struct {
	generator Generator
	resolver  AssetResolver
	serverKey string
	logger    *logrus.Logger
}

func NewOrchestrator(generator Generator, resolver AssetResolver, serverKey string, logger *logrus.Logger) *Orchestrator {
	return &Orchestrator{
		generator: generator,
		resolver:  resolver,
		serverKey: serverKey,
		logger:    logger,
	}
}

func (o *Orchestrator) Strategy() string {
	return o.generator.Strategy()
}

// HasServerKey reports whether runs can fall back to a configured credential.
func (o *Orchestrator) HasServerKey() bool {
	return o.serverKey != ""
}

// Prepare checks a batch before anything is dispatched and returns the
// credential the batch will use.
func (o *Orchestrator) Prepare(pairs []models.Pair, credential string) (string, error) {
	if len(pairs) == 0 {
		return "", validationError("no pairs to generate")
	}
	for i, p := range pairs {
		if p.Photo.Empty() {
			return "", validationError("pair %d: photo image is missing", i)
		}
		if p.Inspiration.Empty() {
			return "", validationError("pair %d: inspiration image is missing", i)
		}
	}
	return ResolveCredential(credential, o.serverKey)
}

// RunAll processes pairs strictly in order. Validation and credential errors
// abort before the first pair; a failing pair is recorded and the loop moves
// on. Cancellation is honored between pairs only: the remaining pairs are
// marked as canceled and ctx.Err() is returned with the results.
func (o *Orchestrator) RunAll(ctx context.Context, pairs []models.Pair, credential string, onProgress ProgressFunc) ([]models.GenerationResult, error) {
	key, err := o.Prepare(pairs, credential)
	if err != nil {
		return nil, err
	}

	results := make([]models.GenerationResult, len(pairs))
	for i := range results {
		results[i] = models.NewQueuedResult()
	}
	emit := func(i int) {
		if onProgress != nil {
			onProgress(i, results[i])
		}
	}

	log := o.logger.WithFields(logrus.Fields{"run_id": RunIDFromContext(ctx), "pairs": len(pairs)})
	log.Info("run started")
	start := time.Now()

	for i := range pairs {
		if err := ctx.Err(); err != nil {
			for j := i; j < len(pairs); j++ {
				results[j].Fail("run canceled before this pair started", CodeCanceled)
				metrics.PairsProcessed.WithLabelValues(o.Strategy(), string(models.StatusError)).Inc()
				emit(j)
			}
			log.WithField("remaining", len(pairs)-i).Warn("run canceled")
			return results, err
		}
		o.runPair(ctx, log.WithField("pair", i), pairs[i], key, &results[i], func() { emit(i) })
	}

	log.WithField("elapsed", time.Since(start).String()).Info("run finished")
	return results, nil
}

// Generate runs a single pair outside of a batch and returns the typed error
// instead of recording it, for callers that answer one request per pair.
func (o *Orchestrator) Generate(ctx context.Context, pair models.Pair, credential string) (*models.GenerationOutcome, error) {
	key, err := o.Prepare([]models.Pair{pair}, credential)
	if err != nil {
		return nil, err
	}
	outcome, err := o.dispatch(ctx, pair, key)
	status := models.StatusDone
	if err != nil {
		status = models.StatusError
		ge := AsGenerationError(err)
		o.logger.WithFields(logrus.Fields{"code": ge.Code, "kind": ge.Kind}).WithError(err).Warn("generation failed")
	}
	metrics.PairsProcessed.WithLabelValues(o.Strategy(), string(status)).Inc()
	return outcome, err
}

func (o *Orchestrator) runPair(ctx context.Context, log *logrus.Entry, pair models.Pair, key string, res *models.GenerationResult, emit func()) {
	res.Advance(models.StatusAnalyzing)
	emit()

	res.Advance(models.StatusGenerating)
	emit()

	outcome, err := o.dispatch(ctx, pair, key)
	if err != nil {
		ge := AsGenerationError(err)
		res.Fail(ge.Message, ge.Code)
		log.WithFields(logrus.Fields{"status": res.Status, "code": ge.Code}).WithError(err).Warn("pair failed")
	} else {
		res.Complete(outcome)
		log.WithFields(logrus.Fields{
			"status":    res.Status,
			"has_image": outcome.HasImage(),
			"fallback":  outcome.UsedFallback,
		}).Info("pair done")
	}
	metrics.PairsProcessed.WithLabelValues(o.Strategy(), string(res.Status)).Inc()
	emit()
}

func (o *Orchestrator) dispatch(ctx context.Context, pair models.Pair, key string) (*models.GenerationOutcome, error) {
	photo, inspiration := pair.Photo, pair.Inspiration
	if o.resolver != nil {
		var err error
		if photo, err = o.resolver.Resolve(ctx, photo); err != nil {
			return nil, validationError("photo: %v", err)
		}
		if inspiration, err = o.resolver.Resolve(ctx, inspiration); err != nil {
			return nil, validationError("inspiration: %v", err)
		}
	}
	return o.generator.Generate(ctx, GenerateRequest{
		Photo:       photo,
		Inspiration: inspiration,
		Credential:  key,
	})
}

type runIDKey struct{}

// ContextWithRunID tags ctx so log lines can be correlated with a run.
func ContextWithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

func RunIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}
