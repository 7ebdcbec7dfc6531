// Copyright 2022-2023, MLabs, Ltd.
// For license information, see https://github.com/mlabs-haskell/scrolls/blob/main/LICENSE

package storage

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"

	"github.com/mlabs-haskell/scrolls/bootstrap"
	"github.com/mlabs-haskell/scrolls/crosscut"
	"github.com/mlabs-haskell/scrolls/model"
	"github.com/mlabs-haskell/scrolls/pipeline"
)

const (
	redisCursorKey  = "cursor"
	redisCreatedIdx = "vp.created"
	redisSpentIdx   = "vp.spent"
)

func redisUtxoKey(txID string, txIdx uint32) string {
	return fmt.Sprintf("vp:%s#%d", txID, txIdx)
}

// Redis is the key-value sink: per-UTXO hashes plus slot-scored indexes
// that make rollbacks a range sweep.
type Redis struct {
	url    string
	input  pipeline.TwoPhaseInputPort[model.CRDTCommand]
	worker *redisWorker
}

func NewRedis(url string) *Redis {
	r := &Redis{url: url}
	r.worker = &redisWorker{
		url:    url,
		input:  &r.input,
		logger: log.New("stage", "storage.redis"),
		ops:    pipeline.NewCounter("storage", "ops"),
		tick:   pipeline.DefaultPolicy().TickTimeout,
	}
	return r
}

func (r *Redis) InputPort() *pipeline.TwoPhaseInputPort[model.CRDTCommand] {
	return &r.input
}

func (r *Redis) Cursor() Cursor {
	return redisCursor{url: r.url}
}

func (r *Redis) SpawnInto(p *bootstrap.Pipeline, policy pipeline.Policy) {
	r.worker.tick = policy.TickTimeout
	p.Spawn("storage", r.worker, policy)
}

type redisCursor struct {
	url string
}

func (c redisCursor) LastPoint() (*crosscut.PointArg, error) {
	opt, err := redis.ParseURL(c.url)
	if err != nil {
		return nil, errors.Wrap(err, "parsing redis url")
	}
	client := redis.NewClient(opt)
	defer client.Close()

	raw, err := client.Get(context.Background(), redisCursorKey).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "reading cursor")
	}
	point, err := crosscut.ParsePointArg(raw)
	if err != nil {
		return nil, err
	}
	return &point, nil
}

type redisWorker struct {
	url    string
	client *redis.Client

	input  *pipeline.TwoPhaseInputPort[model.CRDTCommand]
	logger log.Logger
	ops    metrics.Counter
	tick   time.Duration
}

func (w *redisWorker) Bootstrap() error {
	opt, err := redis.ParseURL(w.url)
	if err != nil {
		// A bad URL never heals by retrying, but bootstrap retries are
		// bounded, so the stage still fails fast enough.
		return err
	}
	client := redis.NewClient(opt)
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return err
	}
	w.client = client
	return nil
}

func (w *redisWorker) Teardown() error {
	if w.client != nil {
		err := w.client.Close()
		w.client = nil
		return err
	}
	return nil
}

func (w *redisWorker) Work() (pipeline.WorkOutcome, error) {
	msg, idle, err := w.input.RecvOrIdle(w.tick)
	if err != nil {
		return pipeline.WorkIdle, err
	}
	if idle {
		return pipeline.WorkIdle, nil
	}

	if err := w.apply(context.Background(), msg.Payload); err != nil {
		return pipeline.WorkIdle, err
	}

	w.ops.Inc(1)
	w.input.Commit()
	return pipeline.WorkPartial, nil
}

func (w *redisWorker) apply(ctx context.Context, cmd model.CRDTCommand) error {
	switch c := cmd.(type) {
	case model.BlockStarting:
		w.logger.Debug("block starting", "point", c.Point)
		return nil
	case model.VotingPowerCreated:
		return w.created(ctx, c)
	case model.VotingPowerSpent:
		return w.spent(ctx, c)
	case model.VotingPowerChange:
		key := c.Policy + "." + c.Address.String()
		return pipeline.ErrRestart(w.client.IncrBy(ctx, key, c.Delta).Err())
	case model.BlockFinished:
		if c.Point.IsOrigin() {
			return nil
		}
		return pipeline.ErrRestart(
			w.client.Set(ctx, redisCursorKey, crosscut.PointArgFrom(c.Point).String(), 0).Err())
	case model.RollBack:
		return w.rollBack(ctx, c)
	default:
		return pipeline.ErrPanic(errors.Errorf("unknown command %T", cmd))
	}
}

func (w *redisWorker) created(ctx context.Context, c model.VotingPowerCreated) error {
	if c.Point.IsOrigin() {
		return pipeline.ErrPanic(errors.New("voting power created at origin"))
	}
	id := redisUtxoKey(c.TxID.String(), c.TxIdx)
	staking := ""
	if c.Owner.HasDelegation() {
		staking = c.Owner.DelegationHash.String()
	}
	pipe := w.client.TxPipeline()
	pipe.HSet(ctx, id,
		"owner", c.Owner.String(),
		"spending", c.Owner.PaymentHash.String(),
		"staking", staking,
		"policy", c.Policy,
		"token", hex.EncodeToString(c.Token),
		"amount", c.Amount,
		"created_slot", c.Point.Slot,
	)
	pipe.ZAdd(ctx, redisCreatedIdx, &redis.Z{Score: float64(c.Point.Slot), Member: id})
	_, err := pipe.Exec(ctx)
	return pipeline.ErrRestart(err)
}

func (w *redisWorker) spent(ctx context.Context, c model.VotingPowerSpent) error {
	if c.Point.IsOrigin() {
		return pipeline.ErrPanic(errors.New("voting power spent at origin"))
	}
	id := redisUtxoKey(c.TxID.String(), c.TxIdx)
	pipe := w.client.TxPipeline()
	pipe.HSet(ctx, id, "spent_slot", c.Point.Slot)
	pipe.ZAdd(ctx, redisSpentIdx, &redis.Z{Score: float64(c.Point.Slot), Member: id})
	_, err := pipe.Exec(ctx)
	return pipeline.ErrRestart(err)
}

func (w *redisWorker) rollBack(ctx context.Context, c model.RollBack) error {
	min := "(" + fmt.Sprint(c.Point.Slot)
	if c.Point.IsOrigin() {
		min = "-inf"
	}
	rng := &redis.ZRangeBy{Min: min, Max: "+inf"}

	createdAfter, err := w.client.ZRangeByScore(ctx, redisCreatedIdx, rng).Result()
	if err != nil {
		return pipeline.ErrRestart(err)
	}
	spentAfter, err := w.client.ZRangeByScore(ctx, redisSpentIdx, rng).Result()
	if err != nil {
		return pipeline.ErrRestart(err)
	}

	pipe := w.client.TxPipeline()
	for _, id := range createdAfter {
		pipe.Del(ctx, id)
		pipe.ZRem(ctx, redisCreatedIdx, id)
	}
	for _, id := range spentAfter {
		pipe.HDel(ctx, id, "spent_slot")
		pipe.ZRem(ctx, redisSpentIdx, id)
	}
	if c.Point.IsOrigin() {
		pipe.Del(ctx, redisCursorKey)
	} else {
		pipe.Set(ctx, redisCursorKey, crosscut.PointArgFrom(c.Point).String(), 0)
	}
	_, err = pipe.Exec(ctx)
	return pipeline.ErrRestart(err)
}
