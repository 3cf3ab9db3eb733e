package queue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

func NewRedisClient(host string, port int) (*redis.Client, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   0,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Error().Err(err).Str("address", addr).Msg("Failed to connect to Redis")
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}

	log.Info().Str("address", addr).Msg("Successfully connected and pinged Redis")
	return client, nil
}

// RedisQueue keeps message ids in a pending list and tracks deliveries in a
// sorted set scored by their visibility deadline. Claiming, requeueing and
// acknowledging each run as a single script so an id is always either
// pending or in flight.
type RedisQueue struct {
	client     *redis.Client
	key        string
	visibility time.Duration
}

const redisPollInterval = 100 * time.Millisecond

// claimScript moves expired deliveries back to pending, then pops up to
// ARGV[3] ids and registers each in flight in the same step. Ids whose body
// is gone are dropped. The reply is the requeue count followed by
// id, receipt, body triples.
var claimScript = redis.NewScript(`
local expired = redis.call('ZRANGEBYSCORE', KEYS[2], '-inf', ARGV[1])
for _, id in ipairs(expired) do
	redis.call('ZREM', KEYS[2], id)
	redis.call('HDEL', KEYS[4], id)
	redis.call('RPUSH', KEYS[1], id)
end
local out = {#expired}
for i = 1, tonumber(ARGV[3]) do
	local id = redis.call('RPOP', KEYS[1])
	if not id then
		break
	end
	local body = redis.call('HGET', KEYS[3], id)
	if body then
		local receipt = ARGV[4] .. '-' .. i
		redis.call('ZADD', KEYS[2], ARGV[2], id)
		redis.call('HSET', KEYS[4], id, receipt)
		table.insert(out, id)
		table.insert(out, receipt)
		table.insert(out, body)
	end
end
return out
`)

// deleteScript removes a delivery only while ARGV[2] is its current receipt.
var deleteScript = redis.NewScript(`
if redis.call('HGET', KEYS[3], ARGV[1]) ~= ARGV[2] then
	return 0
end
redis.call('ZREM', KEYS[1], ARGV[1])
redis.call('HDEL', KEYS[2], ARGV[1])
redis.call('HDEL', KEYS[3], ARGV[1])
return 1
`)

func NewRedisQueue(client *redis.Client, key string, visibility time.Duration) *RedisQueue {
	return &RedisQueue{client: client, key: key, visibility: visibility}
}

func (q *RedisQueue) pendingKey() string  { return q.key + ":pending" }
func (q *RedisQueue) inflightKey() string { return q.key + ":inflight" }
func (q *RedisQueue) bodiesKey() string   { return q.key + ":bodies" }
func (q *RedisQueue) receiptsKey() string { return q.key + ":receipts" }

func (q *RedisQueue) Publish(ctx context.Context, body []byte) error {
	id := uuid.NewString()
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, q.bodiesKey(), id, body)
		pipe.LPush(ctx, q.pendingKey(), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", q.key, err)
	}
	return nil
}

// Receive polls until a message is claimed or wait elapses. If a claim's
// reply is lost the ids stay in flight and come back after the visibility
// timeout.
func (q *RedisQueue) Receive(ctx context.Context, max int, wait time.Duration) ([]Message, error) {
	if max <= 0 {
		max = 1
	}
	deadline := time.Now().Add(wait)
	for {
		batch, err := q.claim(ctx, max)
		if err != nil {
			return nil, fmt.Errorf("receive from %s: %w", q.key, err)
		}
		remaining := time.Until(deadline)
		if len(batch) > 0 || remaining <= 0 {
			return batch, nil
		}

		timer := time.NewTimer(min(remaining, redisPollInterval))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (q *RedisQueue) claim(ctx context.Context, max int) ([]Message, error) {
	now := time.Now()
	keys := []string{q.pendingKey(), q.inflightKey(), q.bodiesKey(), q.receiptsKey()}
	reply, err := claimScript.Run(ctx, q.client, keys,
		now.UnixMilli(), now.Add(q.visibility).UnixMilli(), max, uuid.NewString()).Slice()
	if err != nil {
		return nil, err
	}
	if len(reply) == 0 || (len(reply)-1)%3 != 0 {
		return nil, fmt.Errorf("unexpected claim reply of %d elements", len(reply))
	}

	if requeued, _ := reply[0].(int64); requeued > 0 {
		log.Debug().Str("queue", q.key).Int64("count", requeued).Msg("Visibility timeout expired, messages requeued")
	}
	batch := make([]Message, 0, (len(reply)-1)/3)
	for i := 1; i < len(reply); i += 3 {
		id, _ := reply[i].(string)
		receipt, _ := reply[i+1].(string)
		body, _ := reply[i+2].(string)
		batch = append(batch, Message{ID: id, Body: []byte(body), Handle: id + ":" + receipt})
	}
	return batch, nil
}

func (q *RedisQueue) Delete(ctx context.Context, handle string) error {
	id, receipt, ok := strings.Cut(handle, ":")
	if !ok {
		return ErrUnknownHandle
	}
	keys := []string{q.inflightKey(), q.bodiesKey(), q.receiptsKey()}
	removed, err := deleteScript.Run(ctx, q.client, keys, id, receipt).Int64()
	if err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	if removed == 0 {
		return ErrUnknownHandle
	}
	return nil
}

// Close leaves the shared client open; it is owned by the caller.
func (q *RedisQueue) Close() error { return nil }
