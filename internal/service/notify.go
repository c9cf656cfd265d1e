package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Change kinds published for a day.
const (
	ChangeFood       = "food"
	ChangeActivity   = "activity"
	ChangeWeight     = "weight"
	ChangeGoals      = "goals"
	ChangeReconciled = "reconciled"
)

// Change announces that one user's day was written.
type Change struct {
	UserID string    `json:"user_id"`
	Date   string    `json:"date"`
	Kind   string    `json:"kind"`
	At     time.Time `json:"at"`
}

// Notifier fans out day changes to live subscribers.
type Notifier interface {
	Publish(ctx context.Context, c Change) error
	Subscribe(ctx context.Context, userID, date string) (<-chan Change, func(), error)
}

func dayChannel(userID, date string) string {
	return fmt.Sprintf("byefat:log:%s:%s", userID, date)
}

// RedisNotifier uses redis pub/sub so every API replica sees every write.
type RedisNotifier struct {
	client *redis.Client
	log    *zap.Logger
}

var _ Notifier = (*RedisNotifier)(nil)

func NewRedisNotifier(client *redis.Client, log *zap.Logger) *RedisNotifier {
	return &RedisNotifier{client: client, log: log.Named("notifier")}
}

func (n *RedisNotifier) Publish(ctx context.Context, c Change) error {
	if c.At.IsZero() {
		c.At = time.Now().UTC()
	}
	payload, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return n.client.Publish(ctx, dayChannel(c.UserID, c.Date), payload).Err()
}

func (n *RedisNotifier) Subscribe(ctx context.Context, userID, date string) (<-chan Change, func(), error) {
	pubsub := n.client.Subscribe(ctx, dayChannel(userID, date))
	// Wait for the subscription to be confirmed before handing it out.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, err
	}

	out := make(chan Change, 8)
	done := make(chan struct{})
	go func() {
		defer close(out)
		msgs := pubsub.Channel()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var c Change
				if err := json.Unmarshal([]byte(msg.Payload), &c); err != nil {
					n.log.Warn("dropping malformed change", zap.Error(err))
					continue
				}
				select {
				case out <- c:
				default:
					// dropped while the subscriber lags
				}
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = pubsub.Close()
		})
	}
	return out, cancel, nil
}

// LocalNotifier delivers changes inside one process. It backs single-node
// deployments without redis and tests.
type LocalNotifier struct {
	mu   sync.Mutex
	subs map[string]map[chan Change]struct{}
}

var _ Notifier = (*LocalNotifier)(nil)

func NewLocalNotifier() *LocalNotifier {
	return &LocalNotifier{subs: make(map[string]map[chan Change]struct{})}
}

func (n *LocalNotifier) Publish(_ context.Context, c Change) error {
	if c.At.IsZero() {
		c.At = time.Now().UTC()
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	for ch := range n.subs[dayChannel(c.UserID, c.Date)] {
		select {
		case ch <- c:
		default:
		}
	}
	return nil
}

func (n *LocalNotifier) Subscribe(ctx context.Context, userID, date string) (<-chan Change, func(), error) {
	key := dayChannel(userID, date)
	ch := make(chan Change, 8)

	n.mu.Lock()
	if n.subs[key] == nil {
		n.subs[key] = make(map[chan Change]struct{})
	}
	n.subs[key][ch] = struct{}{}
	n.mu.Unlock()

	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subs[key], ch)
			if len(n.subs[key]) == 0 {
				delete(n.subs, key)
			}
			close(ch)
			n.mu.Unlock()
			close(done)
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-done:
		}
	}()
	return ch, cancel, nil
}

// publish sends c and only logs a failure; the write it describes is
// already committed.
func publish(ctx context.Context, n Notifier, log *zap.Logger, c Change) {
	if n == nil {
		return
	}
	if err := n.Publish(ctx, c); err != nil {
		log.Warn("failed to publish change",
			zap.String("user_id", c.UserID),
			zap.String("date", c.Date),
			zap.String("kind", c.Kind),
			zap.Error(err),
		)
	}
}
