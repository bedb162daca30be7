package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// SlotLock serializes booking attempts per (employee, date) with a Redis
// SET NX lease. It narrows the race window between the availability check
// and the insert; the database exclusion constraint remains the authority
// if Redis is down or the lease expires mid-transaction.
type SlotLock struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSlotLock(client *redis.Client, ttl time.Duration) *SlotLock {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &SlotLock{client: client, ttl: ttl}
}

// release must compare the token so an expired lease cannot delete a
// successor's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Acquire takes the lease for every employee in ids on date, in ascending
// order so two competing bookings never deadlock. It returns a release
// function, or false when any lease is already held.
func (l *SlotLock) Acquire(ctx context.Context, ids []int64, date time.Time) (func(), bool, error) {
	if l == nil || l.client == nil {
		return func() {}, true, nil
	}

	token := uuid.NewString()

	var held []string
	release := func() {
		bg, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		for _, key := range held {
			_ = releaseScript.Run(bg, l.client, []string{key}, token).Err()
		}
	}

	sorted := append([]int64(nil), ids...)
	for i := 0; i < len(sorted); i++ {
		for j := i + 1; j < len(sorted); j++ {
			if sorted[j] < sorted[i] {
				sorted[i], sorted[j] = sorted[j], sorted[i]
			}
		}
	}

	for _, id := range sorted {
		key := lockKey(id, date)
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			release()
			return nil, false, err
		}
		if !ok {
			release()
			return nil, false, nil
		}
		held = append(held, key)
	}
	return release, true, nil
}

func lockKey(employeeID int64, date time.Time) string {
	return fmt.Sprintf("booking:lock:%d:%s", employeeID, date.Format("2006-01-02"))
}
