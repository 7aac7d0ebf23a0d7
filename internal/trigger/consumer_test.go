package trigger

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/product-ingest/internal/ingest"
	"github.com/ignite/product-ingest/internal/pkg/distlock"
	"github.com/ignite/product-ingest/internal/pkg/logger"
)

type fakeQueue struct {
	mu       sync.Mutex
	batches  [][]types.Message
	recvErr  error
	received []*sqs.ReceiveMessageInput
	deleted  []string
}

func (q *fakeQueue) ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.received = append(q.received, in)
	if q.recvErr != nil {
		return nil, q.recvErr
	}
	if len(q.batches) == 0 {
		return &sqs.ReceiveMessageOutput{}, nil
	}
	b := q.batches[0]
	q.batches = q.batches[1:]
	return &sqs.ReceiveMessageOutput{Messages: b}, nil
}

func (q *fakeQueue) DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.deleted = append(q.deleted, aws.ToString(in.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

type fakeHandler struct {
	status int
	seen   []string
	corr   []string
	during func()
}

func (h *fakeHandler) HandleS3Event(ctx context.Context, correlationID string, ev ingest.S3Event) ingest.Response {
	bucket, key, _ := ev.Object()
	h.seen = append(h.seen, bucket+"/"+key)
	h.corr = append(h.corr, correlationID)
	if h.during != nil {
		h.during()
	}
	return ingest.Response{StatusCode: h.status}
}

func message(id, body string) types.Message {
	return types.Message{MessageId: aws.String(id), ReceiptHandle: aws.String("rh-" + id), Body: aws.String(body)}
}

func s3Body(bucket, key string) string {
	return `{"Records":[{"s3":{"bucket":{"name":"` + bucket + `"},"object":{"key":"` + key + `"}}}]}`
}

func newConsumer(q *fakeQueue, h Handler, locks distlock.Factory) *Consumer {
	return NewConsumer(q, h, locks, Options{QueueURL: "https://sqs/uploads", ErrorBackoff: time.Millisecond}, logger.New("test", io.Discard))
}

func TestPollOnceDeletesHandledMessages(t *testing.T) {
	q := &fakeQueue{batches: [][]types.Message{{
		message("1", s3Body("raw", "a.json")),
		message("2", `not json`),
		message("3", `{"Service":"Amazon S3","Event":"s3:TestEvent"}`),
	}}}
	h := &fakeHandler{status: http.StatusOK}

	n, err := newConsumer(q, h, nil).PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"rh-1", "rh-2", "rh-3"}, q.deleted)
	assert.Equal(t, []string{"raw/a.json"}, h.seen)
	assert.Equal(t, []string{"1"}, h.corr)

	in := q.received[0]
	assert.Equal(t, "https://sqs/uploads", aws.ToString(in.QueueUrl))
	assert.EqualValues(t, 10, in.MaxNumberOfMessages)
	assert.EqualValues(t, 20, in.WaitTimeSeconds)
}

func TestRetryableFailureKeepsMessage(t *testing.T) {
	q := &fakeQueue{batches: [][]types.Message{{message("1", s3Body("raw", "a.json"))}}}
	n, err := newConsumer(q, &fakeHandler{status: http.StatusInternalServerError}, nil).PollOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, q.deleted)
}

func TestNonRetryableFailureDeletesMessage(t *testing.T) {
	q := &fakeQueue{batches: [][]types.Message{{message("1", s3Body("raw", "a.json"))}}}
	n, err := newConsumer(q, &fakeHandler{status: http.StatusBadRequest}, nil).PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestLeaseDropsDuplicates(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	locks := distlock.NewFactory(client, time.Minute)

	q := &fakeQueue{batches: [][]types.Message{{message("dup", s3Body("raw", "a.json"))}}}
	h := &fakeHandler{status: http.StatusOK}
	c := newConsumer(q, h, locks)

	// another worker holds the object
	other := locks(distlock.ObjectKey("raw", "a.json"))
	ok, err := other.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	n, err := c.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Empty(t, h.seen)

	require.NoError(t, other.Release(context.Background()))
	q.batches = [][]types.Message{{message("again", s3Body("raw", "a.json"))}}
	h.during = func() {
		assert.True(t, mr.Exists("lock:"+distlock.ObjectKey("raw", "a.json")), "lease held while processing")
	}
	_, err = c.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"raw/a.json"}, h.seen)
	assert.False(t, mr.Exists("lock:"+distlock.ObjectKey("raw", "a.json")), "lease released afterwards")
}

func TestLeaseErrorKeepsMessage(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	mr.Close()

	q := &fakeQueue{batches: [][]types.Message{{message("1", s3Body("raw", "a.json"))}}}
	h := &fakeHandler{status: http.StatusOK}
	n, err := newConsumer(q, h, distlock.NewFactory(client, time.Minute)).PollOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, h.seen)
}

func TestStartStop(t *testing.T) {
	q := &fakeQueue{recvErr: errors.New("throttled")}
	c := newConsumer(q, &fakeHandler{}, nil)

	c.Start(context.Background())
	require.Eventually(t, func() bool {
		q.mu.Lock()
		defer q.mu.Unlock()
		return len(q.received) >= 2
	}, time.Second, 5*time.Millisecond)
	c.Stop()
	c.Stop()
}

type countingLock struct {
	mu        sync.Mutex
	extends   int
	ttls      []time.Duration
	extendErr error
	released  bool
}

func (l *countingLock) Acquire(context.Context) (bool, error) { return true, nil }

func (l *countingLock) Release(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.released = true
	return nil
}

func (l *countingLock) Extend(_ context.Context, ttl time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.extends++
	l.ttls = append(l.ttls, ttl)
	return l.extendErr
}

func (l *countingLock) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.extends
}

func newLeasedConsumer(q *fakeQueue, h Handler, lock *countingLock, ttl time.Duration) *Consumer {
	locks := func(string) distlock.DistLock { return lock }
	return NewConsumer(q, h, locks, Options{QueueURL: "https://sqs/uploads", LeaseTTL: ttl}, logger.New("test", io.Discard))
}

func TestLeaseRenewedDuringLongRun(t *testing.T) {
	lock := &countingLock{}
	q := &fakeQueue{batches: [][]types.Message{{message("1", s3Body("raw", "a.json"))}}}
	h := &fakeHandler{status: http.StatusOK, during: func() {
		require.Eventually(t, func() bool { return lock.count() >= 3 }, time.Second, 5*time.Millisecond)
	}}

	n, err := newLeasedConsumer(q, h, lock, 30*time.Millisecond).PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, lock.released)
	assert.Equal(t, 30*time.Millisecond, lock.ttls[0])

	// renewal stops with the run
	after := lock.count()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, lock.count())
}

func TestLeaseRenewalStopsWhenLost(t *testing.T) {
	lock := &countingLock{extendErr: distlock.ErrNotOwner}
	q := &fakeQueue{batches: [][]types.Message{{message("1", s3Body("raw", "a.json"))}}}
	h := &fakeHandler{status: http.StatusOK, during: func() {
		require.Eventually(t, func() bool { return lock.count() == 1 }, time.Second, 5*time.Millisecond)
		time.Sleep(40 * time.Millisecond)
	}}

	_, err := newLeasedConsumer(q, h, lock, 15*time.Millisecond).PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, lock.count())
}

func TestNoRenewalWithoutLeaseTTL(t *testing.T) {
	lock := &countingLock{}
	q := &fakeQueue{batches: [][]types.Message{{message("1", s3Body("raw", "a.json"))}}}
	h := &fakeHandler{status: http.StatusOK, during: func() { time.Sleep(20 * time.Millisecond) }}

	_, err := newLeasedConsumer(q, h, lock, 0).PollOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, lock.count())
}
