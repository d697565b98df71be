package broker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type outcome struct {
	index int
	token string
	err   error
}

func TestRequestBeforeSupplyResolves(t *testing.T) {
	b := New(Options{})
	defer b.Close()

	result := make(chan string, 1)
	go func() {
		token, err := b.Request(context.Background())
		assert.NoError(t, err)
		result <- token
	}()

	require.Eventually(t, func() bool { return b.Pending() == 1 }, time.Second, time.Millisecond)
	b.Supply("tok-1")

	select {
	case token := <-result:
		assert.Equal(t, "tok-1", token)
	case <-time.After(time.Second):
		t.Fatal("request never resolved")
	}
}

func TestSupplyBroadcastsInArrivalOrder(t *testing.T) {
	b := New(Options{})
	defer b.Close()

	var (
		mu   sync.Mutex
		seen []outcome
	)
	for i := 0; i < 10; i++ {
		i := i
		b.Await(context.Background(), func(token string, err error) {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, outcome{index: i, token: token, err: err})
		})
	}
	require.Equal(t, 10, b.Pending())

	b.Supply("shared")

	require.Len(t, seen, 10)
	for i, o := range seen {
		assert.Equal(t, i, o.index)
		assert.Equal(t, "shared", o.token)
		assert.NoError(t, o.err)
	}
	assert.Zero(t, b.Pending())
}

func TestHeldCredentialResolvesImmediately(t *testing.T) {
	b := New(Options{})
	defer b.Close()
	b.Supply("cached")

	var got string
	b.Await(context.Background(), func(token string, err error) { got = token })
	assert.Equal(t, "cached", got)
	assert.True(t, b.Held())
}

func TestSingleFetchForManyWaiters(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	b := New(Options{Fetcher: FetcherFunc(func(ctx context.Context) (string, error) {
		calls.Add(1)
		<-release
		return "fetched", nil
	})})
	defer b.Close()

	var wg sync.WaitGroup
	tokens := make([]string, 5)
	for i := range tokens {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			token, err := b.Request(context.Background())
			assert.NoError(t, err)
			tokens[i] = token
		}(i)
	}

	require.Eventually(t, func() bool { return b.Pending() == 5 }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, token := range tokens {
		assert.Equal(t, "fetched", token)
	}
}

func TestFetchFailureRejectsAllAndResets(t *testing.T) {
	errExchange := errors.New("exchange refused")
	var calls atomic.Int32
	release := make(chan struct{})
	b := New(Options{Fetcher: FetcherFunc(func(ctx context.Context) (string, error) {
		if calls.Add(1) == 1 {
			<-release
			return "", errExchange
		}
		return "second", nil
	})})
	defer b.Close()

	results := make(chan error, 3)
	for i := 0; i < 3; i++ {
		b.Await(context.Background(), func(_ string, err error) { results <- err })
	}
	close(release)

	for i := 0; i < 3; i++ {
		err := <-results
		var credErr *CredentialError
		require.True(t, errors.As(err, &credErr))
		assert.ErrorIs(t, err, errExchange)
	}
	assert.False(t, b.Held())

	// A later request triggers a new acquisition.
	token, err := b.Request(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "second", token)
	assert.Equal(t, int32(2), calls.Load())
}

func TestWaiterTimeout(t *testing.T) {
	b := New(Options{})
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := b.Request(ctx)
	assert.ErrorIs(t, err, ErrCredentialTimeout)
	assert.Zero(t, b.Pending())

	// The timed out waiter is gone; a later supply resolves nobody twice.
	b.Supply("late")
	assert.True(t, b.Held())
}

func TestMaxWaiters(t *testing.T) {
	b := New(Options{MaxWaiters: 2})
	defer b.Close()

	noop := func(string, error) {}
	b.Await(context.Background(), noop)
	b.Await(context.Background(), noop)

	var err error
	b.Await(context.Background(), func(_ string, e error) { err = e })
	assert.ErrorIs(t, err, ErrTooManyWaiters)
	assert.Equal(t, 2, b.Pending())
}

func TestCloseReleasesWaiters(t *testing.T) {
	b := New(Options{})
	b.Supply("tok")
	b.Fail(errors.New("expired"))

	var errs []error
	for i := 0; i < 3; i++ {
		b.Await(context.Background(), func(_ string, err error) { errs = append(errs, err) })
	}
	b.Close()

	require.Len(t, errs, 3)
	for _, err := range errs {
		assert.ErrorIs(t, err, ErrBrokerClosed)
	}
	assert.False(t, b.Held())

	_, err := b.Request(context.Background())
	assert.ErrorIs(t, err, ErrBrokerClosed)
}

func TestCloseCancelsFetch(t *testing.T) {
	cancelled := make(chan struct{})
	b := New(Options{Fetcher: FetcherFunc(func(ctx context.Context) (string, error) {
		<-ctx.Done()
		close(cancelled)
		return "", ctx.Err()
	})})

	b.Acquire()
	b.Close()

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("fetch was not cancelled")
	}
}

func TestObserve(t *testing.T) {
	var results []string
	b := New(Options{Observe: func(result string, _ time.Duration) { results = append(results, result) }})
	defer b.Close()

	b.Await(context.Background(), func(string, error) {})
	b.Supply("tok")
	b.Await(context.Background(), func(string, error) {})

	assert.Equal(t, []string{"supplied", "supplied"}, results)
}
