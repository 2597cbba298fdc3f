package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haulpoint/shopbot-go/internal/kv"
	"github.com/haulpoint/shopbot-go/internal/model"
)

func TestConversationKey(t *testing.T) {
	assert.Equal(t, "100:200", ConversationKey(100, 200))
	assert.Equal(t, "-100500:42", ConversationKey(-100500, 42))
}

func TestStateStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewStateStore(kv.NewMemory(), time.Hour)

	st, err := store.Get(ctx, "1:1")
	require.NoError(t, err)
	assert.Nil(t, st, "missing state should read as nil")

	in := model.NewAddState()
	in.Add.Draft.Name = "Joe's Diesel"
	in.Add.Services = []string{"Tires"}
	require.NoError(t, store.Put(ctx, "1:1", in))

	out, err := store.Get(ctx, "1:1")
	require.NoError(t, err)
	require.NotNil(t, out)
	require.NotNil(t, out.Add)
	assert.Equal(t, model.FlowAdd, out.Flow)
	assert.Equal(t, model.StepName, out.Add.Step)
	assert.Equal(t, "Joe's Diesel", out.Add.Draft.Name)
	assert.Equal(t, []string{"Tires"}, out.Add.Services)

	require.NoError(t, store.Clear(ctx, "1:1"))
	out, err = store.Get(ctx, "1:1")
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestStateStoreDropsUndecodableState(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemory()
	store := NewStateStore(mem, time.Hour)

	require.NoError(t, mem.Set(ctx, "state:1:1", []byte("{not json"), time.Hour))

	st, err := store.Get(ctx, "1:1")
	require.NoError(t, err)
	assert.Nil(t, st)

	// The corrupt entry is gone, not just ignored.
	data, err := mem.Get(ctx, "state:1:1")
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestStateStorePutRestartsTTL(t *testing.T) {
	ctx := context.Background()
	mem := kv.NewMemory()

	now := time.Now()
	mem.Now = func() time.Time { return now }

	store := NewStateStore(mem, 10*time.Minute)
	require.NoError(t, store.Put(ctx, "1:1", model.NewSearchState()))

	// A rewrite inside the window restarts the clock.
	now = now.Add(6 * time.Minute)
	require.NoError(t, store.Put(ctx, "1:1", model.NewSearchState()))

	now = now.Add(6 * time.Minute)
	st, err := store.Get(ctx, "1:1")
	require.NoError(t, err)
	assert.NotNil(t, st, "state refreshed at 6m should survive until 16m")

	now = now.Add(5 * time.Minute)
	st, err = store.Get(ctx, "1:1")
	require.NoError(t, err)
	assert.Nil(t, st, "state should expire 10m after the last write")
}

func TestStateStoreLockSerializesSameKey(t *testing.T) {
	store := NewStateStore(kv.NewMemory(), time.Hour)

	var mu sync.Mutex
	inFlight := 0
	maxInFlight := 0

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := store.Lock("1:1")
			defer unlock()

			mu.Lock()
			inFlight++
			if inFlight > maxInFlight {
				maxInFlight = inFlight
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inFlight--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxInFlight, "holders of the same key must run one at a time")
}

func TestStateStoreLockIndependentKeys(t *testing.T) {
	store := NewStateStore(kv.NewMemory(), time.Hour)

	unlockA := store.Lock("1:1")
	defer unlockA()

	// A different conversation must not block behind 1:1.
	done := make(chan struct{})
	go func() {
		unlockB := store.Lock("2:2")
		unlockB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on a different key blocked")
	}
}
