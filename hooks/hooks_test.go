package hooks

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockListener is a mock implementation of HookListener for testing.
type mockListener struct {
	priority int
	// A channel to signal when OnEvent is called, for async tests.
	callSignal chan string
	// Records the order of calls, for sync tests.
	callOrder *[]string
	name      string
	returnErr error
	isAsync   bool
	workDelay time.Duration
}

func (m *mockListener) OnEvent(ctx context.Context, event HookEvent) error {
	if m.workDelay > 0 {
		time.Sleep(m.workDelay)
	}
	if m.callOrder != nil {
		*m.callOrder = append(*m.callOrder, m.name)
	}
	if m.callSignal != nil {
		m.callSignal <- m.name
	}
	return m.returnErr
}

func (m *mockListener) Priority() int { return m.priority }
func (m *mockListener) IsAsync() bool { return m.isAsync }

func TestNewHookManager(t *testing.T) {
	manager := NewHookManager(nil)
	require.NotNil(t, manager)
	defaultManager, ok := manager.(*DefaultHookManager)
	require.True(t, ok)
	assert.NotNil(t, defaultManager.listeners)
	assert.NotNil(t, defaultManager.logger)
}

func TestDefaultHookManager_Register(t *testing.T) {
	manager := NewHookManager(nil).(*DefaultHookManager)

	manager.Register(EventPreInsert, &mockListener{name: "p10", priority: 10})
	manager.Register(EventPreInsert, &mockListener{name: "p1", priority: 1})
	manager.Register(EventPreInsert, &mockListener{name: "p5-first", priority: 5})
	manager.Register(EventPreInsert, &mockListener{name: "p5-second", priority: 5})

	listeners := manager.listeners[EventPreInsert]
	require.Len(t, listeners, 4)
	var names []string
	for _, l := range listeners {
		names = append(names, l.listener.(*mockListener).name)
	}
	assert.Equal(t, []string{"p1", "p5-first", "p5-second", "p10"}, names)
}

func TestDefaultHookManager_Trigger(t *testing.T) {
	t.Run("PreHook", func(t *testing.T) {
		t.Run("should execute in priority order synchronously", func(t *testing.T) {
			manager := NewHookManager(nil)
			callOrder := make([]string, 0)
			manager.Register(EventPreInsert, &mockListener{name: "listener1", priority: 10, callOrder: &callOrder})
			manager.Register(EventPreInsert, &mockListener{name: "listener2", priority: 1, callOrder: &callOrder})
			manager.Register(EventPreInsert, &mockListener{name: "listener3", priority: 5, callOrder: &callOrder})

			err := manager.Trigger(context.Background(), NewPreInsertEvent(PreInsertPayload{Key: "k"}))
			require.NoError(t, err)
			assert.Equal(t, []string{"listener2", "listener3", "listener1"}, callOrder)
		})

		t.Run("should stop execution and return error on failure", func(t *testing.T) {
			manager := NewHookManager(nil)
			callOrder := make([]string, 0)
			simulatedErr := errors.New("simulated error")
			manager.Register(EventPreInsert, &mockListener{name: "listener1_p10", priority: 10, callOrder: &callOrder})
			manager.Register(EventPreInsert, &mockListener{name: "listener2_p1", priority: 1, callOrder: &callOrder})
			manager.Register(EventPreInsert, &mockListener{name: "listener3_p5_err", priority: 5, callOrder: &callOrder, returnErr: simulatedErr})

			err := manager.Trigger(context.Background(), NewPreInsertEvent(PreInsertPayload{}))
			require.Error(t, err)
			assert.ErrorIs(t, err, simulatedErr)
			assert.Equal(t, []string{"listener2_p1", "listener3_p5_err"}, callOrder)
		})

		t.Run("should ignore async flag and run synchronously", func(t *testing.T) {
			manager := NewHookManager(nil)
			callOrder := make([]string, 0)
			manager.Register(EventPreRebuild, &mockListener{name: "pre_hook_async_request", priority: 1, isAsync: true, callOrder: &callOrder})

			require.NoError(t, manager.Trigger(context.Background(), NewPreRebuildEvent(PreRebuildPayload{Dir: "/tmp/lake"})))
			assert.Equal(t, []string{"pre_hook_async_request"}, callOrder)
		})
	})

	t.Run("PostHook", func(t *testing.T) {
		t.Run("should execute async and sync listeners correctly", func(t *testing.T) {
			manager := NewHookManager(nil)
			signalChan := make(chan string, 1)
			callOrder := make([]string, 0)
			manager.Register(EventPostInsert, &mockListener{name: "post_listener_async", priority: 10, isAsync: true, callSignal: signalChan})
			manager.Register(EventPostInsert, &mockListener{name: "post_listener_sync", priority: 1, callOrder: &callOrder})

			require.NoError(t, manager.Trigger(context.Background(), NewPostInsertEvent(PostInsertPayload{Key: "k"})))
			assert.Equal(t, []string{"post_listener_sync"}, callOrder)

			select {
			case name := <-signalChan:
				assert.Equal(t, "post_listener_async", name)
			case <-time.After(time.Second):
				t.Fatal("Timed out waiting for async listener to be called")
			}
			manager.Stop()
		})

		t.Run("should not return error from sync listener and continue execution", func(t *testing.T) {
			manager := NewHookManager(nil)
			callOrder := make([]string, 0)
			manager.Register(EventPostDelete, &mockListener{name: "listener1_p1_err", priority: 1, callOrder: &callOrder, returnErr: errors.New("post hook error")})
			manager.Register(EventPostDelete, &mockListener{name: "listener2_p5", priority: 5, callOrder: &callOrder})

			require.NoError(t, manager.Trigger(context.Background(), NewPostDeleteEvent(PostDeletePayload{Key: "k", Removed: true})))
			assert.Equal(t, []string{"listener1_p1_err", "listener2_p5"}, callOrder)
		})

		t.Run("async listener outlives a cancelled context", func(t *testing.T) {
			manager := NewHookManager(nil)
			var sawCancel atomic.Bool
			manager.Register(EventPostRotate, &ctxCheckingListener{delay: 20 * time.Millisecond, sawCancel: &sawCancel})

			ctx, cancel := context.WithCancel(context.Background())
			require.NoError(t, manager.Trigger(ctx, NewPostRotateEvent(PostRotatePayload{OldFileID: 1, NewFileID: 2})))
			cancel()
			manager.Stop()
			assert.False(t, sawCancel.Load())
		})
	})

	t.Run("General", func(t *testing.T) {
		t.Run("should do nothing for event with no listeners", func(t *testing.T) {
			manager := NewHookManager(nil)
			assert.NoError(t, manager.Trigger(context.Background(), NewPostOpenEvent(LakeLifecyclePayload{})))
		})

		t.Run("ListenerFunc", func(t *testing.T) {
			manager := NewHookManager(nil)
			var got PostRebuildPayload
			manager.Register(EventPostRebuild, ListenerFunc(func(ctx context.Context, event HookEvent) error {
				got = event.Payload().(PostRebuildPayload)
				return nil
			}))
			require.NoError(t, manager.Trigger(context.Background(), NewPostRebuildEvent(PostRebuildPayload{FilesScanned: 3})))
			assert.Equal(t, 3, got.FilesScanned)
		})

		t.Run("Stop should wait for all async listeners", func(t *testing.T) {
			manager := NewHookManager(nil)
			var completed atomic.Int32
			for i := 0; i < 5; i++ {
				manager.Register(EventPostInsert, &countingListener{delay: 10 * time.Millisecond, done: &completed})
			}
			require.NoError(t, manager.Trigger(context.Background(), NewPostInsertEvent(PostInsertPayload{})))
			manager.Stop()
			assert.Equal(t, int32(5), completed.Load())
		})
	})
}

type countingListener struct {
	delay time.Duration
	done  *atomic.Int32
}

func (l *countingListener) OnEvent(ctx context.Context, event HookEvent) error {
	time.Sleep(l.delay)
	l.done.Add(1)
	return nil
}
func (l *countingListener) Priority() int { return 0 }
func (l *countingListener) IsAsync() bool { return true }

type ctxCheckingListener struct {
	delay     time.Duration
	sawCancel *atomic.Bool
}

func (l *ctxCheckingListener) OnEvent(ctx context.Context, event HookEvent) error {
	time.Sleep(l.delay)
	if ctx.Err() != nil {
		l.sawCancel.Store(true)
	}
	return nil
}
func (l *ctxCheckingListener) Priority() int { return 0 }
func (l *ctxCheckingListener) IsAsync() bool { return true }
