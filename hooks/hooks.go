package hooks

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/INLOpen/nexuslake/core"
)

// EventType defines the type of a hook event.
type EventType string

// --- Event Type Constants ---
const (
	// Data Lifecycle Events
	EventPreInsert   EventType = "PreInsert"
	EventPostInsert  EventType = "PostInsert"
	EventPostDelete  EventType = "PostDelete"
	EventOnKeyCreate EventType = "OnKeyCreate"

	// Log Lifecycle Events
	EventPostRotate     EventType = "PostRotate"
	EventPreRebuild     EventType = "PreRebuild"
	EventPostRebuild    EventType = "PostRebuild"
	EventOnCorruptFile  EventType = "OnCorruptFile"
	EventPostClearIndex EventType = "PostClearIndex"

	// Lake Lifecycle Events
	EventPostOpen EventType = "PostOpen"
	EventPreClose EventType = "PreClose"
)

// --- HookManager Interface and Implementation ---

// HookManager defines the interface for managing and triggering hooks.
type HookManager interface {
	// Register adds a listener for a specific event type.
	Register(eventType EventType, listener HookListener)
	// Trigger fires all registered listeners for a given event.
	// It handles synchronous vs. asynchronous execution based on the event type and listener preference.
	Trigger(ctx context.Context, event HookEvent) error
	// Stop waits for all asynchronous listeners to complete. Useful for graceful shutdown.
	Stop()
}

// HookEvent is the interface that all event objects must implement.
type HookEvent interface {
	Type() EventType
	Payload() interface{}
}

// BaseEvent provides a base implementation for HookEvent.
type BaseEvent struct {
	eventType EventType
	payload   interface{}
}

func (e *BaseEvent) Type() EventType      { return e.eventType }
func (e *BaseEvent) Payload() interface{} { return e.payload }

// PreInsertPayload carries the key of a value about to be written. Returning
// an error from a listener rejects the insert.
type PreInsertPayload struct {
	Key any
}

func NewPreInsertEvent(payload PreInsertPayload) HookEvent {
	return &BaseEvent{eventType: EventPreInsert, payload: payload}
}

// PostInsertPayload describes a completed insert.
type PostInsertPayload struct {
	Key      any
	Location core.Location
	Size     int
}

func NewPostInsertEvent(payload PostInsertPayload) HookEvent {
	return &BaseEvent{eventType: EventPostInsert, payload: payload}
}

// KeyCreatePayload is sent when a key is indexed for the first time, or again
// after it was deleted or the index was cleared.
type KeyCreatePayload struct {
	Key      any
	Location core.Location
}

func NewOnKeyCreateEvent(payload KeyCreatePayload) HookEvent {
	return &BaseEvent{eventType: EventOnKeyCreate, payload: payload}
}

// PostDeletePayload describes a logical delete.
type PostDeletePayload struct {
	Key     any
	Removed bool
}

func NewPostDeleteEvent(payload PostDeletePayload) HookEvent {
	return &BaseEvent{eventType: EventPostDelete, payload: payload}
}

// PostRotatePayload contains information about a log file rotation.
type PostRotatePayload struct {
	OldFileID uint64
	NewFileID uint64
}

func NewPostRotateEvent(payload PostRotatePayload) HookEvent {
	return &BaseEvent{eventType: EventPostRotate, payload: payload}
}

// PreRebuildPayload names the directory about to be scanned.
type PreRebuildPayload struct {
	Dir string
}

func NewPreRebuildEvent(payload PreRebuildPayload) HookEvent {
	return &BaseEvent{eventType: EventPreRebuild, payload: payload}
}

// PostRebuildPayload summarizes a finished rebuild. Error is set when the
// rebuild failed and the previous index was kept.
type PostRebuildPayload struct {
	FilesScanned   int
	RecordsIndexed int
	KeysIndexed    int
	TruncatedFiles []uint64
	CorruptFiles   []uint64
	Duration       time.Duration
	Error          error
}

func NewPostRebuildEvent(payload PostRebuildPayload) HookEvent {
	return &BaseEvent{eventType: EventPostRebuild, payload: payload}
}

// CorruptFilePayload reports a log file with interior damage found by a
// rebuild.
type CorruptFilePayload struct {
	FileID  uint64
	Offset  int64
	Skipped bool
	Error   error
}

func NewOnCorruptFileEvent(payload CorruptFilePayload) HookEvent {
	return &BaseEvent{eventType: EventOnCorruptFile, payload: payload}
}

// ClearIndexPayload reports how many keys a ClearIndex dropped.
type ClearIndexPayload struct {
	KeysCleared int
}

func NewPostClearIndexEvent(payload ClearIndexPayload) HookEvent {
	return &BaseEvent{eventType: EventPostClearIndex, payload: payload}
}

// LakeLifecyclePayload is used for open and close events.
type LakeLifecyclePayload struct {
	Dir       string
	SessionID string
}

func NewPostOpenEvent(payload LakeLifecyclePayload) HookEvent {
	return &BaseEvent{eventType: EventPostOpen, payload: payload}
}

func NewPreCloseEvent(payload LakeLifecyclePayload) HookEvent {
	return &BaseEvent{eventType: EventPreClose, payload: payload}
}

// --- HookListener Interface ---

// HookListener defines the interface for components that want to listen to events.
type HookListener interface {
	// OnEvent is called by the HookManager when a registered event is triggered.
	// Returning an error from a "Pre" hook cancels the operation.
	// Errors from other hooks are logged without affecting the operation.
	OnEvent(ctx context.Context, event HookEvent) error
	// Priority returns the listener's priority. Lower numbers are executed first.
	Priority() int
	// IsAsync indicates if the listener should be called asynchronously for non-Pre events.
	IsAsync() bool
}

// ListenerFunc adapts a function to HookListener. It runs synchronously with
// priority 0.
type ListenerFunc func(ctx context.Context, event HookEvent) error

func (f ListenerFunc) OnEvent(ctx context.Context, event HookEvent) error { return f(ctx, event) }
func (f ListenerFunc) Priority() int                                      { return 0 }
func (f ListenerFunc) IsAsync() bool                                      { return false }

type listenerWithPriority struct {
	listener HookListener
	priority int
}

// DefaultHookManager is the default implementation of HookManager.
type DefaultHookManager struct {
	mu        sync.RWMutex
	listeners map[EventType][]*listenerWithPriority
	logger    *slog.Logger
	wg        sync.WaitGroup
}

// NewHookManager creates a new hook manager.
func NewHookManager(logger *slog.Logger) HookManager {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &DefaultHookManager{
		listeners: make(map[EventType][]*listenerWithPriority),
		logger:    logger.With("component", "HookManager"),
	}
}

// Register adds a listener for a specific event type, maintaining priority order.
// Listeners with equal priority run in registration order.
func (m *DefaultHookManager) Register(eventType EventType, listener HookListener) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item := &listenerWithPriority{
		listener: listener,
		priority: listener.Priority(),
	}

	l := m.listeners[eventType]
	idx := sort.Search(len(l), func(i int) bool {
		return l[i].priority > item.priority
	})
	l = append(l, nil)
	copy(l[idx+1:], l[idx:])
	l[idx] = item

	m.listeners[eventType] = l
}

// Trigger fires all registered listeners for a given event in priority order.
func (m *DefaultHookManager) Trigger(ctx context.Context, event HookEvent) error {
	m.mu.RLock()
	listeners := m.listeners[event.Type()]
	m.mu.RUnlock()

	if len(listeners) == 0 {
		return nil
	}

	isPreHook := strings.HasPrefix(string(event.Type()), "Pre")

	for _, item := range listeners {
		isListenerAsync := item.listener.IsAsync()

		// Pre-hooks are always synchronous so they can cancel.
		if isPreHook || !isListenerAsync {
			if isPreHook && isListenerAsync {
				m.logger.Warn("Listener for Pre-hook requested async execution, but Pre-hooks are always synchronous.", "event", event.Type(), "priority", item.priority)
			}

			if err := item.listener.OnEvent(ctx, event); err != nil {
				if isPreHook {
					return fmt.Errorf("pre-hook for event %s (priority %d) failed: %w", event.Type(), item.priority, err)
				}
				m.logger.Error("Error from synchronous post-hook listener", "event", event.Type(), "priority", item.priority, "error", err)
			}
			continue
		}

		m.wg.Add(1)
		go func(currentItem *listenerWithPriority) {
			defer m.wg.Done()
			// The triggering request may finish before the listener runs.
			if err := currentItem.listener.OnEvent(context.WithoutCancel(ctx), event); err != nil {
				m.logger.Error("Error from asynchronous post-hook listener", "event", event.Type(), "priority", currentItem.priority, "error", err)
			}
		}(item)
	}
	return nil
}

// Stop waits for all asynchronous listeners to complete.
func (m *DefaultHookManager) Stop() {
	m.wg.Wait()
}
