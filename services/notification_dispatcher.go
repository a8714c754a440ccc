package services

import (
	"context"
	"log"
	"sync"
	"time"

	"strikeOutAPI/internal/store"
	"strikeOutAPI/internal/types/challenge"
	"strikeOutAPI/internal/types/notification"
)

const (
	maxDispatchAttempts = 3
	retryDelay          = 30 * time.Second
)

type PushNotificationProvider interface {
	SendPush(ctx context.Context, tokens []notification.DeviceToken, title, body string, data map[string]any) error
}

// NotificationDispatcher delivers engine events to members' devices. Each event
// is delivered at most once per dedup key.
type NotificationDispatcher struct {
	events       store.EventLog
	members      store.Store
	pushProvider PushNotificationProvider
	workers      int
	jobQueue     chan *DispatchJob
	stopChan     chan struct{}
	stopOnce     sync.Once
	wg           sync.WaitGroup

	// jobs that did not fit in jobQueue, fed back in order by pumpOverflow
	overflowMu sync.Mutex
	overflow   []*DispatchJob
	overflowCh chan struct{}
}

type DispatchJob struct {
	Event   notification.Event
	Attempt int
}

func NewNotificationDispatcher(events store.EventLog, members store.Store, workers int) *NotificationDispatcher {
	if workers <= 0 {
		workers = 5
	}
	dispatcher := &NotificationDispatcher{
		events:   events,
		members:  members,
		workers:  workers,
		jobQueue:   make(chan *DispatchJob, 100),
		stopChan:   make(chan struct{}),
		overflowCh: make(chan struct{}, 1),
	}

	dispatcher.startWorkers()

	return dispatcher
}

// Allow injecting the real FCM provider from main.go
func (d *NotificationDispatcher) SetPushProvider(provider PushNotificationProvider) {
	d.pushProvider = provider
}

func (d *NotificationDispatcher) startWorkers() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
	d.wg.Add(1)
	go d.pumpOverflow()
}

func (d *NotificationDispatcher) worker(id int) {
	defer d.wg.Done()
	for {
		select {
		case job := <-d.jobQueue:
			d.processJob(job)
		case <-d.stopChan:
			return
		}
	}
}

// Publish queues an event and returns immediately. The transition behind the
// event is already committed, so a cancelled ctx does not discard it.
func (d *NotificationDispatcher) Publish(ctx context.Context, event notification.Event) {
	if ctx.Err() != nil {
		log.Printf("Publishing %s after its sweep context ended: %v", event.DedupKey(), ctx.Err())
	}
	d.enqueue(&DispatchJob{Event: event, Attempt: 1})
}

// enqueue never blocks. When the queue is full the job waits in the overflow
// list until a worker frees a slot.
func (d *NotificationDispatcher) enqueue(job *DispatchJob) {
	select {
	case <-d.stopChan:
		log.Printf("Dispatcher stopped, dropping %s", job.Event.DedupKey())
		return
	default:
	}

	d.overflowMu.Lock()
	if len(d.overflow) == 0 {
		select {
		case d.jobQueue <- job:
			d.overflowMu.Unlock()
			return
		default:
		}
	}
	d.overflow = append(d.overflow, job)
	backlog := len(d.overflow)
	d.overflowMu.Unlock()

	dispatchBacklog.Set(float64(backlog))
	select {
	case d.overflowCh <- struct{}{}:
	default:
	}
}

func (d *NotificationDispatcher) pumpOverflow() {
	defer d.wg.Done()
	for {
		select {
		case <-d.overflowCh:
		case <-d.stopChan:
			d.overflowMu.Lock()
			if n := len(d.overflow); n > 0 {
				log.Printf("Dispatcher stopped with %d queued notifications", n)
			}
			d.overflowMu.Unlock()
			return
		}

		for {
			d.overflowMu.Lock()
			if len(d.overflow) == 0 {
				d.overflowMu.Unlock()
				break
			}
			job := d.overflow[0]
			d.overflowMu.Unlock()

			select {
			case d.jobQueue <- job:
			case <-d.stopChan:
				d.overflowMu.Lock()
				log.Printf("Dispatcher stopped with %d queued notifications", len(d.overflow))
				d.overflowMu.Unlock()
				return
			}

			d.overflowMu.Lock()
			d.overflow = d.overflow[1:]
			backlog := len(d.overflow)
			d.overflowMu.Unlock()
			dispatchBacklog.Set(float64(backlog))
		}
	}
}

func (d *NotificationDispatcher) processJob(job *DispatchJob) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	event := job.Event
	key := event.DedupKey()

	if job.Attempt == 1 {
		first, err := d.events.MarkEventSent(ctx, key)
		if err != nil {
			log.Printf("Failed to record notification %s: %v", key, err)
			return
		}
		if !first {
			log.Printf("Skipping duplicate notification %s", key)
			notificationsDispatchedTotal.WithLabelValues(string(event.Type), "duplicate").Inc()
			return
		}
	}

	if d.pushProvider == nil {
		log.Printf("Skipping push for %s: no provider set", key)
		notificationsDispatchedTotal.WithLabelValues(string(event.Type), "skipped").Inc()
		return
	}

	tokens, err := d.recipientTokens(ctx, event)
	if err != nil {
		log.Printf("Failed to get device tokens for %s: %v", key, err)
		d.retry(job)
		return
	}
	if len(tokens) == 0 {
		notificationsDispatchedTotal.WithLabelValues(string(event.Type), "no_devices").Inc()
		return
	}

	data := map[string]any{
		"type":         string(event.Type),
		"challenge_id": event.ChallengeID.String(),
		"period_key":   event.PeriodKey,
	}
	for k, v := range event.Data {
		data[k] = v
	}

	if err := d.pushProvider.SendPush(ctx, tokens, event.Title, event.Body, data); err != nil {
		log.Printf("Push failed for %s: %v", key, err)
		notificationsDispatchedTotal.WithLabelValues(string(event.Type), "failed").Inc()
		d.retry(job)
		return
	}
	notificationsDispatchedTotal.WithLabelValues(string(event.Type), "sent").Inc()
}

// recipientTokens resolves the event's audience: the member it is about, or
// every member of the challenge for challenge-wide events.
func (d *NotificationDispatcher) recipientTokens(ctx context.Context, event notification.Event) ([]notification.DeviceToken, error) {
	if event.UserID != "" {
		return d.events.DeviceTokens(ctx, event.UserID)
	}

	members, err := d.members.ListMembers(ctx, event.ChallengeID)
	if err != nil {
		return nil, err
	}
	var tokens []notification.DeviceToken
	for _, m := range members {
		if m.State != challenge.MemberActive && event.Type != notification.EventChallengeEnded {
			continue
		}
		userTokens, err := d.events.DeviceTokens(ctx, m.UserID)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, userTokens...)
	}
	return tokens, nil
}

func (d *NotificationDispatcher) retry(job *DispatchJob) {
	if job.Attempt >= maxDispatchAttempts {
		log.Printf("Giving up on notification %s after %d attempts", job.Event.DedupKey(), job.Attempt)
		return
	}
	next := &DispatchJob{Event: job.Event, Attempt: job.Attempt + 1}
	time.AfterFunc(retryDelay*time.Duration(job.Attempt), func() { d.enqueue(next) })
}

// Stop the dispatcher gracefully
func (d *NotificationDispatcher) Stop() {
	d.stopOnce.Do(func() {
		log.Println("Stopping notification dispatcher...")
		close(d.stopChan)
		d.wg.Wait()
		log.Println("Notification dispatcher stopped")
	})
}

// Mock implementations for testing

type MockPushProvider struct {
	mu   sync.Mutex
	Sent []string
}

func (m *MockPushProvider) SendPush(ctx context.Context, tokens []notification.DeviceToken, title, body string, data map[string]any) error {
	log.Printf("MOCK PUSH: Sending to %d devices: %s - %s", len(tokens), title, body)
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range tokens {
		m.Sent = append(m.Sent, t.Token+"|"+title)
	}
	return nil
}

// SentCount returns how many device deliveries were recorded.
func (m *MockPushProvider) SentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Sent)
}
