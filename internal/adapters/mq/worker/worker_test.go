package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	queue "github.com/okian/smartsession/internal/adapters/mq/queue"
	worker "github.com/okian/smartsession/internal/adapters/mq/worker"
	model "github.com/okian/smartsession/internal/domain/model"
	logging "github.com/okian/smartsession/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

type mockPublisher struct {
	mu        sync.Mutex
	published []worker.Update
	fail      map[string]error
	delay     time.Duration
}

func newMockPublisher() *mockPublisher {
	return &mockPublisher{fail: make(map[string]error)}
}

func (m *mockPublisher) Publish(ctx context.Context, u worker.Update) error { //nolint:gocritic // hugeParam: mirrors the interface
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail[u.State.SubjectID]; err != nil {
		return err
	}
	m.published = append(m.published, u)
	return nil
}

func (m *mockPublisher) setError(subjectID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail[subjectID] = err
}

func (m *mockPublisher) subjects() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.published))
	for _, u := range m.published {
		out = append(out, u.State.SubjectID)
	}
	return out
}

func update(id string) worker.Update {
	return worker.Update{Kind: model.UpdateSubject, State: model.SubjectState{SubjectID: id, Status: model.StatusFocused}}
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return false
}

func TestDispatcher(t *testing.T) {
	convey.Convey("Given a dispatcher on a queue", t, func() {
		_ = logging.Init()

		q := queue.NewInMemoryQueue(queue.WithCapacity(10))
		pub := newMockPublisher()
		d := worker.NewDispatcher(q, pub, worker.WithName("test-dispatcher"))
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go d.Run(ctx)

		convey.Convey("When updates are enqueued", func() {
			for i := 0; i < 5; i++ {
				q.Enqueue(ctx, update(fmt.Sprintf("s%d", i)))
			}

			convey.Convey("Then they are published in order", func() {
				convey.So(waitFor(func() bool { return len(pub.subjects()) == 5 }), convey.ShouldBeTrue)
				convey.So(pub.subjects(), convey.ShouldResemble, []string{"s0", "s1", "s2", "s3", "s4"})
			})
		})

		convey.Convey("When one publish fails", func() {
			pub.setError("bad", errors.New("socket gone"))
			q.Enqueue(ctx, update("bad"))
			q.Enqueue(ctx, update("good"))

			convey.Convey("Then the dispatcher keeps going", func() {
				convey.So(waitFor(func() bool { return len(pub.subjects()) == 1 }), convey.ShouldBeTrue)
				convey.So(pub.subjects(), convey.ShouldResemble, []string{"good"})
			})
		})

		convey.Convey("When the queue is closed", func() {
			_ = q.Close()

			convey.Convey("Then Run returns", func() {
				select {
				case <-d.Done():
					convey.So(true, convey.ShouldBeTrue)
				case <-time.After(time.Second):
					convey.So("dispatcher still running", convey.ShouldBeEmpty)
				}
			})
		})

		convey.Convey("When Stop is called twice", func() {
			d.Stop()
			d.Stop()

			convey.Convey("Then Run returns without panicking", func() {
				select {
				case <-d.Done():
					convey.So(true, convey.ShouldBeTrue)
				case <-time.After(time.Second):
					convey.So("dispatcher still running", convey.ShouldBeEmpty)
				}
			})
		})
	})
}

func TestDispatcherPublishTimeout(t *testing.T) {
	convey.Convey("Given a publisher slower than the publish timeout", t, func() {
		_ = logging.Init()

		q := queue.NewInMemoryQueue(queue.WithCapacity(10))
		pub := newMockPublisher()
		pub.delay = time.Second
		d := worker.NewDispatcher(q, pub, worker.WithPublishTimeout(20*time.Millisecond))
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go d.Run(ctx)

		q.Enqueue(ctx, update("slow"))
		start := time.Now()
		q.Enqueue(ctx, update("next"))
		_ = q.Close()

		convey.Convey("Then each publish is abandoned after the timeout", func() {
			select {
			case <-d.Done():
			case <-time.After(2 * time.Second):
			}
			convey.So(time.Since(start), convey.ShouldBeLessThan, 500*time.Millisecond)
			convey.So(pub.subjects(), convey.ShouldBeEmpty)
		})
	})
}

func TestPool(t *testing.T) {
	convey.Convey("Given a pool of dispatchers", t, func() {
		_ = logging.Init()

		q := queue.NewInMemoryQueue(queue.WithCapacity(1000))
		pub := newMockPublisher()
		pool := worker.NewPool(4, q, pub)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		pool.Start(ctx)

		convey.So(pool.Size(), convey.ShouldEqual, 4)

		convey.Convey("When many updates are enqueued and the pool shuts down", func() {
			for i := 0; i < 500; i++ {
				q.Enqueue(ctx, update(fmt.Sprintf("s%d", i)))
			}
			err := pool.Shutdown(context.Background())

			convey.Convey("Then every queued update is delivered before shutdown returns", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(len(pub.subjects()), convey.ShouldEqual, 500)
				convey.So(pool.Processed(), convey.ShouldEqual, 500)
				convey.So(q.IsClosed(), convey.ShouldBeTrue)
			})
		})
	})

	convey.Convey("Given a pool with a non-positive size", t, func() {
		_ = logging.Init()
		pool := worker.NewPool(0, queue.NewInMemoryQueue(), newMockPublisher())

		convey.Convey("Then it falls back to one dispatcher per CPU", func() {
			convey.So(pool.Size(), convey.ShouldBeGreaterThan, 0)
		})
	})
}

// slowFirstPublisher stalls on the first update it sees and records the rest.
type slowFirstPublisher struct {
	mu    sync.Mutex
	seen  []worker.Update
	calls int
	stall time.Duration
}

func (s *slowFirstPublisher) Publish(_ context.Context, u worker.Update) error { //nolint:gocritic // hugeParam: mirrors the interface
	s.mu.Lock()
	s.calls++
	first := s.calls == 1
	s.mu.Unlock()
	if first {
		time.Sleep(s.stall)
	}
	s.mu.Lock()
	s.seen = append(s.seen, u)
	s.mu.Unlock()
	return nil
}

func (s *slowFirstPublisher) forSubject(id string) []worker.Update {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []worker.Update
	for _, u := range s.seen {
		if u.State.SubjectID == id {
			out = append(out, u)
		}
	}
	return out
}

func TestPoolSubjectOrdering(t *testing.T) {
	convey.Convey("Given an idle pool whose first publish is slow", t, func() {
		_ = logging.Init()

		q := queue.NewInMemoryQueue(queue.WithCapacity(1000))
		pub := &slowFirstPublisher{stall: 50 * time.Millisecond}
		pool := worker.NewPool(4, q, pub)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		pool.Start(ctx)
		time.Sleep(20 * time.Millisecond)

		convey.Convey("When an update and then a removal arrive for one subject", func() {
			q.Enqueue(ctx, update("s1"))
			q.Enqueue(ctx, worker.Update{Kind: model.UpdateRemoved, State: model.SubjectState{SubjectID: "s1"}})
			convey.So(pool.Shutdown(context.Background()), convey.ShouldBeNil)

			convey.Convey("Then the removal is delivered last", func() {
				got := pub.forSubject("s1")
				convey.So(len(got), convey.ShouldEqual, 2)
				convey.So(got[0].Kind, convey.ShouldEqual, model.UpdateSubject)
				convey.So(got[1].Kind, convey.ShouldEqual, model.UpdateRemoved)
			})
		})

		convey.Convey("When several subjects interleave numbered updates", func() {
			const subjects, perSubject = 8, 25
			for n := 0; n < perSubject; n++ {
				for s := 0; s < subjects; s++ {
					u := update(fmt.Sprintf("s%d", s))
					u.State.FaceCount = n
					q.Enqueue(ctx, u)
				}
			}
			convey.So(pool.Shutdown(context.Background()), convey.ShouldBeNil)

			convey.Convey("Then each subject's updates are published in enqueue order", func() {
				for s := 0; s < subjects; s++ {
					got := pub.forSubject(fmt.Sprintf("s%d", s))
					convey.So(len(got), convey.ShouldEqual, perSubject)
					for n, u := range got {
						convey.So(u.State.FaceCount, convey.ShouldEqual, n)
					}
				}
			})
		})
	})
}
