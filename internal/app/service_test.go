package service_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/sectorclock/internal/adapters/feedback"
	"github.com/okian/sectorclock/internal/adapters/mq/queue"
	service "github.com/okian/sectorclock/internal/app"
	"github.com/okian/sectorclock/internal/config"
	"github.com/okian/sectorclock/internal/domain/model"
	"github.com/okian/sectorclock/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

func newTestService(t *testing.T, opts ...service.Option) (*service.Service, string) {
	t.Helper()
	dir := t.TempDir()
	base := []service.Option{
		service.WithLeaderboardPath(filepath.Join(dir, "leaderboard.csv")),
		service.WithStatusPath(filepath.Join(dir, "timing_status.json")),
		service.WithStatusInterval(20 * time.Millisecond),
		service.WithIndicator(feedback.Nop{}),
	}
	return service.New(append(base, opts...)...), dir
}

func TestService_New(t *testing.T) {
	Convey("Given a new service with default options", t, func() {
		svc := service.New()

		Convey("Then it should have sensible defaults", func() {
			So(svc, ShouldNotBeNil)
			So(svc.SectorCount(), ShouldEqual, 3)

			stats := svc.GetStats()
			So(stats["started"], ShouldEqual, false)
			So(stats["mode"], ShouldEqual, "single")
			So(stats["hybrid"], ShouldEqual, false)
		})
	})

	Convey("Given a new service built from configuration", t, func() {
		cfg := config.New()
		cfg.SectorCount = 5
		cfg.Mode = config.ModeMulti
		cfg.Hybrid = true
		svc := service.New(service.FromConfig(cfg))

		Convey("Then the configuration is applied", func() {
			So(svc.SectorCount(), ShouldEqual, 5)
			stats := svc.GetStats()
			So(stats["mode"], ShouldEqual, "multi")
			So(stats["hybrid"], ShouldEqual, true)
			So(stats["queueSize"], ShouldEqual, 1024)
		})
	})

	Convey("Given invalid option values", t, func() {
		svc := service.New(service.WithSectorCount(0), service.WithQueueSize(-1))

		Convey("Then the defaults are kept", func() {
			So(svc.SectorCount(), ShouldEqual, 3)
			So(svc.GetStats()["queueSize"], ShouldEqual, 1024)
		})
	})
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a service that has not been started", t, func() {
		svc, _ := newTestService(t)

		Convey("Then triggers are refused", func() {
			err := svc.Enqueue(context.Background(), model.Trigger{Kind: model.KindAdvance, At: time.Now()})
			So(err, ShouldEqual, queue.ErrClosed)
		})

		Convey("Then stopping is a no-op", func() {
			So(svc.Stop(context.Background()), ShouldBeNil)
		})

		Convey("Then the leaderboard reads as empty", func() {
			rows, err := svc.All(context.Background())
			So(err, ShouldBeNil)
			So(rows, ShouldBeEmpty)
		})
	})

	Convey("Given a started service", t, func() {
		svc, _ := newTestService(t)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		So(svc.Start(ctx), ShouldBeNil)

		Convey("Then it is marked as started", func() {
			stats := svc.GetStats()
			So(stats["started"], ShouldEqual, true)
			So(stats["activeSessions"], ShouldEqual, 0)
			So(stats["pendingPersists"], ShouldEqual, 0)
			So(stats["staged"], ShouldEqual, false)
		})

		Convey("Then starting twice is harmless", func() {
			So(svc.Start(ctx), ShouldBeNil)
		})

		Convey("When it is stopped", func() {
			So(svc.Stop(ctx), ShouldBeNil)

			Convey("Then it refuses new triggers", func() {
				err := svc.Enqueue(ctx, model.Trigger{Kind: model.KindAdvance, At: time.Now()})
				So(err, ShouldEqual, queue.ErrClosed)
				So(svc.GetStats()["started"], ShouldEqual, false)
			})

			Convey("Then stopping again is a no-op", func() {
				So(svc.Stop(ctx), ShouldBeNil)
			})
		})

		Reset(func() {
			_ = svc.Stop(context.Background())
		})
	})
}

func TestService_Ride(t *testing.T) {
	Convey("Given a started single-mode service", t, func() {
		svc, _ := newTestService(t, service.WithDebounce(0))
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		So(svc.Start(ctx), ShouldBeNil)

		t0 := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
		triggers := []model.Trigger{
			{Kind: model.KindIdentity, RiderID: "04A1", DisplayName: "Alice", At: t0},
			{Kind: model.KindAdvance, At: t0.Add(5 * time.Second)},
			{Kind: model.KindAdvance, At: t0.Add(8 * time.Second)},
			{Kind: model.KindAdvance, At: t0.Add(9500 * time.Millisecond)},
		}

		Convey("When a full run is enqueued and the service is stopped", func() {
			for _, trig := range triggers {
				So(svc.Enqueue(ctx, trig), ShouldBeNil)
			}
			So(svc.Stop(ctx), ShouldBeNil)

			Convey("Then every queued trigger was applied in order", func() {
				outcomes := svc.GetStats()["outcomes"].(map[string]int)
				So(outcomes["created"], ShouldEqual, 1)
				So(outcomes["advanced"], ShouldEqual, 2)
				So(outcomes["completed"], ShouldEqual, 1)

				last, ok := svc.LastResult()
				So(ok, ShouldBeTrue)
				So(last.Outcome, ShouldEqual, model.OutcomeCompleted)
				So(last.Total, ShouldEqual, 9500*time.Millisecond)
			})

			Convey("Then the run is on the leaderboard", func() {
				rec, ok, err := svc.MostRecentFor(ctx, "Alice")
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
				So(rec.Total, ShouldEqual, 9500*time.Millisecond)
				So(rec.Sectors, ShouldResemble, []time.Duration{
					5 * time.Second, 3 * time.Second, 1500 * time.Millisecond,
				})
			})
		})

		Reset(func() {
			_ = svc.Stop(context.Background())
		})
	})
}
