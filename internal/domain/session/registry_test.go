package session_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/okian/sectorclock/internal/adapters/feedback"
	"github.com/okian/sectorclock/internal/adapters/leaderboard"
	"github.com/okian/sectorclock/internal/domain/model"
	"github.com/okian/sectorclock/internal/domain/pace"
	"github.com/okian/sectorclock/internal/domain/session"
	"github.com/okian/sectorclock/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

var base = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

func secs(s float64) time.Duration { return time.Duration(s * float64(time.Second)) }

func at(s float64) time.Time { return base.Add(secs(s)) }

// memStore records appends and can be told to fail.
type memStore struct {
	mu      sync.Mutex
	records []model.Record
	fail    error
}

func (m *memStore) Append(_ context.Context, rec model.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.records = append(m.records, rec)
	return nil
}

func (m *memStore) setFail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = err
}

func (m *memStore) all() []model.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Record, len(m.records))
	copy(out, m.records)
	return out
}

func trigger(id string, s float64) session.Request {
	return session.Request{RiderID: id, At: at(s)}
}

func TestRegistry_Scenario(t *testing.T) {
	Convey("Given three sectors, a 1s debounce and a CSV leaderboard", t, func() {
		ctx := context.Background()
		path := filepath.Join(t.TempDir(), "leaderboard.csv")
		store := leaderboard.NewCSVStore(path, leaderboard.WithSectorCount(3))
		rec := &feedback.Recorder{}
		reg := session.New(
			session.WithSectorCount(3),
			session.WithDebounce(time.Second),
			session.WithStore(store),
			session.WithComparator(pace.New(store)),
			session.WithIndicator(rec),
		)

		Convey("When rider A rides the course", func() {
			So(reg.BeginOrAdvance(ctx, trigger("A", 0)).Outcome, ShouldEqual, model.OutcomeCreated)

			res := reg.BeginOrAdvance(ctx, trigger("A", 0.3))
			So(res.Outcome, ShouldEqual, model.OutcomeDebounced)
			So(reg.Snapshot(at(0.3))[0].Splits, ShouldBeEmpty)

			res = reg.BeginOrAdvance(ctx, trigger("A", 5))
			So(res.Outcome, ShouldEqual, model.OutcomeAdvanced)
			So(res.Sector, ShouldEqual, 1)
			So(res.Split, ShouldEqual, secs(5))

			res = reg.BeginOrAdvance(ctx, trigger("A", 8))
			So(res.Sector, ShouldEqual, 2)
			So(res.Split, ShouldEqual, secs(3))

			res = reg.BeginOrAdvance(ctx, trigger("A", 9.5))
			So(res.Outcome, ShouldEqual, model.OutcomeCompleted)
			So(res.Split, ShouldEqual, secs(1.5))
			So(res.Total, ShouldEqual, secs(9.5))
			So(res.RunVerdict, ShouldEqual, model.VerdictNoHistory)

			Convey("Then the run is persisted and removed", func() {
				data, err := os.ReadFile(path)
				So(err, ShouldBeNil)
				lines := strings.Split(strings.TrimSpace(string(data)), "\n")
				So(lines, ShouldHaveLength, 2)
				So(lines[1], ShouldEqual, "A,0:09.5,0:05.0,0:03.0,0:01.5")

				So(reg.Active(), ShouldEqual, 0)
				So(reg.Snapshot(at(10)), ShouldBeEmpty)
			})

			Convey("Then one verdict is shown per sector and one per run", func() {
				shown := rec.Shown()
				So(shown, ShouldHaveLength, 4)
				So(shown[3].Scope, ShouldEqual, model.ScopeRun)
			})

			Convey("Then a second run is compared with the first", func() {
				reg.BeginOrAdvance(ctx, trigger("A", 20))
				reg.BeginOrAdvance(ctx, trigger("A", 24))
				reg.BeginOrAdvance(ctx, trigger("A", 27))
				res := reg.BeginOrAdvance(ctx, trigger("A", 28.5))
				So(res.Outcome, ShouldEqual, model.OutcomeCompleted)
				So(res.Verdict, ShouldEqual, model.VerdictSimilar)
				So(res.RunVerdict, ShouldEqual, model.VerdictSimilar)

				res = reg.BeginOrAdvance(ctx, trigger("A", 40))
				So(res.Outcome, ShouldEqual, model.OutcomeCreated)
				res = reg.BeginOrAdvance(ctx, trigger("A", 42))
				So(res.Verdict, ShouldEqual, model.VerdictFaster)
			})
		})
	})
}

func TestRegistry_DebounceProperty(t *testing.T) {
	Convey("Given debounce windows and gaps shorter than them", t, func() {
		ctx := context.Background()
		for _, d := range []float64{0.2, 0.5, 1, 2.5} {
			for _, frac := range []float64{0, 0.1, 0.5, 0.99} {
				g := d * frac
				reg := session.New(
					session.WithMode(session.ModeMulti),
					session.WithDebounce(secs(d)),
					session.WithStore(&memStore{}),
				)
				reg.BeginOrAdvance(ctx, trigger("R", 0))
				reg.BeginOrAdvance(ctx, trigger("R", 10))

				res := reg.BeginOrAdvance(ctx, trigger("R", 10+g))
				So(res.Outcome, ShouldEqual, model.OutcomeDebounced)

				views := reg.Snapshot(at(11))
				So(views, ShouldHaveLength, 1)
				So(views[0].Splits, ShouldResemble, []time.Duration{secs(10)})
			}
		}

		Convey("Then an event exactly one window later is accepted", func() {
			reg := session.New(session.WithDebounce(time.Second), session.WithStore(&memStore{}))
			reg.BeginOrAdvance(ctx, trigger("R", 0))
			So(reg.BeginOrAdvance(ctx, trigger("R", 1)).Outcome, ShouldEqual, model.OutcomeAdvanced)
		})
	})
}

func TestRegistry_CompletedTotals(t *testing.T) {
	Convey("Given runs with irregular gaps", t, func() {
		ctx := context.Background()
		store := &memStore{}
		reg := session.New(
			session.WithMode(session.ModeMulti),
			session.WithSectorCount(4),
			session.WithDebounce(100*time.Millisecond),
			session.WithStore(store),
		)
		for i := 0; i < 5; i++ {
			id := fmt.Sprintf("R%d", i)
			t0 := float64(i) * 100
			reg.BeginOrAdvance(ctx, trigger(id, t0))
			for k := 1; k <= 4; k++ {
				reg.BeginOrAdvance(ctx, trigger(id, t0+float64(k*k)+0.37*float64(i)))
			}
		}

		Convey("Then each persisted run has every sector and splits summing to the total", func() {
			recs := store.all()
			So(recs, ShouldHaveLength, 5)
			for _, r := range recs {
				So(r.Sectors, ShouldHaveLength, 4)
				var sum time.Duration
				for _, s := range r.Sectors {
					sum += s
				}
				So(sum, ShouldEqual, r.Total)
			}
			So(reg.Active(), ShouldEqual, 0)
		})
	})
}

func TestRegistry_Concurrency(t *testing.T) {
	Convey("Given N riders triggering in parallel with M snapshot readers", t, func() {
		const (
			riders  = 32
			readers = 4
			sectors = 3
		)
		ctx := context.Background()
		store := &memStore{}
		reg := session.New(
			session.WithMode(session.ModeMulti),
			session.WithSectorCount(sectors),
			session.WithDebounce(time.Second),
			session.WithStore(store),
		)

		stop := make(chan struct{})
		violations := make(chan string, readers)
		var readWG sync.WaitGroup
		for m := 0; m < readers; m++ {
			readWG.Add(1)
			go func() {
				defer readWG.Done()
				for {
					select {
					case <-stop:
						return
					default:
					}
					for _, v := range reg.Snapshot(at(1000)) {
						if len(v.Splits) >= v.TotalSectors || v.CurrentSector != len(v.Splits)+1 {
							select {
							case violations <- fmt.Sprintf("%s: %d splits, sector %d", v.RiderID, len(v.Splits), v.CurrentSector):
							default:
							}
							return
						}
					}
				}
			}()
		}

		var wg sync.WaitGroup
		for n := 0; n < riders; n++ {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				for k := 0; k <= sectors+1; k++ {
					reg.BeginOrAdvance(ctx, trigger(id, float64(k*2)))
				}
			}(fmt.Sprintf("rider-%02d", n))
		}
		wg.Wait()
		close(stop)
		readWG.Wait()
		close(violations)

		Convey("Then no snapshot ever showed an overfull or torn session", func() {
			var got []string
			for v := range violations {
				got = append(got, v)
			}
			So(got, ShouldBeEmpty)
		})

		Convey("Then every rider finished once and the extra trigger started a new run", func() {
			So(store.all(), ShouldHaveLength, riders)
			So(reg.Active(), ShouldEqual, riders)
		})
	})
}

func TestRegistry_PersistFailure(t *testing.T) {
	Convey("Given a store that fails the first append", t, func() {
		ctx := context.Background()
		store := &memStore{}
		store.setFail(errors.New("disk full"))
		reg := session.New(
			session.WithSectorCount(2),
			session.WithDebounce(0),
			session.WithStore(store),
		)

		reg.BeginOrAdvance(ctx, trigger("A", 0))
		reg.BeginOrAdvance(ctx, trigger("A", 3))
		res := reg.BeginOrAdvance(ctx, trigger("A", 5))

		Convey("Then the run is kept as pending instead of dropped", func() {
			So(res.Outcome, ShouldEqual, model.OutcomePersistFailed)
			So(res.Err, ShouldNotBeNil)
			So(res.Outcome.Accepted(), ShouldBeTrue)
			So(reg.Pending(), ShouldEqual, 1)
			So(reg.Active(), ShouldEqual, 0)
			So(reg.Snapshot(at(6)), ShouldBeEmpty)

			Convey("And further triggers for it are ignored", func() {
				So(reg.BeginOrAdvance(ctx, trigger("A", 7)).Outcome, ShouldEqual, model.OutcomeAlreadyFinished)
			})

			Convey("And an anonymous trigger addresses the finished run", func() {
				res := reg.BeginOrAdvance(ctx, session.Request{At: at(7)})
				So(res.Outcome, ShouldEqual, model.OutcomeAlreadyFinished)
				So(res.RiderID, ShouldEqual, "A")
				So(reg.Pending(), ShouldEqual, 1)
			})

			Convey("And an anonymous trigger with nothing staged does too", func() {
				res := reg.BeginOrAdvance(ctx, session.Request{At: at(7), Resolve: func(time.Time) (session.Identity, model.Outcome, bool) {
					return session.Identity{}, model.OutcomeNoIdentity, false
				}})
				So(res.Outcome, ShouldEqual, model.OutcomeAlreadyFinished)
			})

			Convey("And a staged rider still starts past it", func() {
				res := reg.BeginOrAdvance(ctx, session.Request{At: at(7), Resolve: func(time.Time) (session.Identity, model.Outcome, bool) {
					return session.Identity{RiderID: "B"}, 0, true
				}})
				So(res.Outcome, ShouldEqual, model.OutcomeCreated)
				So(res.RiderID, ShouldEqual, "B")
			})

			Convey("And housekeeping keeps retrying until the store recovers", func() {
				So(reg.Housekeep(ctx, at(10)), ShouldEqual, 0)
				So(reg.Pending(), ShouldEqual, 1)

				store.setFail(nil)
				So(reg.Housekeep(ctx, at(11)), ShouldEqual, 1)
				So(reg.Pending(), ShouldEqual, 0)

				recs := store.all()
				So(recs, ShouldHaveLength, 1)
				So(recs[0].Total, ShouldEqual, secs(5))
				So(recs[0].Sectors, ShouldResemble, []time.Duration{secs(3), secs(2)})
			})
		})

		Convey("Then a different rider can still start in single mode", func() {
			So(reg.BeginOrAdvance(ctx, trigger("B", 6)).Outcome, ShouldEqual, model.OutcomeCreated)
		})
	})

	Convey("Given a registry with no store", t, func() {
		ctx := context.Background()
		reg := session.New(session.WithSectorCount(1), session.WithDebounce(0))
		reg.BeginOrAdvance(ctx, trigger("A", 0))
		res := reg.BeginOrAdvance(ctx, trigger("A", 1))

		Convey("Then completion reports the missing store", func() {
			So(res.Outcome, ShouldEqual, model.OutcomePersistFailed)
			So(errors.Is(res.Err, session.ErrNoStore), ShouldBeTrue)
		})
	})
}

func TestRegistry_SingleMode(t *testing.T) {
	Convey("Given single session mode", t, func() {
		ctx := context.Background()
		reg := session.New(
			session.WithSectorCount(2),
			session.WithDebounce(time.Second),
			session.WithStore(&memStore{}),
		)

		Convey("When no session exists, an anonymous trigger has no identity", func() {
			res := reg.BeginOrAdvance(ctx, session.Request{At: at(0)})
			So(res.Outcome, ShouldEqual, model.OutcomeNoIdentity)
			So(reg.Active(), ShouldEqual, 0)
		})

		Convey("When a rider is on course", func() {
			reg.BeginOrAdvance(ctx, session.Request{RiderID: "A", DisplayName: "Alice", At: at(0)})

			Convey("Then an anonymous trigger advances that rider", func() {
				res := reg.BeginOrAdvance(ctx, session.Request{At: at(4)})
				So(res.Outcome, ShouldEqual, model.OutcomeAdvanced)
				So(res.RiderID, ShouldEqual, "A")
				So(res.Name, ShouldEqual, "Alice")
			})

			Convey("Then another rider is busy", func() {
				res := reg.BeginOrAdvance(ctx, trigger("B", 4))
				So(res.Outcome, ShouldEqual, model.OutcomeBusy)
				So(res.RiderID, ShouldEqual, "A")
				So(reg.Active(), ShouldEqual, 1)
			})

			Convey("Then the resolver is not consulted", func() {
				called := false
				reg.BeginOrAdvance(ctx, session.Request{At: at(4), Resolve: func(time.Time) (session.Identity, model.Outcome, bool) {
					called = true
					return session.Identity{}, model.OutcomeNoIdentity, false
				}})
				So(called, ShouldBeFalse)
			})
		})
	})
}

func TestRegistry_MultiMode(t *testing.T) {
	Convey("Given multi session mode with two riders on course", t, func() {
		ctx := context.Background()
		reg := session.New(
			session.WithMode(session.ModeMulti),
			session.WithSectorCount(3),
			session.WithDebounce(time.Second),
			session.WithStore(&memStore{}),
		)
		reg.BeginOrAdvance(ctx, trigger("A", 0))
		reg.BeginOrAdvance(ctx, trigger("B", 1))

		Convey("Then an anonymous trigger is rejected rather than advancing the first session", func() {
			res := reg.BeginOrAdvance(ctx, session.Request{At: at(5)})
			So(res.Outcome, ShouldEqual, model.OutcomeNoIdentity)
			for _, v := range reg.Snapshot(at(5)) {
				So(v.Splits, ShouldBeEmpty)
			}
		})

		Convey("Then a resolver supplies the identity", func() {
			res := reg.BeginOrAdvance(ctx, session.Request{At: at(5), Resolve: func(time.Time) (session.Identity, model.Outcome, bool) {
				return session.Identity{RiderID: "B"}, 0, true
			}})
			So(res.Outcome, ShouldEqual, model.OutcomeAdvanced)
			So(res.RiderID, ShouldEqual, "B")
			So(res.Split, ShouldEqual, secs(4))
		})

		Convey("Then a resolver rejection is passed through", func() {
			res := reg.BeginOrAdvance(ctx, session.Request{At: at(5), Resolve: func(time.Time) (session.Identity, model.Outcome, bool) {
				return session.Identity{}, model.OutcomeStagedExpired, false
			}})
			So(res.Outcome, ShouldEqual, model.OutcomeStagedExpired)
		})

		Convey("Then the snapshot lists both riders oldest first", func() {
			views := reg.Snapshot(at(3))
			So(views, ShouldHaveLength, 2)
			So(views[0].RiderID, ShouldEqual, "A")
			So(views[0].Elapsed, ShouldEqual, secs(3))
			So(views[0].CurrentSector, ShouldEqual, 1)
			So(views[0].TotalSectors, ShouldEqual, 3)
			So(views[0].RunID, ShouldNotBeEmpty)
			So(views[1].RiderID, ShouldEqual, "B")
		})
	})
}

func TestRegistry_Abandon(t *testing.T) {
	Convey("Given a 60s abandon window", t, func() {
		ctx := context.Background()
		path := filepath.Join(t.TempDir(), "leaderboard.csv")
		store := leaderboard.NewCSVStore(path, leaderboard.WithSectorCount(3))
		reg := session.New(
			session.WithMode(session.ModeMulti),
			session.WithSectorCount(3),
			session.WithDebounce(time.Second),
			session.WithAbandonAfter(time.Minute),
			session.WithStore(store),
		)
		reg.BeginOrAdvance(ctx, trigger("C", 0))
		reg.BeginOrAdvance(ctx, trigger("C", 5))
		reg.BeginOrAdvance(ctx, trigger("C", 8))
		reg.BeginOrAdvance(ctx, trigger("D", 0))

		Convey("Then nothing happens inside the window", func() {
			So(reg.Housekeep(ctx, at(60)), ShouldEqual, 0)
			So(reg.Active(), ShouldEqual, 2)
		})

		Convey("Then an idle partial run is written with empty sector cells", func() {
			So(reg.Housekeep(ctx, at(120)), ShouldEqual, 1)
			So(reg.Active(), ShouldEqual, 0)

			data, err := os.ReadFile(path)
			So(err, ShouldBeNil)
			So(string(data), ShouldContainSubstring, "C,0:08.0,0:05.0,0:03.0,\n")
			So(string(data), ShouldNotContainSubstring, "D,")

			rec, ok, err := store.MostRecentFor(ctx, "C")
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)
			_, has := rec.Sector(2)
			So(has, ShouldBeFalse)
		})
	})
}

func TestRegistry_SourceClockSkew(t *testing.T) {
	Convey("Given a source whose clock runs a day behind the service", t, func() {
		ctx := context.Background()
		skew := 24 * time.Hour
		reg := session.New(
			session.WithMode(session.ModeMulti),
			session.WithSectorCount(3),
			session.WithDebounce(0),
			session.WithAbandonAfter(time.Minute),
			session.WithStore(&memStore{}),
		)
		skewed := func(id string, s float64) session.Request {
			return session.Request{RiderID: id, At: at(s).Add(-skew), ReceivedAt: at(s)}
		}
		reg.BeginOrAdvance(ctx, skewed("A", 0))
		res := reg.BeginOrAdvance(ctx, skewed("A", 4))

		Convey("Then splits are timed on the source clock", func() {
			So(res.Outcome, ShouldEqual, model.OutcomeAdvanced)
			So(res.Split, ShouldEqual, secs(4))
		})

		Convey("Then elapsed time runs on the service clock", func() {
			views := reg.Snapshot(at(10))
			So(views, ShouldHaveLength, 1)
			So(views[0].Elapsed, ShouldEqual, secs(10))
		})

		Convey("Then the rider is not abandoned on the first tick", func() {
			So(reg.Housekeep(ctx, at(30)), ShouldEqual, 0)
			So(reg.Active(), ShouldEqual, 1)
		})

		Convey("Then idleness is measured from the last arrival", func() {
			So(reg.Housekeep(ctx, at(65)), ShouldEqual, 1)
			So(reg.Active(), ShouldEqual, 0)
		})
	})
}
