package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/wunderlog/wunderlog/internal/weather"
)

// cycleTimeout bounds one location's collect, including all retries.
const cycleTimeout = 5 * time.Minute

// Scheduler periodically runs collect cycles for the configured locations.
type Scheduler struct {
	scheduler *gocron.Scheduler
	service   *weather.Service
	locations []weather.Location
	interval  time.Duration
}

// New creates a new Scheduler.
func New(locations []weather.Location, interval time.Duration, service *weather.Service) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	return &Scheduler{
		scheduler: s,
		service:   service,
		locations: locations,
		interval:  interval,
	}
}

// Start schedules the periodic collect job and starts the underlying
// scheduler. SingletonMode guarantees a cycle runs to completion, retries
// included, before the next one is scheduled. Cancelling ctx aborts
// in-flight cycles between retry attempts.
func (s *Scheduler) Start(ctx context.Context) error {
	if len(s.locations) == 0 {
		log.Println("scheduler: no locations configured; nothing to schedule")
		return nil
	}

	interval := s.interval
	if interval <= 0 {
		interval = time.Hour
	}

	_, err := s.scheduler.Every(interval).SingletonMode().Do(func() {
		log.Println("scheduler: running collect job")

		// Distinct locations never collide on archive paths, so they
		// fan out; work within one location stays sequential.
		var wg sync.WaitGroup
		for _, loc := range s.locations {
			loc := loc
			wg.Add(1)
			go func() {
				defer wg.Done()

				cycleCtx, cancel := context.WithTimeout(ctx, cycleTimeout)
				defer cancel()

				res, err := s.service.Collect(cycleCtx, loc)
				if err != nil {
					log.Printf("scheduler: collect for %s finished with errors: %v", loc.Key(), err)
					return
				}
				log.Printf("scheduler: collect for %s: %d archived, %d skipped",
					loc.Key(), len(res.Archived), res.Skipped)
			}()
		}
		wg.Wait()
		log.Println("scheduler: completed collect job")
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
