package background

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/sevvalsaygat/qr-menu-sub000/internal/jobs"
)

// JobScheduler runs the periodic maintenance jobs: stats cache refresh
// and the nightly order archive export.
type JobScheduler struct {
	scheduler  gocron.Scheduler
	statsSvc   *jobs.StatsRefreshService
	archiveSvc *jobs.ArchiveExportService
	jobsByName map[string]gocron.Job
	mu         sync.RWMutex
}

// NewJobScheduler creates a scheduler with all jobs registered. archiveSvc
// may be nil when object storage is not configured; the export job is
// skipped in that case.
func NewJobScheduler(statsSvc *jobs.StatsRefreshService, archiveSvc *jobs.ArchiveExportService) (*JobScheduler, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	js := &JobScheduler{
		scheduler:  scheduler,
		statsSvc:   statsSvc,
		archiveSvc: archiveSvc,
		jobsByName: make(map[string]gocron.Job),
	}
	js.registerJobs()
	return js, nil
}

// Start starts the job scheduler.
func (js *JobScheduler) Start() {
	log.Printf("Starting background job scheduler")
	js.scheduler.Start()
}

// Stop stops the job scheduler.
func (js *JobScheduler) Stop() error {
	log.Printf("Stopping background job scheduler")
	return js.scheduler.Shutdown()
}

func (js *JobScheduler) registerJobs() {
	statsJob, err := js.scheduler.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(js.refreshStats),
		gocron.WithName("stats-refresh"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		log.Printf("Failed to create stats refresh job: %v", err)
	} else {
		js.track("stats-refresh", statsJob)
	}

	if js.archiveSvc != nil {
		archiveJob, err := js.scheduler.NewJob(
			gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(3, 0, 0))),
			gocron.NewTask(js.exportYesterday),
			gocron.WithName("archive-export"),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			log.Printf("Failed to create archive export job: %v", err)
		} else {
			js.track("archive-export", archiveJob)
		}
	}

	js.mu.RLock()
	count := len(js.jobsByName)
	js.mu.RUnlock()
	log.Printf("Registered %d background jobs", count)
}

func (js *JobScheduler) track(name string, job gocron.Job) {
	js.mu.Lock()
	defer js.mu.Unlock()
	js.jobsByName[name] = job
}

func (js *JobScheduler) refreshStats() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, err := js.statsSvc.RefreshAll(ctx)
	if err != nil {
		log.Printf("Stats refresh sweep failed: %v", err)
		return
	}
	if result.Failures > 0 {
		log.Printf("Stats refresh sweep: %d refreshed, %d failed", result.RestaurantsProcessed, result.Failures)
	}
}

func (js *JobScheduler) exportYesterday() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	yesterday := time.Now().AddDate(0, 0, -1)
	if err := js.archiveSvc.ExportDay(ctx, yesterday); err != nil {
		log.Printf("Archive export failed: %v", err)
	}
}
