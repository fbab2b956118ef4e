package cron

import (
	"context"
	"os"
	"sync"
	"time"

	cronv3 "github.com/robfig/cron/v3"

	"github.com/customeros/mailmirror/interfaces"
	cron_config "github.com/customeros/mailmirror/internal/cron/config"
	"github.com/customeros/mailmirror/internal/enum"
	"github.com/customeros/mailmirror/internal/logger"
	"github.com/customeros/mailmirror/internal/tracing"
)

// CONSTANTS
const (
	// GroupMutations is the group for mutation replay jobs
	GroupMutations = "mutations"

	// JobTimeout bounds a single scheduled replay pass
	JobTimeout = 5 * time.Minute
)

// LOCK MANAGEMENT
var jobLocks = struct {
	sync.Mutex
	locks map[string]*sync.Mutex
}{
	locks: map[string]*sync.Mutex{
		GroupMutations: new(sync.Mutex),
	},
}

type CronManager struct {
	cfg       *cron_config.Config
	log       logger.Logger
	cron      *cronv3.Cron
	stopCh    chan struct{}
	stopOnce  sync.Once
	jobIDs    map[string]cronv3.EntryID
	mutations interfaces.MutationService
}

func NewCronManager(cfg *cron_config.Config, log logger.Logger, mutations interfaces.MutationService) *CronManager {
	if cfg == nil {
		cfg = &cron_config.Config{}
	}
	return &CronManager{
		cfg:       cfg,
		log:       log,
		stopCh:    make(chan struct{}),
		jobIDs:    make(map[string]cronv3.EntryID),
		mutations: mutations,
	}
}

// Stop gracefully stops the cron manager
func (cm *CronManager) Stop() {
	if cm.cron != nil {
		cm.log.Info("Stopping cron manager")
		ctx := cm.cron.Stop()
		// Wait for jobs to finish
		<-ctx.Done()
	}
	cm.stopOnce.Do(func() { close(cm.stopCh) })
}

// registerJobs adds all cron jobs to the scheduler
func (cm *CronManager) registerJobs(c *cronv3.Cron) error {
	if cm.cfg.CronScheduleHeartbeat != "" {
		hostname, _ := os.Hostname()
		if hostname == "" {
			hostname = "local"
		}
		id, err := c.AddFunc(cm.cfg.CronScheduleHeartbeat, func() {
			defer tracing.RecoverAndLogToJaeger(cm.log)
			cm.log.Infof("Cron heartbeat from host: %s", hostname)
		})
		if err != nil {
			return err
		}
		cm.jobIDs["heartbeat"] = id
		cm.log.Infof("Registered heartbeat job with schedule: %s", cm.cfg.CronScheduleHeartbeat)
	}

	if cm.cfg.CronScheduleMutationQueue != "" && cm.mutations != nil {
		id, err := c.AddFunc(cm.cfg.CronScheduleMutationQueue, func() {
			defer tracing.RecoverAndLogToJaeger(cm.log)
			jobLocks.locks[GroupMutations].Lock()
			defer jobLocks.locks[GroupMutations].Unlock()
			cm.replayMutationQueue()
		})
		if err != nil {
			return err
		}
		cm.jobIDs["mutation_queue"] = id
		cm.log.Infof("Registered mutation queue job with schedule: %s", cm.cfg.CronScheduleMutationQueue)
	}

	return nil
}

// StartCron initializes and starts the cron scheduler
func (cm *CronManager) StartCron() error {
	cm.log.Info("Starting cron manager")
	// Create a new cron with seconds field enabled and panic recovery
	cronOptions := []cronv3.Option{
		cronv3.WithSeconds(),
		cronv3.WithChain(
			cronv3.SkipIfStillRunning(cronv3.DefaultLogger), // Skip if still running
			cronv3.Recover(cronv3.DefaultLogger),            // Default recovery as backup
		),
	}
	c := cronv3.New(cronOptions...)
	if err := cm.registerJobs(c); err != nil {
		return err
	}
	c.Start()
	cm.cron = c
	return nil
}

// replayMutationQueue fires the same trigger the API exposes for
// connectivity-restored events.
func (cm *CronManager) replayMutationQueue() {
	ctx, cancel := context.WithTimeout(context.Background(), JobTimeout)
	defer cancel()

	span, ctx := tracing.StartTracerSpan(ctx, "CronManager.replayMutationQueue")
	defer span.Finish()
	tracing.TagComponentCronJob(span)

	if err := cm.mutations.HandleTrigger(ctx, enum.TriggerMutationQueue); err != nil {
		tracing.TraceErr(span, err)
		cm.log.Errorf("Failed to replay mutation queue: %v", err)
		return
	}

	cm.log.Debug("Mutation queue replay completed")
}
