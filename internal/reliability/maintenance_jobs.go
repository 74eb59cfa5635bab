package reliability

import (
	"context"
	"fmt"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/riskengine/internal/database"
)

// DailyMaintenanceJob runs the housekeeping pass between batch runs:
// integrity check, WAL checkpoint, and a disk-space check that fails this
// job when less than 0.5 GB is free. Satisfies scheduler.Job.
type DailyMaintenanceJob struct {
	databases map[string]*database.DB
	dataDir   string
	log       zerolog.Logger
}

// NewDailyMaintenanceJob creates a new daily maintenance job.
func NewDailyMaintenanceJob(databases map[string]*database.DB, dataDir string, log zerolog.Logger) *DailyMaintenanceJob {
	return &DailyMaintenanceJob{
		databases: databases,
		dataDir:   dataDir,
		log:       log.With().Str("job", "daily_maintenance").Logger(),
	}
}

// Run executes the daily maintenance job.
func (j *DailyMaintenanceJob) Run() error {
	j.log.Info().Msg("starting daily maintenance")
	startTime := time.Now()

	for name, db := range j.databases {
		if err := db.HealthCheck(context.Background()); err != nil {
			j.log.Error().Str("database", name).Err(err).Msg("CRITICAL: database integrity check failed")
			return fmt.Errorf("CRITICAL: integrity check failed for %s: %w", name, err)
		}

		if err := db.WALCheckpoint("TRUNCATE"); err != nil {
			j.log.Warn().Str("database", name).Err(err).Msg("WAL checkpoint failed")
		}
	}

	if err := j.checkDiskSpace(); err != nil {
		return err
	}

	j.logGrowth()

	j.log.Info().Dur("duration_ms", time.Since(startTime)).Msg("daily maintenance completed")
	return nil
}

// Name returns the job name for the scheduler.
func (j *DailyMaintenanceJob) Name() string {
	return "daily_maintenance"
}

// checkDiskSpace verifies sufficient disk space is available under the data directory.
func (j *DailyMaintenanceJob) checkDiskSpace() error {
	stat := syscall.Statfs_t{}
	if err := syscall.Statfs(j.dataDir, &stat); err != nil {
		return fmt.Errorf("failed to stat filesystem: %w", err)
	}

	availableGB := float64(stat.Bavail*uint64(stat.Bsize)) / 1e9
	j.log.Debug().Float64("available_gb", availableGB).Msg("disk space check")

	if availableGB < 0.5 {
		j.log.Error().Float64("available_gb", availableGB).Msg("CRITICAL: insufficient disk space")
		return fmt.Errorf("CRITICAL: only %.2f GB free, halting maintenance", availableGB)
	}
	if availableGB < 5.0 {
		j.log.Warn().Float64("available_gb", availableGB).Msg("disk space running low")
	}

	return nil
}

func (j *DailyMaintenanceJob) logGrowth() {
	for name, db := range j.databases {
		stats, err := db.GetStats()
		if err != nil {
			j.log.Error().Str("database", name).Err(err).Msg("failed to get database stats")
			continue
		}
		j.log.Info().
			Str("database", name).
			Float64("size_mb", float64(stats.SizeBytes)/1024/1024).
			Float64("wal_size_mb", float64(stats.WALSizeBytes)/1024/1024).
			Msg("database size")
	}
}

// WeeklyMaintenanceJob VACUUMs every database to reclaim space fragmented
// by the week's upserts.
type WeeklyMaintenanceJob struct {
	databases map[string]*database.DB
	log       zerolog.Logger
}

// NewWeeklyMaintenanceJob creates a new weekly maintenance job.
func NewWeeklyMaintenanceJob(databases map[string]*database.DB, log zerolog.Logger) *WeeklyMaintenanceJob {
	return &WeeklyMaintenanceJob{
		databases: databases,
		log:       log.With().Str("job", "weekly_maintenance").Logger(),
	}
}

// Run executes the weekly maintenance job.
func (j *WeeklyMaintenanceJob) Run() error {
	j.log.Info().Msg("starting weekly maintenance")
	startTime := time.Now()

	for name, db := range j.databases {
		j.log.Info().Str("database", name).Msg("running VACUUM")
		if err := db.Vacuum(); err != nil {
			j.log.Error().Str("database", name).Err(err).Msg("VACUUM failed")
		}
	}

	j.log.Info().Dur("duration_ms", time.Since(startTime)).Msg("weekly maintenance completed")
	return nil
}

// Name returns the job name for the scheduler.
func (j *WeeklyMaintenanceJob) Name() string {
	return "weekly_maintenance"
}
