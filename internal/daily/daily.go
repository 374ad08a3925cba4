// Package daily runs the local-midnight housekeeping: prune aged CSV files
// and archive rows, and mirror the finished day's CSV to the remote archive.
package daily

import (
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/karachiwx/awos/internal/csvlog"
	"github.com/karachiwx/awos/internal/export"
	"github.com/karachiwx/awos/internal/store"
)

type Jobs struct {
	csv         *csvlog.Writer
	store       *store.Store
	uploader    *export.Uploader
	loc         *time.Location
	dbRetention int
}

func NewJobs(csv *csvlog.Writer, st *store.Store, uploader *export.Uploader, loc *time.Location, dbRetentionDays int) *Jobs {
	return &Jobs{
		csv:         csv,
		store:       st,
		uploader:    uploader,
		loc:         loc,
		dbRetention: dbRetentionDays,
	}
}

// RunAll executes the housekeeping pass for the given time. Each job is
// independent; a failure in one never blocks the others.
func (j *Jobs) RunAll(now time.Time) {
	log.Printf("daily: running jobs for %s", now.In(j.loc).Format("2006-01-02"))

	j.csv.Prune(now)

	if j.store != nil {
		if _, err := j.store.PruneSnapshots(now, j.dbRetention); err != nil {
			log.Printf("daily: prune snapshots: %v", err)
		}
	}

	if j.uploader != nil {
		yesterday := now.In(j.loc).AddDate(0, 0, -1)
		path := j.csv.FileForDate(yesterday)
		if err := j.uploader.Upload(path); err != nil {
			log.Printf("daily: export: %v", err)
		}
	}
}

// Schedule registers the jobs a few minutes after local midnight and returns
// the started cron. The offset keeps housekeeping clear of the CSV rollover
// itself.
func (j *Jobs) Schedule() (*cron.Cron, error) {
	c := cron.New(cron.WithLocation(j.loc))
	if _, err := c.AddFunc("5 0 * * *", func() { j.RunAll(time.Now()) }); err != nil {
		return nil, err
	}
	c.Start()
	return c, nil
}
