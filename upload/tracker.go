package upload

import (
	"time"

	"github.com/bitrise-io/go-utils/v2/analytics"
	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"

	"github.com/saaskit/go-uploadkit/upload/transfer"
)

type sessionTracker struct {
	tracker analytics.Tracker
	logger  log.Logger
}

func newSessionTracker(tracker analytics.Tracker, policyKey string, envRepo env.Repository, logger log.Logger) sessionTracker {
	if tracker == nil {
		p := analytics.Properties{
			"policy":  policyKey,
			"app_env": envRepo.Get("APP_ENV"),
		}
		tracker = analytics.NewDefaultTracker(logger, p)
	}
	return sessionTracker{
		tracker: tracker,
		logger:  logger,
	}
}

func (t *sessionTracker) logValidationRejected(fileCount, errorCount int) {
	properties := analytics.Properties{
		"file_count":  fileCount,
		"error_count": errorCount,
	}
	t.tracker.Enqueue("upload_session_validation_rejected", properties)
}

func (t *sessionTracker) logSessionFinished(results []transfer.Result, uploadedBytes int64, duration time.Duration) {
	statusCounts := map[transfer.Status]int{}
	for _, result := range results {
		statusCounts[result.Status]++
	}

	properties := analytics.Properties{
		"duration_s":      duration.Truncate(time.Millisecond).Seconds(),
		"uploaded_bytes":  uploadedBytes,
		"file_count":      len(results),
		"completed_count": statusCounts[transfer.Completed],
		"error_count":     statusCounts[transfer.StatusError],
		"cancelled_count": statusCounts[transfer.Cancelled],
		"paused_count":    statusCounts[transfer.Paused],
	}
	t.tracker.Enqueue("upload_session_finished", properties)
}

func (t *sessionTracker) wait() {
	t.tracker.Wait()
}
