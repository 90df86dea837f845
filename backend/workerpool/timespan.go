package workerpool

import (
	"time"

	"github.com/rickb777/date/v2/timespan"
)

// TimeSpan marks the submission-to-completion window of one dispatched
// batch, a plain from/to pair rather than an epsilon-widened instant,
// since a batch's span is never a single point.
type TimeSpan = timespan.TimeSpan

func newTimeSpan(from, to time.Time) TimeSpan {
	return timespan.BetweenTimes(from, to)
}
