package cli

import (
	"context"

	"github.com/Domenick1991/staybooking/internal/domain"
	"github.com/Domenick1991/staybooking/internal/repository/memory"
	"github.com/Domenick1991/staybooking/internal/service/calendar"
	"github.com/Domenick1991/staybooking/internal/service/indexsync"
	"github.com/sirupsen/logrus"
)

// NewMemoryBackend runs the commands against an in-process calendar. Reindexing builds the
// snapshots and logs them instead of pushing them anywhere.
func NewMemoryBackend(store *memory.Store, secret []byte, log logrus.FieldLogger) *Backend {
	cal := calendar.NewCalendarService(store, store, calendar.WithLogger(log))
	coord := indexsync.NewCoordinator(cal.Snapshots(), logIndexer{log: log}, store,
		indexsync.WithUnitLister(store),
		indexsync.WithLogger(log),
	)
	return &Backend{Calendar: cal, Index: coord, JWTSecret: secret}
}

type logIndexer struct {
	log logrus.FieldLogger
}

func (l logIndexer) PushAvailability(_ context.Context, snap *domain.AvailabilitySnapshot) error {
	l.log.WithFields(logrus.Fields{
		"unit_id":        snap.UnitID,
		"available_days": snap.AvailableDays(),
		"ranges":         len(snap.Ranges),
	}).Info("dry run, snapshot not pushed")
	return nil
}
