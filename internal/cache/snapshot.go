package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Domenick1991/staybooking/internal/domain"
	"github.com/google/uuid"
	"github.com/karlseguin/ccache/v3"
	"github.com/sirupsen/logrus"
)

// SharedStore is the cross-process layer of the snapshot cache.
type SharedStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// SnapshotCache keeps availability snapshots in a local ccache in front of an optional shared store.
//
// Shared keys embed a per-unit generation token, so invalidating a unit only has to replace the
// token; entries written under an old generation are never read again and age out on their TTL.
type SnapshotCache struct {
	local     *ccache.Cache[*domain.AvailabilitySnapshot]
	shared    SharedStore
	localTTL  time.Duration
	sharedTTL time.Duration
	log       logrus.FieldLogger
}

func NewSnapshotCache(shared SharedStore, maxSize int64, localTTL, sharedTTL time.Duration, log logrus.FieldLogger) *SnapshotCache {
	return &SnapshotCache{
		local:     ccache.New(ccache.Configure[*domain.AvailabilitySnapshot]().MaxSize(maxSize)),
		shared:    shared,
		localTTL:  localTTL,
		sharedTTL: sharedTTL,
		log:       log,
	}
}

func (c *SnapshotCache) Get(ctx context.Context, unitID int64, r domain.DateRange) (*domain.AvailabilitySnapshot, bool) {
	key := rangeKey(unitID, r)
	if item := c.local.Get(key); item != nil && !item.Expired() {
		return item.Value(), true
	}
	if c.shared == nil {
		return nil, false
	}

	gen, ok, err := c.shared.Get(ctx, generationKey(unitID))
	if err != nil || !ok {
		c.logError(err, unitID, "read generation")
		return nil, false
	}
	data, ok, err := c.shared.Get(ctx, sharedKey(unitID, string(gen), r))
	if err != nil || !ok {
		c.logError(err, unitID, "read snapshot")
		return nil, false
	}

	var snap domain.AvailabilitySnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		c.logError(err, unitID, "decode snapshot")
		return nil, false
	}
	c.local.Set(key, &snap, c.localTTL)
	return &snap, true
}

func (c *SnapshotCache) Set(ctx context.Context, snap *domain.AvailabilitySnapshot) {
	r := domain.DateRange{Start: snap.From, End: snap.To}
	c.local.Set(rangeKey(snap.UnitID, r), snap, c.localTTL)
	if c.shared == nil {
		return
	}

	gen, ok, err := c.shared.Get(ctx, generationKey(snap.UnitID))
	if err != nil {
		c.logError(err, snap.UnitID, "read generation")
		return
	}
	if !ok {
		gen = []byte(uuid.NewString())
		if err := c.shared.Set(ctx, generationKey(snap.UnitID), gen, 0); err != nil {
			c.logError(err, snap.UnitID, "write generation")
			return
		}
	}

	payload, err := json.Marshal(snap)
	if err != nil {
		c.logError(err, snap.UnitID, "encode snapshot")
		return
	}
	if err := c.shared.Set(ctx, sharedKey(snap.UnitID, string(gen), r), payload, c.sharedTTL); err != nil {
		c.logError(err, snap.UnitID, "write snapshot")
	}
}

// Invalidate drops every cached range of the unit.
func (c *SnapshotCache) Invalidate(ctx context.Context, unitID int64) error {
	c.local.DeletePrefix(unitPrefix(unitID))
	if c.shared == nil {
		return nil
	}
	return c.shared.Set(ctx, generationKey(unitID), []byte(uuid.NewString()), 0)
}

func (c *SnapshotCache) logError(err error, unitID int64, op string) {
	if err == nil {
		return
	}
	c.log.WithError(err).WithField("unit_id", unitID).Warnf("snapshot cache: %s", op)
}

func unitPrefix(unitID int64) string {
	return fmt.Sprintf("availability:%d:", unitID)
}

func rangeKey(unitID int64, r domain.DateRange) string {
	return fmt.Sprintf("%s%s:%s", unitPrefix(unitID), r.Start.Format(time.DateOnly), r.End.Format(time.DateOnly))
}

func generationKey(unitID int64) string {
	return fmt.Sprintf("availability:gen:%d", unitID)
}

func sharedKey(unitID int64, gen string, r domain.DateRange) string {
	return fmt.Sprintf("availability:%d:%s:%s:%s", unitID, gen, r.Start.Format(time.DateOnly), r.End.Format(time.DateOnly))
}
