package telemetry

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	bombadilredis "github.com/bombadil/exerciser/internal/common/redis"
)

// defaultProgressTTL bounds how long a crashed run's progress entry
// lingers before Redis reclaims it.
const defaultProgressTTL = 10 * time.Minute

// ProgressSink publishes a run's coverage edge count and decided-property
// count to Redis so sibling runs exploring the same origin can see each
// other's progress, grounded on the teacher's HSetWithExpire idiom in
// internal/common/redis. Edge buckets themselves are not shared.
type ProgressSink struct {
	client *bombadilredis.Client
	group  string
	runID  string
	logger *zap.Logger
}

// NewProgressSink wraps an already-connected redis client for one run
// within group (normally the target origin).
func NewProgressSink(client *bombadilredis.Client, group, runID string, logger *zap.Logger) *ProgressSink {
	return &ProgressSink{client: client, group: group, runID: runID, logger: logger}
}

// Publish writes this run's current coverage edge count and property
// outlook under its own progress key, refreshing its TTL.
func (s *ProgressSink) Publish(ctx context.Context, coverageEdges int, propertiesDecided int) error {
	key := bombadilredis.ProgressKey(s.group, s.runID)
	err := s.client.HSetWithExpire(ctx, key, defaultProgressTTL,
		"coverage_edges", strconv.Itoa(coverageEdges),
		"properties_decided", strconv.Itoa(propertiesDecided),
		"updated_at", time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("telemetry: publishing progress: %w", err)
	}
	return nil
}

// PeerProgress is one sibling run's last-published progress snapshot.
type PeerProgress struct {
	RunID             string
	CoverageEdges     int
	PropertiesDecided int
}

// Peers lists every run's progress within the group, including this
// run's own entry.
func (s *ProgressSink) Peers(ctx context.Context) ([]PeerProgress, error) {
	keys, err := s.client.Keys(ctx, bombadilredis.ProgressPattern(s.group))
	if err != nil {
		return nil, fmt.Errorf("telemetry: listing peer progress: %w", err)
	}

	peers := make([]PeerProgress, 0, len(keys))
	for _, key := range keys {
		fields, err := s.client.HGetAll(ctx, key)
		if err != nil {
			s.logger.Warn("telemetry: reading peer progress", zap.String("key", key), zap.Error(err))
			continue
		}
		if len(fields) == 0 {
			continue
		}
		edges, _ := strconv.Atoi(fields["coverage_edges"])
		decided, _ := strconv.Atoi(fields["properties_decided"])
		peers = append(peers, PeerProgress{
			RunID:             strings.TrimPrefix(key, bombadilredis.ProgressKey(s.group, "")),
			CoverageEdges:     edges,
			PropertiesDecided: decided,
		})
	}
	return peers, nil
}

// Close removes this run's own progress entry, so a clean shutdown
// doesn't wait out the TTL before peers stop counting it.
func (s *ProgressSink) Close(ctx context.Context) error {
	return s.client.Del(ctx, bombadilredis.ProgressKey(s.group, s.runID))
}
