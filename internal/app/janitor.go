package service

import (
	"context"
	"time"

	"github.com/okian/smartsession/internal/domain/model"
	"github.com/okian/smartsession/pkg/logger"
	"github.com/okian/smartsession/pkg/metrics"
)

func (s *Service) runJanitor(ctx context.Context) {
	defer close(s.janitorDone)
	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep applies the retention policy once: subjects silent for offlineAfter
// become OFFLINE, subjects silent for subjectTTL are evicted together with
// their timers. Each subject is re-checked under its lock so a frame that
// arrives mid-sweep wins.
func (s *Service) Sweep(ctx context.Context) {
	now := s.now()

	if s.subjectTTL > 0 {
		for _, st := range s.store.Stale(ctx, now.Add(-s.subjectTTL)) {
			s.evict(ctx, st.SubjectID, now.Add(-s.subjectTTL))
		}
	}
	if s.offlineAfter > 0 {
		for _, st := range s.store.Stale(ctx, now.Add(-s.offlineAfter)) {
			if st.Status != model.StatusOffline {
				s.markOffline(ctx, st.SubjectID, now.Add(-s.offlineAfter))
			}
		}
	}

	metrics.UpdateTimersTracked("engagement", s.classifier.Len())
	metrics.UpdateTimersTracked("integrity", s.monitor.Len())
	metrics.UpdateTimersTracked("locks", s.locks.Len())
}

func (s *Service) markOffline(ctx context.Context, subjectID string, cutoff time.Time) {
	unlock := s.locks.Lock(subjectID)
	defer unlock()

	st, err := s.store.Get(ctx, subjectID)
	if err != nil || !st.LastUpdated.Before(cutoff) || st.Status == model.StatusOffline {
		return
	}

	// LastUpdated keeps the last frame time so the TTL still counts from it.
	offline := model.SubjectState{
		SubjectID:   st.SubjectID,
		SessionID:   st.SessionID,
		Status:      model.StatusOffline,
		Alert:       model.AlertNone,
		LastUpdated: st.LastUpdated,
	}
	if err := s.store.Upsert(ctx, offline); err != nil {
		return
	}
	s.classifier.Forget(subjectID)
	s.monitor.Forget(subjectID)
	s.publish(ctx, model.Update{Kind: model.UpdateSubject, State: offline})

	metrics.RecordSubjectOffline()
	s.logger.Info(ctx, "subject went offline",
		logger.String("subject_id", subjectID),
		logger.String("session_id", st.SessionID),
	)
}

func (s *Service) evict(ctx context.Context, subjectID string, cutoff time.Time) {
	unlock := s.locks.Lock(subjectID)
	defer unlock()

	st, err := s.store.Get(ctx, subjectID)
	if err != nil || !st.LastUpdated.Before(cutoff) {
		return
	}
	if !s.store.Delete(ctx, subjectID) {
		return
	}
	s.classifier.Forget(subjectID)
	s.monitor.Forget(subjectID)
	s.publish(ctx, model.Update{Kind: model.UpdateRemoved, State: st})

	metrics.RecordSubjectEvicted()
	s.logger.Info(ctx, "subject evicted",
		logger.String("subject_id", subjectID),
		logger.Duration("idle", s.now().Sub(st.LastUpdated)),
	)
}
