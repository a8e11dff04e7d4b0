package orchestrator

import (
	"time"
)

// runMonitor watches local progress and raises lateness notices. It polls
// finely until the first frame completes, then once per cadence.
func (s *session) runMonitor() {
	defer close(s.monitorDone)

	cadence := s.cfg.Cadence()
	firstWindow := true
	violation := false
	var lastSeen uint64

	t := time.NewTimer(firstWindowPoll)
	defer t.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-t.C:
		}

		if firstWindow {
			violation = s.checkFirstUpdate(violation, &firstWindow, &lastSeen)
		} else {
			violation = s.checkCadence(violation, &lastSeen)
		}

		if firstWindow {
			t.Reset(firstWindowPoll)
		} else {
			t.Reset(cadence)
		}
	}
}

// checkFirstUpdate handles the window before any frame has completed and
// returns the new violation state.
func (s *session) checkFirstUpdate(violation bool, firstWindow *bool, lastSeen *uint64) bool {
	if current := s.progress.LastFrame(); current > 0 {
		*lastSeen = current
		*firstWindow = false
		return false
	}
	if !s.progress.SpeechStarted() || s.progress.Degraded() {
		return violation
	}

	since := s.progress.sinceSpeech()
	if since < s.cfg.FirstUpdateDeadline {
		return false
	}
	if violation {
		return true
	}

	if s.progress.MarkDegraded() {
		s.localDone.broadcast()
		s.metrics.RecordDeadlineMiss("first_update")
		s.logger.Warn().Dur("since_speech", since).Msg("No local update within first update deadline")
		s.notice(NoticeWarn, MsgFirstUpdateLate, 0, since, 0)
	}
	return true
}

// checkCadence handles the steady state after the first completed frame and
// returns the new violation state.
func (s *session) checkCadence(violation bool, lastSeen *uint64) bool {
	if current := s.progress.LastFrame(); current > *lastSeen {
		*lastSeen = current
		return false
	}
	if s.progress.Degraded() || !s.progress.SpeechActive() {
		return false
	}

	since := s.progress.sinceUpdate()
	if since < s.cfg.Cadence() {
		return false
	}
	if violation {
		return true
	}

	if s.progress.MarkDegraded() {
		s.localDone.broadcast()
		s.metrics.RecordDeadlineMiss("cadence")
		s.logger.Warn().Dur("since_update", since).Uint64("frame", *lastSeen).Msg("Local cadence stalled")
		s.notice(NoticeWarn, MsgCadenceLate, 0, since, *lastSeen)
	}
	return true
}
