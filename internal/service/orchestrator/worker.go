package orchestrator

import (
	"time"

	"dictation-orchestrator/internal/service/audio/pcm"
	"dictation-orchestrator/internal/service/segment"
)

// runWorker dispatches commands and frames until both inputs are closed or the
// session is cancelled. Pending commands always go before the next frame.
func (s *session) runWorker() {
	defer s.tasks.Done()

	frames, commands := s.frames, s.commands
	var frameIndex uint64
	nextSchedule := time.Now()

	for frames != nil || commands != nil {
		select {
		case cmd, ok := <-commands:
			if !ok {
				commands = nil
				continue
			}
			s.handleCommand(cmd)
			continue
		default:
		}

		select {
		case <-s.ctx.Done():
			return
		case cmd, ok := <-commands:
			if !ok {
				commands = nil
				continue
			}
			s.handleCommand(cmd)
		case frame, ok := <-frames:
			if !ok {
				frames = nil
				continue
			}
			frameIndex++
			if !s.pace(&nextSchedule, frame) {
				return
			}
			s.dispatchFrame(frame, frameIndex)
		}
	}
}

// pace sleeps until the frame's slot and books the next one. It returns false
// if the session ended while waiting.
func (s *session) pace(nextSchedule *time.Time, frame []float32) bool {
	step := max(s.cfg.FrameDuration(len(frame)), s.cfg.MinFrameDuration)

	if wait := time.Until(*nextSchedule); wait > 0 {
		t := time.NewTimer(wait)
		select {
		case <-t.C:
		case <-s.ctx.Done():
			t.Stop()
			return false
		}
	}
	*nextSchedule = time.Now().Add(step)
	return true
}

func (s *session) dispatchFrame(frame []float32, frameIndex uint64) {
	startedAt := time.Now()
	s.progress.RecordFrameEnergy(pcm.RMS(frame))

	s.tasks.Add(1)
	go s.runLocal(frame, frameIndex, startedAt)

	if s.cloud != nil && s.circuit.AllowAttempt() {
		s.tasks.Add(1)
		go s.runCloud(frame, frameIndex, startedAt)
	}
}

func (s *session) handleCommand(cmd command) {
	if len(cmd.selections) == 0 {
		return
	}
	applied := s.sentences.ApplySelection(cmd.selections)
	s.recordDualViewRevert(cmd.selections, applied)
	if len(applied) == 0 {
		return
	}
	s.send(TranscriptionUpdate{Payload: Selection{Selections: applied}})
}

// runLocal decodes one frame on the local engine and emits any sentences the
// buffer completes.
func (s *session) runLocal(frame []float32, frameIndex uint64, startedAt time.Time) {
	defer s.tasks.Done()

	s.decoderMu.Lock()
	if s.isClosed() {
		s.decoderMu.Unlock()
		return
	}
	delta, err := s.local.Transcribe(s.ctx, frame)
	if err != nil {
		s.decoderMu.Unlock()
		if s.isClosed() {
			return
		}
		s.metrics.RecordEngineError("local")
		s.logger.Error().Err(err).Uint64("frame", frameIndex).Msg("Local decode failed")
		s.progress.MarkDegraded()
		s.localDone.broadcast()
		s.notice(NoticeError, MsgLocalFailed, 0, time.Since(startedAt), frameIndex)
		return
	}
	sentences := s.buffer.Ingest(delta, time.Now())
	s.decoderMu.Unlock()

	if len(sentences) == 0 {
		return
	}

	claimedFirst := s.firstUpdate.CompareAndSwap(false, true)
	wasFirstLocal := !s.firstLocal.Load()
	isPrimary := !s.progress.Degraded()
	emitted := false

	for i, sentence := range sentences {
		s.emitMu.Lock()
		id := s.sentences.RegisterRawSentence()
		latency := time.Since(startedAt)
		ok := s.send(TranscriptionUpdate{
			Payload: Transcript{
				SentenceID: id,
				Text:       sentence,
				Source:     SourceLocal,
				IsPrimary:  isPrimary,
				WithinSLA:  true,
			},
			Latency:    latency,
			FrameIndex: frameIndex,
			IsFirst:    claimedFirst && i == 0,
		})
		s.emitMu.Unlock()

		if !ok {
			s.abandonLocalDelivery(claimedFirst, emitted, wasFirstLocal)
			s.logger.Warn().Uint64("frame", frameIndex).Msg("Local transcript not delivered")
			s.notice(NoticeWarn, delayMessage(frameIndex), 0, latency, frameIndex)
			return
		}

		emitted = true
		s.recordDualViewLatency(id, segment.VariantRaw, SourceLocal, isPrimary, true, latency)
		if s.cfg.EnablePolisher {
			s.tasks.Add(1)
			go s.runPolish(id, sentence, frameIndex, isPrimary)
		}
	}

	if wasFirstLocal {
		s.firstLocal.Store(true)
	}
	s.progress.RecordSuccess(frameIndex)
	s.localDone.broadcast()
}

// abandonLocalDelivery settles the first-update flags after a send failed
// part way through a frame and marks the local lane degraded. The
// first-update claim is given back only if nothing reached the consumer.
func (s *session) abandonLocalDelivery(claimedFirst, emitted, wasFirstLocal bool) {
	if claimedFirst && !emitted {
		s.firstUpdate.Store(false)
	}
	if wasFirstLocal && emitted {
		s.firstLocal.Store(true)
	}
	s.progress.MarkDegraded()
	s.localDone.broadcast()
}

// runPolish polishes one raw sentence and emits the polished variant.
func (s *session) runPolish(id uint64, sentence string, frameIndex uint64, isPrimary bool) {
	defer s.tasks.Done()

	logger := s.logger.With().Uint64("sentenceId", id).Logger()
	start := time.Now()
	polished, err := s.polisher.Polish(s.ctx, sentence)
	elapsed := time.Since(start)
	if err != nil {
		if s.isClosed() {
			return
		}
		s.metrics.RecordEngineError("polish")
		logger.Warn().Err(err).Msg("Polish failed")
		s.notice(NoticeError, MsgPolishFailed, id, elapsed, frameIndex)
		return
	}

	withinSLA := elapsed <= s.cfg.PolishEmitDeadline
	s.metrics.RecordPolish(elapsed.Seconds(), withinSLA)
	if !withinSLA {
		logger.Warn().
			Dur("elapsed", elapsed).
			Dur("deadline", s.cfg.PolishEmitDeadline).
			Msg("Polish exceeded deadline")
	}

	s.sentences.RecordPolished(id, polished, withinSLA)
	ok := s.send(TranscriptionUpdate{
		Payload: Transcript{
			SentenceID: id,
			Text:       polished,
			Source:     SourcePolished,
			IsPrimary:  isPrimary,
			WithinSLA:  withinSLA,
		},
		Latency:    elapsed,
		FrameIndex: frameIndex,
	})
	if ok {
		s.recordDualViewLatency(id, segment.VariantPolished, SourcePolished, isPrimary, withinSLA, elapsed)
	}
}

// runCloud waits for the local lane to finish the same frame, or to miss its
// deadline, then decodes the frame on the cloud engine.
func (s *session) runCloud(frame []float32, frameIndex uint64, startedAt time.Time) {
	defer s.tasks.Done()

	timedOut, alive := s.awaitLocal(frameIndex, startedAt)
	if !alive {
		return
	}
	// Lateness only counts while the user is speaking.
	if timedOut && (!s.progress.SpeechStarted() || !s.progress.SpeechActive()) {
		timedOut = false
	}
	if timedOut && s.progress.MarkDegraded() {
		s.localDone.broadcast()
		phase := "cadence"
		if frameIndex == 1 {
			phase = "first_update"
		}
		s.metrics.RecordDeadlineMiss(phase)
		s.logger.Warn().Uint64("frame", frameIndex).Msg("Local lane missed deadline, cloud takes over")
		s.notice(NoticeWarn, delayMessage(frameIndex), 0, time.Since(startedAt), frameIndex)
	}

	text, err := s.cloud.Transcribe(s.ctx, frame)
	switch {
	case err != nil:
		if s.isClosed() {
			return
		}
		s.metrics.RecordEngineError("cloud")
		s.logger.Warn().Err(err).Uint64("frame", frameIndex).Msg("Cloud decode failed")
		if s.circuit.Trip(CloudRetryBackoff) {
			s.metrics.RecordCloudTrip()
			s.notice(NoticeWarn, MsgCloudFailed, 0, time.Since(startedAt), frameIndex)
		}
	case text == "":
	default:
		s.circuit.MarkSuccess()
		isFirst := s.claimFirstForCloud()

		s.emitMu.Lock()
		id := s.sentences.RegisterRawSentence()
		latency := time.Since(startedAt)
		isPrimary := s.progress.Degraded()
		ok := s.send(TranscriptionUpdate{
			Payload: Transcript{
				SentenceID: id,
				Text:       text,
				Source:     SourceCloud,
				IsPrimary:  isPrimary,
				WithinSLA:  true,
			},
			Latency:    latency,
			FrameIndex: frameIndex,
			IsFirst:    isFirst,
		})
		s.emitMu.Unlock()

		if ok {
			s.recordDualViewLatency(id, segment.VariantRaw, SourceCloud, isPrimary, true, latency)
		}
	}
}

// awaitLocal blocks until the local lane completes frameIndex, degrades, or the
// gate deadline passes. alive is false if the session ended.
func (s *session) awaitLocal(frameIndex uint64, startedAt time.Time) (timedOut, alive bool) {
	gate := s.cfg.Cadence()
	if frameIndex == 1 {
		gate = s.cfg.FirstUpdateDeadline
	}

	for {
		wake := s.localDone.wait()
		if s.progress.LastFrame() >= frameIndex || s.progress.Degraded() {
			return false, true
		}
		remaining := gate - time.Since(startedAt)
		if remaining <= 0 {
			return true, true
		}

		t := time.NewTimer(remaining)
		select {
		case <-wake:
		case <-t.C:
		case <-s.ctx.Done():
			t.Stop()
			return false, false
		}
		t.Stop()
	}
}

// claimFirstForCloud decides whether a cloud transcript carries is_first.
// When local is preferred, cloud only wins while local has emitted nothing.
func (s *session) claimFirstForCloud() bool {
	if !s.preferCloud && s.firstLocal.Load() {
		return false
	}
	return s.firstUpdate.CompareAndSwap(false, true)
}
