package app

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/sotto-ai/sotto/internal/config"
	"github.com/sotto-ai/sotto/internal/gateway"
	"github.com/sotto-ai/sotto/internal/observe"
	"github.com/sotto-ai/sotto/pkg/provider/llm"
	"github.com/sotto-ai/sotto/pkg/provider/stt"
	"github.com/sotto-ai/sotto/pkg/provider/tts"
	"github.com/sotto-ai/sotto/pkg/types"
)

// instrumentProviders wraps each configured provider with request counters
// and stage latency histograms. Names come from the config entries so
// dashboards show which backend served a stage. VAD is not wrapped: it runs
// in-process on every frame.
func instrumentProviders(p gateway.Providers, cfg config.ProvidersConfig, m *observe.Metrics) gateway.Providers {
	if p.LLM != nil {
		p.LLM = &instrumentedLLM{next: p.LLM, name: cfg.LLM.Name, metrics: m}
	}
	if p.STT != nil {
		p.STT = &instrumentedSTT{next: p.STT, name: cfg.STT.Name, metrics: m}
	}
	if p.TTS != nil {
		p.TTS = &instrumentedTTS{next: p.TTS, name: cfg.TTS.Name, metrics: m}
	}
	return p
}

// recordCall records one provider call on the standard instruments. Latency
// lands on hist only for successes; context cancellation counts under its
// own status and never as a provider error.
func recordCall(ctx context.Context, m *observe.Metrics, hist metric.Float64Histogram, name, kind string, start time.Time, err error) {
	switch {
	case err == nil:
		m.RecordProviderRequest(ctx, name, kind, "ok")
		hist.Record(ctx, time.Since(start).Seconds())
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		m.RecordProviderRequest(ctx, name, kind, "cancelled")
	default:
		m.RecordProviderRequest(ctx, name, kind, "error")
		m.RecordProviderError(ctx, name, kind)
	}
}

// ─── STT ─────────────────────────────────────────────────────────────────────

type instrumentedSTT struct {
	next    stt.Provider
	name    string
	metrics *observe.Metrics
}

var _ stt.Provider = (*instrumentedSTT)(nil)

func (p *instrumentedSTT) Transcribe(ctx context.Context, req stt.TranscribeRequest) (*types.Transcript, error) {
	start := time.Now()
	tr, err := p.next.Transcribe(ctx, req)
	recordCall(ctx, p.metrics, p.metrics.STTDuration, p.name, "stt", start, err)
	return tr, err
}

// ─── LLM ─────────────────────────────────────────────────────────────────────

// instrumentedLLM times streams from request to channel close, so the
// histogram covers the full generation rather than just the connect.
type instrumentedLLM struct {
	next    llm.Provider
	name    string
	metrics *observe.Metrics
}

var _ llm.Provider = (*instrumentedLLM)(nil)

func (p *instrumentedLLM) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	start := time.Now()
	stream, err := p.next.StreamCompletion(ctx, req)
	if err != nil {
		recordCall(ctx, p.metrics, p.metrics.LLMDuration, p.name, "llm", start, err)
		return nil, err
	}
	out := make(chan llm.Chunk)
	go func() {
		defer close(out)
		for chunk := range stream {
			select {
			case out <- chunk:
			case <-ctx.Done():
				// The provider closes its channel on cancellation; drain it
				// so its goroutine can exit.
				for range stream {
				}
				recordCall(ctx, p.metrics, p.metrics.LLMDuration, p.name, "llm", start, ctx.Err())
				return
			}
		}
		recordCall(ctx, p.metrics, p.metrics.LLMDuration, p.name, "llm", start, nil)
	}()
	return out, nil
}

func (p *instrumentedLLM) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	start := time.Now()
	resp, err := p.next.Complete(ctx, req)
	recordCall(ctx, p.metrics, p.metrics.LLMDuration, p.name, "llm", start, err)
	return resp, err
}

// ─── TTS ─────────────────────────────────────────────────────────────────────

// instrumentedTTS times the audio stream from request to channel close. The
// error channel is teed so mid-stream failures reach the error counter
// without stealing the value from the pipeline.
type instrumentedTTS struct {
	next    tts.Provider
	name    string
	metrics *observe.Metrics
}

var _ tts.Provider = (*instrumentedTTS)(nil)

func (p *instrumentedTTS) SynthesizeStream(ctx context.Context, text <-chan string, voice types.VoiceProfile) (<-chan []byte, <-chan error, error) {
	start := time.Now()
	audioCh, errCh, err := p.next.SynthesizeStream(ctx, text, voice)
	if err != nil {
		recordCall(ctx, p.metrics, p.metrics.TTSDuration, p.name, "tts", start, err)
		return nil, nil, err
	}

	tee := make(chan error, 1)
	go func() {
		defer close(tee)
		for e := range errCh {
			if e != nil {
				p.metrics.RecordProviderError(ctx, p.name, "tts")
			}
			tee <- e
		}
	}()

	out := make(chan []byte)
	go func() {
		defer close(out)
		for pcm := range audioCh {
			select {
			case out <- pcm:
			case <-ctx.Done():
				for range audioCh {
				}
				recordCall(ctx, p.metrics, p.metrics.TTSDuration, p.name, "tts", start, ctx.Err())
				return
			}
		}
		recordCall(ctx, p.metrics, p.metrics.TTSDuration, p.name, "tts", start, nil)
	}()
	return out, tee, nil
}

func (p *instrumentedTTS) ListVoices(ctx context.Context) ([]types.VoiceProfile, error) {
	voices, err := p.next.ListVoices(ctx)
	if err != nil {
		p.metrics.RecordProviderRequest(ctx, p.name, "tts", "error")
		p.metrics.RecordProviderError(ctx, p.name, "tts")
		return nil, err
	}
	p.metrics.RecordProviderRequest(ctx, p.name, "tts", "ok")
	return voices, nil
}
