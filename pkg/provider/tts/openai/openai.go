// Package openai provides a TTS provider backed by the OpenAI audio speech
// API. The endpoint's "pcm" response format is 16-bit little-endian mono at
// 24 kHz, which matches the session wire format exactly, so no resampling is
// performed.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/sotto-ai/sotto/pkg/provider/tts"
	"github.com/sotto-ai/sotto/pkg/types"
)

const (
	defaultModel = "gpt-4o-mini-tts"
	defaultVoice = "alloy"

	// pcmChunkSize is the size of each PCM chunk emitted on the audio channel.
	pcmChunkSize = 4096
)

// knownVoices is the voice catalogue of the speech endpoint. The API exposes
// no listing endpoint, so the set is maintained here.
var knownVoices = []string{
	"alloy", "ash", "ballad", "coral", "echo", "fable",
	"nova", "onyx", "sage", "shimmer", "verse",
}

// Provider implements tts.Provider using the OpenAI audio speech API.
//
// The speech endpoint is batch per request, so each text fragment received on
// the input channel is synthesised with one API call, in order. Callers should
// send sentence-sized fragments; the gateway's response pipeline already
// flushes text at sentence boundaries.
type Provider struct {
	client oai.Client
	model  string
}

// config holds optional configuration for the provider.
type config struct {
	baseURL string
	model   string
	timeout time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL. Use this to point
// the provider at an OpenAI-compatible speech server.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithModel sets the speech model. Defaults to "gpt-4o-mini-tts".
func WithModel(model string) Option {
	return func(c *config) {
		c.model = model
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// New constructs a new OpenAI TTS Provider.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}

	cfg := &config{model: defaultModel}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}

	return &Provider{
		client: oai.NewClient(reqOpts...),
		model:  cfg.model,
	}, nil
}

// SynthesizeStream synthesises each text fragment with one speech API call
// and emits the raw PCM response in fixed-size chunks.
//
// voice.ID selects the voice ("alloy" when empty). voice.SpeedFactor maps to
// the API's speed parameter when positive, and voice.Metadata["instructions"]
// is forwarded as delivery instructions for models that support them.
//
// Both returned channels are closed when all text has been synthesised, when
// a request fails, or when ctx is cancelled. The error channel carries the
// first failure; cancellation closes the channels without an error.
func (p *Provider) SynthesizeStream(ctx context.Context, text <-chan string, voice types.VoiceProfile) (<-chan []byte, <-chan error, error) {
	voiceID := voice.ID
	if voiceID == "" {
		voiceID = defaultVoice
	}

	audioCh := make(chan []byte, 256)
	errCh := make(chan error, 1)

	fail := func(err error) {
		select {
		case errCh <- err:
		default:
		}
	}

	go func() {
		defer close(errCh)
		defer close(audioCh)
		for {
			select {
			case fragment, ok := <-text:
				if !ok {
					return
				}
				if strings.TrimSpace(fragment) == "" {
					continue
				}
				if !p.synthesize(ctx, fragment, voiceID, voice, audioCh, fail) {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return audioCh, errCh, nil
}

// synthesize issues one speech request and streams the response body onto
// audioCh. It reports false when the stream should stop.
func (p *Provider) synthesize(ctx context.Context, input, voiceID string, voice types.VoiceProfile, audioCh chan<- []byte, fail func(error)) bool {
	params := oai.AudioSpeechNewParams{
		Model:          oai.SpeechModel(p.model),
		Input:          input,
		Voice:          oai.AudioSpeechNewParamsVoice(voiceID),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatPCM,
	}
	if voice.SpeedFactor > 0 {
		params.Speed = param.NewOpt(voice.SpeedFactor)
	}
	if instr := voice.Metadata["instructions"]; instr != "" {
		params.Instructions = param.NewOpt(instr)
	}

	res, err := p.client.Audio.Speech.New(ctx, params)
	if err != nil {
		if ctx.Err() == nil {
			fail(fmt.Errorf("openai: speech synthesis: %w", err))
		}
		return false
	}
	defer res.Body.Close()

	buf := make([]byte, pcmChunkSize)
	for {
		n, err := res.Body.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			select {
			case audioCh <- chunk:
			case <-ctx.Done():
				return false
			}
		}
		if errors.Is(err, io.EOF) {
			return true
		}
		if err != nil {
			if ctx.Err() == nil {
				fail(fmt.Errorf("openai: read speech response: %w", err))
			}
			return false
		}
	}
}

// ListVoices returns the static catalogue of OpenAI speech voices.
func (p *Provider) ListVoices(ctx context.Context) ([]types.VoiceProfile, error) {
	profiles := make([]types.VoiceProfile, 0, len(knownVoices))
	for _, name := range knownVoices {
		profiles = append(profiles, types.VoiceProfile{
			ID:       name,
			Name:     name,
			Provider: "openai",
		})
	}
	return profiles, nil
}

var _ tts.Provider = (*Provider)(nil)
