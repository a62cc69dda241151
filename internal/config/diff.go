package config

import (
	"fmt"
	"reflect"
	"slices"
)

// ConfigDiff describes what changed between two configs. Log level,
// transcript vocabulary, and session defaults apply to a running server;
// every other change is reported in RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	VocabularyChanged bool
	NewVocabulary     []string

	DefaultsChanged bool
	NewDefaults     SessionDefaultsConfig

	// RestartRequired lists the top-level sections whose changes only take
	// effect after a restart.
	RestartRequired []string
}

// HotApplicable reports whether the diff carries any change a running server
// can pick up.
func (d ConfigDiff) HotApplicable() bool {
	return d.LogLevelChanged || d.VocabularyChanged || d.DefaultsChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if !slices.Equal(old.Transcript.Vocabulary, new.Transcript.Vocabulary) {
		d.VocabularyChanged = true
		d.NewVocabulary = new.Transcript.Vocabulary
	}

	if old.Defaults != new.Defaults {
		d.DefaultsChanged = true
		d.NewDefaults = new.Defaults
	}

	// Everything else needs a restart. Compare section-wise so the operator
	// log names what to look at.
	oldServer, newServer := old.Server, new.Server
	oldServer.LogLevel, newServer.LogLevel = "", ""
	if !reflect.DeepEqual(oldServer, newServer) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if !reflect.DeepEqual(old.Auth, new.Auth) {
		d.RestartRequired = append(d.RestartRequired, "auth")
	}
	for _, slot := range []struct {
		name     string
		old, new ProviderConfig
	}{
		{"providers.llm", old.Providers.LLM, new.Providers.LLM},
		{"providers.stt", old.Providers.STT, new.Providers.STT},
		{"providers.tts", old.Providers.TTS, new.Providers.TTS},
		{"providers.vad", old.Providers.VAD, new.Providers.VAD},
	} {
		if !reflect.DeepEqual(slot.old, slot.new) {
			d.RestartRequired = append(d.RestartRequired, slot.name)
		}
	}

	return d
}

// String summarises the diff for operator logs.
func (d ConfigDiff) String() string {
	if !d.HotApplicable() && len(d.RestartRequired) == 0 {
		return "no changes"
	}
	var parts []string
	if d.LogLevelChanged {
		parts = append(parts, fmt.Sprintf("log_level=%s", d.NewLogLevel))
	}
	if d.VocabularyChanged {
		parts = append(parts, fmt.Sprintf("vocabulary(%d terms)", len(d.NewVocabulary)))
	}
	if d.DefaultsChanged {
		parts = append(parts, "session_defaults")
	}
	for _, section := range d.RestartRequired {
		parts = append(parts, section+"(restart required)")
	}
	out := parts[0]
	for _, p := range parts[1:] {
		out += ", " + p
	}
	return out
}
