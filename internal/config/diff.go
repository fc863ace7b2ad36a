package config

import (
	"log/slog"
	"reflect"
)

// ConfigDiff describes what changed between two configs.
// Only sections that can be applied without a restart are tracked
// individually; everything else is summarised in RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// MergeChanged, EnrichmentChanged and SpeechChanged mean the sentence
	// processor must be rebuilt with the new settings.
	MergeChanged      bool
	EnrichmentChanged bool
	SpeechChanged     bool

	// RestartRequired lists the changed sections that only take effect after
	// a restart (providers, listen address, book store, ...).
	RestartRequired []string
}

// ProcessorChanged reports whether any setting of the sentence processor changed.
func (d ConfigDiff) ProcessorChanged() bool {
	return d.MergeChanged || d.EnrichmentChanged || d.SpeechChanged
}

// Empty reports whether no setting changed.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.ProcessorChanged() && len(d.RestartRequired) == 0
}

// LogValue lists the changed sections.
func (d ConfigDiff) LogValue() slog.Value {
	var attrs []slog.Attr
	if d.LogLevelChanged {
		attrs = append(attrs, slog.String("log_level", string(d.NewLogLevel)))
	}
	if d.MergeChanged {
		attrs = append(attrs, slog.Bool("merge", true))
	}
	if d.EnrichmentChanged {
		attrs = append(attrs, slog.Bool("enrichment", true))
	}
	if d.SpeechChanged {
		attrs = append(attrs, slog.Bool("speech", true))
	}
	if len(d.RestartRequired) > 0 {
		attrs = append(attrs, slog.Any("restart_required", d.RestartRequired))
	}
	return slog.GroupValue(attrs...)
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	d.MergeChanged = !reflect.DeepEqual(old.Merge.Resolve(), new.Merge.Resolve())
	d.EnrichmentChanged = old.Enrichment != new.Enrichment
	d.SpeechChanged = old.Speech != new.Speech

	if old.Server.ListenAddr != new.Server.ListenAddr {
		d.RestartRequired = append(d.RestartRequired, "server.listen_addr")
	}
	if !reflect.DeepEqual(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if old.Books != new.Books {
		d.RestartRequired = append(d.RestartRequired, "books")
	}
	if old.Processing != new.Processing {
		d.RestartRequired = append(d.RestartRequired, "processing")
	}
	if old.Observability != new.Observability {
		d.RestartRequired = append(d.RestartRequired, "observability")
	}
	return d
}
