package config

import "time"

func Defaults() *Config {
	return &Config{
		Telegram: TelegramConfig{
			PollTimeout:    30,
			RequestTimeout: 60,
		},
		Relay: RelayConfig{
			SourceThreadID:    2,
			ContextWindow:     Duration(5 * time.Minute),
			Routes:            defaultRoutes(),
			Workers:           4,
			AttributionPrefix: "📨 Von",
		},
		Log: LogConfig{
			Level: "info",
		},
		Audit: AuditConfig{
			Enabled:       false,
			DBPath:        "~/.topicrelay/audit.db",
			RetentionDays: 30,
			PruneSchedule: "17 3 * * *",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9464",
			Path:    "/metrics",
		},
	}
}

func defaultRoutes() []Route {
	return []Route{
		{Marker: "#biete", ThreadID: 3, Name: "Biete"},
		{Marker: "#suche", ThreadID: 4, Name: "Suche"},
	}
}
