package batch

import (
	"proxyfarm/internal/config"
	"proxyfarm/internal/job"
	"proxyfarm/internal/task"
)

// JobOptions derives the per-job path settings from configuration.
func JobOptions(cfg *config.Config) job.Options {
	return job.Options{
		ProxyRoot:       cfg.Paths.ProxyRoot,
		Extension:       cfg.Encoding.Extension,
		Overwrite:       cfg.Encoding.Overwrite,
		AllowedSuffixes: cfg.SuffixPatterns(),
	}
}

// Settings flattens the [encoding] section into task settings.
func Settings(cfg *config.Config) task.Settings {
	return task.Settings{
		Codec:         cfg.Encoding.Codec,
		Profile:       cfg.Encoding.Profile,
		PixelFormat:   cfg.Encoding.PixelFormat,
		Height:        cfg.Encoding.Height,
		AudioCodec:    cfg.Encoding.AudioCodec,
		AudioChannels: cfg.Encoding.AudioChannels,
		Extension:     cfg.Encoding.Extension,
	}
}
