package config

const (
	defaultProxyRoot           = "~/proxies"
	defaultTempDir             = "~/.local/share/proxyfarm/segments"
	defaultStateDir            = "~/.local/share/proxyfarm/state"
	defaultLogDir              = "~/.local/share/proxyfarm/logs"
	defaultCodec               = "prores_ks"
	defaultProfile             = "0"
	defaultPixelFormat         = "yuv422p10le"
	defaultHeight              = 720
	defaultAudioCodec          = "pcm_s16le"
	defaultAudioChannels       = 2
	defaultExtension           = ".mov"
	defaultDataLevel           = "auto"
	defaultChunkThreshold      = 600
	defaultChunkSeconds        = 60
	defaultExistingProxies     = "link"
	defaultOfflineMedia        = "rerender"
	defaultTaskExpiry          = 3600
	defaultDispatchPoll        = 500
	defaultRosterTimeout       = 60
	defaultEventBufferSize     = 256
	defaultWorkerConcurrency   = 1
	defaultWorkerPoll          = 1000
	defaultHeartbeatInterval   = 15
	defaultTimeline            = "current"
	defaultNotifyTimeout       = 10
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultCollisionSuffixRule = `^_\d+$`
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			ProxyRoot: defaultProxyRoot,
			TempDir:   defaultTempDir,
			StateDir:  defaultStateDir,
			LogDir:    defaultLogDir,
		},
		Encoding: Encoding{
			Codec:         defaultCodec,
			Profile:       defaultProfile,
			PixelFormat:   defaultPixelFormat,
			Height:        defaultHeight,
			AudioCodec:    defaultAudioCodec,
			AudioChannels: defaultAudioChannels,
			Extension:     defaultExtension,
			DataLevel:     defaultDataLevel,
		},
		Chunking: Chunking{
			Enabled:          true,
			ThresholdSeconds: defaultChunkThreshold,
			ChunkSeconds:     defaultChunkSeconds,
		},
		Linking: Linking{
			AllowedSuffixes: []string{defaultCollisionSuffixRule},
		},
		Reconcile: Reconcile{
			ExistingProxies: defaultExistingProxies,
			OfflineMedia:    defaultOfflineMedia,
		},
		Dispatch: Dispatch{
			TaskExpiry:      defaultTaskExpiry,
			PollInterval:    defaultDispatchPoll,
			RosterTimeout:   defaultRosterTimeout,
			EventBufferSize: defaultEventBufferSize,
		},
		Worker: Worker{
			Concurrency:       defaultWorkerConcurrency,
			PollInterval:      defaultWorkerPoll,
			HeartbeatInterval: defaultHeartbeatInterval,
		},
		Editor: Editor{
			Timeline: defaultTimeline,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			BatchComplete:  true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
