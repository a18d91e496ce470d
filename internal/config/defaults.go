package config

const (
	defaultUploadDir  = "~/.local/share/reelforge/uploads"
	defaultOutputDir  = "~/.local/share/reelforge/outputs"
	defaultMusicDir   = "~/.local/share/reelforge/music"
	defaultFontDir    = "~/.local/share/reelforge/fonts"
	defaultStagingDir = "~/.local/share/reelforge/staging"
	defaultLogDir     = "~/.local/share/reelforge/logs"
	defaultAPIBind    = "127.0.0.1:7590"

	defaultFrameRate       = 30
	defaultCanvasHeight    = 720
	defaultVideoCodec      = "libx264"
	defaultAudioCodec      = "aac"
	defaultAudioBitrate    = "128k"
	defaultVideoBitrate    = "2500k"
	defaultPreset          = "ultrafast"
	defaultThreads         = 8
	defaultFFmpegBinary    = "ffmpeg"
	defaultFFprobeBinary   = "ffprobe"
	defaultMagickBinary    = "magick"
	defaultWatchdogSeconds = 1800
	defaultMusicVolume     = 0.3

	defaultWorkers            = 1
	defaultQueueCapacity      = 4
	defaultQueuePollInterval  = 2
	defaultErrorRetryInterval = 10
	defaultMinFreeSpaceGiB    = 2

	defaultRetentionMaxAgeSeconds = 7 * 24 * 60 * 60
	defaultRetentionSweepSeconds  = 600

	defaultLogFormat = "console"
	defaultLogLevel  = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			UploadDir:  defaultUploadDir,
			OutputDir:  defaultOutputDir,
			MusicDir:   defaultMusicDir,
			FontDir:    defaultFontDir,
			StagingDir: defaultStagingDir,
			LogDir:     defaultLogDir,
			APIBind:    defaultAPIBind,
		},
		Render: Render{
			FrameRate:       defaultFrameRate,
			CanvasHeight:    defaultCanvasHeight,
			VideoCodec:      defaultVideoCodec,
			AudioCodec:      defaultAudioCodec,
			AudioBitrate:    defaultAudioBitrate,
			VideoBitrate:    defaultVideoBitrate,
			Preset:          defaultPreset,
			Threads:         defaultThreads,
			FFmpegBinary:    defaultFFmpegBinary,
			FFprobeBinary:   defaultFFprobeBinary,
			MagickBinary:    defaultMagickBinary,
			WatchdogSeconds: defaultWatchdogSeconds,
			MusicVolume:     defaultMusicVolume,
		},
		Scheduler: Scheduler{
			Workers:            defaultWorkers,
			QueueCapacity:      defaultQueueCapacity,
			QueuePollInterval:  defaultQueuePollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			MinFreeSpaceGiB:    defaultMinFreeSpaceGiB,
		},
		Retention: Retention{
			MaxAgeSeconds:        defaultRetentionMaxAgeSeconds,
			MaxTotalBytes:        0,
			SweepIntervalSeconds: defaultRetentionSweepSeconds,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
