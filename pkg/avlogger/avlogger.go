// Package avlogger routes FFmpeg's own log lines into a go-belt logger
// and maps the two libraries' log levels onto each other.
package avlogger

import (
	"strings"
	"sync"

	"github.com/asticode/go-astiav"
	"github.com/facebookincubator/go-belt/tool/logger"
)

func LevelToAstiav(level logger.Level) astiav.LogLevel {
	switch level {
	case logger.LevelUndefined:
		return astiav.LogLevelQuiet
	case logger.LevelPanic:
		return astiav.LogLevelPanic
	case logger.LevelFatal:
		return astiav.LogLevelFatal
	case logger.LevelError:
		return astiav.LogLevelError
	case logger.LevelWarning:
		return astiav.LogLevelWarning
	case logger.LevelInfo:
		return astiav.LogLevelInfo
	case logger.LevelDebug:
		return astiav.LogLevelVerbose
	case logger.LevelTrace:
		return astiav.LogLevelDebug
	}
	return astiav.LogLevelWarning
}

func LevelFromAstiav(level astiav.LogLevel) logger.Level {
	switch level {
	case astiav.LogLevelQuiet:
		return logger.LevelUndefined
	case astiav.LogLevelFatal:
		return logger.LevelFatal
	case astiav.LogLevelPanic:
		return logger.LevelPanic
	case astiav.LogLevelError:
		return logger.LevelError
	case astiav.LogLevelWarning:
		return logger.LevelWarning
	case astiav.LogLevelInfo:
		return logger.LevelInfo
	case astiav.LogLevelVerbose:
		return logger.LevelDebug
	case astiav.LogLevelDebug:
		return logger.LevelTrace
	}
	return logger.LevelWarning
}

// Callback adapts l into an astiav.LogCallback; the FFmpeg class the
// message originates from is attached as a structured field.
func Callback(l logger.Logger) astiav.LogCallback {
	var locker sync.Mutex
	return func(c astiav.Classer, level astiav.LogLevel, format, msg string) {
		locker.Lock()
		defer locker.Unlock()
		entry := l
		if c != nil {
			if cl := c.Class(); cl != nil {
				entry = entry.WithField(
					"ffmpeg_class",
					ClassCategoryString(cl.Category())+":"+cl.Name(),
				)
			}
		}
		entry.Logf(LevelFromAstiav(level), "%s", strings.TrimSpace(msg))
	}
}

func ClassCategoryString(cat astiav.ClassCategory) string {
	switch cat {
	case astiav.ClassCategoryBitstreamFilter:
		return "bitstream_filter"
	case astiav.ClassCategoryDecoder:
		return "decoder"
	case astiav.ClassCategoryDemuxer:
		return "demuxer"
	case astiav.ClassCategoryDeviceAudioInput:
		return "device_audio_input"
	case astiav.ClassCategoryDeviceAudioOutput:
		return "device_audio_output"
	case astiav.ClassCategoryDeviceInput:
		return "device_input"
	case astiav.ClassCategoryDeviceOutput:
		return "device_output"
	case astiav.ClassCategoryDeviceVideoInput:
		return "device_video_input"
	case astiav.ClassCategoryDeviceVideoOutput:
		return "device_video_output"
	case astiav.ClassCategoryEncoder:
		return "encoder"
	case astiav.ClassCategoryFilter:
		return "filter"
	case astiav.ClassCategoryInput:
		return "input"
	case astiav.ClassCategoryMuxer:
		return "muxer"
	case astiav.ClassCategoryNa:
		return "na"
	case astiav.ClassCategoryOutput:
		return "output"
	case astiav.ClassCategorySwresampler:
		return "swresampler"
	case astiav.ClassCategorySwscaler:
		return "swscaler"
	default:
		return "unknown"
	}
}
