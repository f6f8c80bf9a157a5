package render

import (
	"fmt"
	"os"
	"strings"
	"time"

	"shortreel/internal/services"
)

// maxWordsPerCue keeps burnt captions readable on a phone screen.
const maxWordsPerCue = 6

// WriteSubtitles generates an SRT file for the script, allocating the
// voiceover duration across cues proportionally to word count.
func WriteSubtitles(script string, durationSec float64, path string) error {
	words := strings.Fields(script)
	if len(words) == 0 {
		return services.Wrap(services.ErrValidation, CollaboratorName, "subtitles",
			"empty script", nil)
	}
	if durationSec <= 0 {
		return services.Wrap(services.ErrValidation, CollaboratorName, "subtitles",
			"unknown duration", nil)
	}

	var cues []string
	for start := 0; start < len(words); start += maxWordsPerCue {
		end := start + maxWordsPerCue
		if end > len(words) {
			end = len(words)
		}
		cues = append(cues, strings.Join(words[start:end], " "))
	}

	perWord := durationSec / float64(len(words))
	var builder strings.Builder
	elapsed := 0.0
	for i, cue := range cues {
		cueWords := len(strings.Fields(cue))
		cueDur := perWord * float64(cueWords)
		fmt.Fprintf(&builder, "%d\n%s --> %s\n%s\n\n",
			i+1,
			formatSRTTime(elapsed),
			formatSRTTime(elapsed+cueDur),
			cue)
		elapsed += cueDur
	}

	if err := os.WriteFile(path, []byte(builder.String()), 0o644); err != nil {
		return services.Wrap(services.ErrConfiguration, CollaboratorName, "subtitles",
			"write subtitle file", err)
	}
	return nil
}

func formatSRTTime(seconds float64) string {
	d := time.Duration(seconds * float64(time.Second))
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	secs := int(d.Seconds()) % 60
	millis := int(d.Milliseconds()) % 1000
	return fmt.Sprintf("%02d:%02d:%02d,%03d", hours, minutes, secs, millis)
}
