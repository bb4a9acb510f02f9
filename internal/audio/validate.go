package audio

import (
	"fmt"
	"strings"
)

// ValidationLimits bounds an acceptable voice-cloning reference clip.
type ValidationLimits struct {
	MaxSizeMB           float64
	MinDurationSec      float64
	MaxDurationSec      float64
	OptimalMinSec       float64
	OptimalMaxSec       float64
	MinSampleRate       int
	PreferredSampleRate int
}

// DefaultValidationLimits reflects what cloning models need: 3-30 s of
// clean speech, ideally 6-10 s mono at 22050 Hz or better.
func DefaultValidationLimits() ValidationLimits {
	return ValidationLimits{
		MaxSizeMB:           10,
		MinDurationSec:      3,
		MaxDurationSec:      30,
		OptimalMinSec:       6,
		OptimalMaxSec:       10,
		MinSampleRate:       16000,
		PreferredSampleRate: 22050,
	}
}

// ValidationResult is the terminal verdict on a reference clip. Warnings
// never block processing; ErrorMessage is set only when IsValid is false.
type ValidationResult struct {
	IsValid        bool
	Duration       float64
	SampleRate     int
	Channels       int
	ErrorMessage   string
	WarningMessage string
}

// ValidateReference checks a reference clip against limits. Checks run
// in order and the first failure wins: size, container parse, minimum
// duration, maximum duration, minimum sample rate. Non-blocking warnings
// (outside optimal duration, below preferred rate, stereo, sub-16-bit)
// are concatenated into one message.
func ValidateReference(audioBytes []byte, limits ValidationLimits) ValidationResult {
	sizeMB := float64(len(audioBytes)) / (1024 * 1024)
	if sizeMB > limits.MaxSizeMB {
		return ValidationResult{
			IsValid:      false,
			ErrorMessage: fmt.Sprintf("File too large (%.1fMB). Maximum: %.0fMB", sizeMB, limits.MaxSizeMB),
		}
	}

	info, err := ReadInfo(audioBytes)
	if err != nil {
		return ValidationResult{
			IsValid:      false,
			ErrorMessage: fmt.Sprintf("Invalid audio file: %v", err),
		}
	}

	if info.Duration < limits.MinDurationSec {
		return ValidationResult{
			IsValid:    false,
			Duration:   info.Duration,
			SampleRate: info.SampleRate,
			Channels:   info.Channels,
			ErrorMessage: fmt.Sprintf("Audio too short (%.1fs). Minimum: %.0fs for voice cloning",
				info.Duration, limits.MinDurationSec),
		}
	}
	if info.Duration > limits.MaxDurationSec {
		return ValidationResult{
			IsValid:    false,
			Duration:   info.Duration,
			SampleRate: info.SampleRate,
			Channels:   info.Channels,
			ErrorMessage: fmt.Sprintf("Audio too long (%.1fs). Maximum: %.0fs",
				info.Duration, limits.MaxDurationSec),
		}
	}
	if info.SampleRate < limits.MinSampleRate {
		return ValidationResult{
			IsValid:    false,
			Duration:   info.Duration,
			SampleRate: info.SampleRate,
			Channels:   info.Channels,
			ErrorMessage: fmt.Sprintf("Sample rate too low (%dHz). Minimum: %dHz",
				info.SampleRate, limits.MinSampleRate),
		}
	}

	var warnings []string
	if info.Duration < limits.OptimalMinSec || info.Duration > limits.OptimalMaxSec {
		warnings = append(warnings, fmt.Sprintf(
			"Audio duration (%.1fs) is acceptable but %.0f-%.0fs is optimal for best quality",
			info.Duration, limits.OptimalMinSec, limits.OptimalMaxSec))
	}
	if info.SampleRate < limits.PreferredSampleRate {
		warnings = append(warnings, fmt.Sprintf(
			"Sample rate %dHz is below optimal %dHz", info.SampleRate, limits.PreferredSampleRate))
	}
	if info.Channels > 1 {
		warnings = append(warnings, fmt.Sprintf(
			"Audio is %d-channel (stereo). Mono is preferred for voice cloning", info.Channels))
	}
	if info.BitsPerSample < 16 {
		warnings = append(warnings, fmt.Sprintf(
			"Audio is %d-bit. 16-bit or higher recommended", info.BitsPerSample))
	}

	return ValidationResult{
		IsValid:        true,
		Duration:       info.Duration,
		SampleRate:     info.SampleRate,
		Channels:       info.Channels,
		WarningMessage: strings.Join(warnings, "; "),
	}
}

// ValidateReferenceSet validates clips independently and fails fast on
// the first invalid one, reporting its index. Warnings from files
// validated so far are aggregated per file.
func ValidateReferenceSet(clips [][]byte, limits ValidationLimits) ([]ValidationResult, int, error) {
	results := make([]ValidationResult, 0, len(clips))
	for i, clip := range clips {
		res := ValidateReference(clip, limits)
		results = append(results, res)
		if !res.IsValid {
			return results, i, fmt.Errorf("reference file %d rejected: %s", i+1, res.ErrorMessage)
		}
	}
	return results, -1, nil
}
