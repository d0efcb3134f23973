package scoring

import "math"

// Personality holds the derived personality attributes of a profile.
type Personality struct {
	EmpathyLevel       int    `json:"empathy_level"`
	CommunicationStyle string `json:"communication_style"`
	RiskTolerance      int    `json:"risk_tolerance"`
}

// Lifestyle holds the derived lifestyle preferences of a profile.
type Lifestyle struct {
	Intensity       string `json:"intensity"`
	Frequency       string `json:"frequency"`
	DiscretionLevel int    `json:"discretion_level"`
}

// CharacterProfile is the per-request synthesis result. It is never persisted.
type CharacterProfile struct {
	Archetype       string      `json:"archetype"`
	ArchetypeName   string      `json:"archetype_name"`
	DominanceLevel  int         `json:"dominance_level"`
	SubmissionLevel int         `json:"submission_level"`
	Traits          []string    `json:"traits"`
	Personality     Personality `json:"personality"`
	Lifestyle       Lifestyle   `json:"lifestyle"`
	Warnings        []string    `json:"warnings,omitempty"`
}

const (
	CommunicationDirect     = "direct"
	CommunicationSubtle     = "subtle"
	CommunicationNegotiated = "negotiated"

	IntensityLight    = "light"
	IntensityModerate = "moderate"
	IntensityIntense  = "intense"

	FrequencyOccasional = "occasional"
	FrequencyRegular    = "regular"
	FrequencyFrequent   = "frequent"
)

func derivePersonality(eval Evaluation) Personality {
	return Personality{
		EmpathyLevel:       eval.Axis(AxisEmpathy),
		CommunicationStyle: communicationStyle(eval.Axis(AxisDirectness)),
		RiskTolerance:      eval.Axis(AxisRisk),
	}
}

func deriveLifestyle(eval Evaluation) Lifestyle {
	return Lifestyle{
		Intensity:       tercile(eval.Axis(AxisIntensity), IntensityLight, IntensityModerate, IntensityIntense),
		Frequency:       tercile(eval.Axis(AxisFrequency), FrequencyOccasional, FrequencyRegular, FrequencyFrequent),
		DiscretionLevel: discretionLevel(eval.Axis(AxisDiscretion)),
	}
}

func communicationStyle(directness int) string {
	switch {
	case directness > 60:
		return CommunicationDirect
	case directness < 40:
		return CommunicationSubtle
	default:
		return CommunicationNegotiated
	}
}

func tercile(score int, low, mid, high string) string {
	switch {
	case score <= 33:
		return low
	case score <= 66:
		return mid
	default:
		return high
	}
}

// discretionLevel maps [0,100] onto the 1..5 scale.
func discretionLevel(score int) int {
	level := 1 + int(math.Round(float64(score)/25))
	if level < 1 {
		return 1
	}
	if level > 5 {
		return 5
	}
	return level
}
