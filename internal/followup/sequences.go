package followup

import (
	_ "embed"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"

	"loancrm_backend/platform/apperr"
)

// Sequence names. The catalog in sequences.yaml must define each of these.
const (
	SequenceNewLead       = "new_lead"
	SequenceStaleLead     = "stale_lead"
	SequenceIncompleteApp = "incomplete_app"
	SequenceDocsNeeded    = "docs_needed"
	SequenceNurture       = "nurture"
)

// SequenceStage is one step of an outreach sequence.
type SequenceStage struct {
	DelayHours  int     `yaml:"delayHours"`
	Channel     Channel `yaml:"channel"`
	Purpose     string  `yaml:"purpose"`
	IsLastStage bool    `yaml:"isLastStage"`
}

//go:embed sequences.yaml
var sequencesYAML []byte

// catalog holds the immutable sequence definitions, parsed once at process
// start. A malformed catalog is a programming error.
var catalog = mustLoadCatalog(sequencesYAML)

func mustLoadCatalog(raw []byte) map[string][]SequenceStage {
	var parsed map[string][]SequenceStage
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		panic(fmt.Sprintf("followup: invalid sequence catalog: %v", err))
	}

	required := []string{SequenceNewLead, SequenceStaleLead, SequenceIncompleteApp, SequenceDocsNeeded, SequenceNurture}
	for _, name := range required {
		stages := parsed[name]
		if len(stages) == 0 {
			panic(fmt.Sprintf("followup: sequence catalog missing %q", name))
		}
		for i, stage := range stages {
			if stage.DelayHours < 0 {
				panic(fmt.Sprintf("followup: sequence %q stage %d has negative delay", name, i))
			}
			switch stage.Channel {
			case ChannelSMS, ChannelEmail, ChannelBoth:
			default:
				panic(fmt.Sprintf("followup: sequence %q stage %d has unknown channel %q", name, i, stage.Channel))
			}
			if stage.Purpose == "" {
				panic(fmt.Sprintf("followup: sequence %q stage %d has no purpose", name, i))
			}
		}
		if !stages[len(stages)-1].IsLastStage {
			panic(fmt.Sprintf("followup: sequence %q does not mark its final stage", name))
		}
	}
	return parsed
}

// Stages returns the stage table for a sequence. An unknown name is a
// contract error the caller must not mask.
func Stages(sequence string) ([]SequenceStage, error) {
	stages, ok := catalog[sequence]
	if !ok {
		return nil, apperr.Contract(fmt.Sprintf("unknown follow-up sequence %q", sequence))
	}
	return stages, nil
}

// SequenceNames returns the defined sequence names in sorted order.
func SequenceNames() []string {
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
