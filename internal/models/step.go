package models

import (
	"fmt"
	"sort"
	"strings"
)

// Channel is an outbound messaging channel
type Channel string

// Channel constants
const (
	ChannelSMS   Channel = "SMS"
	ChannelEmail Channel = "EMAIL"
)

// IsValidChannel checks if the channel is valid
func IsValidChannel(channel Channel) bool {
	return channel == ChannelSMS || channel == ChannelEmail
}

// DripStep is one timed message in a campaign sequence
type DripStep struct {
	StepIndex       int     `json:"step_index"`
	DelayDays       int     `json:"delay_days"`
	Channel         Channel `json:"channel"`
	TemplateBody    string  `json:"template_body"`
	TemplateSubject string  `json:"template_subject,omitempty"`
}

// StepList is an ordered drip sequence
type StepList []DripStep

// At returns the step with the given index, or false past the end
func (l StepList) At(index int) (DripStep, bool) {
	if index < 0 || index >= len(l) {
		return DripStep{}, false
	}
	return l[index], true
}

// ValidateSteps enforces the structural invariants of a drip sequence:
// indexes are 0-based and contiguous, delays are non-negative, every step has
// a known channel and a body, and EMAIL steps carry a subject.
func ValidateSteps(steps StepList) error {
	if len(steps) == 0 {
		return ErrInvalidStepsWithMsg("campaign has no steps")
	}

	sorted := make(StepList, len(steps))
	copy(sorted, steps)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].StepIndex < sorted[j].StepIndex })

	for i, step := range sorted {
		if step.StepIndex != i {
			return ErrInvalidStepsWithMsg(fmt.Sprintf("step indexes must be contiguous from 0: expected %d, found %d", i, step.StepIndex))
		}
		if step.DelayDays < 0 {
			return ErrInvalidStepsWithMsg(fmt.Sprintf("step %d has negative delay_days", i))
		}
		if !IsValidChannel(step.Channel) {
			return ErrInvalidStepsWithMsg(fmt.Sprintf("step %d has invalid channel %q", i, step.Channel))
		}
		if strings.TrimSpace(step.TemplateBody) == "" {
			return ErrInvalidStepsWithMsg(fmt.Sprintf("step %d has an empty body", i))
		}
		if step.Channel == ChannelEmail && strings.TrimSpace(step.TemplateSubject) == "" {
			return ErrInvalidStepsWithMsg(fmt.Sprintf("email step %d has no subject", i))
		}
	}
	return nil
}

// Normalize returns the steps ordered by index
func (l StepList) Normalize() StepList {
	out := make(StepList, len(l))
	copy(out, l)
	sort.SliceStable(out, func(i, j int) bool { return out[i].StepIndex < out[j].StepIndex })
	return out
}
