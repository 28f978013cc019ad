package enums

import (
	"fmt"
	"strings"
)

// PropagationStage is the human label of one external status handoff.
type PropagationStage string

const (
	StageCustomClearing PropagationStage = "Custom Clearing"
	StageAtWarehouse    PropagationStage = "At Warehouse"
	StageInSortingArea  PropagationStage = "In Sorting Area"
)

// PropagationStages lists the stages in the order they are pushed.
var PropagationStages = []PropagationStage{
	StageCustomClearing,
	StageAtWarehouse,
	StageInSortingArea,
}

func (s PropagationStage) String() string {
	return string(s)
}

// IsValid reports whether the stage is one of the ordered stages.
func (s PropagationStage) IsValid() bool {
	for _, candidate := range PropagationStages {
		if candidate == s {
			return true
		}
	}
	return false
}

// Next returns the stage that follows s, or false for the last stage.
func (s PropagationStage) Next() (PropagationStage, bool) {
	for i, candidate := range PropagationStages {
		if candidate == s && i+1 < len(PropagationStages) {
			return PropagationStages[i+1], true
		}
	}
	return "", false
}

// ParsePropagationStage matches a stage label case-insensitively.
func ParsePropagationStage(value string) (PropagationStage, error) {
	for _, candidate := range PropagationStages {
		if strings.EqualFold(string(candidate), strings.TrimSpace(value)) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid propagation stage %q", value)
}

// PropagationTaskStatus maps to the propagation_tasks.status column.
type PropagationTaskStatus string

const (
	TaskStatusPending   PropagationTaskStatus = "pending"
	TaskStatusRunning   PropagationTaskStatus = "running"
	TaskStatusSucceeded PropagationTaskStatus = "succeeded"
	TaskStatusFailed    PropagationTaskStatus = "failed"
	TaskStatusCanceled  PropagationTaskStatus = "canceled"
)

var validTaskStatuses = []PropagationTaskStatus{
	TaskStatusPending,
	TaskStatusRunning,
	TaskStatusSucceeded,
	TaskStatusFailed,
	TaskStatusCanceled,
}

func (s PropagationTaskStatus) String() string {
	return string(s)
}

// IsValid reports whether the status is known.
func (s PropagationTaskStatus) IsValid() bool {
	for _, candidate := range validTaskStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is allowed.
func (s PropagationTaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusSucceeded, TaskStatusFailed, TaskStatusCanceled:
		return true
	default:
		return false
	}
}

// ParsePropagationTaskStatus converts raw input into PropagationTaskStatus.
func ParsePropagationTaskStatus(value string) (PropagationTaskStatus, error) {
	for _, candidate := range validTaskStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid propagation task status %q", value)
}
