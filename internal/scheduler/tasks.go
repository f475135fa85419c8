package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"

	"loancrm_backend/internal/crmsync"
)

const TaskProcessApplication = "followup.process"

const TaskCRMDispatch = "crm.dispatch"

// ProcessApplicationPayload asks the worker to run one orchestrator pass.
type ProcessApplicationPayload struct {
	ApplicationID string `json:"applicationId"`
	Trigger       string `json:"trigger"`
}

func NewProcessApplicationTask(payload ProcessApplicationPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskProcessApplication, data), nil
}

func ParseProcessApplicationPayload(task *asynq.Task) (ProcessApplicationPayload, error) {
	var payload ProcessApplicationPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return ProcessApplicationPayload{}, err
	}
	return payload, nil
}

func NewCRMDispatchTask(payload crmsync.Payload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCRMDispatch, data), nil
}

func ParseCRMDispatchPayload(task *asynq.Task) (crmsync.Payload, error) {
	var payload crmsync.Payload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return crmsync.Payload{}, err
	}
	return payload, nil
}
