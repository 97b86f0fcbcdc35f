package scheduler

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// TaskDealEvent applies one deferred inbound lifecycle event.
const TaskDealEvent = "deals.event"

// TaskDealRescore recomputes the stored priority score of one deal.
const TaskDealRescore = "deals.rescore"

type DealEventPayload struct {
	EventType string          `json:"eventType"`
	ActorRef  string          `json:"actorRef"`
	Request   json.RawMessage `json:"request"`
}

type DealRescorePayload struct {
	DealID string `json:"dealId"`
}

func NewDealEventTask(payload DealEventPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDealEvent, data), nil
}

func ParseDealEventPayload(task *asynq.Task) (DealEventPayload, error) {
	var payload DealEventPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return DealEventPayload{}, err
	}
	if payload.EventType == "" || len(payload.Request) == 0 {
		return DealEventPayload{}, fmt.Errorf("deal event payload is incomplete")
	}
	return payload, nil
}

func NewDealRescoreTask(dealID uuid.UUID) (*asynq.Task, error) {
	data, err := json.Marshal(DealRescorePayload{DealID: dealID.String()})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDealRescore, data), nil
}

func ParseDealRescorePayload(task *asynq.Task) (uuid.UUID, error) {
	var payload DealRescorePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return uuid.UUID{}, err
	}
	return uuid.Parse(payload.DealID)
}

// rescoreTaskID keeps at most one pending rescore per deal.
func rescoreTaskID(dealID uuid.UUID) string {
	return "deals:rescore:" + dealID.String()
}
