package recorder

import (
	"time"

	"gorm.io/datatypes"
)

// Run is one recording session of a scene, from start or reset until finish.
type Run struct {
	ID         uint           `json:"id" gorm:"primarykey"`
	SceneID    string         `json:"sceneId" gorm:"size:64;index:idx_run_scene"`
	StartedAt  time.Time      `json:"startedAt"`
	EndedAt    *time.Time     `json:"endedAt"`
	FinalState string         `json:"finalState" gorm:"size:32"`
	FrameCount int            `json:"frameCount"`
	EventCount int            `json:"eventCount"`
	Settings   datatypes.JSON `json:"settings"`
}

// Frame is one recorded scene tick.
type Frame struct {
	ID         uint        `json:"id" gorm:"primarykey"`
	RunID      uint        `json:"runId" gorm:"index:idx_frame_run_tick"`
	Tick       uint64      `json:"tick" gorm:"index:idx_frame_run_tick"`
	Elapsed    float64     `json:"elapsed"`
	Delta      float64     `json:"delta"`
	ChaseState string      `json:"chaseState" gorm:"size:32"`
	CapturedAt time.Time   `json:"capturedAt"`
	Actors     []ActorPose `json:"actors" gorm:"foreignkey:FrameID"`
	Bodies     []BodyPose  `json:"bodies" gorm:"foreignkey:FrameID"`
}

// ActorPose is a chase actor inside a recorded frame.
type ActorPose struct {
	ID        uint           `json:"id" gorm:"primarykey"`
	FrameID   uint           `json:"frameId" gorm:"index:idx_actor_frame"`
	Name      string         `json:"name" gorm:"size:32"`
	Model     string         `json:"model" gorm:"size:127"`
	PosX      float64        `json:"posX"`
	PosY      float64        `json:"posY"`
	PosZ      float64        `json:"posZ"`
	Pitch     float64        `json:"pitch"`
	Yaw       float64        `json:"yaw"`
	Roll      float64        `json:"roll"`
	Transform datatypes.JSON `json:"transform"`
}

// BodyPose is a physics body inside a recorded frame.
type BodyPose struct {
	ID        uint           `json:"id" gorm:"primarykey"`
	FrameID   uint           `json:"frameId" gorm:"index:idx_body_frame"`
	Index     int            `json:"index" gorm:"column:body_index"`
	PosX      float64        `json:"posX"`
	PosY      float64        `json:"posY"`
	PosZ      float64        `json:"posZ"`
	VelX      float64        `json:"velX"`
	VelY      float64        `json:"velY"`
	VelZ      float64        `json:"velZ"`
	Transform datatypes.JSON `json:"transform"`
}

// Event is a scene event kept for every tick, sampled or not.
type Event struct {
	ID         uint      `json:"id" gorm:"primarykey"`
	RunID      uint      `json:"runId" gorm:"index:idx_event_run"`
	Tick       uint64    `json:"tick"`
	Type       string    `json:"type" gorm:"size:32;index:idx_event_type"`
	From       string    `json:"from" gorm:"column:from_state;size:32"`
	To         string    `json:"to" gorm:"column:to_state;size:32"`
	Detail     string    `json:"detail" gorm:"size:255"`
	OccurredAt time.Time `json:"occurredAt"`
}

var models = []any{&Run{}, &Frame{}, &ActorPose{}, &BodyPose{}, &Event{}}
