package models

import (
	"time"

	"github.com/goccy/go-json"
)

type CommandType string

const (
	CmdSyncNow    CommandType = "sync_now"
	CmdSyncSource CommandType = "sync_source"
	CmdPause      CommandType = "pause"
	CmdResume     CommandType = "resume"
)

type Command struct {
	ID          int64       `json:"id" db:"id"`
	Command     CommandType `json:"command" db:"command"`
	Params      string      `json:"params" db:"params"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`
	ProcessedAt *time.Time  `json:"processed_at" db:"processed_at"`
}

type CommandParams struct {
	Source string `json:"source,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

func (c *Command) DecodeParams() (CommandParams, error) {
	var p CommandParams
	if c.Params == "" {
		return p, nil
	}
	err := json.Unmarshal([]byte(c.Params), &p)
	return p, err
}

func (p CommandParams) Encode() string {
	data, err := json.Marshal(p)
	if err != nil {
		return "{}"
	}
	return string(data)
}
