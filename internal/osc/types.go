package osc

import "time"

// Action represents the type of change in an OSC file
type Action string

const (
	ActionCreate Action = "create"
	ActionModify Action = "modify"
	ActionDelete Action = "delete"
)

// Node holds the parsed node data from an OSC file. Deletes typically
// carry only the id, leaving the remaining fields at their zero values.
type Node struct {
	ID        int64
	Lat       float64
	Lon       float64
	Tags      map[string]string
	Version   int32
	Changeset int64
	Timestamp time.Time
	User      string
	UID       int32
}

// Change represents a single node change from an OSC file
type Change struct {
	Action Action
	Node   *Node
}

// Stats tracks OSC parsing statistics. Ways and relations are not
// parsed, only counted.
type Stats struct {
	NodesCreated     int64
	NodesModified    int64
	NodesDeleted     int64
	WaysSkipped      int64
	RelationsSkipped int64
}

// Total returns the total number of node changes
func (s *Stats) Total() int64 {
	return s.NodesCreated + s.NodesModified + s.NodesDeleted
}
