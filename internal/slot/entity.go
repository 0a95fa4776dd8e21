package slot

import "time"

type ServerStatus string

const (
	ServerActive      ServerStatus = "active"
	ServerMaintenance ServerStatus = "maintenance"
	ServerDisabled    ServerStatus = "disabled"
)

func (s ServerStatus) Valid() bool {
	return s == ServerActive || s == ServerMaintenance || s == ServerDisabled
}

// Server is one workspace host. 0 <= UsedCount <= Capacity holds at every
// committed state.
type Server struct {
	ID        string       `yaml:"id" json:"id"`
	Host      string       `yaml:"host" json:"host"`
	Port      int          `yaml:"port" json:"port"`
	User      string       `yaml:"user" json:"user"`
	Capacity  int          `yaml:"capacity" json:"capacity"`
	UsedCount int          `yaml:"used_count" json:"used_count"`
	Status    ServerStatus `yaml:"status" json:"status"`
	UpdatedAt time.Time    `yaml:"updated_at" json:"updated_at"`
}

func (s *Server) HasCapacity() bool {
	return s.Status == ServerActive && s.UsedCount < s.Capacity
}

// Reservation is the handle for one reserved slot. It carries the server's
// connection details as they were when the slot was taken.
type Reservation struct {
	ID          string     `yaml:"id" json:"id"`
	ServerID    string     `yaml:"server_id" json:"server_id"`
	ServerHost  string     `yaml:"server_host" json:"server_host"`
	ServerPort  int        `yaml:"server_port" json:"server_port"`
	ServerUser  string     `yaml:"server_user" json:"server_user"`
	DeveloperID string     `yaml:"developer_id" json:"developer_id"`
	TaskID      string     `yaml:"task_id" json:"task_id"`
	CreatedAt   time.Time  `yaml:"created_at" json:"created_at"`
	ReleasedAt  *time.Time `yaml:"released_at,omitempty" json:"released_at,omitempty"`
}

func (r *Reservation) Released() bool {
	return r.ReleasedAt != nil
}
