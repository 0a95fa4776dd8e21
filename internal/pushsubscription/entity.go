package pushsubscription

import (
	"time"

	"github.com/kazz187/devguild/internal/principal"
)

// Subscription is one browser endpoint registered by a principal. Admin
// subscriptions also receive notifications about other people's work.
type Subscription struct {
	ID          string         `yaml:"id"`
	PrincipalID string         `yaml:"principal_id"`
	Role        principal.Role `yaml:"role"`
	Endpoint    string         `yaml:"endpoint"`
	P256dhKey   string         `yaml:"p256dh_key"`
	AuthKey     string         `yaml:"auth_key"`
	CreatedAt   time.Time      `yaml:"created_at"`
	UpdatedAt   time.Time      `yaml:"updated_at"`
}
