package sqlstore

import (
	"time"

	"github.com/uptrace/bun"

	"github.com/watchrelay/watchrelay/core"
)

// credentialSingletonID is the fixed primary key of the single stored
// credential row. Rotation replaces the row in place.
const credentialSingletonID = "current"

type credentialRecord struct {
	bun.BaseModel `bun:"table:relay_credentials,alias:rc"`

	ID           string    `bun:"id,pk"`
	AccessToken  string    `bun:"access_token,notnull"`
	RefreshToken string    `bun:"refresh_token,notnull"`
	ExpiresAt    time.Time `bun:"expires_at,notnull"`
	CreatedAt    time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt    time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func (r *credentialRecord) toDomain() core.Credential {
	if r == nil {
		return core.Credential{}
	}
	return core.Credential{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		ExpiresAt:    r.ExpiresAt.UTC(),
	}
}

type deliveryRecord struct {
	bun.BaseModel `bun:"table:relay_deliveries,alias:rd"`

	ID          string    `bun:"id,pk"`
	EventID     string    `bun:"event_id,notnull,unique"`
	DeliveredAt time.Time `bun:"delivered_at,notnull"`
	CreatedAt   time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}
