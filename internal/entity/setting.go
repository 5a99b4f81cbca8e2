package entity

import (
	"time"

	"github.com/uptrace/bun"
)

// SettingAnnouncement is the key holding the storefront announcement banner.
const SettingAnnouncement = "announcement"

// Setting is a key/value configuration row editable from the admin panel.
type Setting struct {
	bun.BaseModel `bun:"table:settings"`

	Key       string    `bun:"key,pk"`
	Value     string    `bun:"value"`
	UpdatedAt time.Time `bun:"updated_at,nullzero"`
}
