package models

import (
	"time"
)

// Email is one ingested message together with its reconstructed relay path
// and the inferred sending provider. Records are never updated after creation.
type Email struct {
	ID             uint      `json:"_id" gorm:"primaryKey;autoIncrement"`
	Subject        string    `json:"subject" gorm:"type:varchar(998)"`
	From           string    `json:"from" gorm:"column:from_addr;type:text"`
	To             string    `json:"to" gorm:"column:to_addr;type:text"`
	Date           time.Time `json:"date"`
	Text           string    `json:"text" gorm:"type:text"`
	ReceivingChain []string  `json:"receivingChain" gorm:"type:text;serializer:json"`
	ESP            string    `json:"esp" gorm:"type:varchar(255);not null;default:'Unknown';index"`
	UID            *uint32   `json:"uid,omitempty"`
	CreatedAt      time.Time `json:"createdAt" gorm:"index"`
}

// TableName specifies the table name for Email
func (Email) TableName() string {
	return "emails"
}

// ESPCount is the number of stored records attributed to one provider
type ESPCount struct {
	ESP   string `json:"esp"`
	Count int64  `json:"count"`
}
