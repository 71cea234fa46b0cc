// Package storage defines the persisted rows of the gateway and the store
// contracts its components consume. Implementations live in the postgres
// and cache subpackages.
package storage

import (
	"time"

	"github.com/tinywideclouds/go-push-gateway/pkg/push"
)

// APNSCredentials is the channel-A credential bundle (token-based auth).
type APNSCredentials struct {
	Key      []byte
	KeyID    string
	TeamID   string
	BundleID string
	Sandbox  bool
}

// FCMCredentials is the channel-B credential bundle.
type FCMCredentials struct {
	ProjectID      string
	ServiceAccount []byte
}

// HMSCredentials is the channel-C credential bundle.
type HMSCredentials struct {
	ClientID     string
	ClientSecret string
	ProjectID    string
}

// AppCredentials is one row per application. A channel is configured iff
// its credential bundle is present; the three channels are independent.
// Mutated only through the administrative API.
type AppCredentials struct {
	AppID string `gorm:"column:app_id;primaryKey"`

	APNSKey      []byte `gorm:"column:apns_key"`
	APNSKeyID    string `gorm:"column:apns_key_id"`
	APNSTeamID   string `gorm:"column:apns_team_id"`
	APNSBundleID string `gorm:"column:apns_bundle_id"`
	APNSSandbox  bool   `gorm:"column:apns_sandbox"`

	FCMProjectID      string `gorm:"column:fcm_project_id"`
	FCMServiceAccount []byte `gorm:"column:fcm_service_account"`

	HMSClientID     string `gorm:"column:hms_client_id"`
	HMSClientSecret string `gorm:"column:hms_client_secret"`
	HMSProjectID    string `gorm:"column:hms_project_id"`

	LastUpdated time.Time `gorm:"column:last_updated"`
}

func (AppCredentials) TableName() string { return "app_credentials" }

// APNS returns the channel-A bundle, or nil when the channel is not configured.
func (c *AppCredentials) APNS() *APNSCredentials {
	if len(c.APNSKey) == 0 {
		return nil
	}
	return &APNSCredentials{
		Key:      c.APNSKey,
		KeyID:    c.APNSKeyID,
		TeamID:   c.APNSTeamID,
		BundleID: c.APNSBundleID,
		Sandbox:  c.APNSSandbox,
	}
}

// FCM returns the channel-B bundle, or nil when the channel is not configured.
func (c *AppCredentials) FCM() *FCMCredentials {
	if len(c.FCMServiceAccount) == 0 {
		return nil
	}
	return &FCMCredentials{
		ProjectID:      c.FCMProjectID,
		ServiceAccount: c.FCMServiceAccount,
	}
}

// HMS returns the channel-C bundle, or nil when the channel is not configured.
func (c *AppCredentials) HMS() *HMSCredentials {
	if c.HMSClientID == "" {
		return nil
	}
	return &HMSCredentials{
		ClientID:     c.HMSClientID,
		ClientSecret: c.HMSClientSecret,
		ProjectID:    c.HMSProjectID,
	}
}

// ClearChannel nulls the credential bundle for one platform.
func (c *AppCredentials) ClearChannel(platform push.Platform) {
	switch platform {
	case push.PlatformIOS:
		c.APNSKey, c.APNSKeyID, c.APNSTeamID, c.APNSBundleID, c.APNSSandbox = nil, "", "", "", false
	case push.PlatformAndroid:
		c.FCMProjectID, c.FCMServiceAccount = "", nil
	case push.PlatformHuawei:
		c.HMSClientID, c.HMSClientSecret, c.HMSProjectID = "", "", ""
	}
}

// DeviceRegistration binds an application + push token + (optionally) an
// activation to a deliverable device. The unique index over
// (activation_id, push_token) is what turns the benign create race into a
// retryable conflict instead of a duplicate row.
type DeviceRegistration struct {
	ID             string        `gorm:"column:id;primaryKey"`
	AppID          string        `gorm:"column:app_id;index:idx_registrations_app_token"`
	ActivationID   *string       `gorm:"column:activation_id;index;uniqueIndex:idx_registrations_activation_token"`
	UserID         *string       `gorm:"column:user_id;index"`
	Platform       push.Platform `gorm:"column:platform"`
	PushToken      string        `gorm:"column:push_token;index:idx_registrations_app_token;uniqueIndex:idx_registrations_activation_token"`
	LastRegistered time.Time     `gorm:"column:last_registered"`
	Active         bool          `gorm:"column:active"`
}

func (DeviceRegistration) TableName() string { return "device_registrations" }

// MessageStatus is the lifecycle of a persisted message record.
type MessageStatus string

const (
	StatusPending MessageStatus = "PENDING"
	StatusSent    MessageStatus = "SENT"
	StatusFailed  MessageStatus = "FAILED"
)

// PushMessageRecord mirrors one (message, target device) pair when
// message storage is enabled.
type PushMessageRecord struct {
	ID             string        `gorm:"column:id;primaryKey"`
	AppID          string        `gorm:"column:app_id;index"`
	RegistrationID string        `gorm:"column:registration_id;index"`
	UserID         string        `gorm:"column:user_id;index"`
	Platform       push.Platform `gorm:"column:platform"`
	Status         MessageStatus `gorm:"column:status"`
	Payload        []byte        `gorm:"column:payload"`
	CreatedAt      time.Time     `gorm:"column:created_at"`
	UpdatedAt      time.Time     `gorm:"column:updated_at"`
}

func (PushMessageRecord) TableName() string { return "push_message_records" }
