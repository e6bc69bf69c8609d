package models

// SystemPreference represents system-wide preferences
type SystemPreference struct {
	ID        uint   `gorm:"column:id;primaryKey" json:"id"`
	Key       string `gorm:"column:key;size:100;uniqueIndex;not null" json:"key"`
	Value     string `gorm:"column:value;type:text" json:"value"`
	ValueType string `gorm:"column:value_type;size:20;default:string" json:"value_type"` // string, int, bool, json
}

func (SystemPreference) TableName() string {
	return "system_preferences"
}

// Setting keys for server-wide WireGuard defaults. These fill optional
// fields at generation time when the imported source did not carry them.
const (
	SettingWGServerPublicKey = "wg_server_public_key"
	SettingWGDNSServers      = "wg_dns_servers"
	SettingWGAllowedIPs      = "wg_allowed_ips"
	SettingWGMTU             = "wg_mtu"

	SettingFilenamePattern = "config_filename_pattern"
	SettingAPIRateLimit    = "api_rate_limit"
	SettingTwoFAIssuer     = "two_factor_issuer"
	SettingJWTSecret       = "jwt_secret"
)
