package model

import (
	"encoding/json"
	"time"
)

// Setting is a keyed, opaque JSON value.
type Setting struct {
	Key          string          `json:"key"`
	Value        json.RawMessage `json:"value"`
	LastModified time.Time       `json:"lastModified"`
}

// Well-known setting keys.
const (
	SettingAIProvider           = "aiProvider"
	SettingAutoClassify         = "autoClassify"
	SettingAutoDetectDuplicates = "autoDetectDuplicates"
	SettingSimilarityThreshold  = "similarityThreshold"

	SettingMigrationComplete      = "migrationComplete"
	SettingMigrationDate          = "migrationDate"
	SettingMigrationProcessedURLs = "migrationProcessedUrls"

	SettingDailyTokenLimit = "dailyTokenLimit"
	SettingDailyTokensUsed = "dailyTokensUsed"
	SettingTokensLastReset = "tokensLastReset"
)

// ProviderConfigKey returns the settings key holding a provider's configuration.
func ProviderConfigKey(provider string) string {
	return provider + "_config"
}
