package model

import "time"

// Integration is the per-user link to a GitHub account. One per UserId.
type Integration struct {
	UserID       UserId      `json:"userId"`
	Username     string      `json:"username"`
	AccessToken  string      `json:"accessToken"`
	RefreshToken string      `json:"refreshToken,omitempty"`
	TokenType    string      `json:"tokenType,omitempty"`
	Scope        string      `json:"scope,omitempty"`
	AvatarURL    string      `json:"avatarUrl,omitempty"`
	ProfileURL   string      `json:"profileUrl,omitempty"`
	Email        string      `json:"email,omitempty"`
	Name         string      `json:"name,omitempty"`
	ConnectedAt  time.Time   `json:"connectedAt"`
	LastSyncedAt *time.Time  `json:"lastSyncedAt,omitempty"`
	IsActive     bool        `json:"isActive"`
	LastRun      *RunSummary `json:"lastRun,omitempty"`
	CreatedAt    time.Time   `json:"createdAt"`
	UpdatedAt    time.Time   `json:"updatedAt"`
}

// RunSummary is the persisted outcome of the most recent synchronization run.
type RunSummary struct {
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Strategy   string    `json:"strategy,omitempty"`
	Fatal      bool      `json:"fatal"`
	Error      string    `json:"error,omitempty"`
	Succeeded  int       `json:"succeeded"`
	Empty      int       `json:"empty"`
	Degraded   int       `json:"degraded"`
	// Records is keyed by collection name.
	Records map[string]int `json:"records,omitempty"`
}
