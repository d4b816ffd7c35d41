package dynamo

// DynamoDB attribute names used in key and condition expressions across all repos.
// Using constants prevents silent runtime bugs caused by key typos.
const (
	fieldIdentifier   = "identifier"
	fieldIsNew        = "is_new"
	fieldVerifiedAt   = "verified_at"
	fieldUserID       = "user_id"
	fieldKind         = "kind"
	fieldCredentialID = "credential_id"
	fieldExpiresAt    = "expires_at"
	fieldUsedAt       = "used_at"
	fieldTTL          = "ttl"
	fieldSessionID    = "session_id"
	fieldEnable       = "enable"
	fieldRevokedAt    = "revoked_at"
)
