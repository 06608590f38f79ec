package dynamo

// DynamoDB attribute and index names for the users table.
const (
	attrUserID    = "user_id"
	attrEmail     = "email"
	attrName      = "name"
	attrUpdatedAt = "updated_at"

	emailIndex = "email-index"
)
