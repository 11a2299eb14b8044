package auth

// Known OAuth scopes. Settings ride on the activities scopes; the
// derived insight endpoints have their own read scope.
const (
	ScopeActivitiesRead  = "activities:read"
	ScopeActivitiesWrite = "activities:write"
	ScopeInsightsRead    = "insights:read"
)
