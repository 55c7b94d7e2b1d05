package tenants

// Tenant represents one independently credentialed company in the ERP.
type Tenant struct {
	ID              string `json:"id" yaml:"id"`                     // short code (JP, SP)
	DisplayName     string `json:"display_name" yaml:"display_name"` // matched by substring when no id matches
	TokenDescriptor string `json:"token_query" yaml:"token_query"`   // passed verbatim to the token provider
}
