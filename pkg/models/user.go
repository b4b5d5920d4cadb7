package models

// User is a statically configured account allowed to request tokens.
type User struct {
	Username     string `json:"username" yaml:"username"`
	PasswordHash string `json:"-" yaml:"password_hash"`
	Disabled     bool   `json:"disabled" yaml:"disabled"`
}

// Token is the response body of the token endpoint.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in,omitempty"`
}
