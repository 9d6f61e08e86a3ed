package google

// DefaultOAuthScopes are requested at consent time.
//
// gmail.readonly covers listing and reading messages. The userinfo scopes
// let the callback resolve which mailbox was just authorized.
var DefaultOAuthScopes = []string{
	"https://www.googleapis.com/auth/gmail.readonly",
	"https://www.googleapis.com/auth/userinfo.email",
	"https://www.googleapis.com/auth/userinfo.profile",
}
