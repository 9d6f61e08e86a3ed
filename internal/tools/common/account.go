package common

import (
	"github.com/teemow/inboxshare/internal/account"
)

// EmailArg is the tool argument naming the target mailbox.
const EmailArg = "email"

// GetAccountFromArgs returns the normalized target mailbox from request
// arguments, or "" when the tool was called without one.
func GetAccountFromArgs(args map[string]any) string {
	if v, ok := args[EmailArg].(string); ok {
		return account.NormalizeEmail(v)
	}
	return ""
}
