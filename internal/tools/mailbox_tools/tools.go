package mailbox_tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/inboxshare/internal/access"
	"github.com/teemow/inboxshare/internal/account"
	"github.com/teemow/inboxshare/internal/delegate"
	"github.com/teemow/inboxshare/internal/server"
	"github.com/teemow/inboxshare/internal/tools/batch"
	"github.com/teemow/inboxshare/internal/tools/common"
)

const (
	ToolAvailableAccounts = "mailbox_available_accounts"
	ToolListInbox         = "mailbox_list_inbox"
	ToolGetMessage        = "mailbox_get_message"
	ToolGetMessages       = "mailbox_get_messages"
	ToolLockAccount       = "mailbox_lock_account"
	ToolUnlockAccount     = "mailbox_unlock_account"

	// MaxBatchMessages bounds mailbox_get_messages.
	MaxBatchMessages = 10
)

// RegisterMailboxTools registers the mailbox tools with the MCP server.
func RegisterMailboxTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	if sc.Mailbox() == nil {
		return fmt.Errorf("mailbox service is required")
	}

	availableTool := mcp.NewTool(ToolAvailableAccounts,
		mcp.WithDescription("List the mailbox accounts the current identity may read"),
	)
	s.AddTool(availableTool, common.InstrumentedToolHandler(ToolAvailableAccounts, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleAvailableAccounts(ctx, request, sc)
		}))

	listTool := mcp.NewTool(ToolListInbox,
		mcp.WithDescription("List the 10 most recent INBOX messages of a shared mailbox"),
		mcp.WithString(common.EmailArg,
			mcp.Required(),
			mcp.Description("Email address of the mailbox account"),
		),
	)
	s.AddTool(listTool, common.InstrumentedToolHandler(ToolListInbox, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleListInbox(ctx, request, sc)
		}))

	getTool := mcp.NewTool(ToolGetMessage,
		mcp.WithDescription("Fetch one message of a shared mailbox with its plain-text body"),
		mcp.WithString(common.EmailArg,
			mcp.Required(),
			mcp.Description("Email address of the mailbox account"),
		),
		mcp.WithString("messageId",
			mcp.Required(),
			mcp.Description("Gmail message ID, as returned by mailbox_list_inbox"),
		),
	)
	s.AddTool(getTool, common.InstrumentedToolHandler(ToolGetMessage, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleGetMessage(ctx, request, sc)
		}))

	getManyTool := mcp.NewTool(ToolGetMessages,
		mcp.WithDescription(fmt.Sprintf("Fetch up to %d messages of a shared mailbox. Failures are reported per message.", MaxBatchMessages)),
		mcp.WithString(common.EmailArg,
			mcp.Required(),
			mcp.Description("Email address of the mailbox account"),
		),
		mcp.WithString("messageIds",
			mcp.Required(),
			mcp.Description("A Gmail message ID or an array of IDs, as returned by mailbox_list_inbox"),
		),
	)
	s.AddTool(getManyTool, common.InstrumentedToolHandler(ToolGetMessages, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleGetMessages(ctx, request, sc)
		}))

	if !sc.Identity().IsAdmin {
		return nil
	}
	if sc.Visibility() == nil {
		return fmt.Errorf("visibility admin is required for admin tools")
	}

	lockTool := mcp.NewTool(ToolLockAccount,
		mcp.WithDescription("Make a mailbox account premium: only its owner and admins may read it"),
		mcp.WithString(common.EmailArg,
			mcp.Required(),
			mcp.Description("Email address of the mailbox account"),
		),
	)
	s.AddTool(lockTool, common.InstrumentedToolHandler(ToolLockAccount, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleSetTier(ctx, request, sc, account.TierPremium)
		}))

	unlockTool := mcp.NewTool(ToolUnlockAccount,
		mcp.WithDescription("Make a mailbox account public: anyone may read it"),
		mcp.WithString(common.EmailArg,
			mcp.Required(),
			mcp.Description("Email address of the mailbox account"),
		),
	)
	s.AddTool(unlockTool, common.InstrumentedToolHandler(ToolUnlockAccount, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleSetTier(ctx, request, sc, account.TierPublic)
		}))

	return nil
}

type accountView struct {
	Email     string `json:"email"`
	IsPremium bool   `json:"isPremium"`
}

func handleAvailableAccounts(ctx context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	listing, err := sc.Mailbox().Engine().Available(ctx, sc.Identity())
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list accounts: %v", err)), nil
	}

	out := struct {
		Accounts []accountView `json:"accounts"`
		Message  string        `json:"message,omitempty"`
	}{Accounts: make([]accountView, 0, len(listing.Accounts))}
	for _, a := range listing.Accounts {
		out.Accounts = append(out.Accounts, accountView{Email: a.Email, IsPremium: a.Tier.IsPremium()})
	}
	if listing.Degraded {
		out.Message = "Database temporarily unavailable"
	}
	return jsonResult(out)
}

func handleListInbox(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	email := common.GetAccountFromArgs(request.GetArguments())
	if email == "" {
		return mcp.NewToolResultError("email is required"), nil
	}

	inbox, err := sc.Mailbox().Inbox(ctx, sc.Identity(), email)
	if err != nil {
		return toolError(err, "Failed to fetch inbox"), nil
	}
	return jsonResult(inbox)
}

func handleGetMessage(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	email := common.GetAccountFromArgs(args)
	if email == "" {
		return mcp.NewToolResultError("email is required"), nil
	}
	messageID, ok := args["messageId"].(string)
	if !ok || messageID == "" {
		return mcp.NewToolResultError("messageId is required"), nil
	}

	msg, err := sc.Mailbox().Message(ctx, sc.Identity(), email, messageID)
	if err != nil {
		return toolError(err, "Failed to fetch email"), nil
	}
	return jsonResult(msg)
}

func handleGetMessages(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	email := common.GetAccountFromArgs(args)
	if email == "" {
		return mcp.NewToolResultError("email is required"), nil
	}
	ids, err := batch.ParseIDs(args["messageIds"], "messageIds", MaxBatchMessages)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	// A denial applies to every message alike, so check once up front.
	if _, err := sc.Mailbox().Engine().Authorize(ctx, email, sc.Identity()); err != nil {
		return toolError(err, "Failed to fetch email"), nil
	}

	results := batch.Process(ctx, ids, batch.DefaultConcurrency, func(ctx context.Context, id string) (any, error) {
		msg, err := sc.Mailbox().Message(ctx, sc.Identity(), email, id)
		if err != nil {
			return nil, errors.New(toolErrorText(err, "Failed to fetch email"))
		}
		return msg, nil
	})
	return jsonResult(batch.Summarize(results))
}

func handleSetTier(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext, tier account.Tier) (*mcp.CallToolResult, error) {
	email := common.GetAccountFromArgs(request.GetArguments())
	if email == "" {
		return mcp.NewToolResultError("email is required"), nil
	}

	actor := sc.Identity().UserEmail
	if actor == "" {
		actor = "operator"
	}
	change, err := sc.Visibility().SetTier(ctx, actor, email, tier)
	if err != nil {
		return toolError(err, "Failed to change account tier"), nil
	}

	verb := "unlocked"
	if tier == account.TierPremium {
		verb = "locked"
	}
	return jsonResult(struct {
		Success bool        `json:"success"`
		Changed bool        `json:"changed"`
		Message string      `json:"message"`
		Account accountView `json:"account"`
	}{
		Success: true,
		Changed: change.Changed(),
		Message: fmt.Sprintf("Account %s %s", change.Account.Email, verb),
		Account: accountView{Email: change.Account.Email, IsPremium: change.Account.Tier.IsPremium()},
	})
}

// toolError renders a domain error as a tool error result.
func toolError(err error, fallback string) *mcp.CallToolResult {
	return mcp.NewToolResultError(toolErrorText(err, fallback))
}

// toolErrorText keeps the message of denials and replaces remote failures
// with fallback.
func toolErrorText(err error, fallback string) string {
	if _, ok := access.DenyReason(err); ok {
		return err.Error()
	}
	if errors.Is(err, account.ErrNotFound) {
		return "Account not found"
	}
	if delegate.IsRemoteError(err) {
		return fallback
	}
	return fmt.Sprintf("%s: %v", fallback, err)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to format result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}
