package resources

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/inboxshare/internal/server"
)

const (
	IdentityURI = "inboxshare://identity"
	AccountsURI = "inboxshare://accounts"
)

// RegisterUserResources registers the read-only resources describing the
// asserted identity and what it may read.
func RegisterUserResources(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	if sc.Mailbox() == nil {
		return fmt.Errorf("mailbox service is required")
	}

	identityResource := mcp.NewResource(
		IdentityURI,
		"Current Identity",
		mcp.WithResourceDescription("The identity every tool call is evaluated as"),
		mcp.WithMIMEType("application/json"),
	)
	s.AddResource(identityResource, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return handleIdentity(ctx, request, sc)
	})

	accountsResource := mcp.NewResource(
		AccountsURI,
		"Available Accounts",
		mcp.WithResourceDescription("Mailbox accounts the current identity may read"),
		mcp.WithMIMEType("application/json"),
	)
	s.AddResource(accountsResource, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return handleAccounts(ctx, request, sc)
	})

	return nil
}

func handleIdentity(_ context.Context, request mcp.ReadResourceRequest, sc *server.ServerContext) ([]mcp.ResourceContents, error) {
	id := sc.Identity()
	return jsonContents(request.Params.URI, map[string]any{
		"email":     id.UserEmail,
		"isAdmin":   id.IsAdmin,
		"anonymous": id.Anonymous(),
	})
}

func handleAccounts(ctx context.Context, request mcp.ReadResourceRequest, sc *server.ServerContext) ([]mcp.ResourceContents, error) {
	listing, err := sc.Mailbox().Engine().Available(ctx, sc.Identity())
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}

	accounts := make([]map[string]any, 0, len(listing.Accounts))
	for _, a := range listing.Accounts {
		accounts = append(accounts, map[string]any{
			"email":     a.Email,
			"isPremium": a.Tier.IsPremium(),
		})
	}
	return jsonContents(request.Params.URI, map[string]any{
		"accounts": accounts,
		"degraded": listing.Degraded,
	})
}

func jsonContents(uri string, v any) ([]mcp.ResourceContents, error) {
	jsonData, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal resource: %w", err)
	}

	return []mcp.ResourceContents{
		&mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(jsonData),
		},
	}, nil
}
