package resources

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/inboxbuckets/internal/inbox"
)

// Resource URIs.
const (
	BucketsURI = "inbox://buckets"
	ViewURI    = "inbox://view"
)

// Source is what the resources read from.
type Source interface {
	Inbox(ctx context.Context, userID string) (*inbox.View, error)
	Buckets(ctx context.Context, userID string) ([]inbox.Bucket, error)
}

// RegisterInboxResources registers the bucket list and the stored inbox view
// for userID. Neither resource contacts Gmail.
func RegisterInboxResources(s *mcpserver.MCPServer, src Source, userID string) error {
	if src == nil {
		return fmt.Errorf("inbox source is required")
	}
	if userID == "" {
		return fmt.Errorf("user id is required")
	}

	bucketsResource := mcp.NewResource(
		BucketsURI,
		"Inbox Buckets",
		mcp.WithResourceDescription("Buckets messages are sorted into"),
		mcp.WithMIMEType("application/json"),
	)
	s.AddResource(bucketsResource, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return readBuckets(ctx, src, userID, request.Params.URI)
	})

	viewResource := mcp.NewResource(
		ViewURI,
		"Grouped Inbox",
		mcp.WithResourceDescription("Stored messages grouped by bucket, newest first"),
		mcp.WithMIMEType("application/json"),
	)
	s.AddResource(viewResource, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return readView(ctx, src, userID, request.Params.URI)
	})

	return nil
}

func readBuckets(ctx context.Context, src Source, userID, uri string) ([]mcp.ResourceContents, error) {
	buckets, err := src.Buckets(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list buckets: %w", err)
	}
	return jsonContents(uri, buckets)
}

func readView(ctx context.Context, src Source, userID, uri string) ([]mcp.ResourceContents, error) {
	view, err := src.Inbox(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load inbox: %w", err)
	}
	return jsonContents(uri, view)
}

func jsonContents(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal resource: %w", err)
	}
	return []mcp.ResourceContents{
		&mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
