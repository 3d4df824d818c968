package inbox_tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/inboxbuckets/internal/inbox"
	"github.com/teemow/inboxbuckets/internal/tools/batch"
	"github.com/teemow/inboxbuckets/internal/tools/common"
)

// maxBatchMessages caps inbox_get_messages.
const maxBatchMessages = 20

// Service is the inbox surface the tools call.
type Service interface {
	Inbox(ctx context.Context, userID string) (*inbox.View, error)
	LoadInbox(ctx context.Context, userID string) (*inbox.View, error)
	Reclassify(ctx context.Context, userID string) (*inbox.View, error)
	Buckets(ctx context.Context, userID string) ([]inbox.Bucket, error)
	AddBucket(ctx context.Context, userID, name, description string) (*inbox.View, error)
	UpdateBucket(ctx context.Context, userID, bucketID, name, description string) (*inbox.View, error)
	DeleteBucket(ctx context.Context, userID, bucketID string) (*inbox.View, error)
	Search(ctx context.Context, userID, query string, limit int) (*inbox.SearchResponse, error)
	MessageDetail(ctx context.Context, userID, messageID string) (*inbox.MessageDetail, error)
}

// Config wires the inbox tools for one user.
type Config struct {
	Service         Service
	UserID          string
	Instrumentation common.Instrumentation
	// ReadOnly omits the tools that change buckets.
	ReadOnly bool
}

type tools struct {
	svc    Service
	userID string
}

// RegisterInboxTools registers the inbox tools with the MCP server
func RegisterInboxTools(s *mcpserver.MCPServer, cfg Config) error {
	if cfg.Service == nil {
		return fmt.Errorf("inbox service is required")
	}
	if cfg.UserID == "" {
		return fmt.Errorf("user id is required")
	}
	t := &tools{svc: cfg.Service, userID: cfg.UserID}
	add := func(tool mcp.Tool, handler common.ToolHandler) {
		s.AddTool(tool, common.InstrumentedToolHandler(tool.Name, cfg.UserID, cfg.Instrumentation, handler))
	}

	add(mcp.NewTool("inbox_get",
		mcp.WithDescription("Return the stored inbox grouped by bucket, without contacting Gmail"),
	), t.handleGet)

	add(mcp.NewTool("inbox_refresh",
		mcp.WithDescription("Fetch the most recent Gmail messages, classify new ones into buckets and return the grouped inbox"),
	), t.handleRefresh)

	add(mcp.NewTool("inbox_reclassify",
		mcp.WithDescription("Classify every stored message again, e.g. after changing bucket descriptions"),
	), t.handleReclassify)

	add(mcp.NewTool("inbox_list_buckets",
		mcp.WithDescription("List the buckets messages are sorted into"),
	), t.handleListBuckets)

	add(mcp.NewTool("inbox_search",
		mcp.WithDescription("Find stored messages relevant to a free-text question"),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("What to look for, e.g. 'invoices I have not paid'"),
		),
		mcp.WithNumber("limit",
			mcp.Description(fmt.Sprintf("Maximum number of results (default: %d, max: %d)", inbox.DefaultSearchLimit, inbox.MaxSearchLimit)),
		),
	), t.handleSearch)

	add(mcp.NewTool("inbox_get_message",
		mcp.WithDescription("Return one message rendered as sanitized HTML"),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Gmail message id"),
		),
	), t.handleGetMessage)

	add(mcp.NewTool("inbox_get_messages",
		mcp.WithDescription("Return several messages rendered as sanitized HTML, with a per-message status"),
		mcp.WithString("ids",
			mcp.Required(),
			mcp.Description(fmt.Sprintf("Message id (string) or array of up to %d message ids", maxBatchMessages)),
		),
	), t.handleGetMessages)

	if cfg.ReadOnly {
		return nil
	}

	add(mcp.NewTool("inbox_add_bucket",
		mcp.WithDescription("Create a custom bucket and reclassify the stored messages"),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description(fmt.Sprintf("Bucket name (%d-%d characters)", inbox.BucketNameMinLength, inbox.BucketNameMaxLength)),
		),
		mcp.WithString("description",
			mcp.Description("What belongs in this bucket; guides the classifier"),
		),
	), t.handleAddBucket)

	add(mcp.NewTool("inbox_update_bucket",
		mcp.WithDescription("Rename a bucket or change its description, then reclassify"),
		mcp.WithString("bucketId",
			mcp.Required(),
			mcp.Description("Bucket id from inbox_list_buckets"),
		),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("New bucket name"),
		),
		mcp.WithString("description",
			mcp.Description("New description"),
		),
	), t.handleUpdateBucket)

	add(mcp.NewTool("inbox_delete_bucket",
		mcp.WithDescription("Delete a bucket; its messages move to other buckets. The last bucket cannot be deleted."),
		mcp.WithString("bucketId",
			mcp.Required(),
			mcp.Description("Bucket id from inbox_list_buckets"),
		),
	), t.handleDeleteBucket)

	return nil
}

func (t *tools) handleGet(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	view, err := t.svc.Inbox(ctx, t.userID)
	if err != nil {
		return errorResult("Failed to load inbox", err), nil
	}
	return jsonResult(view)
}

func (t *tools) handleRefresh(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	view, err := t.svc.LoadInbox(ctx, t.userID)
	if err != nil {
		return errorResult("Failed to refresh inbox", err), nil
	}
	return jsonResult(view)
}

func (t *tools) handleReclassify(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	view, err := t.svc.Reclassify(ctx, t.userID)
	if err != nil {
		return errorResult("Failed to reclassify inbox", err), nil
	}
	return jsonResult(view)
}

func (t *tools) handleListBuckets(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	buckets, err := t.svc.Buckets(ctx, t.userID)
	if err != nil {
		return errorResult("Failed to list buckets", err), nil
	}
	return jsonResult(buckets)
}

func (t *tools) handleSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	limit, err := common.IntArg(args, "limit", 0)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if args["limit"] != nil && limit < 1 {
		return mcp.NewToolResultError(fmt.Sprintf("limit must be between 1 and %d", inbox.MaxSearchLimit)), nil
	}
	query, limit, err := inbox.NormalizeSearch(common.StringArg(args, "query"), limit)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	resp, err := t.svc.Search(ctx, t.userID, query, limit)
	if err != nil {
		return errorResult("Failed to search inbox", err), nil
	}
	return jsonResult(resp)
}

func (t *tools) handleGetMessage(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := common.StringArg(request.GetArguments(), "id")
	if id == "" {
		return mcp.NewToolResultError("id is required"), nil
	}
	detail, err := t.svc.MessageDetail(ctx, t.userID, id)
	if err != nil {
		return errorResult("Failed to get message", err), nil
	}
	return jsonResult(detail)
}

func (t *tools) handleGetMessages(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ids, err := batch.ParseIDs(request.GetArguments()["ids"], "ids", maxBatchMessages)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var authErr error
	results := batch.Process(ctx, ids, func(ctx context.Context, id string) (any, error) {
		detail, err := t.svc.MessageDetail(ctx, t.userID, id)
		if inbox.NeedsGoogleAuth(err) && authErr == nil {
			authErr = err
		}
		return detail, err
	})
	summary := batch.Summarize(results)
	if summary.Successful == 0 && authErr != nil {
		return errorResult("Failed to get messages", authErr), nil
	}
	return jsonResult(summary)
}

func (t *tools) handleAddBucket(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	name := common.StringArg(args, "name")
	description := common.StringArg(args, "description")
	if err := inbox.ValidateBucket(name, description); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	view, err := t.svc.AddBucket(ctx, t.userID, name, description)
	if err != nil {
		return errorResult("Failed to add bucket", err), nil
	}
	return jsonResult(view)
}

func (t *tools) handleUpdateBucket(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	bucketID := common.StringArg(args, "bucketId")
	if bucketID == "" {
		return mcp.NewToolResultError("bucketId is required"), nil
	}
	name := common.StringArg(args, "name")
	description := common.StringArg(args, "description")
	if err := inbox.ValidateBucket(name, description); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	view, err := t.svc.UpdateBucket(ctx, t.userID, bucketID, name, description)
	if err != nil {
		return errorResult("Failed to update bucket", err), nil
	}
	return jsonResult(view)
}

func (t *tools) handleDeleteBucket(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	bucketID := common.StringArg(request.GetArguments(), "bucketId")
	if bucketID == "" {
		return mcp.NewToolResultError("bucketId is required"), nil
	}
	view, err := t.svc.DeleteBucket(ctx, t.userID, bucketID)
	if err != nil {
		return errorResult("Failed to delete bucket", err), nil
	}
	return jsonResult(view)
}

// errorResult turns a service error into a tool error, with a hint when the
// Google account has to be connected again.
func errorResult(prefix string, err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, inbox.ErrNotConnected):
		return mcp.NewToolResultError("Google account is not connected. Run 'inboxbuckets connect' to authorize Gmail access.")
	case errors.Is(err, inbox.ErrAuthExpired):
		return mcp.NewToolResultError("Gmail authorization expired. Run 'inboxbuckets connect' to sign in again.")
	case errors.Is(err, inbox.ErrBucketNotFound):
		return mcp.NewToolResultError("Bucket not found")
	case errors.Is(err, inbox.ErrLastBucket):
		return mcp.NewToolResultError("Cannot delete the last category")
	default:
		return mcp.NewToolResultError(fmt.Sprintf("%s: %v", prefix, err))
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
