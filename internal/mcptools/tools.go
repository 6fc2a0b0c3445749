package mcptools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/agentic-research/geocat/api"
	"github.com/agentic-research/geocat/internal/catalog"
	"github.com/agentic-research/geocat/internal/reorg"
	"github.com/agentic-research/geocat/internal/search"
)

const defaultSearchLimit = 50

// GroupListing is the result of list_group.
type GroupListing struct {
	Path    string            `json:"path"`
	Groups  []GroupRef        `json:"groups,omitempty"`
	Entries []api.EntryInfo   `json:"entries,omitempty"`
	Roots   []api.LibraryInfo `json:"libraries,omitempty"`
}

// GroupRef names a child group.
type GroupRef struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	Description string `json:"description,omitempty"`
}

// ResultInfo reports the outcome of an organization edit.
type ResultInfo struct {
	Status string `json:"status"`
	Effect string `json:"effect,omitempty"`
	Reason string `json:"reason,omitempty"`
}

func resultInfo(r reorg.Result) ResultInfo {
	info := ResultInfo{Status: r.Status.String(), Reason: r.Reason}
	if r.Status == reorg.Success && r.Transfer {
		info.Effect = r.Effect.String()
	}
	if r.Err != nil && info.Reason == "" {
		info.Reason = r.Err.Error()
	}
	return info
}

func (s *Server) registerTools() {
	s.mcp.AddTool(mcp.NewTool("search_catalog",
		mcp.WithDescription("Search coordinate-system definitions by key, description, EPSG code, datum, ellipsoid, group, location and source. Results are ranked, best first."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Whitespace-separated search terms; earlier terms weigh more")),
		mcp.WithString("libraries", mcp.Description("Comma-separated library names to search (default: all)")),
		mcp.WithString("match", mcp.Description("Whether any or all terms must match"), mcp.Enum("any", "all")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 50)")),
	), s.handleSearch)

	s.mcp.AddTool(mcp.NewTool("list_group",
		mcp.WithDescription("List the child groups and entries of a catalog group. With no path, list the libraries."),
		mcp.WithString("path", mcp.Description("Catalog path such as 'system/UTM' (default: top level)")),
	), s.handleListGroup)

	s.mcp.AddTool(mcp.NewTool("get_entry",
		mcp.WithDescription("Get one coordinate-system definition by catalog path, or by key across all libraries"),
		mcp.WithString("path", mcp.Description("Catalog path of the entry, e.g. 'system/UTM/UTM84-10N'")),
		mcp.WithString("key", mcp.Description("Entry key, resolved across libraries in order")),
	), s.handleGetEntry)

	s.mcp.AddTool(mcp.NewTool("transfer_entry",
		mcp.WithDescription("Move or copy an entry or group onto a target group or before a target entry. Copies across libraries create the entry in the target library."),
		mcp.WithString("source", mcp.Required(), mcp.Description("Catalog path of the node to transfer")),
		mcp.WithString("target", mcp.Required(), mcp.Description("Catalog path of the target group, or of the entry to insert before")),
		mcp.WithString("effect", mcp.Description("Requested effect (default move)"), mcp.Enum("move", "copy")),
		mcp.WithBoolean("dry_run", mcp.Description("Only report what the transfer would do")),
	), s.handleTransfer)

	s.mcp.AddTool(mcp.NewTool("create_group",
		mcp.WithDescription("Create a group under an existing group"),
		mcp.WithString("parent", mcp.Required(), mcp.Description("Catalog path of the parent group")),
		mcp.WithString("name", mcp.Required(), mcp.Description("New group name")),
		mcp.WithString("description", mcp.Description("Group description")),
	), s.handleCreateGroup)

	s.mcp.AddTool(mcp.NewTool("rename_group",
		mcp.WithDescription("Rename a group and optionally change its description"),
		mcp.WithString("path", mcp.Required(), mcp.Description("Catalog path of the group")),
		mcp.WithString("name", mcp.Required(), mcp.Description("New name")),
		mcp.WithString("description", mcp.Description("New description (default: unchanged)")),
	), s.handleRenameGroup)

	s.mcp.AddTool(mcp.NewTool("remove_node",
		mcp.WithDescription("Remove an entry or group from its organization. With delete_from_library, entries are also deleted from their user library."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Catalog path of the node")),
		mcp.WithBoolean("delete_from_library", mcp.Description("Also delete entries from the library")),
	), s.handleRemove)

	s.mcp.AddTool(mcp.NewTool("flush_catalog",
		mcp.WithDescription("Write every changed organization document to disk"),
	), s.handleFlush)
}

func (s *Server) handleSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	terms := strings.Fields(query)
	if len(terms) == 0 {
		return mcp.NewToolResultError("query has no terms"), nil
	}
	var libs []string
	for _, l := range strings.Split(request.GetString("libraries", ""), ",") {
		if l = strings.TrimSpace(l); l != "" {
			libs = append(libs, l)
		}
	}
	limit := request.GetInt("limit", defaultSearchLimit)
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	hits, err := s.sess.Search(ctx, search.Query{
		Libraries: libs,
		Terms:     terms,
		MatchAny:  request.GetString("match", "any") != "all",
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]api.EntryInfo, len(hits))
	for i, h := range hits {
		out[i] = h.Entry.Info()
		out[i].Score = h.Score
	}
	s.log.WithField("terms", len(terms)).Debugf("mcp search: %d hits", len(out))
	return toJSONResult(out)
}

func (s *Server) handleListGroup(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := strings.Trim(request.GetString("path", ""), "/")
	var listing GroupListing
	err := s.sess.Do(func(c *catalog.Catalog) error {
		listing.Path = path
		if path == "" {
			for _, r := range c.Roots() {
				listing.Roots = append(listing.Roots, catalog.Info(r))
			}
			return nil
		}
		n, err := c.Lookup(path)
		if err != nil {
			return err
		}
		if !n.IsGroup() {
			return fmt.Errorf("%s is an entry, not a group", path)
		}
		c.Populate(n)
		for _, ch := range n.Children() {
			if ch.IsGroup() {
				listing.Groups = append(listing.Groups, GroupRef{Name: ch.Name, Path: catalog.PathOf(ch), Description: ch.Description})
			} else {
				listing.Entries = append(listing.Entries, ch.Entry.Info())
			}
		}
		return nil
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return toJSONResult(listing)
}

func (s *Server) handleGetEntry(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := request.GetString("path", "")
	key := request.GetString("key", "")
	if path == "" && key == "" {
		return mcp.NewToolResultError("path or key is required"), nil
	}
	var info api.EntryInfo
	err := s.sess.Do(func(c *catalog.Catalog) error {
		if path != "" {
			n, err := c.Lookup(path)
			if err != nil {
				return err
			}
			if n.IsGroup() {
				return fmt.Errorf("%s is a group, not an entry", path)
			}
			info = n.Entry.Info()
			return nil
		}
		e, err := c.Resolve(key)
		if err != nil {
			return err
		}
		info = e.Info()
		return nil
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return toJSONResult(info)
}

func (s *Server) handleTransfer(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args struct {
		Source string `json:"source"`
		Target string `json:"target"`
		Effect string `json:"effect"`
		DryRun bool   `json:"dry_run"`
	}
	if err := request.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
	}
	if args.Source == "" || args.Target == "" {
		return mcp.NewToolResultError("source and target are required"), nil
	}
	effect, err := reorg.ParseEffect(args.Effect)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var res reorg.Result
	if args.DryRun {
		res, err = s.sess.Plan(args.Source, args.Target, effect)
	} else {
		res, err = s.sess.Transfer(ctx, args.Source, args.Target, effect)
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if res.OK() && !args.DryRun {
		if err := s.sess.Flush(); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("transfer done, flush failed: %v", err)), nil
		}
	}
	return toJSONResult(resultInfo(res))
}

func (s *Server) handleCreateGroup(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	parent, err := request.RequireString("parent")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name, err := request.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.sess.CreateGroup(parent, name, request.GetString("description", ""))
	return s.editResult(res, err)
}

func (s *Server) handleRenameGroup(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name, err := request.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	desc := request.GetString("description", "")
	if desc == "" {
		if desc, err = s.sess.Description(path); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}
	res, err := s.sess.Rename(path, name, desc)
	return s.editResult(res, err)
}

func (s *Server) handleRemove(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.sess.Remove(ctx, path, request.GetBool("delete_from_library", false))
	return s.editResult(res, err)
}

func (s *Server) handleFlush(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.sess.Flush(); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("flushed"), nil
}

// editResult flushes after a successful edit and renders the outcome.
func (s *Server) editResult(res reorg.Result, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		if errors.Is(err, catalog.ErrNoPath) {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("edit failed: %v", err)), nil
	}
	if res.OK() {
		if err := s.sess.Flush(); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("edit done, flush failed: %v", err)), nil
		}
	}
	return toJSONResult(resultInfo(res))
}
