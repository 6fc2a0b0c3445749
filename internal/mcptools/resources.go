package mcptools

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/agentic-research/geocat/api"
	"github.com/agentic-research/geocat/internal/catalog"
)

const librariesURI = "geocat://libraries"

func (s *Server) registerResources() {
	s.mcp.AddResource(
		mcp.NewResource(
			librariesURI,
			"Libraries",
			mcp.WithResourceDescription("Every library in the catalog with its entry count and whether its organization can be edited"),
			mcp.WithMIMEType("application/json"),
		),
		s.handleLibraries,
	)
}

func (s *Server) handleLibraries(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	var infos []api.LibraryInfo
	_ = s.sess.Do(func(c *catalog.Catalog) error {
		for _, r := range c.Roots() {
			infos = append(infos, catalog.Info(r))
		}
		return nil
	})
	b, err := json.MarshalIndent(infos, "", "  ")
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      librariesURI,
			MIMEType: "application/json",
			Text:     string(b),
		},
	}, nil
}
