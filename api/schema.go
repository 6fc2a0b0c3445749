package api

import "encoding/xml"

// Organization is the root of an organization document. It describes how
// the entries of one library (or the favorites list) are arranged into
// nested groups, independently of the library contents.
type Organization struct {
	XMLName xml.Name `xml:"Organization" json:"-" yaml:"-"`
	// Root wraps the top-level group.
	Root Group `xml:"Root" json:"root" yaml:"root"`
}

// Group is one named container in an organization document.
type Group struct {
	Name        string `xml:"Name" json:"name" yaml:"name"`
	Description string `xml:"Description,omitempty" json:"description,omitempty" yaml:"description,omitempty"`
	// Members lists the direct entry children in display order.
	Members []Member `xml:"Members>Member,omitempty" json:"members,omitempty" yaml:"members,omitempty"`
	// Groups lists the nested groups in display order.
	Groups []Group `xml:"Groups>Group,omitempty" json:"groups,omitempty" yaml:"groups,omitempty"`
}

// Member references an entry by its library key.
type Member struct {
	KeyName string `xml:"KeyName" json:"key_name" yaml:"key_name"`
}

// EntryInfo is the projection of a catalog entry exposed by the NFS and MCP
// surfaces.
type EntryInfo struct {
	Key         string `json:"key"`
	Description string `json:"description,omitempty"`
	Library     string `json:"library"`
	Datum       string `json:"datum,omitempty"`
	Ellipsoid   string `json:"ellipsoid,omitempty"`
	Group       string `json:"group,omitempty"`
	Location    string `json:"location,omitempty"`
	Source      string `json:"source,omitempty"`
	EPSG        int    `json:"epsg,omitempty"`
	Score       int    `json:"score,omitempty"`
}

// LibraryInfo summarizes a library root.
type LibraryInfo struct {
	Name         string `json:"name"`
	Favorites    bool   `json:"favorites,omitempty"`
	User         bool   `json:"user,omitempty"`
	ReadOnly     bool   `json:"read_only"`
	Organization string `json:"organization,omitempty"`
	Changed      bool   `json:"changed,omitempty"`
	Entries      int    `json:"entries"`
}
