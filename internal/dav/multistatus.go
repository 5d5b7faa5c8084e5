package dav

import (
	"encoding/xml"
	"net/url"
	"path"
	"strings"
	"time"
)

const davXMLNamespace = "DAV:"

// Multistatus represents the XML document of a 207 Multi-Status response.
type Multistatus struct {
	XMLName   xml.Name   `xml:"D:multistatus"`
	XMLNS     string     `xml:"xmlns:D,attr"`
	Responses []Response `xml:"D:response"`
}

// Response is a single per-resource entry in a Multistatus document.
type Response struct {
	Href     string   `xml:"D:href"`
	Propstat Propstat `xml:"D:propstat"`
}

// Propstat groups a property set with the status that applies to it.
type Propstat struct {
	Prop   Prop   `xml:"D:prop"`
	Status string `xml:"D:status"`
}

// Prop carries the WebDAV properties reported for a resource.
type Prop struct {
	DisplayName   string       `xml:"D:displayname"`
	ResourceType  ResourceType `xml:"D:resourcetype"`
	ContentLength *int64       `xml:"D:getcontentlength,omitempty"`
	ContentType   string       `xml:"D:getcontenttype,omitempty"`
	ETag          string       `xml:"D:getetag,omitempty"`
	CreationDate  string       `xml:"D:creationdate,omitempty"`
	LastModified  string       `xml:"D:getlastmodified,omitempty"`
}

// ResourceType is empty for files and carries a collection element for
// collections.
type ResourceType struct {
	Collection *struct{} `xml:"D:collection,omitempty"`
}

// davError is the XML body of a WebDAV precondition failure, such as the
// propfind-finite-depth rejection of Depth: infinity.
type davError struct {
	XMLName     xml.Name  `xml:"D:error"`
	XMLNS       string    `xml:"xmlns:D,attr"`
	FiniteDepth *struct{} `xml:"D:propfind-finite-depth,omitempty"`
}

// hrefPath renders an absolute, percent-escaped href for the given key.
// Collection hrefs keep their trailing separator.
func hrefPath(key string) string {
	u := url.URL{Path: "/" + strings.TrimPrefix(key, "/")}
	return u.EscapedPath()
}

// displayName derives a resource's display name from the last segment of
// its key; the root collection is named "Root".
func displayName(key string) string {
	trimmed := strings.Trim(key, "/")
	if trimmed == "" {
		return "Root"
	}
	return path.Base(trimmed)
}

// collectionResponse builds the multistatus entry for a collection.
func collectionResponse(key string, modified time.Time) Response {
	zero := int64(0)
	return Response{
		Href: hrefPath(key),
		Propstat: Propstat{
			Prop: Prop{
				DisplayName:   displayName(key),
				ResourceType:  ResourceType{Collection: &struct{}{}},
				ContentLength: &zero,
				ContentType:   DirectoryContentType,
				CreationDate:  modified.UTC().Format(time.RFC3339),
				LastModified:  modified.UTC().Format(time.RFC1123),
			},
			Status: "HTTP/1.1 200 OK",
		},
	}
}

// fileResponse builds the multistatus entry for a file member.
func fileResponse(entry Entry) Response {
	size := entry.Size
	prop := Prop{
		DisplayName:   displayName(entry.Key),
		ContentLength: &size,
		ContentType:   entry.ContentType,
		CreationDate:  entry.ModTime.UTC().Format(time.RFC3339),
		LastModified:  entry.ModTime.UTC().Format(time.RFC1123),
	}
	if entry.ETag != "" {
		prop.ETag = `"` + entry.ETag + `"`
	}

	return Response{
		Href:     hrefPath(entry.Key),
		Propstat: Propstat{Prop: prop, Status: "HTTP/1.1 200 OK"},
	}
}

// buildMultistatus assembles the 207 document for a depth-1 PROPFIND on the
// collection at prefix: a self entry followed by one entry per immediate
// member. A nil entries slice (depth 0) yields the self entry alone.
func buildMultistatus(prefix string, selfModified time.Time, entries []Entry) *Multistatus {
	selfKey := prefix
	if selfKey == "" {
		selfKey = "/"
	}

	ms := &Multistatus{
		XMLNS:     davXMLNamespace,
		Responses: []Response{collectionResponse(selfKey, selfModified)},
	}

	for _, entry := range entries {
		if entry.IsDir {
			modified := entry.ModTime
			if modified.IsZero() {
				// Implicit collections carry no metadata of their own.
				modified = selfModified
			}
			ms.Responses = append(ms.Responses, collectionResponse(entry.Key, modified))
			continue
		}
		ms.Responses = append(ms.Responses, fileResponse(entry))
	}

	return ms
}
