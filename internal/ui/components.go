package ui

import (
	"context"
	"fmt"
	"html"
	"io"

	"github.com/a-h/templ"
	"github.com/dustin/go-humanize"
)

// Entry represents a single member of a collection for display.
type Entry struct {
	Name         string
	Href         string
	IsDir        bool
	Size         int64
	LastModified string
}

// Layout renders a full HTML page with a title and body component.
func Layout(title string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := io.WriteString(w, "<!DOCTYPE html><html lang=\"en\">")
		if err != nil {
			return err
		}

		// Head
		_, err = io.WriteString(w, "<head><meta charset=\"utf-8\">")
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, "<meta name=\"viewport\" content=\"width=device-width, initial-scale=1\">")
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, "<title>"+html.EscapeString(title)+"</title>")
		if err != nil {
			return err
		}
		// Minimal modern CSS framework (Pico.css) via CDN.
		_, err = io.WriteString(w, "<link rel=\"stylesheet\" href=\"https://unpkg.com/@picocss/pico@2/css/pico.min.css\">")
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, "</head>")
		if err != nil {
			return err
		}

		_, err = io.WriteString(w, "<body><main class=\"container\">")
		if err != nil {
			return err
		}

		if err := body.Render(ctx, w); err != nil {
			return err
		}

		_, err = io.WriteString(w, "</main></body></html>")
		return err
	})
}

// ListingPage renders the browsable index of one collection.
func ListingPage(path string, parentHref string, entries []Entry) templ.Component {
	return Layout("Index of "+path, templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		title := fmt.Sprintf("<section><header><h1>Index of %s</h1>", html.EscapeString(path))
		_, err := io.WriteString(w, title)
		if err != nil {
			return err
		}

		if parentHref != "" {
			up := fmt.Sprintf("<p><a href=\"%s\">&larr; Parent collection</a></p>", html.EscapeString(parentHref))
			_, err = io.WriteString(w, up)
			if err != nil {
				return err
			}
		}
		_, err = io.WriteString(w, "</header>")
		if err != nil {
			return err
		}

		if len(entries) == 0 {
			_, err = io.WriteString(w, "<p>This collection is empty.</p></section>")
			return err
		}

		_, err = io.WriteString(w, "<table><thead><tr><th>Name</th><th>Size</th><th>Last Modified</th></tr></thead><tbody>")
		if err != nil {
			return err
		}

		for _, e := range entries {
			name := html.EscapeString(e.Name)
			size := humanize.IBytes(uint64(e.Size))
			if e.IsDir {
				name += "/"
				size = "&mdash;"
			}
			row := fmt.Sprintf("<tr><td><a href=\"%s\">%s</a></td><td>%s</td><td>%s</td></tr>",
				html.EscapeString(e.Href), name, size, html.EscapeString(e.LastModified))
			_, err = io.WriteString(w, row)
			if err != nil {
				return err
			}
		}

		_, err = io.WriteString(w, "</tbody></table></section>")
		return err
	}))
}
