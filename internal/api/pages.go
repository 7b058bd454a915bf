package api

import (
	"bytes"
	"fmt"

	"github.com/yuin/goldmark"
)

const homeMarkdown = `# sb2gs service
Decompiles public Scratch projects into goboscript with sb2gs.

# [About](/about)
`

const aboutMarkdown = "# About\n" +
	"This service downloads a public Scratch project, rebuilds its `.sb3` archive, " +
	"runs the sb2gs decompiler on it and returns the generated sources as a zip file.\n\n" +
	"- # `GET` [/api/sb2gs/?id=885002848](/api/sb2gs/?id=885002848)\n" +
	"  Decompile a project with sb2gs, and return it as a zip file.\n" +
	"  Query parameters:\n" +
	"  - `id`: The project id\n\n" +
	"  Responses:\n" +
	"  - `200` the zip archive\n" +
	"  - `404` the id is not numeric or the project has no token (unshared or missing)\n" +
	"  - `424` sb2gs could not decompile the project\n" +
	"  - `500` an upstream download or archive step failed\n"

type pages struct {
	home  []byte
	about []byte
}

func renderPages() (pages, error) {
	home, err := renderMarkdown(homeMarkdown)
	if err != nil {
		return pages{}, err
	}
	about, err := renderMarkdown(aboutMarkdown)
	if err != nil {
		return pages{}, err
	}
	return pages{home: home, about: about}, nil
}

func renderMarkdown(src string) ([]byte, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(src), &buf); err != nil {
		return nil, fmt.Errorf("render markdown: %w", err)
	}
	return buf.Bytes(), nil
}
