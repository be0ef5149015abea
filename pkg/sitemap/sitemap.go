// Package sitemap loads a set of target URLs from an XML sitemap, used
// by a stress test to spread load across more than one URL.
package sitemap

import (
	"context"
	"encoding/xml"
	"errors"
	"os"

	"github.com/loadpulse/loadpulse/pkg/types"
)

// ErrEmptySitemap is returned when path parses as well-formed XML but
// contains no <loc> entries.
var ErrEmptySitemap = errors.New("sitemap: no <loc> entries found")

// Loader loads the list of target URLs found at path.
type Loader interface {
	Load(ctx context.Context, path string) ([]string, error)
}

type urlset struct {
	URLs []struct {
		Loc string `xml:"loc"`
	} `xml:"url"`
}

// XMLLoader parses a standard sitemap.xml document.
type XMLLoader struct{}

// Load reads and parses the sitemap at path.
func (XMLLoader) Load(ctx context.Context, path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, types.NewAppError(types.ErrorKindFileNotReadable, "reading sitemap", err)
	}

	var set urlset
	if err := xml.Unmarshal(data, &set); err != nil {
		return nil, types.NewAppError(types.ErrorKindJSONMalformed, "parsing sitemap xml", err)
	}

	urls := make([]string, 0, len(set.URLs))
	for _, u := range set.URLs {
		if u.Loc != "" {
			urls = append(urls, u.Loc)
		}
	}
	if len(urls) == 0 {
		return nil, ErrEmptySitemap
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	return urls, nil
}
