package signchat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/samber/lo"
)

const (
	// DevImagePrefix is the image URL prefix the microservice emits when it
	// believes it is running on a developer machine.
	DevImagePrefix = "http://localhost/signchat_dev/ms-traductor/"
	// PublicImagePrefix replaces DevImagePrefix in text-to-image responses.
	PublicImagePrefix = "https://signchat.co/ms-traductor/"
	// DevHost is the host reference rewritten in keyboard markup.
	DevHost = "http://localhost/signchat_dev/ms-traductor"
)

// RewriteImageURL swaps the first development prefix in url for the public one.
func RewriteImageURL(url string) string {
	return strings.Replace(url, DevImagePrefix, PublicImagePrefix, 1)
}

// RewriteMarkup replaces every development host reference in html with base.
func RewriteMarkup(html, base string) string {
	return strings.ReplaceAll(html, DevHost, base)
}

// ImagesResponse is the text-to-image result. Images holds the rewritten URLs;
// any other fields returned by the upstream are passed through unchanged.
type ImagesResponse struct {
	Images []string

	hasImages bool
	extra     map[string]json.RawMessage
	// verbatim holds valid JSON that is not an object; it is returned as-is.
	verbatim json.RawMessage
}

func parseImagesResponse(raw []byte) (*ImagesResponse, error) {
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		if json.Valid(raw) {
			return &ImagesResponse{verbatim: json.RawMessage(raw)}, nil
		}
		return nil, err
	}
	if fields == nil { // literal null
		return &ImagesResponse{verbatim: json.RawMessage(raw)}, nil
	}
	out := &ImagesResponse{extra: fields}
	imgRaw, ok := fields["images"]
	if !ok {
		return out, nil
	}
	// A non-array images value passes through as-is. An array must hold only
	// URL strings.
	if !bytes.HasPrefix(bytes.TrimSpace(imgRaw), []byte("[")) {
		return out, nil
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(imgRaw, &elems); err != nil {
		return nil, err
	}
	images := make([]string, len(elems))
	for i, e := range elems {
		if !bytes.HasPrefix(bytes.TrimSpace(e), []byte(`"`)) {
			return nil, fmt.Errorf("images[%d] is not a string: %s", i, e)
		}
		if err := json.Unmarshal(e, &images[i]); err != nil {
			return nil, fmt.Errorf("images[%d]: %w", i, err)
		}
	}
	out.Images = lo.Map(images, func(u string, _ int) string { return RewriteImageURL(u) })
	out.hasImages = true
	delete(fields, "images")
	return out, nil
}

// MarshalJSON writes the passthrough fields plus the rewritten images array.
func (r ImagesResponse) MarshalJSON() ([]byte, error) {
	if r.verbatim != nil {
		return r.verbatim, nil
	}
	fields := lo.Assign(r.extra)
	if r.hasImages || r.extra == nil {
		images := r.Images
		if images == nil {
			images = []string{}
		}
		b, err := json.Marshal(images)
		if err != nil {
			return nil, err
		}
		fields["images"] = b
	}
	return json.Marshal(fields)
}
