package fakeweb

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"goa.design/clue/log"
)

type har struct {
	Log harLog `json:"log"`
}

type harLog struct {
	Version string     `json:"version,omitempty"`
	Creator harCreator `json:"creator,omitempty"`
	Entries []harEntry `json:"entries"`
}

type harCreator struct {
	Name    string `json:"name,omitempty"`
	Version string `json:"version,omitempty"`
}

type harEntry struct {
	Request  harRequest  `json:"request"`
	Response harResponse `json:"response"`
}

type harRequest struct {
	Method string `json:"method"`
	URL    string `json:"url"`
}

type harResponse struct {
	Status     int            `json:"status"`
	StatusText string         `json:"statusText,omitempty"`
	Headers    []harNameValue `json:"headers,omitempty"`
	Content    harContent     `json:"content"`
}

type harContent struct {
	Size     int    `json:"size"`
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text,omitempty"`
	Encoding string `json:"encoding,omitempty"`
}

type harNameValue struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// LoadHAR registers every entry of the HAR archive at path. A later entry for
// the same URL replaces an earlier one.
func (i *Interceptor) LoadHAR(ctx context.Context, path string) error {
	archive, err := readHAR(path)
	if err != nil {
		return err
	}
	ctx = log.With(ctx, log.KV{K: "fakeweb.har", V: path})
	for n, entry := range archive.Log.Entries {
		if entry.Request.URL == "" {
			return fmt.Errorf("har %s: entry %d has no request url", path, n)
		}
		resp, err := responseSpecFromHAR(entry.Response)
		if err != nil {
			log.Error(ctx, err, log.KV{K: "fakeweb.url", V: entry.Request.URL})
			return fmt.Errorf("har %s: entry %d: %w", path, n, err)
		}
		i.Register(entry.Request.Method, entry.Request.URL, resp, nil)
	}
	log.Info(ctx, log.KV{K: "fakeweb.action", V: "load"}, log.KV{K: "fakeweb.entries", V: len(archive.Log.Entries)})
	return nil
}

func readHAR(path string) (*har, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var archive har
	if err := json.Unmarshal(data, &archive); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &archive, nil
}

// responseSpecFromHAR converts a HAR response. Framing headers are dropped
// since the body is served whole.
func responseSpecFromHAR(resp harResponse) (ResponseSpec, error) {
	body := []byte(resp.Content.Text)
	if strings.EqualFold(resp.Content.Encoding, "base64") {
		decoded, err := base64.StdEncoding.DecodeString(resp.Content.Text)
		if err != nil {
			return ResponseSpec{}, fmt.Errorf("decode content: %w", err)
		}
		body = decoded
	}

	var headers []string
	hasContentType := false
	for _, h := range resp.Headers {
		if strings.EqualFold(h.Name, "Content-Length") || strings.EqualFold(h.Name, "Transfer-Encoding") {
			continue
		}
		if strings.EqualFold(h.Name, "Content-Type") {
			hasContentType = true
		}
		headers = append(headers, h.Name+": "+h.Value)
	}
	if !hasContentType && resp.Content.MimeType != "" {
		headers = append(headers, "Content-Type: "+resp.Content.MimeType)
	}

	return ResponseSpec{
		StatusCode: resp.Status,
		Headers:    headers,
		Body:       body,
	}, nil
}
